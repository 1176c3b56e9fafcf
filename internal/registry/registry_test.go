package registry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

func acct(code string, t ledger.AccountType, parent *uuid.UUID) ledger.Account {
	return ledger.Account{ID: uuid.New(), Code: code, Name: code, Type: t, ParentID: parent, Active: true}
}

func TestNewIndexesAccounts(t *testing.T) {
	assets := acct("1000", ledger.AccountTypeAsset, nil)
	cash := acct("1010", ledger.AccountTypeAsset, &assets.ID)
	bank := acct("1020", ledger.AccountTypeAsset, &assets.ID)
	sales := acct("4000", ledger.AccountTypeIncome, nil)

	r, err := New([]ledger.Account{sales, bank, cash, assets})
	require.NoError(t, err)

	got, ok := r.Lookup(cash.ID)
	require.True(t, ok)
	assert.Equal(t, "1010", got.Code)

	got, ok = r.ByCode("4000")
	require.True(t, ok)
	assert.Equal(t, sales.ID, got.ID)

	_, ok = r.Lookup(uuid.New())
	assert.False(t, ok)

	all := r.All()
	require.Len(t, all, 4)
	assert.Equal(t, "1000", all[0].Code)
	assert.Len(t, r.ByType(ledger.AccountTypeAsset), 3)

	kids := r.Children(assets.ID)
	require.Len(t, kids, 2)
	assert.Equal(t, "1010", kids[0].Code)
}

func TestNewRejectsDuplicateCode(t *testing.T) {
	_, err := New([]ledger.Account{acct("1010", ledger.AccountTypeAsset, nil), acct("1010", ledger.AccountTypeExpense, nil)})
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestNewRejectsUnknownParent(t *testing.T) {
	missing := uuid.New()
	_, err := New([]ledger.Account{acct("1010", ledger.AccountTypeAsset, &missing)})
	assert.ErrorIs(t, err, ErrUnknownParent)
}

func TestNewRejectsCycle(t *testing.T) {
	a := acct("1000", ledger.AccountTypeAsset, nil)
	b := acct("1100", ledger.AccountTypeAsset, &a.ID)
	a.ParentID = &b.ID
	_, err := New([]ledger.Account{a, b})
	assert.ErrorIs(t, err, ErrCycle)
}

func TestAdmit(t *testing.T) {
	root := acct("1000", ledger.AccountTypeAsset, nil)
	child := acct("1010", ledger.AccountTypeAsset, &root.ID)
	r, err := New([]ledger.Account{root, child})
	require.NoError(t, err)

	assert.NoError(t, r.Admit(acct("1020", ledger.AccountTypeAsset, &root.ID)))
	assert.ErrorIs(t, r.Admit(acct("1010", ledger.AccountTypeAsset, nil)), ErrDuplicateCode)

	// editing an account keeps its own code
	assert.NoError(t, r.Admit(child))

	// re-parenting root under its own child would close a loop
	moved := root
	moved.ParentID = &child.ID
	assert.ErrorIs(t, r.Admit(moved), ErrCycle)

	self := child
	self.ParentID = &child.ID
	assert.ErrorIs(t, r.Admit(self), ErrCycle)

	orphan := uuid.New()
	assert.ErrorIs(t, r.Admit(acct("1030", ledger.AccountTypeAsset, &orphan)), ErrUnknownParent)
}
