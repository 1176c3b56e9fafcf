package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeper/internal/config"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := openStore(ctx, &config.Config{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
	closeFn()

	store, closeFn, err = openStore(ctx, &config.Config{SQLitePath: filepath.Join(t.TempDir(), "books.db")})
	require.NoError(t, err)
	defer closeFn()
	assert.NoError(t, store.Ready(ctx))
}

func TestDevSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := posting.New(ledger.MustParseCurrency("KRW"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var first, second bytes.Buffer
	require.NoError(t, devSeed(ctx, store, engine, &first, logger, "memory"))
	require.NoError(t, devSeed(ctx, store, engine, &second, logger, "memory"))
	assert.Equal(t, first.String(), second.String())
	assert.Contains(t, first.String(), "VAT-S10: ")

	taxes, err := store.ListTaxes(ctx)
	require.NoError(t, err)
	assert.Len(t, taxes, 2)
	partners, err := store.ListPartners(ctx)
	require.NoError(t, err)
	assert.Len(t, partners, 1)
}
