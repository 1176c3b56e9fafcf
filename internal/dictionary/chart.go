// Package dictionary holds the curated default chart of accounts and loads
// alternative charts from YAML.
package dictionary

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/slug"
)

// Codes of the accounts the engine posts to on its own.
const (
	CodeDepreciationExpense     = "6200"
	CodeAccumulatedDepreciation = "1590"
	CodeVATReceivable           = "1350"
	CodeVATPayable              = "2550"
)

// AccountDef describes one chart entry. Parent refers to another entry's code.
type AccountDef struct {
	Code   string             `yaml:"code" json:"code"`
	Name   string             `yaml:"name" json:"name"`
	Type   ledger.AccountType `yaml:"type" json:"type"`
	Parent string             `yaml:"parent,omitempty" json:"parent,omitempty"`
	System bool               `yaml:"system,omitempty" json:"system"`
}

// Chart is an ordered list of account definitions; parents precede children.
type Chart struct {
	Accounts []AccountDef `yaml:"accounts" json:"accounts"`
}

var curated = Chart{Accounts: []AccountDef{
	{Code: "1000", Name: "Assets", Type: ledger.AccountTypeAsset},
	{Code: "1010", Name: "Cash", Type: ledger.AccountTypeAsset, Parent: "1000"},
	{Code: "1020", Name: "Bank", Type: ledger.AccountTypeAsset, Parent: "1000"},
	{Code: "1100", Name: "Accounts Receivable", Type: ledger.AccountTypeAsset, Parent: "1000"},
	{Code: CodeVATReceivable, Name: "VAT Receivable", Type: ledger.AccountTypeAsset, Parent: "1000", System: true},
	{Code: "1500", Name: "Fixed Assets", Type: ledger.AccountTypeAsset, Parent: "1000"},
	{Code: CodeAccumulatedDepreciation, Name: "Accumulated Depreciation", Type: ledger.AccountTypeAsset, Parent: "1500", System: true},
	{Code: "2000", Name: "Liabilities", Type: ledger.AccountTypeLiability},
	{Code: "2100", Name: "Accounts Payable", Type: ledger.AccountTypeLiability, Parent: "2000"},
	{Code: CodeVATPayable, Name: "VAT Payable", Type: ledger.AccountTypeLiability, Parent: "2000", System: true},
	{Code: "2600", Name: "Withholding Tax Payable", Type: ledger.AccountTypeLiability, Parent: "2000"},
	{Code: "3000", Name: "Equity", Type: ledger.AccountTypeEquity},
	{Code: "3100", Name: "Opening Balances", Type: ledger.AccountTypeEquity, Parent: "3000", System: true},
	{Code: "3200", Name: "Retained Earnings", Type: ledger.AccountTypeEquity, Parent: "3000"},
	{Code: "4000", Name: "Income", Type: ledger.AccountTypeIncome},
	{Code: "4100", Name: "Sales", Type: ledger.AccountTypeIncome, Parent: "4000"},
	{Code: "4900", Name: "Other Income", Type: ledger.AccountTypeIncome, Parent: "4000"},
	{Code: "6000", Name: "Expenses", Type: ledger.AccountTypeExpense},
	{Code: "6100", Name: "General Expenses", Type: ledger.AccountTypeExpense, Parent: "6000"},
	{Code: CodeDepreciationExpense, Name: "Depreciation Expense", Type: ledger.AccountTypeExpense, Parent: "6000", System: true},
	{Code: "6300", Name: "Rent", Type: ledger.AccountTypeExpense, Parent: "6000"},
}}

// Default returns a copy of the curated chart.
func Default() Chart {
	return Chart{Accounts: append([]AccountDef(nil), curated.Accounts...)}
}

// IsSystem reports whether code is one of the curated system accounts.
func IsSystem(code string) bool {
	for _, a := range curated.Accounts {
		if a.Code == code && a.System {
			return true
		}
	}
	return false
}

// Load reads a chart from a YAML file and validates it.
func Load(path string) (Chart, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Chart{}, fmt.Errorf("read chart: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML chart. Codes are normalized; the engine's system codes must be
// present so depreciation and tax postings have somewhere to go.
func Parse(b []byte) (Chart, error) {
	var c Chart
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return Chart{}, fmt.Errorf("parse chart: %w", err)
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i := range c.Accounts {
		a := &c.Accounts[i]
		a.Code = slug.Normalize(a.Code)
		a.Parent = slug.Normalize(a.Parent)
		if !slug.IsCode(a.Code) {
			return Chart{}, fmt.Errorf("chart entry %d: invalid code %q", i, a.Code)
		}
		if a.Name == "" {
			return Chart{}, fmt.Errorf("chart entry %s: name is required", a.Code)
		}
		if !a.Type.Valid() {
			return Chart{}, fmt.Errorf("chart entry %s: invalid type %q", a.Code, a.Type)
		}
		if seen[a.Code] {
			return Chart{}, fmt.Errorf("chart entry %s: duplicate code", a.Code)
		}
		if a.Parent != "" && !seen[a.Parent] {
			return Chart{}, fmt.Errorf("chart entry %s: parent %s must be declared first", a.Code, a.Parent)
		}
		seen[a.Code] = true
		if IsSystem(a.Code) {
			a.System = true
		}
	}
	for _, code := range []string{CodeDepreciationExpense, CodeAccumulatedDepreciation, CodeVATReceivable, CodeVATPayable} {
		if !seen[code] {
			return Chart{}, fmt.Errorf("chart is missing system account %s", code)
		}
	}
	return c, nil
}
