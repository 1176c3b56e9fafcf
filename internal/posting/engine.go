// Package posting is the ledger consistency engine: entry validation, depreciation,
// tax calculation, period resolution, tax report aggregation and auto-journal rules.
// It is pure computation over snapshots; persistence lives in the services.
package posting

import "github.com/tinoosan/bookkeeper/internal/ledger"

// Engine computes postings for a single ledger currency.
type Engine struct {
	currency ledger.Currency
}

func New(currency ledger.Currency) *Engine {
	return &Engine{currency: currency}
}

func (e *Engine) Currency() ledger.Currency { return e.currency }
