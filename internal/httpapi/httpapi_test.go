package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeper/internal/dictionary"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/service/account"
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type apiResp struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

type entryResp struct {
	ID         string          `json:"id"`
	Ref        string          `json:"ref"`
	Date       string          `json:"date"`
	State      string          `json:"state"`
	Total      decimal.Decimal `json:"amount_total"`
	ReversalOf *string         `json:"reversal_of"`
	IsReversed bool            `json:"is_reversed"`
}

type testAPI struct {
	h   http.Handler
	acc map[string]uuid.UUID
}

func setup(t *testing.T) testAPI {
	t.Helper()
	store := memory.New()
	accs, err := account.New(store, store).EnsureChart(context.Background(), dictionary.Default())
	require.NoError(t, err)
	byCode := map[string]uuid.UUID{}
	for _, a := range accs {
		byCode[a.Code] = a.ID
	}
	srv := New(store, Options{Engine: posting.New(ledger.MustParseCurrency("KRW")), Logger: testLogger()})
	return testAPI{h: srv.Handler(), acc: byCode}
}

func (a testAPI) do(t *testing.T, method, path string, body any, hdr map[string]string) (*httptest.ResponseRecorder, apiResp) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	a.h.ServeHTTP(rr, req)
	var out apiResp
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func (a testAPI) entryBody(state string, debit, credit int64) map[string]any {
	return map[string]any{
		"date":  "2025-03-10",
		"state": state,
		"memo":  "cash sale",
		"lines": []map[string]any{
			{"account_id": a.acc["1010"], "debit": debit, "credit": 0},
			{"account_id": a.acc["4100"], "debit": 0, "credit": credit},
		},
	}
}

func TestEntries_CreateAndReplay(t *testing.T) {
	api := setup(t)
	hdr := map[string]string{"Idempotency-Key": "sale-1"}

	rr, resp := api.do(t, http.MethodPost, "/journal-entries", api.entryBody("draft", 50000, 50000), hdr)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var first entryResp
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.Equal(t, "000001", first.Ref)
	assert.Equal(t, "2025-03-10", first.Date)
	assert.True(t, first.Total.Equal(decimal.NewFromInt(50000)))

	rr, resp = api.do(t, http.MethodPost, "/journal-entries", api.entryBody("draft", 50000, 50000), hdr)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "true", rr.Header().Get("Idempotent-Replay"))
	var again entryResp
	require.NoError(t, json.Unmarshal(resp.Data, &again))
	assert.Equal(t, first.ID, again.ID)

	rr, resp = api.do(t, http.MethodGet, "/journal-entries?state=draft", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []entryResp
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.Len(t, list, 1)
}

func TestEntries_Unbalanced(t *testing.T) {
	api := setup(t)
	rr, resp := api.do(t, http.MethodPost, "/journal-entries", api.entryBody("draft", 50000, 49000), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "unbalanced_entry", resp.Code)
	var details map[string]string
	require.NoError(t, json.Unmarshal(resp.Details, &details))
	assert.Equal(t, "1000", details["difference"])
}

func TestEntries_UnknownAccount(t *testing.T) {
	api := setup(t)
	body := api.entryBody("draft", 100, 100)
	body["lines"].([]map[string]any)[1]["account_id"] = uuid.New()
	rr, resp := api.do(t, http.MethodPost, "/journal-entries", body, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "unknown_account", resp.Code)
	assert.JSONEq(t, `{"line_index":1}`, string(resp.Details))
}

func TestEntries_RequireJSON(t *testing.T) {
	api := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/journal-entries", strings.NewReader("memo=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	api.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestEntries_BadIDAndNotFound(t *testing.T) {
	api := setup(t)
	rr, _ := api.do(t, http.MethodGet, "/journal-entries/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr, resp := api.do(t, http.MethodGet, "/journal-entries/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", resp.Code)
}

func TestEntries_PostAndReverse(t *testing.T) {
	api := setup(t)
	_, resp := api.do(t, http.MethodPost, "/journal-entries", api.entryBody("draft", 70000, 70000), nil)
	var e entryResp
	require.NoError(t, json.Unmarshal(resp.Data, &e))

	rr, resp := api.do(t, http.MethodPost, "/journal-entries/"+e.ID+"/post", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, &e))
	assert.Equal(t, "posted", e.State)

	rr, _ = api.do(t, http.MethodDelete, "/journal-entries/"+e.ID, nil, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, resp = api.do(t, http.MethodPost, "/journal-entries/"+e.ID+"/reverse", map[string]string{"date": "2025-03-31"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var rev entryResp
	require.NoError(t, json.Unmarshal(resp.Data, &rev))
	require.NotNil(t, rev.ReversalOf)
	assert.Equal(t, e.ID, *rev.ReversalOf)
	assert.Equal(t, "2025-03-31", rev.Date)

	rr, _ = api.do(t, http.MethodPost, "/journal-entries/"+e.ID+"/reverse", nil, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	_, resp = api.do(t, http.MethodGet, "/trial-balance", nil, nil)
	var tb struct {
		DebitTotal  decimal.Decimal `json:"debit_total"`
		CreditTotal decimal.Decimal `json:"credit_total"`
		Rows        []struct {
			Code    string          `json:"code"`
			Balance decimal.Decimal `json:"balance"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &tb))
	assert.True(t, tb.DebitTotal.Equal(tb.CreditTotal))
	for _, row := range tb.Rows {
		assert.True(t, row.Balance.IsZero(), "account %s", row.Code)
	}
}

func TestAccountLedger_RunningBalance(t *testing.T) {
	api := setup(t)
	for _, amt := range []int64{1000, 2500, 4000} {
		rr, _ := api.do(t, http.MethodPost, "/journal-entries", api.entryBody("posted", amt, amt), nil)
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	cash := api.acc["1010"].String()

	type page struct {
		Items []struct {
			RunningBalance decimal.Decimal `json:"running_balance"`
		} `json:"items"`
		NextCursor *string `json:"next_cursor"`
	}
	_, resp := api.do(t, http.MethodGet, "/accounts/"+cash+"/ledger?limit=2", nil, nil)
	var p1 page
	require.NoError(t, json.Unmarshal(resp.Data, &p1))
	require.Len(t, p1.Items, 2)
	require.NotNil(t, p1.NextCursor)
	assert.True(t, p1.Items[1].RunningBalance.Equal(decimal.NewFromInt(3500)))

	_, resp = api.do(t, http.MethodGet, "/accounts/"+cash+"/ledger?limit=2&cursor="+*p1.NextCursor, nil, nil)
	var p2 page
	require.NoError(t, json.Unmarshal(resp.Data, &p2))
	require.Len(t, p2.Items, 1)
	assert.Nil(t, p2.NextCursor)
	assert.True(t, p2.Items[0].RunningBalance.Equal(decimal.NewFromInt(7500)))

	_, resp = api.do(t, http.MethodGet, "/accounts/"+cash+"/balance?as_of=2025-12-31", nil, nil)
	var bal struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &bal))
	assert.True(t, bal.Balance.Equal(decimal.NewFromInt(7500)))
}

func TestAutoEntries_PerRuleOutcome(t *testing.T) {
	api := setup(t)
	body := map[string]any{
		"date": "2025-05-01",
		"rules": []map[string]any{
			{"kind": "transfer", "name": "Move cash", "debit_account_id": api.acc["1020"], "credit_account_id": api.acc["1010"], "amount": 30000},
			{"kind": "payroll", "name": "Unknown"},
		},
	}
	rr, resp := api.do(t, http.MethodPost, "/auto-journal-entries", body, nil)
	require.Equal(t, http.StatusMultiStatus, rr.Code, rr.Body.String())
	var results []ruleResult
	require.NoError(t, json.Unmarshal(resp.Data, &results))
	require.Len(t, results, 2)
	assert.True(t, results[0].Success, results[0].Message)
	assert.Equal(t, "2025-05-01", results[0].Entry.Date)
	assert.False(t, results[1].Success)
	assert.Equal(t, "invalid_rule", results[1].Code)
}

func TestTaxCalculate(t *testing.T) {
	api := setup(t)
	var calc calculationResponse

	rr, resp := api.do(t, http.MethodPost, "/taxes/calculate", map[string]any{"supply_amount": "1000000", "tax_rate": "10"}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, &calc))
	assert.True(t, calc.TaxAmount.Equal(decimal.NewFromInt(100000)))
	assert.True(t, calc.TotalAmount.Equal(decimal.NewFromInt(1100000)))

	_, resp = api.do(t, http.MethodPost, "/taxes/calculate", map[string]any{"supply_amount": "1100000", "tax_rate": "10", "inclusive": true}, nil)
	require.NoError(t, json.Unmarshal(resp.Data, &calc))
	assert.True(t, calc.SupplyAmount.Equal(decimal.NewFromInt(1000000)))

	rr, resp = api.do(t, http.MethodPost, "/taxes/calculate", map[string]any{"supply_amount": "1000", "tax_rate": "120"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "invalid_rate", resp.Code)

	rr, _ = api.do(t, http.MethodPost, "/taxes/calculate", map[string]any{"tax_rate": "10"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDepreciate_BatchAndReplay(t *testing.T) {
	api := setup(t)
	rr, resp := api.do(t, http.MethodPost, "/assets", map[string]any{
		"name": "Delivery van", "purchase_date": "2024-01-01", "purchase_value": "10000000",
		"residual_value": "1000000", "method": "straight_line", "useful_life": 5,
	}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var a assetResponse
	require.NoError(t, json.Unmarshal(resp.Data, &a))

	hdr := map[string]string{"Idempotency-Key": "dep-2024"}
	body := map[string]any{"asset_ids": []uuid.UUID{a.ID, uuid.New()}, "date": "2024-12-31"}
	rr, resp = api.do(t, http.MethodPost, "/assets/depreciate", body, hdr)
	require.Equal(t, http.StatusMultiStatus, rr.Code, rr.Body.String())
	var results []depreciationResult
	require.NoError(t, json.Unmarshal(resp.Data, &results))
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[0].Amount.Equal(decimal.NewFromInt(1800000)))
	assert.True(t, results[0].Asset.CurrentValue.Equal(decimal.NewFromInt(8200000)))
	assert.False(t, results[1].Success)
	assert.Equal(t, "not_found", results[1].Code)

	rr, _ = api.do(t, http.MethodPost, "/assets/depreciate", body, hdr)
	assert.Equal(t, http.StatusMultiStatus, rr.Code)
	assert.Equal(t, "true", rr.Header().Get("Idempotent-Replay"))

	body["date"] = "2025-12-31"
	rr, resp = api.do(t, http.MethodPost, "/assets/depreciate", body, hdr)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "idempotency_mismatch", resp.Code)

	rr, resp = api.do(t, http.MethodGet, "/assets/"+a.ID.String()+"/schedule?from=2025-01-01", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var rows []scheduleRow
	require.NoError(t, json.Unmarshal(resp.Data, &rows))
	require.NotEmpty(t, rows)
	assert.True(t, rows[len(rows)-1].CurrentValue.Equal(decimal.NewFromInt(1000000)))
}

func TestAssets_CurrentValue(t *testing.T) {
	api := setup(t)
	req := map[string]any{
		"name": "Old press", "purchase_date": "2024-01-01", "purchase_value": "1000",
		"method": "straight_line", "useful_life": 4, "current_value": "0",
	}
	rr, resp := api.do(t, http.MethodPost, "/assets", req, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var written assetResponse
	require.NoError(t, json.Unmarshal(resp.Data, &written))
	assert.True(t, written.CurrentValue.IsZero())

	delete(req, "current_value")
	req["name"] = "Lathe"
	rr, resp = api.do(t, http.MethodPost, "/assets", req, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var lathe assetResponse
	require.NoError(t, json.Unmarshal(resp.Data, &lathe))
	assert.True(t, lathe.CurrentValue.Equal(decimal.NewFromInt(1000)))

	req["name"] = "Lathe 2"
	req["code"] = lathe.Code
	rr, resp = api.do(t, http.MethodPut, "/assets/"+lathe.ID.String(), req, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, &lathe))
	assert.Equal(t, "Lathe 2", lathe.Name)
	assert.True(t, lathe.CurrentValue.Equal(decimal.NewFromInt(1000)), lathe.CurrentValue.String())

	body := map[string]any{"asset_ids": []uuid.UUID{written.ID, lathe.ID}, "date": "2024-12-31"}
	rr, resp = api.do(t, http.MethodPost, "/assets/depreciate", body, nil)
	require.Equal(t, http.StatusMultiStatus, rr.Code, rr.Body.String())
	var results []depreciationResult
	require.NoError(t, json.Unmarshal(resp.Data, &results))
	assert.Equal(t, "already_depreciated", results[0].Code)
	assert.True(t, results[1].Success)
	assert.True(t, results[1].Amount.Equal(decimal.NewFromInt(250)))

	body = map[string]any{"asset_ids": []uuid.UUID{lathe.ID}, "date": "2025-01-01"}
	rr, resp = api.do(t, http.MethodPost, "/assets/depreciate", body, nil)
	require.Equal(t, http.StatusMultiStatus, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, &results))
	assert.Equal(t, "conflict", results[0].Code)
}

func TestTaxReport_GenerateWithAdjustment(t *testing.T) {
	api := setup(t)
	rr, resp := api.do(t, http.MethodPost, "/taxes", map[string]any{"name": "Sales VAT", "rate": "10", "type": "sale"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var tx taxResponse
	require.NoError(t, json.Unmarshal(resp.Data, &tx))

	sale := map[string]any{
		"date":  "2025-02-14",
		"state": "posted",
		"lines": []map[string]any{
			{"account_id": api.acc["1100"], "debit": 1100000, "credit": 0},
			{"account_id": api.acc["4100"], "tax_id": tx.ID, "debit": 0, "credit": 1000000},
			{"account_id": api.acc[dictionary.CodeVATPayable], "debit": 0, "credit": 100000},
		},
	}
	rr, _ = api.do(t, http.MethodPost, "/journal-entries", sale, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr, resp = api.do(t, http.MethodPost, "/tax-reports", map[string]any{"report_type": "quarterly", "period_key": "2025-Q1"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var rep taxReportResponse
	require.NoError(t, json.Unmarshal(resp.Data, &rep))
	assert.Equal(t, "2025-01-01", rep.PeriodStart)
	assert.Equal(t, "2025-03-31", rep.PeriodEnd)

	rr, _ = api.do(t, http.MethodPost, "/tax-reports/"+rep.ID.String()+"/generate", map[string]any{"vat_payable": "1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, resp = api.do(t, http.MethodPost, "/tax-reports/"+rep.ID.String()+"/generate",
		map[string]any{"manual_adjustment": map[string]any{"vat_payable": "90000"}}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "manual_override", resp.Code)

	rr, resp = api.do(t, http.MethodPost, "/tax-reports/"+rep.ID.String()+"/generate",
		map[string]any{"manual_adjustment": map[string]any{"vat_payable": "90000", "reason": "bad debt relief"}}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, &rep))
	assert.True(t, rep.Totals.SaleVATAmount.Equal(decimal.NewFromInt(100000)))
	assert.True(t, rep.Totals.DerivedVATPayable.Equal(decimal.NewFromInt(100000)))
	assert.True(t, rep.Totals.VATPayable.Equal(decimal.NewFromInt(90000)))
	assert.True(t, rep.Totals.ManualOverride)

	rr, resp = api.do(t, http.MethodPost, "/tax-reports/"+rep.ID.String()+"/submit", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "invalid_state_transition", resp.Code)

	rr, _ = api.do(t, http.MethodPost, "/tax-reports/"+rep.ID.String()+"/confirm", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr, resp = api.do(t, http.MethodPost, "/tax-reports/"+rep.ID.String()+"/generate", nil, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "immutable", resp.Code)
}

func TestBudgets_SpendingAndLifecycle(t *testing.T) {
	api := setup(t)
	rent := map[string]any{
		"date":  "2025-04-01",
		"state": "posted",
		"lines": []map[string]any{
			{"account_id": api.acc["6300"], "debit": 700000, "credit": 0},
			{"account_id": api.acc["1020"], "debit": 0, "credit": 700000},
		},
	}
	rr, _ := api.do(t, http.MethodPost, "/journal-entries", rent, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	req := map[string]any{"name": "Rent 2025", "account_id": api.acc["6300"], "start_date": "2025-01-01", "end_date": "2025-12-31", "amount": "6000000"}
	rr, resp := api.do(t, http.MethodPost, "/budgets", req, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var b budgetResponse
	require.NoError(t, json.Unmarshal(resp.Data, &b))
	assert.Equal(t, ledger.BudgetDraft, b.State)
	assert.Equal(t, 2025, b.FiscalYear)
	assert.True(t, b.SpentAmount.Equal(decimal.NewFromInt(700000)), b.SpentAmount.String())
	assert.True(t, b.RemainingAmount.Equal(decimal.NewFromInt(5300000)))

	rr, resp = api.do(t, http.MethodPost, "/budgets", map[string]any{"name": "Backwards", "account_id": api.acc["6300"], "start_date": "2025-12-31", "end_date": "2025-01-01", "amount": "1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid", resp.Code)

	rr, _ = api.do(t, http.MethodPost, "/budgets/"+b.ID.String()+"/confirm", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr, resp = api.do(t, http.MethodPut, "/budgets/"+b.ID.String(), req, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "immutable", resp.Code)

	rr, resp = api.do(t, http.MethodGet, "/budgets?state=confirmed", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []budgetResponse
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	rr, _ = api.do(t, http.MethodGet, "/budgets?state=open", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = api.do(t, http.MethodPost, "/budgets/"+b.ID.String()+"/close", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr, resp = api.do(t, http.MethodPost, "/budgets/"+b.ID.String()+"/close", nil, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "conflict", resp.Code)
}

func TestPartnersAndAccounts(t *testing.T) {
	api := setup(t)
	rr, resp := api.do(t, http.MethodPost, "/partners", map[string]any{"name": "Acme Trading Co.", "type": "customer"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var p partnerResponse
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.Equal(t, "acme_trading_co", p.Code)

	rr, resp = api.do(t, http.MethodPost, "/partners", map[string]any{"name": "Acme Trading Co."}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "conflict", resp.Code)

	rr, resp = api.do(t, http.MethodPut, "/accounts/"+api.acc[dictionary.CodeVATPayable].String(),
		map[string]any{"code": "2550", "name": "Renamed", "type": "liability"}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "system_account", resp.Code)

	rr, resp = api.do(t, http.MethodGet, "/dictionary/chart", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var chart dictionary.Chart
	require.NoError(t, json.Unmarshal(resp.Data, &chart))
	assert.NotEmpty(t, chart.Accounts)
}

func TestHealthAndMetrics(t *testing.T) {
	api := setup(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr, _ := api.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
	rr, _ := api.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "bookkeeper_http_requests_total")
}
