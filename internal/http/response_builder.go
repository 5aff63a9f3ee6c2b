package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/transactions"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type transactionJSON struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Amount     string    `json:"amount"`
	Category   string    `json:"category"`
	Title      string    `json:"title"`
	Date       string    `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
	Visibility string    `json:"visibility"`
}

type statsJSON struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Balance string `json:"balance"`
}

type categoryAmountJSON struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Share  int    `json:"share"`
	Color  string `json:"color,omitempty"`
}

type trendPointJSON struct {
	Date    string `json:"date"`
	Balance string `json:"balance"`
}

type analyticsJSON struct {
	Stats       statsJSON            `json:"stats"`
	SavingsRate int                  `json:"savings_rate"`
	Categories  []categoryAmountJSON `json:"categories"`
}

type dashboardJSON struct {
	analyticsJSON
	Version uint64            `json:"version"`
	Window  int               `json:"window"`
	Trend   []trendPointJSON  `json:"trend"`
	Recent  []transactionJSON `json:"recent"`
}

type listJSON struct {
	Version      uint64            `json:"version"`
	Transactions []transactionJSON `json:"transactions"`
}

func toTransactionJSON(tx core.Transaction) transactionJSON {
	vis := tx.Visibility
	if vis == "" {
		vis = core.Confirmed
	}
	return transactionJSON{
		ID:         tx.ID,
		Type:       string(tx.Type),
		Amount:     tx.Amount.StringFixed(2),
		Category:   string(tx.Category),
		Title:      tx.Title,
		Date:       tx.Date.String(),
		CreatedAt:  tx.CreatedAt.UTC(),
		Visibility: string(vis),
	}
}

func toTransactionsJSON(txs []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionJSON(tx))
	}
	return out
}

func toStatsJSON(s analytics.Stats) statsJSON {
	return statsJSON{
		Income:  s.Income.StringFixed(2),
		Expense: s.Expense.StringFixed(2),
		Balance: s.Balance.StringFixed(2),
	}
}

func toCategoriesJSON(items []core.CategoryAmount) []categoryAmountJSON {
	out := make([]categoryAmountJSON, 0, len(items))
	for _, it := range items {
		row := categoryAmountJSON{
			Name:   string(it.Name),
			Amount: it.Amount.StringFixed(2),
			Share:  it.Share,
		}
		if info, ok := it.Name.Info(); ok {
			row.Color = info.Color
		}
		out = append(out, row)
	}
	return out
}

func toDashboardJSON(d analytics.Dashboard, version uint64, window int) dashboardJSON {
	trend := make([]trendPointJSON, 0, len(d.Trend))
	for _, p := range d.Trend {
		trend = append(trend, trendPointJSON{Date: p.Date.String(), Balance: p.Balance.StringFixed(2)})
	}
	return dashboardJSON{
		analyticsJSON: analyticsJSON{
			Stats:       toStatsJSON(d.Stats),
			SavingsRate: d.SavingsRate,
			Categories:  toCategoriesJSON(d.Categories),
		},
		Version: version,
		Window:  window,
		Trend:   trend,
		Recent:  toTransactionsJSON(d.Recent),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writePNG(w http.ResponseWriter, png []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// writeError maps domain errors to status codes: validation 422, store 502,
// feed 503, anything else 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.FromContext(r.Context())
	sl := log.NewStructuredLogger(logger)
	op := requestOp(r)

	var ve *core.ValidationError
	var se *core.StoreError
	var sube *core.SubscriptionError
	switch {
	case errors.As(err, &ve):
		logger.Debug("Rejected invalid input", log.FieldError, err, log.FieldErrorType, log.ErrorTypeValidation)
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ve.Err.Error(), Field: ve.Field})
	case errors.As(err, &se):
		sl.LogError(r.Context(), "Ledger store failed", err, log.ComponentHTTP, op,
			log.LogFields{log.FieldErrorType: log.ErrorTypeStore})
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "ledger store unavailable"})
	case errors.As(err, &sube), errors.Is(err, transactions.ErrClosed):
		sl.LogError(r.Context(), "Ledger feed unavailable", err, log.ComponentHTTP, op,
			log.LogFields{log.FieldErrorType: log.ErrorTypeSubscription})
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "ledger feed unavailable"})
	default:
		sl.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.LogFields{log.FieldErrorType: log.ErrorTypeInternal})
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// requestOp names the ledger operation a request performs.
func requestOp(r *http.Request) string {
	switch r.Method {
	case http.MethodPost:
		return log.OpCreate
	case http.MethodDelete:
		return log.OpDelete
	default:
		return log.OpRead
	}
}
