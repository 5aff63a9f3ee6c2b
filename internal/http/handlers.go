package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/analytics"
	"fintrack/internal/auth"
	"fintrack/internal/charts"
	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/log"
	"fintrack/internal/session"
)

// userSession resolves the caller's live session. On failure the error
// response has already been written.
func (s *Server) userSession(w http.ResponseWriter, r *http.Request) (auth.User, *session.Session, bool) {
	u, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return auth.User{}, nil, false
	}
	sess, err := s.sessions.Get(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return auth.User{}, nil, false
	}
	return u, sess, true
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Categories())
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.userSession(w, r)
	if !ok {
		return
	}
	version := sess.Repo.Version()
	txs := analytics.Filter(sess.Repo.Snapshot(), ParseQuery(r.URL.Query()))
	writeJSON(w, http.StatusOK, listJSON{Version: version, Transactions: toTransactionsJSON(txs)})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	u, sess, ok := s.userSession(w, r)
	if !ok {
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	draft, err := ParseDraft(p, today(s.now()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := sess.Repo.Add(r.Context(), draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.dashboards.DeletePrefix(dashboardPrefix(u.ID))

	log.FromContext(r.Context()).Info("Transaction created",
		log.FieldTransactionID, tx.ID,
		log.FieldTxType, tx.Type,
		log.FieldCategory, tx.Category)
	writeJSON(w, http.StatusCreated, toTransactionJSON(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	u, sess, ok := s.userSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := sess.Repo.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.dashboards.DeletePrefix(dashboardPrefix(u.ID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u, sess, ok := s.userSession(w, r)
	if !ok {
		return
	}
	window, err := ParseWindow(r.URL.Query(), s.trendWindow)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Field: "window"})
		return
	}

	version, d := s.dashboard(u.ID, sess, window)
	writeJSON(w, http.StatusOK, toDashboardJSON(d, version, window))
}

// dashboard summarizes the session view, reusing a cached summary while
// the snapshot version, the day and the window are unchanged.
func (s *Server) dashboard(userID string, sess *session.Session, window int) (uint64, analytics.Dashboard) {
	now := s.now()
	version := sess.Repo.Version()
	key := fmt.Sprintf("%s%d|%s|%d", dashboardPrefix(userID), version, today(now), window)
	if d, ok := s.dashboards.Get(key); ok {
		return version, d
	}

	d := analytics.Summarize(sess.Repo.Snapshot(), now, window)
	s.dashboards.Set(key, d)
	return version, d
}

func dashboardPrefix(userID string) string {
	return userID + "|"
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.userSession(w, r)
	if !ok {
		return
	}
	txs := sess.Repo.Snapshot()
	stats := analytics.Totals(txs)
	writeJSON(w, http.StatusOK, analyticsJSON{
		Stats:       toStatsJSON(stats),
		SavingsRate: analytics.SavingsRate(stats),
		Categories:  toCategoriesJSON(analytics.CategoryBreakdown(txs)),
	})
}

func (s *Server) handleTrendChart(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.userSession(w, r)
	if !ok {
		return
	}
	window, err := ParseWindow(r.URL.Query(), s.trendWindow)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Field: "window"})
		return
	}

	points := analytics.BalanceTrend(sess.Repo.Snapshot(), s.now(), window)
	png, err := s.renderer.BalanceTrend(points)
	if err != nil {
		s.chartError(w, r, err)
		return
	}
	writePNG(w, png)
}

func (s *Server) handleBreakdownChart(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.userSession(w, r)
	if !ok {
		return
	}
	png, err := s.renderer.CategoryBreakdown(analytics.CategoryBreakdown(sess.Repo.Snapshot()))
	if err != nil {
		s.chartError(w, r, err)
		return
	}
	writePNG(w, png)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.userSession(w, r)
	if !ok {
		return
	}
	txs := analytics.Filter(sess.Repo.Snapshot(), ParseQuery(r.URL.Query()))

	var buf bytes.Buffer
	if err := export.XLSX(&buf, txs); err != nil {
		log.FromContext(r.Context()).Error("Export failed",
			log.FieldOperation, log.OpRender,
			log.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "export failed"})
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"transactions_%s.xlsx\"", s.now().Format("20060102")))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) chartError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, charts.ErrNoData) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "nothing to chart yet"})
		return
	}
	log.FromContext(r.Context()).Error("Chart rendering failed",
		log.FieldOperation, log.OpRender,
		log.FieldError, err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "chart rendering failed"})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}
	released := s.sessions.SignOut(u.ID)
	s.dashboards.DeletePrefix(dashboardPrefix(u.ID))
	log.FromContext(r.Context()).Info("Signed out", "session_released", released)
	w.WriteHeader(http.StatusNoContent)
}
