package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gastos/internal/aggregate"
	"gastos/internal/chart"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/session"
	"gastos/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

type usernameRequest struct {
	Username string `json:"username"`
}

type depositRequest struct {
	Amount string `json:"amount"`
}

type expenseRequest struct {
	Amount     string `json:"amount"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	OccurredAt string `json:"occurred_at,omitempty"`
}

type moneyView struct {
	Cents     int64  `json:"cents"`
	Formatted string `json:"formatted"`
}

type balanceView struct {
	Owner   string    `json:"owner"`
	Balance moneyView `json:"balance"`
}

type transactionView struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Amount     moneyView `json:"amount"`
	Category   string    `json:"category"`
	OccurredAt time.Time `json:"occurred_at"`
	RecordedAt time.Time `json:"recorded_at"`
}

type transactionsView struct {
	Owner        string            `json:"owner"`
	Window       string            `json:"window"`
	Total        moneyView         `json:"total"`
	Transactions []transactionView `json:"transactions"`
}

type depositView struct {
	ID         string    `json:"id"`
	Amount     moneyView `json:"amount"`
	Sign       string    `json:"sign"`
	RecordedAt time.Time `json:"recorded_at"`
}

type depositsView struct {
	Owner          string        `json:"owner"`
	TotalDeposited moneyView     `json:"total_deposited"`
	Deposits       []depositView `json:"deposits"`
}

type categoriesView struct {
	Owner      string               `json:"owner"`
	Month      int                  `json:"month"`
	Year       int                  `json:"year"`
	Categories map[string]moneyView `json:"categories"`
}

type chartView struct {
	Owner       string    `json:"owner"`
	Labels      [7]string `json:"labels"`
	DailyCents  [7]int64  `json:"daily_cents"`
	LastResetAt time.Time `json:"last_reset_at"`
}

func toMoneyView(m core.Money) moneyView {
	return moneyView{Cents: m.Cents, Formatted: m.String()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyTitle),
		errors.Is(err, core.ErrEmptyOwner),
		errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrUsernameTooLong):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUsernameTaken):
		status = http.StatusConflict
	case errors.Is(err, core.ErrUnknownUser):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// ownerSession resolves the path owner to an open session. All per-owner
// endpoints require a prior login.
func (s *Server) ownerSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	owner := r.PathValue("owner")
	sess, ok := s.sessions.Session(owner)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "no active session for owner"})
		return nil, false
	}
	return sess, true
}

func (s *Server) invalidateOwner(owner string) {
	s.summaryCache.DeletePrefix(owner + "|")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"timestamp":       time.Now().Format(time.RFC3339),
		"active_sessions": len(s.sessions.ActiveOwners()),
		"cache_entries":   s.summaryCache.Size(),
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.sessions.Signup(r.Context(), req.Username); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := s.sessions.Login(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": sess.Owner})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.sessions.Logout(req.Username)
	s.invalidateOwner(req.Username)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownerSession(w, r)
	if !ok {
		return
	}
	balance, err := sess.Ledger().GetBalance(r.Context(), sess.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{Owner: sess.Owner, Balance: toMoneyView(balance)})
}

func (s *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownerSession(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	dep, err := sess.Ledger().ApplyDeposit(r.Context(), sess.Owner, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateOwner(sess.Owner)
	writeJSON(w, http.StatusCreated, depositView{
		ID:         dep.ID,
		Amount:     toMoneyView(dep.Amount),
		Sign:       dep.Sign,
		RecordedAt: dep.RecordedAt,
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownerSession(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	category, err := core.ParseCategory(req.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	occurredAt := time.Now()
	if req.OccurredAt != "" {
		occurredAt, err = parseOccurredAt(req.OccurredAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid occurred_at: want RFC 3339 or YYYY-MM-DD"})
			return
		}
	}

	tx, err := sess.Ledger().ApplyExpense(r.Context(), sess.Owner, amount, req.Title, category, occurredAt)
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateOwner(sess.Owner)
	s.logger.InfoContext(r.Context(), "Expense created",
		log.FieldOwner, sess.Owner,
		log.FieldAmountCents, tx.Amount.Cents,
		log.FieldCategory, string(tx.Category))
	writeJSON(w, http.StatusCreated, toTransactionView(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownerSession(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("window")
	if raw == "" {
		raw = string(aggregate.ThisMonth)
	}
	window, valid := aggregate.ParseWindow(raw)
	if !valid {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid window: want month, week or all"})
		return
	}

	cacheKey := sess.Owner + "|transactions|" + string(window)
	if cached, hit := s.summaryCache.Get(cacheKey); hit {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	txs := aggregate.SortedByRecency(sess.Transactions())
	total := aggregate.Recompute(txs, window, time.Now())
	views := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, toTransactionView(tx))
	}
	resp := transactionsView{
		Owner:        sess.Owner,
		Window:       string(window),
		Total:        toMoneyView(total),
		Transactions: views,
	}

	body, err := json.Marshal(resp)
	if err != nil {
		writeError(w, err)
		return
	}
	s.summaryCache.Set(cacheKey, body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Server) handleListDeposits(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownerSession(w, r)
	if !ok {
		return
	}
	deps := sess.Deposits()
	views := make([]depositView, 0, len(deps))
	for _, dep := range deps {
		views = append(views, depositView{
			ID:         dep.ID,
			Amount:     toMoneyView(dep.Amount),
			Sign:       dep.Sign,
			RecordedAt: dep.RecordedAt,
		})
	}
	writeJSON(w, http.StatusOK, depositsView{
		Owner:          sess.Owner,
		TotalDeposited: toMoneyView(aggregate.TotalDeposited(deps)),
		Deposits:       views,
	})
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownerSession(w, r)
	if !ok {
		return
	}
	now := time.Now()
	month, year := int(now.Month()), now.Year()
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid month"})
			return
		}
		month = m
	}
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1970 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid year"})
			return
		}
		year = y
	}

	cacheKey := sess.Owner + "|categories|" + strconv.Itoa(year) + "-" + strconv.Itoa(month)
	if cached, hit := s.summaryCache.Get(cacheKey); hit {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	byCategory := aggregate.ByCategory(sess.Transactions(), time.Month(month), year)
	categories := make(map[string]moneyView, len(byCategory))
	for cat, total := range byCategory {
		categories[string(cat)] = toMoneyView(total)
	}
	resp := categoriesView{Owner: sess.Owner, Month: month, Year: year, Categories: categories}

	body, err := json.Marshal(resp)
	if err != nil {
		writeError(w, err)
		return
	}
	s.summaryCache.Set(cacheKey, body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownerSession(w, r)
	if !ok {
		return
	}
	snap, err := sess.ChartSnapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chartView{
		Owner:       sess.Owner,
		Labels:      chart.WeekLabels,
		DailyCents:  snap.Daily,
		LastResetAt: snap.LastResetAt,
	})
}

// parseOccurredAt accepts a full RFC 3339 timestamp or a bare date. Bare
// dates are taken as local midnight so that day and week bucketing agree
// with the wall clock the aggregation windows are computed against.
func parseOccurredAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(time.Local), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

func toTransactionView(tx core.Transaction) transactionView {
	return transactionView{
		ID:         tx.ID,
		Title:      tx.Title,
		Amount:     toMoneyView(tx.Amount),
		Category:   string(tx.Category),
		OccurredAt: tx.OccurredAt,
		RecordedAt: tx.RecordedAt,
	}
}
