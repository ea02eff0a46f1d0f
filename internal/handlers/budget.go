package handlers

import (
	"net/http"
	"time"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/service"
)

// ListAccounts handles GET /api/accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("includeInactive") == "true"
	accounts, err := h.accounts.List(r.Context(), includeInactive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// CreateAccount handles POST /api/accounts.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req service.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := h.accounts.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// ListCategories handles GET /api/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	var categoryType *domain.CategoryType
	if value := r.URL.Query().Get("type"); value != "" {
		t := domain.CategoryType(value)
		categoryType = &t
	}
	categories, err := h.categories.List(r.Context(), categoryType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// CreateCategory handles POST /api/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	category, err := h.categories.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

// UpdateCategory handles PUT /api/categories/{id}.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	category, err := h.categories.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// DeleteCategory handles DELETE /api/categories/{id}.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMonthSettings handles GET /api/months/{yearMonth}/settings.
func (h *Handler) GetMonthSettings(w http.ResponseWriter, r *http.Request) {
	monthStart, ok := h.monthStart(w, r)
	if !ok {
		return
	}
	settings, err := h.months.GetSettings(r.Context(), monthStart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateMonthSettings handles PUT /api/months/{yearMonth}/settings.
func (h *Handler) UpdateMonthSettings(w http.ResponseWriter, r *http.Request) {
	monthStart, ok := h.monthStart(w, r)
	if !ok {
		return
	}
	var req service.UpdateMonthSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	settings, err := h.months.UpdateSettings(r.Context(), monthStart, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// GetMonthSummary handles GET /api/months/{yearMonth}/summary.
func (h *Handler) GetMonthSummary(w http.ResponseWriter, r *http.Request) {
	monthStart, ok := h.monthStart(w, r)
	if !ok {
		return
	}
	summary, err := h.summary.Get(r.Context(), monthStart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListPlans handles GET /api/months/{yearMonth}/plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	monthStart, ok := h.monthStart(w, r)
	if !ok {
		return
	}
	plans, err := h.plans.List(r.Context(), monthStart, domain.CategoryType(r.URL.Query().Get("type")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// UpsertPlans handles PUT /api/months/{yearMonth}/plans.
func (h *Handler) UpsertPlans(w http.ResponseWriter, r *http.Request) {
	monthStart, ok := h.monthStart(w, r)
	if !ok {
		return
	}
	var req []service.PlanItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	plans, err := h.plans.Upsert(r.Context(), monthStart, domain.CategoryType(r.URL.Query().Get("type")), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// ListTransactions handles GET /api/months/{yearMonth}/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	monthStart, ok := h.monthStart(w, r)
	if !ok {
		return
	}
	transactions, err := h.transactions.List(r.Context(), monthStart, optionalAccountID(r),
		domain.TransactionType(r.URL.Query().Get("type")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

// CreateTransaction handles POST /api/months/{yearMonth}/transactions.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	monthStart, ok := h.monthStart(w, r)
	if !ok {
		return
	}
	var req service.TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	transaction, err := h.transactions.Create(r.Context(), monthStart, optionalAccountID(r),
		domain.TransactionType(r.URL.Query().Get("type")), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transaction)
}

// UpdateTransaction handles PUT /api/months/{yearMonth}/transactions/{id}.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	monthStart, ok := h.monthStart(w, r)
	if !ok {
		return
	}
	var req service.TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	transaction, err := h.transactions.Update(r.Context(), monthStart,
		domain.TransactionType(r.URL.Query().Get("type")), r.PathValue("id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transaction)
}

// DeleteTransaction handles DELETE /api/months/{yearMonth}/transactions/{id}.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	monthStart, ok := h.monthStart(w, r)
	if !ok {
		return
	}
	err := h.transactions.Delete(r.Context(), monthStart,
		domain.TransactionType(r.URL.Query().Get("type")), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) monthStart(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	monthStart, err := service.ParseMonth(r.PathValue("yearMonth"))
	if err != nil {
		h.writeError(w, r, err)
		return time.Time{}, false
	}
	return monthStart, true
}

func optionalAccountID(r *http.Request) *string {
	if value := r.URL.Query().Get("accountId"); value != "" {
		return &value
	}
	return nil
}
