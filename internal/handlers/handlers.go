package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"spendbook/internal/models"
	"spendbook/internal/service"
)

const (
	// IdempotencyKeyHeader carries the client token guarding POST /expenses.
	IdempotencyKeyHeader = "Idempotency-Key"
	// MaxIdempotencyKeyLength is the longest accepted key, in characters.
	MaxIdempotencyKeyLength = 255
	// MaxBodyBytes bounds the size of a creation request body.
	MaxBodyBytes = 1 << 20
)

// ExpenseService is the behavior the HTTP layer needs. *service.ExpenseService
// satisfies it.
type ExpenseService interface {
	CreateExpense(ctx context.Context, in models.ExpenseInput, idempotencyKey string) (models.Expense, bool, error)
	ListExpenses(ctx context.Context, filter models.ListFilter) ([]models.Expense, error)
	Ready(ctx context.Context) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	svc    ExpenseService
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc ExpenseService, logger *slog.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// Root reports that the API is up.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, statusResponse{Status: "Expense Tracker API running"})
}

// Ready reports whether the backing store answers.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ready(r.Context()); err != nil {
		h.loggerFor(r).WarnContext(r.Context(), "Readiness check failed", "error", err)
		h.writeJSON(w, r, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
		return
	}
	h.writeJSON(w, r, http.StatusOK, statusResponse{Status: "ready"})
}

// CreateExpense handles POST /expenses. A fresh record answers 201, an
// idempotent replay answers 200 with the stored record.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if utf8.RuneCountInString(key) > MaxIdempotencyKeyLength {
		h.writeError(w, r, http.StatusBadRequest,
			fmt.Sprintf("Invalid input: %s header exceeds %d characters", IdempotencyKeyHeader, MaxIdempotencyKeyLength))
		return
	}

	in, status, msg := decodeExpenseInput(w, r)
	if status != 0 {
		h.writeError(w, r, status, msg)
		return
	}

	expense, created, err := h.svc.CreateExpense(r.Context(), in, key)
	if err != nil {
		h.handleServiceError(w, r, "CreateExpense", err)
		return
	}

	status = http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, r, status, expense)
}

// ListExpenses handles GET /expenses. Supports ?category= for an exact match
// and ?sort=date_desc for newest first; other sort values are ignored.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ListFilter{
		Category:    q.Get("category"),
		NewestFirst: q.Get("sort") == "date_desc",
	}

	expenses, err := h.svc.ListExpenses(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, r, "ListExpenses", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, expenses)
}

// decodeExpenseInput reads the creation body. A non-zero status means the
// request was rejected and msg is the client-facing reason.
func decodeExpenseInput(w http.ResponseWriter, r *http.Request) (in models.ExpenseInput, status int, msg string) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	err := dec.Decode(&in)
	if err == nil {
		return in, 0, ""
	}

	var (
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
		tooLarge  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return in, http.StatusRequestEntityTooLarge, "Request body too large"
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			return in, http.StatusBadRequest, "Invalid input: body must be a JSON object"
		}
		return in, http.StatusBadRequest, fmt.Sprintf("Invalid input: %s has the wrong type", field)
	case errors.Is(err, io.EOF):
		return in, http.StatusBadRequest, "Invalid input: request body is required"
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return in, http.StatusBadRequest, "Invalid input: malformed JSON"
	default:
		return in, http.StatusBadRequest, "Invalid input"
	}
}

// handleServiceError maps service failures to responses. Storage causes are
// logged and never sent to the client.
func (h *Handlers) handleServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeError(w, r, http.StatusBadRequest, "Invalid input: "+verr.Error())
	case errors.Is(err, service.ErrValidation):
		h.writeError(w, r, http.StatusBadRequest, "Invalid input")
	default:
		h.loggerFor(r).ErrorContext(r.Context(), op+" failed", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Database error")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, errorResponse{Error: msg})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.loggerFor(r).WarnContext(r.Context(), "Failed to write response", "error", err)
	}
}

// loggerFor returns the handler logger tagged with the request id, when the
// request went through RequestLogger.
func (h *Handlers) loggerFor(r *http.Request) *slog.Logger {
	if id := RequestIDFromContext(r.Context()); id != "" {
		return h.logger.With("request_id", id)
	}
	return h.logger
}
