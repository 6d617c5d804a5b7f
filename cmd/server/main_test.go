package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"spendbook/internal/handlers"
	"spendbook/internal/service"
	"spendbook/internal/storage"
	"spendbook/web"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRouter(t *testing.T) {
	// Setup dependencies
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err, "failed to create database")
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handlers.NewHandlers(service.New(db, nil, logger), logger)

	// Create router - this panics if two patterns conflict
	mux := setupRouter(h, web.Handler())

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Root reports status",
			method:     "GET",
			path:       "/",
			wantStatus: http.StatusOK,
			wantBody:   "Expense Tracker API running",
		},
		{
			name:       "Readiness",
			method:     "GET",
			path:       "/readyz",
			wantStatus: http.StatusOK,
		},
		{
			name:       "Unknown path",
			method:     "GET",
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "List expenses",
			method:     "GET",
			path:       "/expenses",
			wantStatus: http.StatusOK,
			wantBody:   "[]",
		},
		{
			name:       "Create expense",
			method:     "POST",
			path:       "/expenses",
			body:       `{"amount":12.5,"category":"food","date":"2024-01-01"}`,
			wantStatus: http.StatusCreated,
			wantBody:   `"amount_minor_units":1250`,
		},
		{
			name:       "Wrong method",
			method:     "DELETE",
			path:       "/expenses",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Browser client",
			method:     "GET",
			path:       "/ui/",
			wantStatus: http.StatusOK,
			wantBody:   "expenseForm",
		},
		{
			name:       "Browser client script",
			method:     "GET",
			path:       "/ui/app.js",
			wantStatus: http.StatusOK,
			wantBody:   "loadExpenses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code,
				"%s %s returned unexpected status", tt.method, tt.path)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestCORSPreflightThroughMiddleware(t *testing.T) {
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handlers.NewHandlers(service.New(db, nil, logger), logger)
	handler := handlers.RequestLogger(logger, handlers.WithCORS("*", setupRouter(h, web.Handler())))

	req := httptest.NewRequest(http.MethodOptions, "/expenses", http.NoBody)
	req.Header.Set("Access-Control-Request-Headers", "idempotency-key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get(handlers.RequestIDHeader))
}
