package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"spendbook/internal/handlers"
	"spendbook/internal/models"
	"spendbook/internal/service"
	"spendbook/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ClientTestSuite drives the client against the real HTTP stack backed by an
// in-memory database.
type ClientTestSuite struct {
	suite.Suite
	db     *storage.DB
	server *httptest.Server
	client *Client
	ctx    context.Context
}

func (suite *ClientTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	h := handlers.NewHandlers(service.New(db, nil, discardLogger()), discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /expenses", h.CreateExpense)
	mux.HandleFunc("GET /expenses", h.ListExpenses)
	suite.server = httptest.NewServer(mux)

	suite.client = New(suite.server.URL+"/", suite.server.Client())
	suite.ctx = context.Background()
}

func (suite *ClientTestSuite) TearDownTest() {
	suite.server.Close()
	suite.db.Close()
}

func (suite *ClientTestSuite) add(amount float64, category, date string) models.Expense {
	res, err := suite.client.CreateExpense(suite.ctx, models.ExpenseInput{
		Amount:   models.Amount(amount),
		Category: category,
		Date:     date,
	})
	require.NoError(suite.T(), err)
	require.True(suite.T(), res.Created)
	return res.Expense
}

func (suite *ClientTestSuite) TestCreateAndSummarize() {
	suite.add(10, "food", "2024-01-01")
	suite.add(5, "travel", "2024-01-02")

	list, err := suite.client.ListExpenses(suite.ctx, ListOptions{})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 2)

	s := Summarize(list)
	assert.Equal(suite.T(), int64(1500), s.TotalMinorUnits)
	assert.Equal(suite.T(), int64(1000), s.CategoryTotal("food"))
	assert.Equal(suite.T(), int64(500), s.CategoryTotal("travel"))
	assert.Equal(suite.T(), []string{"food", "travel"}, s.CategoryOptions)
}

func (suite *ClientTestSuite) TestEachAttemptGetsANewToken() {
	in := models.ExpenseInput{Amount: models.Amount(3), Category: "food", Date: "2024-01-01"}

	a, err := suite.client.CreateExpense(suite.ctx, in)
	require.NoError(suite.T(), err)
	b, err := suite.client.CreateExpense(suite.ctx, in)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), a.Created)
	assert.True(suite.T(), b.Created)
	assert.NotEqual(suite.T(), a.Expense.ID, b.Expense.ID)
	require.NotNil(suite.T(), a.Expense.IdempotencyKey)
	require.NotNil(suite.T(), b.Expense.IdempotencyKey)
	assert.NotEqual(suite.T(), *a.Expense.IdempotencyKey, *b.Expense.IdempotencyKey)
}

func (suite *ClientTestSuite) TestReplayWithFixedToken() {
	suite.client.newToken = func() string { return "fixed" }
	in := models.ExpenseInput{Amount: models.Amount(12.5), Category: "food", Date: "2024-01-01"}

	first, err := suite.client.CreateExpense(suite.ctx, in)
	require.NoError(suite.T(), err)
	second, err := suite.client.CreateExpense(suite.ctx, in)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), first.Created)
	assert.False(suite.T(), second.Created)
	assert.Equal(suite.T(), first.Expense.ID, second.Expense.ID)
	assert.Equal(suite.T(), int64(1250), second.Expense.AmountMinorUnits)
}

func (suite *ClientTestSuite) TestListOptions() {
	suite.add(10, "food", "2024-01-01")
	suite.add(5, "travel", "2024-03-01")
	suite.add(7, "food", "2024-02-01")

	food, err := suite.client.ListExpenses(suite.ctx, ListOptions{Category: "food", NewestFirst: true})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), food, 2)
	assert.Equal(suite.T(), "2024-02-01", food[0].Date)
	assert.Equal(suite.T(), "2024-01-01", food[1].Date)

	s := Summarize(food)
	assert.Equal(suite.T(), []string{"food"}, s.CategoryOptions, "options follow the current result set")

	empty, err := suite.client.ListExpenses(suite.ctx, ListOptions{Category: "none"})
	require.NoError(suite.T(), err)
	assert.NotNil(suite.T(), empty)
	assert.Empty(suite.T(), empty)
}

func (suite *ClientTestSuite) TestValidationFailsWithoutRequest() {
	tests := []struct {
		name  string
		in    models.ExpenseInput
		field string
	}{
		{"zero amount", models.ExpenseInput{Amount: models.Amount(0), Category: "food", Date: "2024-01-01"}, "amount"},
		{"missing category", models.ExpenseInput{Amount: models.Amount(1), Category: " ", Date: "2024-01-01"}, "category"},
		{"missing date", models.ExpenseInput{Amount: models.Amount(1), Category: "food"}, "date"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := suite.client.CreateExpense(suite.ctx, tt.in)
			var verr *models.ValidationError
			require.ErrorAs(suite.T(), err, &verr)
			assert.Equal(suite.T(), tt.field, verr.Field)
		})
	}

	list, err := suite.client.ListExpenses(suite.ctx, ListOptions{})
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), list)
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func TestCreateExpenseSendsHeaders(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		mu.Unlock()

		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 4.2, body["amount"])
		assert.Equal(t, "food", body["category"], "text fields are trimmed before sending")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"x","amount_minor_units":420,"category":"food","description":"","date":"2024-01-01","created_at":"t","idempotency_key":"k"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	in := models.ExpenseInput{Amount: models.Amount(4.2), Category: " food ", Date: "2024-01-01"}
	for range 2 {
		res, err := c.CreateExpense(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Equal(t, int64(420), res.Expense.AmountMinorUnits)
	}

	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.NotEqual(t, keys[0], keys[1])
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"json error body", http.StatusBadRequest, `{"error":"Invalid input: amount is required"}`, "Invalid input: amount is required"},
		{"server fault", http.StatusInternalServerError, `{"error":"Database error"}`, "Database error"},
		{"plain text body", http.StatusBadGateway, "upstream down\n", "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL, srv.Client())

			_, err := c.ListExpenses(context.Background(), ListOptions{})
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMsg, apiErr.Message)

			_, err = c.CreateExpense(context.Background(), models.ExpenseInput{Amount: models.Amount(1), Category: "a", Date: "b"})
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}
}

func TestListRejectsNonArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client()).ListExpenses(context.Background(), ListOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a JSON array")
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, nil)
	_, err := c.ListExpenses(context.Background(), ListOptions{})
	assert.True(t, errors.Is(err, ErrNetwork), "got %v", err)

	_, err = c.CreateExpense(context.Background(), models.ExpenseInput{Amount: models.Amount(1), Category: "a", Date: "b"})
	assert.True(t, errors.Is(err, ErrNetwork), "got %v", err)
}
