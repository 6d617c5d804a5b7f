package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spendbook/internal/events"
	"spendbook/internal/models"
	"spendbook/internal/storage"

	"github.com/google/uuid"
)

var (
	// ErrValidation wraps input the caller has to correct.
	ErrValidation = errors.New("validation failed")
	// ErrStorage wraps any fault of the underlying store. Safe to retry.
	ErrStorage = errors.New("storage failure")
)

// createdAtLayout is RFC 3339 in UTC with millisecond precision.
const createdAtLayout = "2006-01-02T15:04:05.000Z07:00"

// Store is the persistence the service depends on. *storage.DB satisfies it.
type Store interface {
	InsertExpense(ctx context.Context, e models.Expense) error
	GetExpenseByIdempotencyKey(ctx context.Context, key string) (*models.Expense, error)
	ListExpenses(ctx context.Context, filter models.ListFilter) ([]models.Expense, error)
	Ping(ctx context.Context) error
}

// ExpenseService validates input, performs idempotent creation and serves
// listings.
type ExpenseService struct {
	store     Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// New creates an ExpenseService. publisher may be nil.
func New(store Store, publisher events.Publisher, logger *slog.Logger) *ExpenseService {
	return &ExpenseService{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CreateExpense stores a new expense, or returns the record already created
// with idempotencyKey. The boolean is true only when a new row was written.
func (s *ExpenseService) CreateExpense(ctx context.Context, in models.ExpenseInput, idempotencyKey string) (models.Expense, bool, error) {
	in = in.Normalized()
	if err := in.Validate(); err != nil {
		return models.Expense{}, false, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if idempotencyKey != "" {
		existing, err := s.store.GetExpenseByIdempotencyKey(ctx, idempotencyKey)
		switch {
		case err == nil:
			s.logger.InfoContext(ctx, "Idempotent replay", "id", existing.ID, "idempotency_key", idempotencyKey)
			return *existing, false, nil
		case !errors.Is(err, storage.ErrNotFound):
			return models.Expense{}, false, fmt.Errorf("%w: lookup idempotency key: %w", ErrStorage, err)
		}
	}

	e := models.Expense{
		ID:               s.newID(),
		AmountMinorUnits: models.ToMinorUnits(*in.Amount),
		Category:         in.Category,
		Description:      in.DescriptionOrEmpty(),
		Date:             in.Date,
		CreatedAt:        s.now().UTC().Format(createdAtLayout),
	}
	if idempotencyKey != "" {
		e.IdempotencyKey = &idempotencyKey
	}

	// A client abandoning the request must not abort a write already under way.
	err := s.store.InsertExpense(context.WithoutCancel(ctx), e)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return s.resolveConcurrentReplay(ctx, idempotencyKey)
	}
	if err != nil {
		return models.Expense{}, false, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.logger.InfoContext(ctx, "Expense created",
		"id", e.ID,
		"amount_minor_units", e.AmountMinorUnits,
		"category", e.Category,
		"date", e.Date)

	s.publishCreated(ctx, e)
	return e, true, nil
}

// resolveConcurrentReplay handles a request that lost the insert race for its
// idempotency key: the winner's record is returned as a replay.
func (s *ExpenseService) resolveConcurrentReplay(ctx context.Context, key string) (models.Expense, bool, error) {
	existing, err := s.store.GetExpenseByIdempotencyKey(ctx, key)
	if err != nil {
		return models.Expense{}, false, fmt.Errorf("%w: refetch after duplicate key: %w", ErrStorage, err)
	}
	s.logger.InfoContext(ctx, "Concurrent idempotent replay", "id", existing.ID, "idempotency_key", key)
	return *existing, false, nil
}

func (s *ExpenseService) publishCreated(ctx context.Context, e models.Expense) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseCreated(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense created message", "id", e.ID, "error", err)
	}
}

// ListExpenses returns records matching filter; the slice is never nil.
func (s *ExpenseService) ListExpenses(ctx context.Context, filter models.ListFilter) ([]models.Expense, error) {
	expenses, err := s.store.ListExpenses(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if expenses == nil {
		expenses = []models.Expense{}
	}
	return expenses, nil
}

// Ready reports whether the store is reachable.
func (s *ExpenseService) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}
