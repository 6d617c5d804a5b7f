package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxMinorUnits is the largest amount, in minor units, that is stored exactly.
const MaxMinorUnits = 1 << 53

// ErrInvalidInput is the sentinel every ValidationError matches via errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// Expense is the sole persisted record. It is append-only: created once,
// never updated or deleted.
type Expense struct {
	ID               string  `json:"id"`
	AmountMinorUnits int64   `json:"amount_minor_units"`
	Category         string  `json:"category"`
	Description      string  `json:"description"`
	Date             string  `json:"date"`
	CreatedAt        string  `json:"created_at"`
	IdempotencyKey   *string `json:"idempotency_key"`
}

// ExpenseInput is the creation payload. Pointer fields distinguish a missing
// value from a zero one.
type ExpenseInput struct {
	Amount      *float64 `json:"amount"`
	Category    string   `json:"category"`
	Description *string  `json:"description,omitempty"`
	Date        string   `json:"date"`
}

// ListFilter selects and orders records for listing.
type ListFilter struct {
	Category    string
	NewestFirst bool
}

// ValidationError describes a user-correctable problem with an ExpenseInput.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) hold for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Validate checks the input the same way on the server and in clients.
// Checks run in field order, so the first problem is reported.
func (in ExpenseInput) Validate() error {
	if in.Amount == nil {
		return &ValidationError{Field: "amount", Reason: "is required"}
	}
	amount := *in.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be a positive number"}
	}
	if minor := math.Round(amount * 100); minor < 1 || minor > MaxMinorUnits {
		return &ValidationError{Field: "amount", Reason: "is out of range"}
	}
	if strings.TrimSpace(in.Category) == "" {
		return &ValidationError{Field: "category", Reason: "is required"}
	}
	if strings.TrimSpace(in.Date) == "" {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	return nil
}

// Normalized returns a copy with whitespace trimmed from the text fields.
func (in ExpenseInput) Normalized() ExpenseInput {
	out := in
	out.Category = strings.TrimSpace(in.Category)
	out.Date = strings.TrimSpace(in.Date)
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		out.Description = &desc
	}
	return out
}

// DescriptionOrEmpty returns the description, defaulting to "".
func (in ExpenseInput) DescriptionOrEmpty() string {
	if in.Description == nil {
		return ""
	}
	return *in.Description
}

// ToMinorUnits converts a decimal amount to integer minor units, rounding
// half away from zero.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FormatMinorUnits renders minor units as a plain decimal with two places.
func FormatMinorUnits(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// Amount returns a pointer to v, for building inputs.
func Amount(v float64) *float64 {
	return &v
}
