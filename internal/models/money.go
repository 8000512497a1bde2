package models

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a nullable monetary amount. It is stored as canonical text with two
// decimal places; rule conditions compare it numerically, and LIKE matches
// against that text.
type Money struct {
	Amount decimal.Decimal
	Valid  bool
}

// NewMoney returns a valid Money for amount.
func NewMoney(amount decimal.Decimal) Money {
	return Money{Amount: amount, Valid: true}
}

// ParseMoney parses a text amount. An empty string yields an invalid (NULL) Money.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, nil
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string '%s': %w", s, err)
	}
	return NewMoney(dec), nil
}

// String returns the canonical two-decimal representation, or "" when NULL.
func (m Money) String() string {
	if !m.Valid {
		return ""
	}
	return m.Amount.StringFixed(2)
}

// Equal returns true if both values are NULL or hold the same amount.
func (m Money) Equal(other Money) bool {
	if m.Valid != other.Valid {
		return false
	}
	return !m.Valid || m.Amount.Equal(other.Amount)
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	if !m.Valid {
		return nil, nil
	}
	return m.Amount.StringFixed(2), nil
}

// Scan implements sql.Scanner.
func (m *Money) Scan(src interface{}) error {
	if src == nil {
		*m = Money{}
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return err
	}
	*m = NewMoney(d)
	return nil
}
