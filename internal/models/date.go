package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the storage layout of every date column.
const DateLayout = "2006-01-02"

var inputDateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
}

// Date is a nullable calendar date stored as YYYY-MM-DD text.
type Date struct {
	Time  time.Time
	Valid bool
}

// ParseDate accepts the layouts commonly found in exported budget data.
// An empty string yields an invalid (NULL) Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	for _, layout := range inputDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t, Valid: true}, nil
		}
	}
	return Date{}, fmt.Errorf("unrecognized date '%s'", s)
}

func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if !d.Valid {
		return nil, nil
	}
	return d.Time.Format(DateLayout), nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = Date{Time: v, Valid: true}
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanString(s string) error {
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
