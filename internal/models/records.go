package models

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Field binds a storage column name to the Go value holding it.
type Field struct {
	Name string
	Ptr  interface{}
}

// Record is a persistable budget entity.
type Record interface {
	Kind() Kind
	Ident() *Base
	// Fields lists every stored column except id, in table order.
	Fields() []Field
}

// Base carries the identity shared by every record.
type Base struct {
	ID        int64
	ImportKey sql.NullString
}

// Ident returns b itself so embedding types satisfy Record.
func (b *Base) Ident() *Base { return b }

// Account is a bank or cash account.
type Account struct {
	Base
	Name    string
	Tracked sql.NullBool
}

func (*Account) Kind() Kind { return KindAccount }

func (a *Account) Fields() []Field {
	return []Field{
		{ImportKeyColumn, &a.ImportKey},
		{"name", &a.Name},
		{"tracked", &a.Tracked},
	}
}

// Budget is a spending envelope.
type Budget struct {
	Base
	Name      string
	Carryover Money
}

func (*Budget) Kind() Kind { return KindBudget }

func (b *Budget) Fields() []Field {
	return []Field{
		{ImportKeyColumn, &b.ImportKey},
		{"name", &b.Name},
		{"carryover", &b.Carryover},
	}
}

// Transaction is a single ledger line. Rules rewrite its columns in bulk.
type Transaction struct {
	Base
	Date        Date
	Description string
	Amount      Money
	Display     string
	AccountID   sql.NullInt64
	BudgetID    sql.NullInt64
	StatementID sql.NullInt64
}

func (*Transaction) Kind() Kind { return KindTransaction }

func (t *Transaction) Fields() []Field {
	return []Field{
		{ImportKeyColumn, &t.ImportKey},
		{"date", &t.Date},
		{"description", &t.Description},
		{"amount", &t.Amount},
		{"display", &t.Display},
		{"account_id", &t.AccountID},
		{"budget_id", &t.BudgetID},
		{"statement_id", &t.StatementID},
	}
}

// Statement is an account balance at a point in time.
type Statement struct {
	Base
	Date      Date
	Balance   Money
	AccountID sql.NullInt64
}

func (*Statement) Kind() Kind { return KindStatement }

func (s *Statement) Fields() []Field {
	return []Field{
		{ImportKeyColumn, &s.ImportKey},
		{"date", &s.Date},
		{"balance", &s.Balance},
		{"account_id", &s.AccountID},
	}
}

// Allotment schedules money into a budget.
type Allotment struct {
	Base
	Amount    Money
	Automatic sql.NullBool
	StartDate Date
	Ends      Date
	Periods   sql.NullInt64
	Recur     string
	BudgetID  sql.NullInt64
}

func (*Allotment) Kind() Kind { return KindAllotment }

func (a *Allotment) Fields() []Field {
	return []Field{
		{ImportKeyColumn, &a.ImportKey},
		{"amount", &a.Amount},
		{"automatic", &a.Automatic},
		{"start_date", &a.StartDate},
		{"ends", &a.Ends},
		{"periods", &a.Periods},
		{"recur", &a.Recur},
		{"budget_id", &a.BudgetID},
	}
}

// New returns a blank record of kind k, or nil for an unknown kind.
func New(k Kind) Record {
	switch k {
	case KindAccount:
		return &Account{}
	case KindBudget:
		return &Budget{}
	case KindTransaction:
		return &Transaction{}
	case KindStatement:
		return &Statement{}
	case KindAllotment:
		return &Allotment{}
	}
	return nil
}

// Columns returns the stored column names of r, excluding id.
func Columns(r Record) []string {
	fields := r.Fields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

// IsMoneyColumn reports whether column of kind holds a Money amount.
func IsMoneyColumn(kind Kind, column string) bool {
	rec := New(kind)
	if rec == nil {
		return false
	}
	for _, f := range rec.Fields() {
		if f.Name == column {
			_, ok := f.Ptr.(*Money)
			return ok
		}
	}
	return false
}

// Values returns the stored column values of r aligned with Columns.
func Values(r Record) []interface{} {
	fields := r.Fields()
	out := make([]interface{}, len(fields))
	for i, f := range fields {
		switch p := f.Ptr.(type) {
		case *string:
			out[i] = *p
		case *Money:
			out[i] = *p
		case *Date:
			out[i] = *p
		case *sql.NullBool:
			out[i] = *p
		case *sql.NullInt64:
			out[i] = *p
		case *sql.NullString:
			out[i] = *p
		default:
			out[i] = f.Ptr
		}
	}
	return out
}

// ScanDest returns scan targets for "id" followed by Columns(r).
func ScanDest(r Record) []interface{} {
	fields := r.Fields()
	out := make([]interface{}, 0, len(fields)+1)
	out = append(out, &r.Ident().ID)
	for _, f := range fields {
		out = append(out, f.Ptr)
	}
	return out
}

// Assign converts raw text into the typed column value of r.
func Assign(r Record, column, raw string) error {
	for _, f := range r.Fields() {
		if f.Name != column {
			continue
		}
		if err := assignText(f.Ptr, raw); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("%s has no column %q", r.Kind(), column)
}

// Link stores a resolved relation id on r.
func Link(r Record, relation string, id int64) error {
	column := relation + RelationSuffix
	for _, f := range r.Fields() {
		if f.Name != column {
			continue
		}
		p, ok := f.Ptr.(*sql.NullInt64)
		if !ok {
			return fmt.Errorf("%s column %q is not a relation", r.Kind(), column)
		}
		*p = sql.NullInt64{Int64: id, Valid: true}
		return nil
	}
	return fmt.Errorf("%s has no relation %q", r.Kind(), relation)
}

func assignText(ptr interface{}, raw string) error {
	switch p := ptr.(type) {
	case *string:
		*p = raw
	case *sql.NullString:
		*p = sql.NullString{String: raw, Valid: raw != ""}
	case *Money:
		m, err := ParseMoney(raw)
		if err != nil {
			return err
		}
		*p = m
	case *Date:
		d, err := ParseDate(raw)
		if err != nil {
			return err
		}
		*p = d
	case *sql.NullBool:
		b, err := parseBool(raw)
		if err != nil {
			return err
		}
		*p = b
	case *sql.NullInt64:
		s := strings.TrimSpace(raw)
		if s == "" {
			*p = sql.NullInt64{}
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*p = sql.NullInt64{Int64: n, Valid: true}
	default:
		return fmt.Errorf("unsupported column type %T", ptr)
	}
	return nil
}

func parseBool(raw string) (sql.NullBool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return sql.NullBool{}, nil
	case "y", "yes", "on":
		return sql.NullBool{Bool: true, Valid: true}, nil
	case "n", "no", "off":
		return sql.NullBool{Bool: false, Valid: true}, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return sql.NullBool{}, fmt.Errorf("invalid boolean '%s'", raw)
	}
	return sql.NullBool{Bool: b, Valid: true}, nil
}
