// Package models defines the budget entities, the closed set of entity kinds
// the importer accepts, and the classification rule types.
package models

import (
	"strings"

	"golang.org/x/text/cases"
)

// Kind enumerates the entity kinds that can be imported and persisted.
type Kind int

const (
	KindUnknown Kind = iota
	KindAccount
	KindBudget
	KindTransaction
	KindStatement
	KindAllotment
)

// Flat-file column conventions.
const (
	// ImportColumn holds a row's own natural key. Schema lines declare it as "id".
	ImportColumn = "import"
	// IDColumn is the schema-line spelling of ImportColumn.
	IDColumn = "id"
	// RelationSuffix marks a column as a deferred reference to another entity.
	RelationSuffix = "_id"
	// ImportKeyColumn is the storage column holding a durable import key.
	ImportKeyColumn = "import_key"
)

var kindInfo = map[Kind]struct {
	name      string
	table     string
	relations map[string]Kind
}{
	KindAccount:     {name: "Account", table: "accounts"},
	KindBudget:      {name: "Budget", table: "budgets"},
	KindTransaction: {name: "Transaction", table: "transactions", relations: map[string]Kind{"account": KindAccount, "budget": KindBudget, "statement": KindStatement}},
	KindStatement:   {name: "Statement", table: "statements", relations: map[string]Kind{"account": KindAccount}},
	KindAllotment:   {name: "Allotment", table: "allotments", relations: map[string]Kind{"budget": KindBudget}},
}

var folder = cases.Fold()

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindAccount, KindBudget, KindTransaction, KindStatement, KindAllotment}
}

// ParseKind maps a type name from the flat file onto a Kind, ignoring case.
func ParseKind(name string) (Kind, bool) {
	key := folder.String(strings.TrimSpace(name))
	for _, k := range Kinds() {
		if folder.String(kindInfo[k].name) == key {
			return k, true
		}
	}
	return KindUnknown, false
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return "Unknown"
}

// Table returns the storage table for k.
func (k Kind) Table() string {
	return kindInfo[k].table
}

// Relations maps each relation base name of k to the kind it references.
func (k Kind) Relations() map[string]Kind {
	out := make(map[string]Kind, len(kindInfo[k].relations))
	for name, target := range kindInfo[k].relations {
		out[name] = target
	}
	return out
}

// RelationKind returns the kind referenced through relation.
func (k Kind) RelationKind(relation string) (Kind, bool) {
	target, ok := kindInfo[k].relations[relation]
	return target, ok
}

// Attributes lists the directly assignable columns of k.
func (k Kind) Attributes() []string {
	rec := New(k)
	if rec == nil {
		return nil
	}
	var out []string
	for _, f := range rec.Fields() {
		if f.Name == ImportKeyColumn || strings.HasSuffix(f.Name, RelationSuffix) {
			continue
		}
		out = append(out, f.Name)
	}
	return out
}

// Columns lists every column accepted for k in a schema line: the import
// column, the attributes and one "<relation>_id" column per relation.
func (k Kind) Columns() []string {
	cols := []string{ImportColumn}
	cols = append(cols, k.Attributes()...)
	for _, f := range New(k).Fields() {
		if strings.HasSuffix(f.Name, RelationSuffix) {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// Accepts reports whether column is a recognized flat-file column of k.
func (k Kind) Accepts(column string) bool {
	if k == KindUnknown {
		return false
	}
	if column == ImportColumn {
		return true
	}
	if rel, ok := RelationName(column); ok {
		_, known := k.RelationKind(rel)
		return known
	}
	for _, a := range k.Attributes() {
		if a == column {
			return true
		}
	}
	return false
}

// RelationName strips RelationSuffix from column.
func RelationName(column string) (string, bool) {
	if !strings.HasSuffix(column, RelationSuffix) || len(column) == len(RelationSuffix) {
		return "", false
	}
	return strings.TrimSuffix(column, RelationSuffix), true
}
