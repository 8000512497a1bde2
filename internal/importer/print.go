package importer

import (
	"fmt"
	"io"
	"strings"

	"jjcook/budgetdb/internal/models"

	"github.com/gocarina/gocsv"
)

// printRow is one column of one staged row in the diagnostic dump.
type printRow struct {
	Key    string `csv:"key"`
	Kind   string `csv:"kind"`
	Column string `csv:"column"`
	Value  string `csv:"value"`
}

// Print writes the staging table as CSV, one line per column of each row in
// input order. Resolved relations show as "-> <key>" for staged rows and
// "-> #<id>" for stored ones.
func (r *Records) Print(w io.Writer) error {
	var rows []printRow
	for _, st := range r.order {
		kind := st.Kind.String()
		rows = append(rows, printRow{Key: st.Key, Kind: kind, Column: models.ImportColumn, Value: st.Key})
		for _, col := range st.Kind.Columns() {
			raw, ok := st.Raw[col]
			if !ok || col == models.ImportColumn {
				continue
			}
			value := raw
			if rel, isRel := models.RelationName(col); isRel {
				value = relationValue(st, rel, raw)
			}
			rows = append(rows, printRow{Key: st.Key, Kind: kind, Column: col, Value: value})
		}
	}
	if len(rows) == 0 {
		_, err := io.WriteString(w, "key,kind,column,value\n")
		return err
	}
	return gocsv.Marshal(rows, w)
}

func relationValue(st *Staged, relation, raw string) string {
	if target, ok := st.Relation(relation); ok {
		return "-> " + target.Key
	}
	if id, ok := st.RelationID(relation); ok {
		return fmt.Sprintf("-> #%d", id)
	}
	return strings.TrimSpace(raw)
}
