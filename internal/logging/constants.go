package logging

// Standardized field names for structured logging.
const (
	FieldFile      = "file_path"
	FieldLine      = "line"
	FieldKind      = "kind"
	FieldImportKey = "import_key"
	FieldRenamedTo = "renamed_to"
	FieldRelation  = "relation"
	FieldBatchID   = "batch_id"
	FieldRuleID    = "rule_id"
	FieldPrevID    = "prev_id"
	FieldNextID    = "next_id"
	FieldOperation = "operation"
	FieldDriver    = "driver"
	FieldError     = "error"
	FieldCount     = "count"
	FieldRows      = "rows_affected"
	FieldDuration  = "duration_ms"
)
