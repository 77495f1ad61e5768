package sqlstore

import (
	"strings"
)

// ItemTable is the key-value table VS Code based applications keep their state in.
const ItemTable = "ItemTable"

// Schema is the key-value layout inferred for one table.
type Schema struct {
	Table       string
	KeyColumn   string
	ValueColumn string
}

// GuessSchema infers the key and value columns from a table's column names.
// Columns named exactly "key" and "value" win. Otherwise the first column
// containing "key" or "name", or equal to "id", is the key and the first other
// column containing "value", "data" or "content" is the value.
func GuessSchema(columns []string) (Schema, bool) {
	var hasKey, hasValue bool
	for _, c := range columns {
		switch c {
		case "key":
			hasKey = true
		case "value":
			hasValue = true
		}
	}
	if hasKey && hasValue {
		return Schema{KeyColumn: "key", ValueColumn: "value"}, true
	}

	var s Schema
	for _, c := range columns {
		lower := strings.ToLower(c)
		if s.KeyColumn == "" && (strings.Contains(lower, "key") || strings.Contains(lower, "name") || lower == "id") {
			s.KeyColumn = c
			continue
		}
		if s.ValueColumn == "" && (strings.Contains(lower, "value") || strings.Contains(lower, "data") || strings.Contains(lower, "content")) {
			s.ValueColumn = c
		}
	}
	if s.KeyColumn == "" || s.ValueColumn == "" {
		return Schema{}, false
	}
	return s, true
}

// orderTables moves ItemTable to the front, keeping the rest in discovery order.
func orderTables(tables []string) []string {
	ret := make([]string, 0, len(tables))
	for _, t := range tables {
		if t == ItemTable {
			ret = append(ret, t)
		}
	}
	for _, t := range tables {
		if t != ItemTable {
			ret = append(ret, t)
		}
	}
	return ret
}
