package store

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"arstudio/internal/core"
)

// identifierPattern is the allow-list for table names and document field
// names that end up inside SQL text. Values never appear in SQL text; they
// are always placeholder-bound.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// normalizeValue converts a query value to its physical representation:
// booleans become 0/1 and times become RFC3339 strings, matching how JSON
// documents serialize them.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// whereClause is a translated filter: SQL text fragments joined by AND plus
// their bound arguments.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// translateFilter converts a core.Filter into JSON-path equality predicates
// against the data column. The id fast paths are handled by callers before
// reaching here.
func translateFilter(f core.Filter) (*whereClause, error) {
	w := &whereClause{}

	if f.ID != "" {
		w.conds = append(w.conds, "id = ?")
		w.args = append(w.args, f.ID)
	}
	if len(f.IDIn) > 0 {
		placeholders := strings.Repeat("?,", len(f.IDIn))
		w.conds = append(w.conds, "id IN ("+placeholders[:len(placeholders)-1]+")")
		for _, id := range f.IDIn {
			w.args = append(w.args, id)
		}
	}
	for field, value := range f.Eq {
		if err := validateIdentifier(field); err != nil {
			return nil, fmt.Errorf("filter field: %w", err)
		}
		w.conds = append(w.conds, fmt.Sprintf("json_extract(data, '$.%s') = ?", field))
		w.args = append(w.args, normalizeValue(value))
	}

	return w, nil
}

// jsonEqual compares two values by their JSON serialization, which is the
// value-equality the AddToSet and Pull operators use. Values read back from
// a stored document and freshly supplied ones then compare equal even when
// their Go types differ (int vs float64).
func jsonEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
