// Package table holds the canonical tabular form every extractor produces
// and every ground truth is loaded into.
package table

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
)

// Field is one named, typed column.
type Field struct {
	Name string
	Role constants.Role
	Type constants.ValueType
}

// NewField builds a field whose type follows its role.
func NewField(name string, role constants.Role) Field {
	return Field{Name: name, Role: role, Type: role.Type()}
}

// Schema is the ordered field list shared by every record of a table.
type Schema struct {
	Fields []Field
}

// SchemaFromHeader resolves each header name to a role with the built-in
// synonym table. Unrecognized headers become RoleOther text columns.
func SchemaFromHeader(names []string) Schema {
	fields := make([]Field, len(names))
	for i, name := range names {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))
		role, _ := constants.CanonicalizeHeader(name, nil)
		fields[i] = NewField(name, role)
	}
	return Schema{Fields: fields}
}

func (s Schema) Width() int { return len(s.Fields) }

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the first field with role, or -1.
func (s Schema) Index(role constants.Role) int {
	for i, f := range s.Fields {
		if f.Role == role {
			return i
		}
	}
	return -1
}

// Has reports whether any field carries role.
func (s Schema) Has(role constants.Role) bool { return s.Index(role) >= 0 }

// Equal compares names, order and value types.
func (s Schema) Equal(o Schema) bool {
	if len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i].Name != o.Fields[i].Name || s.Fields[i].Type != o.Fields[i].Type {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = fmt.Sprintf("%s:%s", f.Name, f.Type)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Record is one row; values align 1:1 with the schema fields.
type Record []normalize.Value

// Equal is strict cell-by-cell typed equality.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Blank reports whether every value is Null or empty text.
func (r Record) Blank() bool {
	for _, v := range r {
		if !v.IsNull() && !(v.Kind() == normalize.KindText && v.Text() == "") {
			return false
		}
	}
	return true
}

// Table is a schema plus ordered records.
type Table struct {
	Schema  Schema
	Records []Record
}

// New returns an empty table over schema.
func New(schema Schema) *Table {
	return &Table{Schema: schema}
}

// Len is the record count.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Append adds a record, rejecting a width that differs from the schema.
func (t *Table) Append(rec Record) error {
	if len(rec) != t.Schema.Width() {
		return fmt.Errorf("record has %d values, schema has %d fields", len(rec), t.Schema.Width())
	}
	t.Records = append(t.Records, rec)
	return nil
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := &Table{Schema: Schema{Fields: append([]Field(nil), t.Schema.Fields...)}}
	out.Records = make([]Record, len(t.Records))
	for i, r := range t.Records {
		out.Records[i] = append(Record(nil), r...)
	}
	return out
}

// Rows renders every record through n.
func (t *Table) Rows(n *normalize.Normalizer) [][]string {
	rows := make([][]string, len(t.Records))
	for i, rec := range t.Records {
		row := make([]string, len(rec))
		for j, v := range rec {
			row[j] = n.Render(v)
		}
		rows[i] = row
	}
	return rows
}
