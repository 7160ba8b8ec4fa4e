package row

import (
	"fmt"
	"strings"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
)

// Schema is an immutable ordered list of field descriptors.
type Schema struct {
	fields []ValueMeta
}

// NewSchema copies fields into a new Schema.
func NewSchema(fields ...ValueMeta) *Schema {
	f := make([]ValueMeta, len(fields))
	copy(f, fields)
	return &Schema{fields: f}
}

// Len returns the number of fields. A nil schema has no fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Field returns the descriptor at position i.
func (s *Schema) Field(i int) ValueMeta {
	return s.fields[i]
}

// Fields returns a copy of the descriptors.
func (s *Schema) Fields() []ValueMeta {
	if s == nil {
		return nil
	}
	f := make([]ValueMeta, len(s.fields))
	copy(f, s.fields)
	return f
}

// Names returns the field names in order.
func (s *Schema) Names() []string {
	names := make([]string, s.Len())
	for i := range names {
		names[i] = s.fields[i].Name
	}
	return names
}

// IndexOf returns the position of the named field, matched
// case-insensitively, or -1.
func (s *Schema) IndexOf(name string) int {
	for i := 0; i < s.Len(); i++ {
		if strings.EqualFold(s.fields[i].Name, name) {
			return i
		}
	}
	return -1
}

// Append returns a new schema holding s's fields followed by extra.
func (s *Schema) Append(extra ...ValueMeta) *Schema {
	f := make([]ValueMeta, 0, s.Len()+len(extra))
	if s != nil {
		f = append(f, s.fields...)
	}
	f = append(f, extra...)
	return &Schema{fields: f}
}

func (s *Schema) String() string {
	parts := make([]string, s.Len())
	for i := range parts {
		parts[i] = fmt.Sprintf("%s:%s", s.fields[i].Name, s.fields[i].Type)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// CheckNamesAndTypes rejects schemas with a blank field name or an
// undefined type.
func (s *Schema) CheckNamesAndTypes() error {
	for i := 0; i < s.Len(); i++ {
		vm := s.fields[i]
		if strings.TrimSpace(vm.Name) == "" {
			return fmt.Errorf("%w: field at position %d has no name", rferrors.ErrInvalidConfiguration, i+1)
		}
		if vm.Type == TypeNone {
			return fmt.Errorf("%w: field %q has an undefined type", rferrors.ErrInvalidConfiguration, vm.Name)
		}
	}
	return nil
}

// MismatchKind names which attribute of two layouts differed.
type MismatchKind string

const (
	MismatchSize    MismatchKind = "size"
	MismatchName    MismatchKind = "name"
	MismatchType    MismatchKind = "type"
	MismatchStorage MismatchKind = "storage"
)

// MismatchError reports the first difference between a reference layout
// and a row's layout. Position is 1-based and zero for size mismatches.
type MismatchError struct {
	Kind      MismatchKind
	Position  int
	Reference string
	Actual    string
}

func (e *MismatchError) Error() string {
	if e.Kind == MismatchSize {
		return fmt.Sprintf("row layout mismatch: expected %s fields, got %s", e.Reference, e.Actual)
	}
	return fmt.Sprintf("row layout mismatch at position %d: %s %s differs from reference %s",
		e.Position, e.Kind, e.Actual, e.Reference)
}

func (e *MismatchError) Unwrap() error {
	return rferrors.ErrSchemaMismatch
}

// CompareLayout checks other against s as the reference layout: field
// count, then for each position the name (case-insensitive), the type and
// the storage type.
func (s *Schema) CompareLayout(other *Schema) error {
	if s.Len() != other.Len() {
		return &MismatchError{
			Kind:      MismatchSize,
			Reference: fmt.Sprint(s.Len()),
			Actual:    fmt.Sprint(other.Len()),
		}
	}
	for i := 0; i < s.Len(); i++ {
		ref, act := s.fields[i], other.fields[i]
		switch {
		case !strings.EqualFold(ref.Name, act.Name):
			return &MismatchError{Kind: MismatchName, Position: i + 1, Reference: quote(ref.Name), Actual: quote(act.Name)}
		case ref.Type != act.Type:
			return &MismatchError{Kind: MismatchType, Position: i + 1,
				Reference: fmt.Sprintf("%s (%s)", quote(ref.Name), ref.Type), Actual: fmt.Sprintf("%s (%s)", quote(act.Name), act.Type)}
		case ref.Storage != act.Storage:
			return &MismatchError{Kind: MismatchStorage, Position: i + 1,
				Reference: fmt.Sprintf("%s (%s)", quote(ref.Name), ref.Storage), Actual: fmt.Sprintf("%s (%s)", quote(act.Name), act.Storage)}
		}
	}
	return nil
}

func quote(s string) string { return `"` + s + `"` }
