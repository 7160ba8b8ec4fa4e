package row

// Row is an ordered slice of field values aligned with a Schema. A row may
// be longer than its schema; trailing slots are scratch space.
type Row []any

// Clone returns a copy of r that shares no mutable state with it.
func Clone(r Row) Row {
	if r == nil {
		return nil
	}
	c := make(Row, len(r))
	for i, v := range r {
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		c[i] = v
	}
	return c
}

// Get returns the value of the named field, or nil when absent.
func (r Row) Get(s *Schema, name string) any {
	i := s.IndexOf(name)
	if i < 0 || i >= len(r) {
		return nil
	}
	return r[i]
}
