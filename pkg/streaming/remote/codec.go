package remote

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vnykmshr/rowflow/pkg/row"
)

// FrameKind tags each frame on the wire.
type FrameKind uint8

const (
	FrameSchema FrameKind = iota + 1
	FrameRow
	FrameDone
)

type fieldDescriptor struct {
	Name      string `msgpack:"n"`
	Type      int    `msgpack:"t"`
	Storage   int    `msgpack:"s"`
	Length    int    `msgpack:"l,omitempty"`
	Precision int    `msgpack:"p,omitempty"`
}

// Encoder writes frames to a buffered writer. Call Flush to push
// buffered frames to the connection.
type Encoder struct {
	w      *bufio.Writer
	enc    *msgpack.Encoder
	schema *row.Schema
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	bw := bufio.NewWriter(w)
	return &Encoder{w: bw, enc: msgpack.NewEncoder(bw)}
}

// WriteSchema writes the schema descriptor frame.
func (e *Encoder) WriteSchema(s *row.Schema) error {
	fields := make([]fieldDescriptor, s.Len())
	for i := range fields {
		vm := s.Field(i)
		fields[i] = fieldDescriptor{
			Name:      vm.Name,
			Type:      int(vm.Type),
			Storage:   int(vm.Storage),
			Length:    vm.Length,
			Precision: vm.Precision,
		}
	}
	if err := e.enc.EncodeUint8(uint8(FrameSchema)); err != nil {
		return err
	}
	e.schema = s
	return e.enc.Encode(fields)
}

// WriteRow writes one row frame. Scratch slots beyond the schema are not sent.
func (e *Encoder) WriteRow(r row.Row) error {
	if e.schema == nil {
		return fmt.Errorf("row frame before schema frame")
	}
	n := e.schema.Len()
	if len(r) < n {
		return fmt.Errorf("row has %d values, schema has %d fields", len(r), n)
	}
	if err := e.enc.EncodeUint8(uint8(FrameRow)); err != nil {
		return err
	}
	if err := e.enc.EncodeArrayLen(n); err != nil {
		return err
	}
	for _, v := range r[:n] {
		if err := e.enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

// WriteDone writes the end-of-stream frame and flushes.
func (e *Encoder) WriteDone() error {
	if err := e.enc.EncodeUint8(uint8(FrameDone)); err != nil {
		return err
	}
	return e.Flush()
}

// Flush pushes buffered frames to the underlying writer.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Decoder reads frames written by an Encoder.
type Decoder struct {
	dec    *msgpack.Decoder
	schema *row.Schema
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: msgpack.NewDecoder(bufio.NewReader(r))}
}

// Schema returns the schema received so far, or nil.
func (d *Decoder) Schema() *row.Schema {
	return d.schema
}

// Next reads one frame. Row frames return the decoded row with values
// converted to the Go types of the schema's fields.
func (d *Decoder) Next() (FrameKind, row.Row, error) {
	k, err := d.dec.DecodeUint8()
	if err != nil {
		return 0, nil, err
	}
	switch kind := FrameKind(k); kind {
	case FrameSchema:
		var fields []fieldDescriptor
		if err := d.dec.Decode(&fields); err != nil {
			return 0, nil, fmt.Errorf("decode schema frame: %w", err)
		}
		metas := make([]row.ValueMeta, len(fields))
		for i, f := range fields {
			metas[i] = row.ValueMeta{
				Name:      f.Name,
				Type:      row.ValueType(f.Type),
				Storage:   row.StorageType(f.Storage),
				Length:    f.Length,
				Precision: f.Precision,
			}
		}
		d.schema = row.NewSchema(metas...)
		return kind, nil, nil
	case FrameRow:
		if d.schema == nil {
			return 0, nil, fmt.Errorf("row frame before schema frame")
		}
		n, err := d.dec.DecodeArrayLen()
		if err != nil {
			return 0, nil, fmt.Errorf("decode row frame: %w", err)
		}
		if n != d.schema.Len() {
			return 0, nil, fmt.Errorf("row frame has %d values, schema has %d fields", n, d.schema.Len())
		}
		r := make(row.Row, n)
		for i := range r {
			v, err := d.dec.DecodeInterface()
			if err != nil {
				return 0, nil, fmt.Errorf("decode value %d: %w", i+1, err)
			}
			r[i] = normalize(v, d.schema.Field(i).Type)
		}
		return kind, r, nil
	case FrameDone:
		return kind, nil, nil
	default:
		return 0, nil, fmt.Errorf("unknown frame kind %d", k)
	}
}

// normalize maps msgpack's compact numeric and string types back onto the
// Go types rows use for each ValueType.
func normalize(v any, t row.ValueType) any {
	if v == nil {
		return nil
	}
	switch t {
	case row.TypeInteger:
		if i, ok := toInt64(v); ok {
			return i
		}
	case row.TypeNumber:
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		}
		if i, ok := toInt64(v); ok {
			return float64(i)
		}
	case row.TypeString:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	case row.TypeBinary:
		if s, ok := v.(string); ok {
			return []byte(s)
		}
	case row.TypeDate:
		if ts, ok := v.(time.Time); ok {
			return ts
		}
	}
	return v
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint:
		return int64(n), true
	}
	return 0, false
}
