package partition

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/zeebo/xxh3"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/row"
)

type modPartitioner struct {
	field string
	n     int
}

func newModPartitioner(meta Meta) (Partitioner, error) {
	if len(meta.Fields) != 1 {
		return nil, rferrors.NewValidationError("partition", "fields", meta.Fields, "mod partitioner needs exactly one field")
	}
	return &modPartitioner{field: meta.Fields[0], n: len(meta.Schema.PartitionIDs)}, nil
}

func (p *modPartitioner) NrPartitions() int { return p.n }

func (p *modPartitioner) PartitionOf(schema *row.Schema, r row.Row) (int, error) {
	i := schema.IndexOf(p.field)
	if i < 0 || i >= len(r) {
		return 0, fmt.Errorf("%w: partitioning field %q not found", rferrors.ErrInvalidConfiguration, p.field)
	}
	v := keyValue(r[i])
	return checkRange(int(v%uint64(p.n)), p.n)
}

type hashPartitioner struct {
	fields []string
	n      int
}

func newHashPartitioner(meta Meta) (Partitioner, error) {
	if len(meta.Fields) == 0 {
		return nil, rferrors.NewValidationError("partition", "fields", meta.Fields, "hash partitioner needs at least one field")
	}
	return &hashPartitioner{fields: meta.Fields, n: len(meta.Schema.PartitionIDs)}, nil
}

func (p *hashPartitioner) NrPartitions() int { return p.n }

func (p *hashPartitioner) PartitionOf(schema *row.Schema, r row.Row) (int, error) {
	h := xxh3.New()
	var buf [8]byte
	for _, f := range p.fields {
		i := schema.IndexOf(f)
		if i < 0 || i >= len(r) {
			return 0, fmt.Errorf("%w: partitioning field %q not found", rferrors.ErrInvalidConfiguration, f)
		}
		binary.LittleEndian.PutUint64(buf[:], keyValue(r[i]))
		_, _ = h.Write(buf[:])
	}
	return checkRange(int(h.Sum64()%uint64(p.n)), p.n)
}

// keyValue maps a field value onto an unsigned key. Negative integers use
// their absolute value so that -3 and 3 land in the same partition.
func keyValue(v any) uint64 {
	switch x := v.(type) {
	case nil:
		return 0
	case int64:
		return abs(x)
	case int:
		return abs(int64(x))
	case int32:
		return abs(int64(x))
	case float64:
		return abs(int64(x))
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return xxh3.HashString(x)
	case []byte:
		return xxh3.Hash(x)
	case time.Time:
		return abs(x.UnixMilli())
	default:
		return xxh3.HashString(fmt.Sprint(x))
	}
}

func abs(v int64) uint64 {
	if v == math.MinInt64 {
		return uint64(math.MaxInt64) + 1
	}
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
