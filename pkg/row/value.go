package row

import "strings"

// ValueType is the logical type of a field.
type ValueType int

const (
	// TypeNone marks an undefined type; rows carrying it are rejected on put.
	TypeNone ValueType = iota
	TypeString
	TypeInteger
	TypeNumber
	TypeBoolean
	TypeDate
	TypeBinary
)

var typeNames = [...]string{"None", "String", "Integer", "Number", "Boolean", "Date", "Binary"}

func (t ValueType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "Unknown"
	}
	return typeNames[t]
}

// ParseValueType maps a case-insensitive type name to its ValueType.
func ParseValueType(name string) (ValueType, bool) {
	for i, n := range typeNames {
		if strings.EqualFold(n, name) {
			return ValueType(i), true
		}
	}
	return TypeNone, false
}

// StorageType describes how a value is held in memory.
type StorageType int

const (
	StorageNormal StorageType = iota
	StorageBinaryString
	StorageIndexed
)

func (s StorageType) String() string {
	switch s {
	case StorageNormal:
		return "normal"
	case StorageBinaryString:
		return "binary-string"
	case StorageIndexed:
		return "indexed"
	}
	return "unknown"
}

// ValueMeta describes one field position.
type ValueMeta struct {
	Name      string      `json:"name"`
	Type      ValueType   `json:"type"`
	Storage   StorageType `json:"storage,omitempty"`
	Length    int         `json:"length,omitempty"`
	Precision int         `json:"precision,omitempty"`
}

// Field is shorthand for a ValueMeta with normal storage.
func Field(name string, t ValueType) ValueMeta {
	return ValueMeta{Name: name, Type: t}
}
