package cluster

import (
	"sort"
	"strings"
	"sync"
)

// Entry is one row of the distribution table.
type Entry struct {
	Server    string `json:"server"`
	Schema    string `json:"schema"`
	Copy      int    `json:"copy"`
	Partition int    `json:"partition"`
}

type key struct {
	server string
	schema string
	copyNr int
}

func makeKey(server, schema string, copyNr int) key {
	return key{server: strings.ToLower(server), schema: strings.ToLower(schema), copyNr: copyNr}
}

// DistributionTable maps slave stage copies to partition numbers.
type DistributionTable struct {
	mu      sync.RWMutex
	entries map[key]Entry
}

// NewDistributionTable builds a table from entries.
func NewDistributionTable(entries ...Entry) *DistributionTable {
	t := &DistributionTable{entries: make(map[key]Entry, len(entries))}
	for _, e := range entries {
		t.Set(e.Server, e.Schema, e.Copy, e.Partition)
	}
	return t
}

// Set records that copy copyNr on server serves partition nr of schema.
func (t *DistributionTable) Set(server, schema string, copyNr, nr int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[makeKey(server, schema, copyNr)] = Entry{Server: server, Schema: schema, Copy: copyNr, Partition: nr}
}

// Partition returns the partition number for the triple, or -1 when the
// table has no entry for it. Server and schema match case-insensitively.
func (t *DistributionTable) Partition(server, schema string, copyNr int) int {
	if t == nil {
		return -1
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[makeKey(server, schema, copyNr)]
	if !ok {
		return -1
	}
	return e.Partition
}

// Len returns the number of entries. A nil table is empty.
func (t *DistributionTable) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Entries returns the entries sorted by server, schema and copy.
func (t *DistributionTable) Entries() []Entry {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Server != b.Server {
			return a.Server < b.Server
		}
		if a.Schema != b.Schema {
			return a.Schema < b.Schema
		}
		return a.Copy < b.Copy
	})
	return out
}
