package dispatch

import (
	"errors"
	"testing"

	"github.com/vnykmshr/rowflow/internal/testutil"
	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/partition"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
)

func special(ids ...string) partition.Meta {
	return partition.Meta{
		Method:        partition.Special,
		Schema:        partition.Schema{Name: "p", PartitionIDs: ids},
		PartitionerID: "mod",
		Fields:        []string{"id"},
	}
}

func twoStage(p, c int) *pipeline.Definition {
	return &pipeline.Definition{
		Name: "pair",
		Stages: []pipeline.StageMeta{
			{Name: "prev", Type: "dummy", Copies: p},
			{Name: "next", Type: "dummy", Copies: c},
		},
		Hops: []pipeline.Hop{{From: "prev", To: "next"}},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		p, c   int
		repart bool
		want   Pattern
	}{
		{1, 1, false, OneToOne},
		{1, 1, true, OneToOne},
		{1, 4, false, OneToMany},
		{4, 1, false, ManyToOne},
		{3, 3, false, ManyToMany},
		{3, 3, true, CrossProduct},
		{2, 3, false, CrossProduct},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, Classify(tt.p, tt.c, tt.repart), tt.want)
	}
	testutil.AssertEqual(t, CrossProduct.String(), "N:M")
}

func TestAllocateChannelCounts(t *testing.T) {
	tests := []struct {
		name string
		p, c int
		want int
	}{
		{"1:1", 1, 1, 1},
		{"1:N", 1, 3, 3},
		{"N:1", 3, 1, 3},
		{"N:N", 3, 3, 3},
		{"N:M", 2, 3, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(twoStage(tt.p, tt.c))
			testutil.AssertNoError(t, d.Allocate())
			testutil.AssertEqual(t, d.Registry().Len(), tt.want)
		})
	}
}

func TestRepartitioningForcesCrossProduct(t *testing.T) {
	def := twoStage(3, 0)
	def.Stages[1].Partitioning = special("A", "B", "C")

	d := New(def)
	testutil.AssertNoError(t, d.Allocate())
	testutil.AssertEqual(t, d.Registry().Len(), 9)
	testutil.AssertEqual(t, Repartitioning(&def.Stages[0], &def.Stages[1]), partition.Special)

	// identically partitioned stages keep swim lanes
	def.Stages[0].Partitioning = special("A", "B", "C")
	testutil.AssertEqual(t, Repartitioning(&def.Stages[0], &def.Stages[1]), partition.None)
	d = New(def)
	testutil.AssertNoError(t, d.Allocate())
	testutil.AssertEqual(t, d.Registry().Len(), 3)
}

func TestWireSwimLanes(t *testing.T) {
	d := New(twoStage(2, 2))
	testutil.AssertNoError(t, d.Allocate())

	in, out, err := d.Wire("next", 1)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(out), 0)
	testutil.AssertEqual(t, len(in), 1)
	testutil.AssertEqual(t, in[0].Origin().Copy, 1)

	_, out, err = d.Wire("prev", 0)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(out), 1)
	testutil.AssertEqual(t, out[0].Destination().Copy, 0)
}

func TestWireCrossProduct(t *testing.T) {
	d := New(twoStage(2, 3))
	testutil.AssertNoError(t, d.Allocate())

	in, _, err := d.Wire("next", 2)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(in), 2)
	testutil.AssertEqual(t, in[0].Origin().Copy, 0)
	testutil.AssertEqual(t, in[1].Origin().Copy, 1)

	_, out, err := d.Wire("prev", 1)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(out), 3)
	for i, ch := range out {
		testutil.AssertEqual(t, ch.Origin().Copy, 1)
		testutil.AssertEqual(t, ch.Destination().Copy, i)
	}
}

func TestOutputOrderFollowsHopsThenCopies(t *testing.T) {
	def := &pipeline.Definition{
		Stages: []pipeline.StageMeta{
			{Name: "src", Type: "dummy"},
			{Name: "left", Type: "dummy", Partitioning: special("A", "B")},
			{Name: "right", Type: "dummy", Partitioning: special("A", "B")},
		},
		Hops: []pipeline.Hop{{From: "src", To: "left"}, {From: "src", To: "right"}},
	}
	d := New(def)
	testutil.AssertNoError(t, d.Allocate())

	_, out, err := d.Wire("src", 0)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(out), 4)

	// partition nr n of next stage i sits at n + i*partCount
	for i, stage := range []string{"left", "right"} {
		for _, nr := range []int{0, 1} {
			idx := partition.LocalTargets(nr, 2, 2)[i]
			testutil.AssertEqual(t, out[idx].Destination().Stage, stage)
			testutil.AssertEqual(t, out[idx].Destination().Copy, nr)
		}
	}
}

func TestWireManyToOneInputs(t *testing.T) {
	d := New(twoStage(3, 1))
	testutil.AssertNoError(t, d.Allocate())

	in, _, err := d.Wire("next", 0)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(in), 3)
}

func TestWireMissingChannel(t *testing.T) {
	d := New(twoStage(1, 1))

	_, _, err := d.Wire("next", 0)
	if !errors.Is(err, rferrors.ErrMissingChannel) {
		t.Fatalf("expected ErrMissingChannel, got %v", err)
	}
	testutil.AssertEqual(t, rferrors.CategoryOf(err), rferrors.Configuration)

	_, _, err = d.Wire("nowhere", 0)
	testutil.AssertError(t, err)
}

func TestVirtualStagesTolerateMissingChannels(t *testing.T) {
	def := twoStage(1, 1)
	def.Stages[1].Virtual = true

	d := New(def)
	testutil.AssertNoError(t, d.Allocate())
	testutil.AssertEqual(t, d.Registry().Len(), 0)

	_, out, err := d.Wire("prev", 0)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(out), 0)
}

func TestRegistryKeepsFirstChannel(t *testing.T) {
	d := New(twoStage(1, 1))
	testutil.AssertNoError(t, d.Allocate())
	first := d.Registry().All()[0]

	k := Key{From: "prev", To: "next"}
	testutil.AssertEqual(t, d.Registry().Add(k, nil), false)
	got, ok := d.Registry().Get(k)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, got, first)
	testutil.AssertEqual(t, k.String(), "prev.0 - next.0")
}
