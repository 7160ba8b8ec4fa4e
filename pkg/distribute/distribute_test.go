package distribute

import (
	"testing"

	"github.com/vnykmshr/rowflow/internal/testutil"
	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

type recordingOutputs struct {
	outputs []channel.RowChannel
	sent    []int
}

func newRecordingOutputs(n int) *recordingOutputs {
	o := &recordingOutputs{}
	for i := 0; i < n; i++ {
		o.outputs = append(o.outputs, channel.New(10, channel.Endpoint{Stage: "src"}, channel.Endpoint{Stage: "dst", Copy: i}))
	}
	return o
}

func (o *recordingOutputs) OutputChannels() []channel.RowChannel { return o.outputs }

func (o *recordingOutputs) PutRowTo(schema *row.Schema, r row.Row, ch channel.RowChannel) error {
	o.sent = append(o.sent, ch.Destination().Copy)
	return ch.PutWait(schema, r, 0)
}

func TestRoundRobinCyclesOutputs(t *testing.T) {
	out := newRecordingOutputs(3)
	d := &RoundRobin{}

	for i := 0; i < 7; i++ {
		testutil.AssertNoError(t, d.Distribute(nil, row.Row{i}, out))
	}

	want := []int{0, 1, 2, 0, 1, 2, 0}
	for i, w := range want {
		testutil.AssertEqual(t, out.sent[i], w)
	}
}

func TestRoundRobinSurvivesShrinkingOutputs(t *testing.T) {
	out := newRecordingOutputs(3)
	d := &RoundRobin{}
	_ = d.Distribute(nil, row.Row{1}, out)
	_ = d.Distribute(nil, row.Row{2}, out)
	_ = d.Distribute(nil, row.Row{3}, out)

	out.outputs = out.outputs[:1]
	testutil.AssertNoError(t, d.Distribute(nil, row.Row{4}, out))
	testutil.AssertEqual(t, out.sent[3], 0)
}

func TestLoadBalancePicksLeastOccupied(t *testing.T) {
	out := newRecordingOutputs(3)
	_ = out.outputs[0].PutWait(nil, row.Row{"x"}, 0)
	_ = out.outputs[0].PutWait(nil, row.Row{"y"}, 0)
	_ = out.outputs[2].PutWait(nil, row.Row{"z"}, 0)

	testutil.AssertNoError(t, LoadBalance{}.Distribute(nil, row.Row{"r"}, out))
	testutil.AssertEqual(t, out.sent[0], 1)

	testutil.AssertNoError(t, LoadBalance{}.Distribute(nil, row.Row{"s"}, out))
	testutil.AssertEqual(t, out.sent[1], 1)
}

func TestDistributeWithoutOutputs(t *testing.T) {
	out := newRecordingOutputs(0)
	testutil.AssertNoError(t, (&RoundRobin{}).Distribute(nil, row.Row{1}, out))
	testutil.AssertNoError(t, LoadBalance{}.Distribute(nil, row.Row{1}, out))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	d, err := reg.New("")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, d.Code(), "round-robin")

	d, err = reg.New("Load-Balance")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, d.Code(), "load-balance")

	_, err = reg.New("weighted")
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, rferrors.IsValidationError(err), true)

	a, _ := reg.New("round-robin")
	b, _ := reg.New("round-robin")
	if a == b {
		t.Error("each call should return an independent distributor")
	}
}
