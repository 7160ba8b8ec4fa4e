package errorrate

import (
	"errors"
	"testing"

	"github.com/vnykmshr/rowflow/internal/testutil"
	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
)

func TestAbsoluteLimitBreachesOnNextRejection(t *testing.T) {
	const maxErrors = 5
	gov := New(Config{MaxErrors: maxErrors})

	for rejected := int64(1); rejected <= maxErrors; rejected++ {
		testutil.AssertNoError(t, gov.Check(100, rejected))
	}

	err := gov.Check(100, maxErrors+1)
	if !errors.Is(err, rferrors.ErrRateExceeded) {
		t.Fatalf("expected ErrRateExceeded, got %v", err)
	}
	var breach *BreachError
	if !errors.As(err, &breach) {
		t.Fatalf("expected *BreachError, got %T", err)
	}
	testutil.AssertEqual(t, breach.Limit, LimitAbsolute)
	testutil.AssertEqual(t, breach.Rejected, int64(maxErrors+1))
	testutil.AssertEqual(t, rferrors.CategoryOf(err), rferrors.RateExceeded)
}

func TestPercentLimit(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		read     int64
		rejected int64
		breach   bool
	}{
		{"below threshold", Config{MaxPercentErrors: 10}, 100, 10, false},
		{"above threshold", Config{MaxPercentErrors: 10}, 100, 11, true},
		{"ceil rounds up", Config{MaxPercentErrors: 10}, 1000, 101, true},
		{"min rows not reached", Config{MaxPercentErrors: 10, MinPercentRows: 500}, 100, 50, false},
		{"min rows reached", Config{MaxPercentErrors: 10, MinPercentRows: 100}, 100, 50, true},
		{"nothing read", Config{MaxPercentErrors: 50}, 0, 1, true},
		{"disabled", Config{}, 10, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.cfg).Check(tt.read, tt.rejected)
			testutil.AssertEqual(t, err != nil, tt.breach)
			if tt.breach {
				var breach *BreachError
				if !errors.As(err, &breach) || breach.Limit != LimitPercent {
					t.Fatalf("expected percent breach, got %v", err)
				}
			}
		})
	}
}

func TestPercent(t *testing.T) {
	testutil.AssertEqual(t, Percent(0, 100), 0)
	testutil.AssertEqual(t, Percent(1, 3), 34)
	testutil.AssertEqual(t, Percent(1, 100), 1)
	testutil.AssertEqual(t, Percent(3, 3), 100)
	testutil.AssertEqual(t, Percent(1, 0), 100)
}

func TestConfigValidate(t *testing.T) {
	testutil.AssertNoError(t, Config{MaxErrors: 1, MaxPercentErrors: 10}.Validate())
	testutil.AssertEqual(t, rferrors.IsValidationError(Config{MaxErrors: -1}.Validate()), true)
	testutil.AssertEqual(t, rferrors.IsValidationError(Config{MaxPercentErrors: 101}.Validate()), true)
	testutil.AssertEqual(t, Config{}.Enabled(), false)
	testutil.AssertEqual(t, Config{MaxPercentErrors: 1}.Enabled(), true)
}

func TestNilGovernor(t *testing.T) {
	var gov *Governor
	testutil.AssertNoError(t, gov.Check(1, 1000))
}
