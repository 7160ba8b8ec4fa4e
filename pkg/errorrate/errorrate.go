package errorrate

import (
	"fmt"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/common/validation"
)

// Config holds the rejection thresholds of one stage.
type Config struct {
	// MaxErrors is the largest tolerated rejected count. Zero disables it.
	MaxErrors int64

	// MaxPercentErrors is the largest tolerated rejected percentage of
	// rows read. Zero disables it.
	MaxPercentErrors int

	// MinPercentRows is the number of rows that must be read before the
	// percentage check applies. Zero applies it from the first rejection.
	MinPercentRows int64
}

// Validate reports invalid thresholds.
func (c Config) Validate() error {
	if err := validation.ValidateNonNegative("errorrate", "MaxErrors", c.MaxErrors); err != nil {
		return err
	}
	if err := validation.ValidatePercent("errorrate", "MaxPercentErrors", c.MaxPercentErrors); err != nil {
		return err
	}
	return validation.ValidateNonNegative("errorrate", "MinPercentRows", c.MinPercentRows)
}

// Enabled reports whether any threshold is set.
func (c Config) Enabled() bool {
	return c.MaxErrors > 0 || c.MaxPercentErrors > 0
}

// Limit names the threshold that was breached.
type Limit int

const (
	LimitAbsolute Limit = iota
	LimitPercent
)

func (l Limit) String() string {
	if l == LimitPercent {
		return "percent"
	}
	return "absolute"
}

// BreachError describes a breached threshold. It wraps ErrRateExceeded.
type BreachError struct {
	Limit    Limit
	Rejected int64
	Read     int64
	Percent  int
	Max      int64
}

func (e *BreachError) Error() string {
	if e.Limit == LimitPercent {
		return fmt.Sprintf("rejected %d%% of %d rows read, maximum is %d%%", e.Percent, e.Read, e.Max)
	}
	return fmt.Sprintf("rejected %d rows, maximum is %d", e.Rejected, e.Max)
}

func (e *BreachError) Unwrap() error {
	return rferrors.ErrRateExceeded
}

// Governor checks rejection counts against a Config.
type Governor struct {
	cfg Config
}

// New returns a Governor for cfg.
func New(cfg Config) *Governor {
	return &Governor{cfg: cfg}
}

// Config returns the thresholds the governor checks.
func (g *Governor) Config() Config {
	return g.cfg
}

// Check returns a *BreachError when rejected exceeds a threshold.
func (g *Governor) Check(read, rejected int64) error {
	if g == nil {
		return nil
	}
	if g.cfg.MaxErrors > 0 && rejected > g.cfg.MaxErrors {
		return &BreachError{Limit: LimitAbsolute, Rejected: rejected, Read: read, Max: g.cfg.MaxErrors}
	}
	if g.cfg.MaxPercentErrors > 0 && rejected > 0 &&
		(g.cfg.MinPercentRows <= 0 || read >= g.cfg.MinPercentRows) {
		pct := Percent(rejected, read)
		if pct > g.cfg.MaxPercentErrors {
			return &BreachError{
				Limit:    LimitPercent,
				Rejected: rejected,
				Read:     read,
				Percent:  pct,
				Max:      int64(g.cfg.MaxPercentErrors),
			}
		}
	}
	return nil
}

// Percent returns ceil(100*rejected/read). With nothing read every
// rejection counts as 100 percent.
func Percent(rejected, read int64) int {
	if rejected <= 0 {
		return 0
	}
	if read <= 0 {
		return 100
	}
	return int((100*rejected + read - 1) / read)
}
