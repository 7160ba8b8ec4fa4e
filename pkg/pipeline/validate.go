package pipeline

import (
	"fmt"
	"strings"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/partition"
)

// IssueSeverity represents the severity of a definition issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into
// the definition, such as "stages[2].errorHandling.target".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Issues is the result of Validate.
type Issues []Issue

// HasErrors reports whether any issue has error severity.
func (is Issues) HasErrors() bool {
	for _, i := range is {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err folds error-severity issues into one configuration error, or nil.
func (is Issues) Err() error {
	var msgs []string
	for _, i := range is {
		if i.Severity == SeverityError {
			msgs = append(msgs, i.Path+": "+i.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", rferrors.ErrInvalidConfiguration, strings.Join(msgs, "; "))
}

// Validate performs static checks over the definition without mutating it.
func (d *Definition) Validate() Issues {
	var issues Issues
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(d.Name) == "" {
		add(SeverityWarning, "name", "pipeline has no name; runs are logged without one")
	}
	if d.BufferSize < 0 {
		add(SeverityError, "bufferSize", "must not be negative")
	}
	if len(d.Stages) == 0 {
		add(SeverityError, "stages", "pipeline has no stages")
	}

	seen := make(map[string]bool)
	for i, s := range d.Stages {
		path := fmt.Sprintf("stages[%d]", i)
		if strings.TrimSpace(s.Name) == "" {
			add(SeverityError, path+".name", "must not be empty")
		} else if seen[s.Name] {
			add(SeverityError, path+".name", "duplicate stage name %q", s.Name)
		}
		seen[s.Name] = true

		if strings.TrimSpace(s.Type) == "" {
			add(SeverityError, path+".type", "must not be empty")
		}
		if s.Copies < 0 {
			add(SeverityError, path+".copies", "must not be negative")
		}
		if s.RowsPerSecond < 0 {
			add(SeverityError, path+".rowsPerSecond", "must not be negative")
		}
		if s.RowDistribution != "" && !s.Distribute {
			add(SeverityWarning, path+".rowDistribution", "ignored because distribute is false")
		}
		issues = append(issues, validatePartitioning(path+".partitioning", s)...)
		issues = append(issues, d.validateErrorHandling(path+".errorHandling", s)...)
		for j, r := range s.RemoteInputs {
			if strings.TrimSpace(r.Addr) == "" {
				add(SeverityError, fmt.Sprintf("%s.remoteInputs[%d].addr", path, j), "must not be empty")
			}
		}
		for j, r := range s.RemoteOutputs {
			if strings.TrimSpace(r.Addr) == "" {
				add(SeverityError, fmt.Sprintf("%s.remoteOutputs[%d].addr", path, j), "must not be empty")
			}
		}
	}

	hops := make(map[Hop]bool)
	for i, h := range d.Hops {
		path := fmt.Sprintf("hops[%d]", i)
		if key := (Hop{From: h.From, To: h.To}); hops[key] {
			add(SeverityError, path, "duplicate hop %q -> %q", h.From, h.To)
		} else {
			hops[key] = true
		}
		if _, ok := d.FindStage(h.From); !ok {
			add(SeverityError, path+".from", "unknown stage %q", h.From)
		}
		if _, ok := d.FindStage(h.To); !ok {
			add(SeverityError, path+".to", "unknown stage %q", h.To)
		}
		if h.From == h.To {
			add(SeverityError, path, "stage %q cannot feed itself", h.From)
		}
	}
	if !issues.HasErrors() && d.HasLoop() {
		add(SeverityError, "hops", "pipeline contains a loop")
	}
	return issues
}

func validatePartitioning(path string, s StageMeta) Issues {
	var issues Issues
	p := s.Partitioning
	if !p.IsPartitioned() {
		return nil
	}
	if len(p.Schema.PartitionIDs) == 0 {
		issues = append(issues, Issue{SeverityError, path + ".schema.partitionIds", "partitioned stage needs at least one partition"})
	}
	if s.Copies > 0 && s.Copies != len(p.Schema.PartitionIDs) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf("copies=%d ignored; one copy runs per partition", s.Copies)})
	}
	if p.Method == partition.Special && len(p.Fields) == 0 && p.PartitionerID == "" {
		issues = append(issues, Issue{SeverityError, path + ".fields", "special partitioning needs a partitioner or key fields"})
	}
	return issues
}

func (d *Definition) validateErrorHandling(path string, s StageMeta) Issues {
	eh := s.ErrorHandling
	if eh == nil {
		return nil
	}
	var issues Issues
	target, ok := d.FindStage(eh.Target)
	switch {
	case !ok:
		issues = append(issues, Issue{SeverityError, path + ".target", fmt.Sprintf("unknown stage %q", eh.Target)})
	default:
		linked := false
		for _, n := range d.NextStages(s.Name) {
			if n == target {
				linked = true
			}
		}
		if !linked {
			issues = append(issues, Issue{SeverityError, path + ".target", fmt.Sprintf("no enabled hop from %q to %q", s.Name, eh.Target)})
		}
	}
	if eh.MaxErrors < 0 {
		issues = append(issues, Issue{SeverityError, path + ".maxErrors", "must not be negative"})
	}
	if eh.MaxPercentErrors < 0 || eh.MaxPercentErrors > 100 {
		issues = append(issues, Issue{SeverityError, path + ".maxPercentErrors", "must be between 0 and 100"})
	}
	if eh.MinPercentRows < 0 {
		issues = append(issues, Issue{SeverityError, path + ".minPercentRows", "must not be negative"})
	}
	return issues
}
