package pipeline

// FindStage returns the stage with the given name.
func (d *Definition) FindStage(name string) (*StageMeta, bool) {
	for i := range d.Stages {
		if d.Stages[i].Name == name {
			return &d.Stages[i], true
		}
	}
	return nil, false
}

// NextStages returns the stages reached by enabled hops from name, in hop order.
func (d *Definition) NextStages(name string) []*StageMeta {
	var next []*StageMeta
	for _, h := range d.Hops {
		if h.Disabled || h.From != name {
			continue
		}
		if s, ok := d.FindStage(h.To); ok {
			next = append(next, s)
		}
	}
	return next
}

// PrevStages returns the stages with an enabled hop into name, in hop order.
func (d *Definition) PrevStages(name string) []*StageMeta {
	var prev []*StageMeta
	for _, h := range d.Hops {
		if h.Disabled || h.To != name {
			continue
		}
		if s, ok := d.FindStage(h.From); ok {
			prev = append(prev, s)
		}
	}
	return prev
}

// SourceStages returns the stages without incoming hops.
func (d *Definition) SourceStages() []*StageMeta {
	var src []*StageMeta
	for i := range d.Stages {
		if len(d.PrevStages(d.Stages[i].Name)) == 0 {
			src = append(src, &d.Stages[i])
		}
	}
	return src
}

// IsBefore reports whether downstream is reachable from upstream by
// following enabled hops.
func (d *Definition) IsBefore(upstream, downstream string) bool {
	seen := map[string]bool{upstream: true}
	queue := []string{upstream}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range d.NextStages(cur) {
			if n.Name == downstream {
				return true
			}
			if !seen[n.Name] {
				seen[n.Name] = true
				queue = append(queue, n.Name)
			}
		}
	}
	return false
}

// HasLoop reports whether the enabled hops contain a cycle.
func (d *Definition) HasLoop() bool {
	for _, s := range d.Stages {
		if d.IsBefore(s.Name, s.Name) {
			return true
		}
	}
	return false
}
