package trans

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// startMonitor schedules the periodic status refresh.
func (t *Trans) startMonitor() error {
	if t.cfg.MonitorInterval <= 0 {
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", t.cfg.MonitorInterval), t.observe); err != nil {
		return err
	}
	t.mu.Lock()
	t.monitor = c
	t.mu.Unlock()
	c.Start()
	return nil
}

func (t *Trans) stopMonitor() {
	t.mu.Lock()
	c := t.monitor
	t.monitor = nil
	t.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// observe refreshes the channel gauges and logs one status line.
func (t *Trans) observe() {
	buffered := 0
	for _, ch := range t.dispatcher.Registry().All() {
		t.cfg.Metrics.ObserveChannel(ch.Name(), ch.Cap(), ch.Len())
		buffered += ch.Len()
	}
	t.cfg.Metrics.ActiveCopies(t.def.Name, int(t.active.Load()))

	var read, written, rejected int64
	for _, c := range t.Copies() {
		s := c.Counters().Snapshot()
		read += s.Read
		written += s.Written
		rejected += s.Rejected
	}
	t.log.Info("run status",
		"state", t.State().String(),
		"active", t.active.Load(),
		"buffered", buffered,
		"read", read,
		"written", written,
		"rejected", rejected)
}
