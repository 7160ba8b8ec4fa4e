package step

import "sync"

// gate blocks row traffic while a copy is paused.
type gate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func (g *gate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.resume = make(chan struct{})
	}
}

func (g *gate) resumeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.resume)
	}
}

func (g *gate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// wait returns once the gate is open or stop is closed.
func (g *gate) wait(stop <-chan struct{}) {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return
	}
	resume := g.resume
	g.mu.Unlock()

	select {
	case <-resume:
	case <-stop:
	}
}
