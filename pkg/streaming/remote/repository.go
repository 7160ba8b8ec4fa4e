package remote

import (
	"errors"
	"log/slog"
	"net"
	"sync"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
)

// SocketRepository tracks the listening sockets opened for remote outputs
// so that each one is released exactly once.
type SocketRepository struct {
	mu        sync.Mutex
	listeners map[string]net.Listener
	logger    *slog.Logger
}

// NewSocketRepository creates an empty repository. A nil logger uses slog.Default.
func NewSocketRepository(logger *slog.Logger) *SocketRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketRepository{
		listeners: make(map[string]net.Listener),
		logger:    logger,
	}
}

// Open listens on addr. The returned listener is keyed by its resolved
// address, which callers pass to Release.
func (r *SocketRepository) Open(addr string) (net.Listener, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[addr]; ok {
		return nil, rferrors.NewOperationError("remote", "Open", errors.New("address already in use by this run")).
			WithContext(addr)
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, rferrors.NewOperationError("remote", "Open", err).WithContext(addr)
	}
	r.listeners[l.Addr().String()] = l
	return l, nil
}

// Release closes the listener registered under addr. Unknown addresses and
// close failures are ignored; failures are logged.
func (r *SocketRepository) Release(addr string) {
	r.mu.Lock()
	l, ok := r.listeners[addr]
	delete(r.listeners, addr)
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		r.logger.Warn("closing server socket", "addr", addr, "error", err)
	}
}

// ReleaseAll closes every listener still registered.
func (r *SocketRepository) ReleaseAll() {
	r.mu.Lock()
	addrs := make([]string, 0, len(r.listeners))
	for a := range r.listeners {
		addrs = append(addrs, a)
	}
	r.mu.Unlock()

	for _, a := range addrs {
		r.Release(a)
	}
}

// Len returns the number of open listeners.
func (r *SocketRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}
