package remote

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

// OutputConfig configures the listening side of a remote stream.
type OutputConfig struct {
	// Addr is the host:port to listen on. Port 0 picks a free port.
	Addr string

	// AcceptTimeout bounds the wait for the peer to connect.
	AcceptTimeout time.Duration

	// PollInterval is how long the pump waits for rows before flushing.
	PollInterval time.Duration

	Logger *slog.Logger
}

// DefaultOutputConfig returns defaults for addr.
func DefaultOutputConfig(addr string) OutputConfig {
	return OutputConfig{
		Addr:          addr,
		AcceptTimeout: 2 * time.Minute,
		PollInterval:  time.Millisecond,
	}
}

// Output streams the rows put on its local channel to one remote peer.
type Output struct {
	config OutputConfig
	ch     channel.RowChannel
	repo   *SocketRepository

	listener net.Listener
	addr     string

	mu   sync.Mutex
	conn net.Conn
	err  error

	started   bool
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewOutput creates an Output draining ch. Open must be called before Start.
func NewOutput(ch channel.RowChannel, repo *SocketRepository, config OutputConfig) *Output {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Output{
		config: config,
		ch:     ch,
		repo:   repo,
		stop:   make(chan struct{}),
	}
}

// Open reserves the listening socket.
func (o *Output) Open() error {
	l, err := o.repo.Open(o.config.Addr)
	if err != nil {
		return err
	}
	o.listener = l
	o.addr = l.Addr().String()
	return nil
}

// Addr returns the resolved listening address.
func (o *Output) Addr() string {
	return o.addr
}

// Channel returns the local channel the producer writes to.
func (o *Output) Channel() channel.RowChannel {
	return o.ch
}

// Start launches the pump. onError is called once if streaming fails.
func (o *Output) Start(onError func(error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.listener == nil {
		return
	}
	o.started = true
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.pump(); err != nil {
			o.mu.Lock()
			o.err = err
			o.mu.Unlock()
			if onError != nil {
				onError(err)
			}
		}
	}()
}

// Err returns the streaming error, if any.
func (o *Output) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Output) stopping() bool {
	select {
	case <-o.stop:
		return true
	default:
		return false
	}
}

func (o *Output) pump() error {
	if tl, ok := o.listener.(*net.TCPListener); ok && o.config.AcceptTimeout > 0 {
		_ = tl.SetDeadline(time.Now().Add(o.config.AcceptTimeout))
	}
	conn, err := o.listener.Accept()
	if err != nil {
		if o.stopping() {
			return nil
		}
		return rferrors.NewOperationError("remote", "Accept", err).WithContext(o.addr)
	}
	o.mu.Lock()
	o.conn = conn
	o.mu.Unlock()
	if o.stopping() {
		return nil
	}

	enc := NewEncoder(conn)
	schemaSent := false
	for {
		r, ok := o.ch.Get()
		if !ok {
			if err := enc.Flush(); err != nil {
				return o.writeErr(err)
			}
			if o.ch.IsDone() {
				if r, ok = o.ch.Get(); !ok {
					break
				}
			} else if r, ok = o.ch.GetWait(o.config.PollInterval); !ok {
				if o.stopping() {
					return nil
				}
				continue
			}
		}
		if !schemaSent {
			if err := enc.WriteSchema(o.ch.Schema()); err != nil {
				return o.writeErr(err)
			}
			schemaSent = true
		}
		if err := enc.WriteRow(r); err != nil {
			return o.writeErr(err)
		}
	}

	if !schemaSent && o.ch.Schema() != nil {
		if err := enc.WriteSchema(o.ch.Schema()); err != nil {
			return o.writeErr(err)
		}
	}
	if err := enc.WriteDone(); err != nil {
		return o.writeErr(err)
	}
	return nil
}

func (o *Output) writeErr(err error) error {
	if o.stopping() {
		return nil
	}
	return rferrors.NewOperationError("remote", "Write", err).WithContext(o.addr)
}

// Wait blocks until the pump has sent the done frame or failed.
func (o *Output) Wait() error {
	o.wg.Wait()
	return o.Err()
}

// Close aborts the pump if it is still running, then releases the
// connection and the listening socket. Safe to call more than once.
func (o *Output) Close() {
	o.closeOnce.Do(func() {
		close(o.stop)
		if o.addr != "" {
			o.repo.Release(o.addr)
		}
		o.mu.Lock()
		conn := o.conn
		o.mu.Unlock()
		if conn != nil {
			if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				o.config.Logger.Warn("closing remote output connection", "addr", o.addr, "error", err)
			}
		}
		o.wg.Wait()
		o.mu.Lock()
		if o.conn != nil && o.conn != conn {
			_ = o.conn.Close()
		}
		o.mu.Unlock()
	})
}
