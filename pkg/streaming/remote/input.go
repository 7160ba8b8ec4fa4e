package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

// InputConfig configures the connecting side of a remote stream.
type InputConfig struct {
	// Addr is the host:port of the peer Output.
	Addr string

	// ConnectTimeout bounds the total time spent dialing.
	ConnectTimeout time.Duration

	// RetryInterval is the pause between dial attempts.
	RetryInterval time.Duration

	// PollInterval bounds each wait for space on the local channel.
	PollInterval time.Duration

	Logger *slog.Logger
}

// DefaultInputConfig returns defaults for addr.
func DefaultInputConfig(addr string) InputConfig {
	return InputConfig{
		Addr:           addr,
		ConnectTimeout: 30 * time.Second,
		RetryInterval:  100 * time.Millisecond,
		PollInterval:   time.Millisecond,
	}
}

// Input decodes a remote row stream into its local channel.
type Input struct {
	config InputConfig
	ch     channel.RowChannel

	mu        sync.Mutex
	conn      net.Conn
	err       error
	connected bool

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInput creates an Input filling ch.
func NewInput(ch channel.RowChannel, config InputConfig) *Input {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Millisecond
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Input{config: config, ch: ch, stop: make(chan struct{})}
}

// Channel returns the local channel the consumer reads from.
func (in *Input) Channel() channel.RowChannel {
	return in.ch
}

// Connect dials the peer, retrying until ConnectTimeout, and starts the
// reader. Calling Connect again after success is a no-op.
func (in *Input) Connect(ctx context.Context) error {
	in.mu.Lock()
	if in.connected {
		in.mu.Unlock()
		return nil
	}
	in.mu.Unlock()

	if in.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.config.ConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	var lastErr error
	for {
		conn, err := d.DialContext(ctx, "tcp", in.config.Addr)
		if err == nil {
			in.mu.Lock()
			in.conn = conn
			in.connected = true
			in.mu.Unlock()
			in.wg.Add(1)
			go in.pump(conn)
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return rferrors.NewOperationError("remote", "Connect", lastErr).WithContext(in.config.Addr)
		case <-in.stop:
			return rferrors.ErrStopped
		case <-time.After(in.config.RetryInterval):
		}
	}
}

func (in *Input) pump(conn net.Conn) {
	defer in.wg.Done()
	defer in.ch.MarkDone()

	dec := NewDecoder(conn)
	for {
		kind, r, err := dec.Next()
		if err != nil {
			if in.stopping() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("stream closed before done frame: %w", io.ErrUnexpectedEOF)
			}
			in.fail(rferrors.NewOperationError("remote", "Read", err).WithContext(in.config.Addr))
			return
		}
		switch kind {
		case FrameDone:
			return
		case FrameRow:
			for {
				err := in.ch.PutWait(dec.Schema(), r, in.config.PollInterval)
				if err == nil {
					break
				}
				if !errors.Is(err, rferrors.ErrTimeout) || in.stopping() {
					return
				}
			}
		}
	}
}

func (in *Input) fail(err error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.err == nil {
		in.err = err
	}
}

func (in *Input) stopping() bool {
	select {
	case <-in.stop:
		return true
	default:
		return false
	}
}

// Err returns the stream error, if any.
func (in *Input) Err() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.err
}

// Close stops the reader and closes the connection. Safe to call more than once.
func (in *Input) Close() {
	in.closeOnce.Do(func() {
		close(in.stop)
		in.mu.Lock()
		conn := in.conn
		in.mu.Unlock()
		if conn != nil {
			if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				in.config.Logger.Warn("closing remote input connection", "addr", in.config.Addr, "error", err)
			}
		}
		in.wg.Wait()
	})
}
