package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/vrtctl/internal/observability"
	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrTimeout         = errors.New("session: no correlated reply")
	ErrClosed          = errors.New("session: closed")
	ErrAddressRequired = errors.New("session: destination address required")
	errAttemptTimedOut = errors.New("session: attempt timed out")
)

// PacketConn is the connected datagram endpoint a Session drives.
// *net.UDPConn satisfies it.
type PacketConn interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Reply is the correlated ack datagram of one exchange.
type Reply struct {
	Datagram  []byte
	Header    frame.Header
	Attempts  int
	Discarded int
	Elapsed   time.Duration
}

// Session owns one socket to one controllee. Exchanges on a session are
// serialized; sequence and message id allocation is atomic.
type Session struct {
	conn      PacketConn
	cfg       Config
	remote    string
	seq       *SequenceCounter
	messageID atomic.Uint32
	tracker   *Tracker
	rng       *rand.Rand

	mu        sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open resolves addr and connects a UDP socket to it. A destination without a
// port uses cfg.Port. No datagram is sent.
func Open(ctx context.Context, addr string, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target, err := withPort(addr, cfg.Port)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", target)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", target, err)
	}
	log.Debug().Str("dest", conn.RemoteAddr().String()).Str("local", conn.LocalAddr().String()).Msg("session opened")
	return newSession(conn, cfg, conn.RemoteAddr().String()), nil
}

// NewSession wraps an already connected endpoint.
func NewSession(conn PacketConn, cfg Config) *Session {
	return newSession(conn, cfg.WithDefaults(), "")
}

func newSession(conn PacketConn, cfg Config, remote string) *Session {
	now := time.Now().UnixNano()
	s := &Session{
		conn:    conn,
		cfg:     cfg,
		remote:  remote,
		seq:     NewSequenceCounter(0),
		tracker: NewTracker(),
		rng:     rand.New(rand.NewSource(now)),
	}
	s.messageID.Store(uint32(now))
	return s
}

func withPort(addr string, port int) (string, error) {
	if addr == "" {
		return "", ErrAddressRequired
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr, nil
	}
	return net.JoinHostPort(addr, strconv.Itoa(port)), nil
}

func (s *Session) RemoteAddr() string {
	return s.remote
}

func (s *Session) Config() Config {
	return s.cfg
}

// NextSequence allocates the sequence value for the next control packet.
func (s *Session) NextSequence() protocol.Sequence {
	return s.seq.Next()
}

// NextMessageID allocates a message id word.
func (s *Session) NextMessageID() uint32 {
	return s.messageID.Add(1)
}

// Pending lists exchanges awaiting a reply.
func (s *Session) Pending() []PendingExchange {
	return s.tracker.List()
}

// Exchange sends packet and waits for the ack carrying expected, using the
// session's ack timeout and retry budget.
func (s *Session) Exchange(ctx context.Context, packet []byte, expected protocol.Sequence) (Reply, error) {
	return s.ExchangeWithin(ctx, packet, expected, s.cfg.AckTimeout, s.cfg.MaxRetries)
}

// ExchangeWithin sends packet up to maxRetries+1 times, waiting up to timeout
// after each send. The whole exchange, backoff pauses included, ends within
// timeout*(maxRetries+1): late attempts get a shorter wait. Datagrams that are
// malformed, are not acks or carry another sequence are discarded and the wait
// goes on. Cancelling ctx aborts the wait.
func (s *Session) ExchangeWithin(ctx context.Context, packet []byte, expected protocol.Sequence, timeout time.Duration, maxRetries int) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return Reply{}, ErrClosed
	}
	if timeout <= 0 {
		timeout = s.cfg.AckTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	dl := newDeadlineGuard(s.conn)
	stop := context.AfterFunc(ctx, dl.cancel)
	defer stop()

	start := time.Now()
	budget := start.Add(timeout * time.Duration(maxRetries+1))
	s.tracker.Begin(PendingExchange{Sequence: expected, Destination: s.remote, StartedAt: start})
	defer s.tracker.Finish(expected)

	logger := log.With().Str("dest", s.remote).Uint8("seq", uint8(expected)).Logger()
	buf := make([]byte, s.cfg.ReceiveBuffer)
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if attempt > 1 {
			delay := NextBackoffDelay(s.cfg.Backoff, attempt-1, s.rng)
			if left := time.Until(budget); delay > left {
				delay = max(left, 0)
			}
			logger.Warn().Int("attempt", attempt).Dur("backoff", delay).Msg("no ack, resending")
			if err := sleepCtx(ctx, delay); err != nil {
				return Reply{}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return Reply{}, err
		}

		if _, err := s.conn.Write(packet); err != nil {
			return Reply{}, fmt.Errorf("session: send: %w", err)
		}
		observability.RecordDatagramSent()
		s.tracker.MarkAttempt(expected, time.Now())
		logger.Debug().Int("attempt", attempt).Int("bytes", len(packet)).Msg("control sent")

		until := time.Now().Add(timeout)
		if until.After(budget) {
			until = budget
		}
		datagram, h, err := s.await(ctx, dl, buf, expected, until)
		if err == nil {
			item, _ := s.tracker.Get(expected)
			return Reply{
				Datagram:  datagram,
				Header:    h,
				Attempts:  item.Attempts,
				Discarded: item.Discarded,
				Elapsed:   time.Since(start),
			}, nil
		}
		if !errors.Is(err, errAttemptTimedOut) {
			return Reply{}, err
		}
	}
	return Reply{}, fmt.Errorf("%w: seq=%d after %d sends in %s", ErrTimeout, expected, maxRetries+1, time.Since(start).Round(time.Millisecond))
}

// await reads until a datagram correlates with expected or deadline passes.
func (s *Session) await(ctx context.Context, dl *deadlineGuard, buf []byte, expected protocol.Sequence, deadline time.Time) ([]byte, frame.Header, error) {
	ctxDeadline, hasCtxDeadline := ctx.Deadline()
	if hasCtxDeadline && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, frame.Header{}, err
		}
		if err := dl.set(deadline); err != nil {
			return nil, frame.Header{}, fmt.Errorf("session: set read deadline: %w", err)
		}
		n, err := s.conn.Read(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, frame.Header{}, ctxErr
			}
			if isTimeout(err) {
				if hasCtxDeadline && !time.Now().Before(ctxDeadline) {
					return nil, frame.Header{}, context.DeadlineExceeded
				}
				return nil, frame.Header{}, errAttemptTimedOut
			}
			if s.closed.Load() {
				return nil, frame.Header{}, ErrClosed
			}
			return nil, frame.Header{}, fmt.Errorf("session: receive: %w", err)
		}

		data := buf[:n]
		h, err := frame.CheckDatagram(data, protocol.PacketTypeCommand)
		switch {
		case err != nil:
			s.discard(expected, discardReason(err), err)
			continue
		case !h.Ack:
			s.discard(expected, "not_ack", nil)
			continue
		case h.Sequence != expected:
			s.discard(expected, "stale_sequence", fmt.Errorf("got seq=%d", h.Sequence))
			continue
		}
		out := make([]byte, n)
		copy(out, data)
		return out, h, nil
	}
}

func (s *Session) discard(expected protocol.Sequence, reason string, cause error) {
	s.tracker.MarkDiscard(expected, reason)
	observability.RecordReplyDiscarded(reason)
	ev := log.Warn().Str("dest", s.remote).Uint8("seq", uint8(expected)).Str("reason", reason)
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("reply discarded")
}

func discardReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrTruncated):
		return "truncated"
	case errors.Is(err, protocol.ErrSizeMismatch):
		return "size_mismatch"
	case errors.Is(err, protocol.ErrBadType):
		return "bad_type"
	default:
		return "malformed"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Close releases the socket. It is safe to call more than once; an exchange in
// progress fails with ErrClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.conn.Close()
		log.Debug().Str("dest", s.remote).Msg("session closed")
	})
	return s.closeErr
}

// deadlineGuard keeps a cancelled exchange from re-arming a future read deadline.
type deadlineGuard struct {
	mu        sync.Mutex
	conn      PacketConn
	cancelled bool
}

func newDeadlineGuard(conn PacketConn) *deadlineGuard {
	return &deadlineGuard{conn: conn}
}

func (g *deadlineGuard) set(t time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled {
		t = time.Now()
	}
	return g.conn.SetReadDeadline(t)
}

func (g *deadlineGuard) cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = true
	_ = g.conn.SetReadDeadline(time.Now())
}
