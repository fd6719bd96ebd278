package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/vrtctl/internal/journal"
	"github.com/danmuck/vrtctl/internal/observability"
	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/command"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
	"github.com/danmuck/vrtctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Option customizes a Client.
type Option func(*Client)

// WithSession uses sess instead of opening a UDP session.
func WithSession(sess *session.Session) Option {
	return func(c *Client) { c.sess = sess }
}

// WithClock sets the source of control packet timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client sends tuning commands to one controllee and interprets its acks.
type Client struct {
	cfg     Config
	sess    *session.Session
	journal *journal.Journal
	now     func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewClient opens the transport session (and journal, when configured).
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Session = cfg.Session.WithDefaults()
	c := &Client{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.sess == nil {
		sess, err := session.Open(ctx, cfg.Destination, cfg.Session)
		if err != nil {
			return nil, err
		}
		c.sess = sess
	}
	if strings.TrimSpace(cfg.JournalPath) != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			_ = c.sess.Close()
			return nil, err
		}
		c.journal = j
	}
	return c, nil
}

// Destination is the resolved controllee address, or the configured one.
func (c *Client) Destination() string {
	if addr := c.sess.RemoteAddr(); addr != "" {
		return addr
	}
	return c.cfg.Destination
}

// SendCommand validates req, sends one control packet and waits for its ack.
// Errors are faults (invalid request, encoding, parse, timeout, transport);
// a controllee refusal is returned as an AckResult with Accepted false.
func (c *Client) SendCommand(ctx context.Context, req CommandRequest) (AckResult, error) {
	if c.closed.Load() {
		return AckResult{}, ErrClientClosed
	}
	start := time.Now()
	tuning := req.tuning()
	if err := tuning.Validate(); err != nil {
		observability.RecordCommand("invalid", time.Since(start))
		return AckResult{}, err
	}

	seq := c.sess.NextSequence()
	msgID := c.sess.NextMessageID()
	logger := log.With().Str("dest", c.Destination()).Uint8("seq", uint8(seq)).Uint32("msg_id", msgID).Logger()
	entry := &journal.Entry{
		Destination: c.Destination(),
		Sequence:    uint8(seq),
		MessageID:   msgID,
		BandwidthHz: req.BandwidthHz,
		FrequencyHz: req.FrequencyHz,
	}
	if c.cfg.StreamID != nil {
		entry.StreamID = *c.cfg.StreamID
		entry.HasStreamID = true
	}

	res, err := c.exchange(ctx, req, tuning, seq, msgID, entry)
	elapsed := time.Since(start)
	entry.DurationMS = elapsed.Milliseconds()
	outcome := outcomeOf(res, err)
	observability.RecordCommand(outcome, elapsed)
	if err != nil {
		entry.Fault = err.Error()
		logger.Error().Err(err).Str("outcome", outcome).Msg("command failed")
	} else {
		res.Elapsed = elapsed
		entry.Accepted = res.Accepted
		entry.Reasons = journal.JoinReasons(res.Details)
		logger.Info().Bool("accepted", res.Accepted).Strs("details", res.Details).Int("attempts", res.Attempts).Dur("elapsed", elapsed).Msg("command acknowledged")
	}
	c.record(ctx, entry)
	return res, err
}

func (c *Client) exchange(ctx context.Context, req CommandRequest, tuning command.Tuning, seq protocol.Sequence, msgID uint32, entry *journal.Entry) (AckResult, error) {
	spec := command.ControlSpec{
		Sequence:  seq,
		StreamID:  c.cfg.StreamID,
		Tuning:    tuning,
		MessageID: msgID,
		Timestamp: c.now(),
	}
	if req.DryRun {
		spec.CAM = command.DefaultCAM&^schema.CAMExecution | schema.CAMValidation
		spec.CAM = spec.CAM.WithAction(schema.ActionDryRun)
	}
	if c.cfg.ControlleeID != nil {
		spec.Controllee = command.WordID(*c.cfg.ControlleeID)
	}
	if c.cfg.ControllerID != nil {
		spec.Controller = command.WordID(*c.cfg.ControllerID)
	}

	pkt, err := command.BuildControlPacket(spec)
	if err != nil {
		return AckResult{}, err
	}
	wire, err := pkt.Serialize()
	if err != nil {
		return AckResult{}, err
	}

	reply, err := c.sess.Exchange(ctx, wire, seq)
	if err != nil {
		return AckResult{}, err
	}
	entry.Attempts = reply.Attempts

	ack, err := command.Parse(reply.Datagram)
	if err != nil {
		return AckResult{}, fmt.Errorf("controller: ack for seq=%d: %w", seq, err)
	}
	if want := requestedKind(pkt.CAM); ack.Kind() != want {
		return AckResult{}, fmt.Errorf("controller: ack for seq=%d: %w", seq,
			protocol.NewParseError(protocol.ErrBadType, 0, "%s ack for a %s request", ack.Kind(), want))
	}
	if ack.MessageID != msgID {
		log.Warn().Uint8("seq", uint8(seq)).Uint32("want", msgID).Uint32("got", ack.MessageID).Msg("ack message id differs")
	}
	res := interpret(ack)
	res.Attempts = reply.Attempts
	return res, nil
}

// requestedKind is the ack that settles a command: execution, or validation
// for a dry run.
func requestedKind(cam schema.CAM) command.AckKind {
	if cam.Has(schema.CAMExecution) {
		return command.AckExecution
	}
	if cam.Has(schema.CAMValidation) {
		return command.AckValidation
	}
	return command.AckNone
}

func (c *Client) record(ctx context.Context, entry *journal.Entry) {
	if c.journal == nil {
		return
	}
	// The command context may already be cancelled; the record still goes in.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.journal.Record(rctx, entry); err != nil {
		log.Warn().Err(err).Msg("journal record failed")
	}
}

// Recent returns journal entries, newest first. It is empty without a journal.
func (c *Client) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	if c.journal == nil {
		return nil, nil
	}
	return c.journal.Recent(ctx, limit)
}

func outcomeOf(res AckResult, err error) string {
	switch {
	case err == nil && res.Accepted:
		return "accepted"
	case err == nil:
		return "rejected"
	case errors.Is(err, protocol.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, protocol.ErrEncoding):
		return "encoding"
	case errors.Is(err, session.ErrTimeout):
		return "timeout"
	case protocol.IsParseError(err):
		return "parse"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "transport"
	}
}

// Close releases the session and journal.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		errs := []error{c.sess.Close()}
		if c.journal != nil {
			errs = append(errs, c.journal.Close())
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
