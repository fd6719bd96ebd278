package controllee

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/danmuck/vrtctl/internal/observability"
	"github.com/danmuck/vrtctl/internal/protocol/command"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// State is the tuning the simulator has applied plus packet counters.
type State struct {
	Name          string    `json:"name"`
	BandwidthHz   *float64  `json:"bandwidth_hz,omitempty"`
	FrequencyHz   *float64  `json:"frequency_hz,omitempty"`
	Packets       uint64    `json:"packets"`
	Malformed     uint64    `json:"malformed"`
	Acks          uint64    `json:"acks"`
	LastSequence  uint8     `json:"last_sequence"`
	LastMessageID uint32    `json:"last_message_id"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Endpoint answers control packets the way a tunable receiver would.
type Endpoint struct {
	cfg Config
	now func() time.Time

	mu    sync.RWMutex
	state State

	connMu sync.Mutex
	conn   net.PacketConn
}

func NewEndpoint(cfg Config) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Endpoint{
		cfg:   cfg,
		now:   time.Now,
		state: State{Name: cfg.Name},
	}, nil
}

func (e *Endpoint) Config() Config {
	return e.cfg
}

// State returns a copy of the applied state.
func (e *Endpoint) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.state
	if s.BandwidthHz != nil {
		s.BandwidthHz = command.Hz(*s.BandwidthHz)
	}
	if s.FrequencyHz != nil {
		s.FrequencyHz = command.Hz(*s.FrequencyHz)
	}
	return s
}

// Listen binds the UDP socket. Serve calls it when needed.
func (e *Endpoint) Listen(ctx context.Context) error {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.conn != nil {
		return nil
	}
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", e.cfg.ListenAddr)
	if err != nil {
		return err
	}
	e.conn = conn
	log.Info().Str("name", e.cfg.Name).Str("addr", conn.LocalAddr().String()).Msg("controllee listening")
	return nil
}

// Addr is the bound UDP address, or "" before Listen.
func (e *Endpoint) Addr() string {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.conn == nil {
		return ""
	}
	return e.conn.LocalAddr().String()
}

// Serve answers datagrams until ctx ends or the socket is closed.
func (e *Endpoint) Serve(ctx context.Context) error {
	if err := e.Listen(ctx); err != nil {
		return err
	}
	e.connMu.Lock()
	conn := e.conn
	e.connMu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = e.Close() })
	defer stop()

	buf := make([]byte, e.cfg.ReceiveBuffer)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		replies, err := e.Handle(buf[:n])
		if err != nil {
			log.Warn().Err(err).Str("from", from.String()).Int("bytes", n).Msg("controllee dropped datagram")
			continue
		}
		for _, reply := range replies {
			if _, err := conn.WriteTo(reply, from); err != nil {
				log.Warn().Err(err).Str("from", from.String()).Msg("controllee reply failed")
			}
		}
	}
}

func (e *Endpoint) Close() error {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}

// verdict is the policy outcome for one requested field.
type verdict struct {
	bit         uint8
	level       command.Level
	resp        schema.Response
	hz          float64
	tune        bool
	notExecuted bool
}

// Handle decodes one control packet and returns the acks to send back, one
// per requested ack kind. A NACK-only request gets no validation or execution
// ack when nothing was flagged.
func (e *Endpoint) Handle(datagram []byte) ([][]byte, error) {
	req, err := command.ParseControl(datagram)
	if err != nil {
		e.mu.Lock()
		e.state.Malformed++
		e.mu.Unlock()
		observability.RecordControlleePacket("malformed")
		return nil, err
	}

	verdicts := e.evaluate(req)
	execute := req.CAM.Action() == schema.ActionExecute
	failed := false
	for _, v := range verdicts {
		if v.level == command.LevelError && v.resp != 0 {
			failed = true
		}
	}
	permitted := !failed || req.CAM.Has(schema.CAMPartialPermitted)

	applied := 0
	skipped := 0
	e.mu.Lock()
	e.state.Packets++
	e.state.LastSequence = uint8(req.Sequence())
	e.state.LastMessageID = req.MessageID
	for i := range verdicts {
		v := &verdicts[i]
		if !v.tune {
			continue
		}
		if !execute {
			continue
		}
		if !permitted || v.resp != 0 {
			v.notExecuted = true
			skipped++
			continue
		}
		switch v.bit {
		case schema.BitBandwidth:
			e.state.BandwidthHz = command.Hz(v.hz)
		case schema.BitRFReferenceFrequency:
			e.state.FrequencyHz = command.Hz(v.hz)
		}
		applied++
	}
	if applied > 0 {
		e.state.UpdatedAt = e.now()
	}
	current := command.Tuning{BandwidthHz: e.state.BandwidthHz, FrequencyHz: e.state.FrequencyHz}
	e.mu.Unlock()

	var replies [][]byte
	for _, kind := range requestedKinds(req.CAM) {
		ack := command.NewAck(req, kind)
		switch kind {
		case command.AckValidation, command.AckExecution:
			for _, v := range verdicts {
				resp := v.resp
				if kind == command.AckExecution && v.notExecuted {
					resp |= schema.RespNotExecuted
				}
				if resp == 0 {
					continue
				}
				// Warnings are only reported when asked for; errors always are.
				if v.level == command.LevelWarning && !req.CAM.Has(schema.CAMWarnings) {
					continue
				}
				ack.Flag(v.level, v.bit, resp)
			}
			if kind == command.AckExecution {
				if applied > 0 {
					ack.CAM |= schema.CAMScheduledOrExecuted
				}
				if applied > 0 && skipped > 0 {
					ack.CAM |= schema.CAMPartialAction
				}
			}
			if req.CAM.Has(schema.CAMNackOnly) && len(ack.Statuses) == 0 {
				observability.RecordControlleePacket("nack_suppressed")
				continue
			}
		case command.AckQueryState:
			ack.Echo(current.Values())
		}
		wire, err := ack.Serialize()
		if err != nil {
			return replies, err
		}
		observability.RecordControlleePacket(kind.String() + "_ack")
		replies = append(replies, wire)
	}

	e.mu.Lock()
	e.state.Acks += uint64(len(replies))
	e.mu.Unlock()

	log.Debug().
		Uint8("seq", uint8(req.Sequence())).
		Uint32("msg_id", req.MessageID).
		Str("cam", req.CAM.String()).
		Int("applied", applied).
		Int("replies", len(replies)).
		Msg("controllee handled control packet")
	return replies, nil
}

// evaluate applies the range policy to each field of req.
func (e *Endpoint) evaluate(req *command.ControlPacket) []verdict {
	out := make([]verdict, 0, len(req.Fields))
	for _, f := range req.Fields {
		v := verdict{bit: f.Bit, hz: f.Hz}
		switch {
		case f.Skipped():
			v.level = command.LevelWarning
			v.resp = schema.RespNotExecuted
		case f.OutOfRange:
			v.level = command.LevelError
			v.resp = schema.RespValueInvalid
		case f.Bit == schema.BitBandwidth:
			v.tune = true
			if !e.cfg.Bandwidth.Contains(f.Hz) {
				v.level = command.LevelError
				v.resp = schema.RespOutOfRange
			}
		case f.Bit == schema.BitRFReferenceFrequency:
			v.tune = true
			if !e.cfg.Frequency.Contains(f.Hz) {
				v.level = command.LevelError
				v.resp = schema.RespOutOfRange
			}
		default:
			v.level = command.LevelWarning
			v.resp = schema.RespNotExecuted
		}
		out = append(out, v)
	}
	return out
}

func requestedKinds(cam schema.CAM) []command.AckKind {
	kinds := make([]command.AckKind, 0, 3)
	if cam.Has(schema.CAMValidation) {
		kinds = append(kinds, command.AckValidation)
	}
	if cam.Has(schema.CAMExecution) {
		kinds = append(kinds, command.AckExecution)
	}
	if cam.Has(schema.CAMQueryState) {
		kinds = append(kinds, command.AckQueryState)
	}
	return kinds
}
