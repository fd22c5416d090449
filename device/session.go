package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle position of a Session
type State uint8

const (
	StateDisconnected State = iota
	StateConnected
	StateProgrammed
	StateReady
	StateTriggered
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateProgrammed:
		return "programmed"
	case StateReady:
		return "ready"
	case StateTriggered:
		return "triggered"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Default timing for sessions built without explicit values.
const (
	DefaultProgramTimeout  = 30 * time.Second
	DefaultProgramAttempts = 1
	DefaultProgramBackoff  = 250 * time.Millisecond
)

// Config configures a Session
type Config struct {
	// Registers is the device's register map. Required.
	Registers RegisterMap
	// Completion decides when a triggered computation is finished.
	// Defaults to FixedDelay{DefaultCompletionDelay}.
	Completion CompletionStrategy
	// ProgramTimeout bounds each programming attempt.
	ProgramTimeout time.Duration
	// ProgramAttempts is how many times a failed transfer is retried in total.
	ProgramAttempts int
	// ProgramBackoff is the pause between programming attempts.
	ProgramBackoff time.Duration
	// ID identifies the session in logs. Defaults to a random UUID.
	ID string
	// Logger receives debug output. Defaults to the logrus standard logger.
	Logger *logrus.Entry
}

func (c Config) withDefaults() Config {
	if c.Completion == nil {
		c.Completion = FixedDelay{Delay: DefaultCompletionDelay}
	}
	if c.ProgramTimeout <= 0 {
		c.ProgramTimeout = DefaultProgramTimeout
	}
	if c.ProgramAttempts <= 0 {
		c.ProgramAttempts = DefaultProgramAttempts
	}
	if c.ProgramBackoff < 0 {
		c.ProgramBackoff = 0
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Logger == nil {
		c.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return c
}

// Session drives one accelerator through connect, program, operand writes,
// trigger, completion and result read. It owns its Transport exclusively and
// is not safe for concurrent use.
//
// Operands are written exactly as given: byte 0 goes to the lowest address of
// the register. Callers holding most-significant-byte-first values convert
// with ToLittleEndianPlacement before writing and FromLittleEndianPlacement
// after reading. The session never reorders bytes itself.
type Session struct {
	transport  Transport
	regs       RegisterMap
	completion CompletionStrategy
	cfg        Config
	log        *logrus.Entry

	state   State
	written map[string]bool
}

// NewSession creates a disconnected session over t
func NewSession(t Transport, cfg Config) (*Session, error) {
	if t == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.Registers.Len() == 0 {
		return nil, fmt.Errorf("register map is required")
	}
	cfg = cfg.withDefaults()

	if p, ok := cfg.Completion.(PollFlag); ok {
		if !cfg.Registers.Contains(p.Register) || p.Register.Direction != DirectionRead {
			return nil, fmt.Errorf("poll register %s is not a read register of this map", p.Register.Name)
		}
	}

	return &Session{
		transport:  t,
		regs:       cfg.Registers,
		completion: cfg.Completion,
		cfg:        cfg,
		log:        cfg.Logger.WithField("session", cfg.ID),
		written:    make(map[string]bool),
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.cfg.ID }

// State returns the current lifecycle state
func (s *Session) State() State { return s.state }

// Registers returns the register map the session was built with
func (s *Session) Registers() RegisterMap { return s.regs }

// Completion returns the completion strategy in use
func (s *Session) Completion() CompletionStrategy { return s.completion }

// Connect opens the transport. Only valid from StateDisconnected.
func (s *Session) Connect(ctx context.Context) error {
	if s.state != StateDisconnected {
		return s.fail(OpConnect, "", ErrInvalidState)
	}

	if err := s.transport.Connect(ctx); err != nil {
		_ = s.transport.Close()
		switch {
		case errors.Is(err, ErrBusy), errors.Is(err, ErrDeviceNotFound):
			return s.fail(OpConnect, "", err)
		case ctx.Err() != nil:
			return s.fail(OpConnect, "", callerCause(ctx, err))
		default:
			return s.fail(OpConnect, "", fmt.Errorf("%w: %v", ErrDeviceNotFound, err))
		}
	}

	s.setState(StateConnected)
	return nil
}

// Program loads a bitstream. Reprogramming an already programmed device is
// allowed and clears every latched operand. Transfer failures are retried up
// to Config.ProgramAttempts times.
func (s *Session) Program(ctx context.Context, bitstreamPath string) error {
	if s.state == StateDisconnected || s.state == StateTriggered {
		return s.fail(OpProgram, "", ErrInvalidState)
	}

	if _, err := os.Stat(bitstreamPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.fail(OpProgram, "", fmt.Errorf("%w: %s", ErrFileNotFound, bitstreamPath))
		}
		return s.fail(OpProgram, "", fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}

	s.clearOperands()
	s.setState(StateConnected)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.ProgramAttempts; attempt++ {
		if attempt > 1 {
			s.log.WithFields(logrus.Fields{"op": OpProgram, "attempt": attempt}).
				Warnf("retrying program after %v", lastErr)
			if err := sleepCtx(ctx, s.cfg.ProgramBackoff); err != nil {
				return s.fail(OpProgram, "", callerCause(ctx, err))
			}
		}

		lastErr = s.programOnce(ctx, bitstreamPath)
		if lastErr == nil {
			s.log.WithFields(logrus.Fields{"op": OpProgram, "bitstream": bitstreamPath}).Debug("bitstream loaded")
			s.setState(StateProgrammed)
			return nil
		}
		if !errors.Is(lastErr, ErrTransferFailed) {
			break
		}
	}
	return s.fail(OpProgram, "", lastErr)
}

func (s *Session) programOnce(ctx context.Context, path string) error {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProgramTimeout)
	defer cancel()

	err := s.transport.Program(pctx, path)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFileNotFound):
		return err
	case ctx.Err() != nil:
		return callerCause(ctx, err)
	case pctx.Err() != nil:
		return fmt.Errorf("%w: programming exceeded %s", ErrTimeout, s.cfg.ProgramTimeout)
	default:
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
}

// WriteOperand writes data to a write register. len(data) must equal
// reg.Width; a mismatch is rejected before anything reaches the device.
// The write is refused while a computation is in flight.
func (s *Session) WriteOperand(ctx context.Context, reg Register, data []byte) error {
	switch s.state {
	case StateProgrammed, StateReady, StateDone:
	default:
		return s.fail(OpWrite, reg.Name, ErrInvalidState)
	}
	if err := s.checkRegister(reg, DirectionWrite); err != nil {
		return s.fail(OpWrite, reg.Name, err)
	}
	if len(data) != reg.Width {
		return s.fail(OpWrite, reg.Name, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrLengthMismatch, reg.Name, reg.Width, len(data)))
	}

	if err := s.transport.WriteRegister(ctx, reg.Address, append([]byte(nil), data...)); err != nil {
		return s.abort(ctx, OpWrite, reg.Name, err)
	}
	s.log.WithFields(logrus.Fields{"op": OpWrite, "register": reg.Name, "addr": fmt.Sprintf("0x%03X", reg.Address)}).
		Debugf("wrote % X", data)

	s.written[reg.Name] = true
	if s.operandsComplete() {
		s.setState(StateReady)
	} else {
		s.setState(StateProgrammed)
	}
	return nil
}

// Trigger writes TriggerSentinel to the trigger register. Requires every
// write register to have been written.
func (s *Session) Trigger(ctx context.Context) error {
	trig := s.regs.Trigger()
	if s.state != StateReady {
		return s.fail(OpTrigger, trig.Name, ErrInvalidState)
	}

	if err := s.transport.WriteRegister(ctx, trig.Address, []byte{TriggerSentinel}); err != nil {
		return s.abort(ctx, OpTrigger, trig.Name, err)
	}
	s.log.WithFields(logrus.Fields{"op": OpTrigger, "register": trig.Name, "addr": fmt.Sprintf("0x%03X", trig.Address)}).
		Debug("computation started")

	s.setState(StateTriggered)
	return nil
}

// AwaitCompletion blocks until the completion strategy reports the device
// finished. A timeout of zero means no bound beyond ctx. Timing out or being
// canceled leaves the device in an unknown state, so the session disconnects.
func (s *Session) AwaitCompletion(ctx context.Context, timeout time.Duration) error {
	if s.state != StateTriggered {
		return s.fail(OpAwait, "", ErrInvalidState)
	}

	wctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.completion.Wait(wctx, s.transport); err != nil {
		var cause error
		switch {
		case ctx.Err() != nil:
			cause = callerCause(ctx, ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			cause = fmt.Errorf("%w: no completion after %s using %s", ErrTimeout, timeout, s.completion)
		default:
			cause = fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		e := s.fail(OpAwait, "", cause)
		s.teardown()
		return e
	}
	s.log.WithFields(logrus.Fields{"op": OpAwait, "strategy": s.completion.String(), "elapsed": time.Since(start)}).
		Debug("computation complete")

	s.setState(StateDone)
	return nil
}

// ReadResult reads a result register. Requires StateDone. The bytes come
// back in the same placement they were written in.
func (s *Session) ReadResult(ctx context.Context, reg Register) ([]byte, error) {
	if s.state != StateDone {
		return nil, s.fail(OpRead, reg.Name, ErrInvalidState)
	}
	if err := s.checkRegister(reg, DirectionRead); err != nil {
		return nil, s.fail(OpRead, reg.Name, err)
	}

	data, err := s.transport.ReadRegister(ctx, reg.Address, reg.Width)
	if err != nil {
		return nil, s.abort(ctx, OpRead, reg.Name, err)
	}
	if len(data) != reg.Width {
		return nil, s.abort(ctx, OpRead, reg.Name, fmt.Errorf("short read: got %d of %d bytes", len(data), reg.Width))
	}
	s.log.WithFields(logrus.Fields{"op": OpRead, "register": reg.Name, "addr": fmt.Sprintf("0x%03X", reg.Address)}).
		Debugf("read % X", data)

	return append([]byte(nil), data...), nil
}

// Disconnect releases the transport. It is safe to call repeatedly and after
// a failed Connect.
func (s *Session) Disconnect() error {
	if s.state == StateDisconnected {
		return nil
	}
	err := s.transport.Close()
	s.clearOperands()
	s.setState(StateDisconnected)
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

func (s *Session) checkRegister(reg Register, want Direction) error {
	if !s.regs.Contains(reg) {
		return fmt.Errorf("%w: %s", ErrUnknownRegister, reg)
	}
	if reg.Direction != want {
		return fmt.Errorf("%w: %s is %s, need %s", ErrWrongDirection, reg.Name, reg.Direction, want)
	}
	return nil
}

func (s *Session) operandsComplete() bool {
	for _, r := range s.regs.Operands() {
		if !s.written[r.Name] {
			return false
		}
	}
	return true
}

func (s *Session) clearOperands() {
	s.written = make(map[string]bool)
}

func (s *Session) setState(next State) {
	if next == s.state {
		return
	}
	s.log.WithFields(logrus.Fields{"from": s.state, "to": next}).Debug("state transition")
	s.state = next
}

func (s *Session) fail(op Op, reg string, err error) error {
	return &Error{Op: op, Register: reg, State: s.state, Err: err}
}

// abort reports a transport failure mid-run and drops the connection.
func (s *Session) abort(ctx context.Context, op Op, reg string, err error) error {
	cause := fmt.Errorf("%w: %v", ErrTransferFailed, err)
	if ctx.Err() != nil {
		cause = callerCause(ctx, err)
	}
	e := s.fail(op, reg, cause)
	s.log.WithFields(logrus.Fields{"op": op, "register": reg}).WithError(err).Warn("transport failure, disconnecting")
	s.teardown()
	return e
}

func (s *Session) teardown() {
	if err := s.Disconnect(); err != nil {
		s.log.WithError(err).Warn("disconnect after failure")
	}
}

// callerCause classifies a failure after the caller's ctx ended: a passed
// deadline is a timeout, anything else a cancellation.
func callerCause(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrCanceled, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
