package harness

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anchorageoss/fpga-aes-harness/bitstream"
	"github.com/anchorageoss/fpga-aes-harness/device"
	"github.com/anchorageoss/fpga-aes-harness/profile"
	"github.com/anchorageoss/fpga-aes-harness/transcript"
)

// TransportFactory opens a fresh transport for one run
type TransportFactory func(p profile.Profile) (device.Transport, error)

// Service handles harness runs
type Service struct {
	open TransportFactory
	log  *logrus.Entry
	now  func() time.Time
}

// NewService creates a new harness service
func NewService(open TransportFactory, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		open: open,
		log:  log,
		now:  time.Now,
	}
}

// Encrypt performs one block operation on the device
func (s *Service) Encrypt(ctx context.Context, req *EncryptRequest) (result *EncryptResult, err error) {
	p := req.Profile
	if p.Registers.Len() == 0 {
		p = profile.Default()
	}

	keyReg, err := p.Register(device.RegKey)
	if err != nil {
		return nil, err
	}
	ptReg, err := p.Register(device.RegPlaintext)
	if err != nil {
		return nil, err
	}
	ctReg, err := p.Register(device.RegCiphertext)
	if err != nil {
		return nil, err
	}

	// Reject bad operands before the slow connect and program steps.
	if err := checkOperand(keyReg, req.Key); err != nil {
		return nil, err
	}
	if err := checkOperand(ptReg, req.Plaintext); err != nil {
		return nil, err
	}
	if len(req.Expected) > 0 && len(req.Expected) != ctReg.Width {
		return nil, fmt.Errorf("expected ciphertext must be %d bytes, got %d", ctReg.Width, len(req.Expected))
	}

	transport, err := s.open(p)
	if err != nil {
		return nil, &device.Error{Op: device.OpConnect, Err: fmt.Errorf("%w: %v", device.ErrDeviceNotFound, err)}
	}

	session, err := device.NewSession(transport, p.SessionConfig(s.log))
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	defer func() {
		if cerr := session.Disconnect(); cerr != nil {
			s.log.WithError(cerr).Warn("disconnect failed")
		}
	}()

	log := s.log.WithFields(logrus.Fields{"session": session.ID(), "profile": p.Name})
	started := s.now()

	result = &EncryptResult{
		SessionID:  session.ID(),
		Profile:    p.Name,
		Transport:  req.TransportName,
		Completion: session.Completion().String(),
		Key:        append([]byte(nil), req.Key...),
		Plaintext:  append([]byte(nil), req.Plaintext...),
		Expected:   append([]byte(nil), req.Expected...),
		Started:    started,
	}

	// Step 1: connect and configure the FPGA
	if err := session.Connect(ctx); err != nil {
		return nil, err
	}
	if err := session.Program(ctx, req.BitstreamPath); err != nil {
		return nil, err
	}
	result.Bitstream = s.bitstreamInfo(transport, req.BitstreamPath, log)
	log.WithField("bitstream", req.BitstreamPath).Info("device programmed")

	// Step 2: load operands, lowest address first
	if err := session.WriteOperand(ctx, keyReg, device.ToLittleEndianPlacement(req.Key)); err != nil {
		return nil, err
	}
	if err := session.WriteOperand(ctx, ptReg, device.ToLittleEndianPlacement(req.Plaintext)); err != nil {
		return nil, err
	}

	// Step 3: run the core
	if err := session.Trigger(ctx); err != nil {
		return nil, err
	}
	if err := session.AwaitCompletion(ctx, p.AwaitTimeout); err != nil {
		return nil, err
	}

	// Step 4: collect the result
	raw, err := session.ReadResult(ctx, ctReg)
	if err != nil {
		return nil, err
	}
	result.Ciphertext = device.FromLittleEndianPlacement(raw)
	result.Elapsed = s.now().Sub(started)
	log.WithField("elapsed", result.Elapsed).Info("block complete")

	if req.SaveTranscriptPath != "" {
		if err := s.saveTranscript(req.SaveTranscriptPath, result); err != nil {
			return result, err
		}
	}

	if len(req.Expected) > 0 {
		if !bytes.Equal(result.Ciphertext, req.Expected) {
			return result, fmt.Errorf("%w: device returned %s, expected %s",
				ErrCiphertextMismatch, FormatHexPairs(result.Ciphertext), FormatHexPairs(req.Expected))
		}
		result.Verified = true
	}

	return result, nil
}

// bitstreamReporter is implemented by transports that parse the image they
// program, so the harness does not read it a second time.
type bitstreamReporter interface {
	Bitstream() (bitstream.Info, bool)
}

func (s *Service) bitstreamInfo(t device.Transport, path string, log *logrus.Entry) bitstream.Info {
	if r, ok := t.(bitstreamReporter); ok {
		if info, ok := r.Bitstream(); ok {
			return info
		}
	}
	img, err := bitstream.Load(path)
	if err != nil {
		log.WithError(err).Warn("bitstream header unreadable, continuing without it")
		return bitstream.Info{}
	}
	return img.Info
}

func (s *Service) saveTranscript(path string, r *EncryptResult) error {
	tr := &transcript.Transcript{
		SessionID:       r.SessionID,
		Profile:         r.Profile,
		Transport:       r.Transport,
		Completion:      r.Completion,
		BitstreamDesign: r.Bitstream.Design,
		Key:             r.Key,
		Plaintext:       r.Plaintext,
		Ciphertext:      r.Ciphertext,
		StartedUnixMs:   r.Started.UnixMilli(),
		ElapsedMicros:   uint64(r.Elapsed.Microseconds()),
	}
	if r.Bitstream.SHA256 != "" {
		if err := tr.SetBitstreamHash(r.Bitstream.SHA256); err != nil {
			return err
		}
	}

	_, hash, err := transcript.Save(path, tr)
	if err != nil {
		return err
	}
	r.TranscriptPath = path
	r.TranscriptHash = hash
	return nil
}

func checkOperand(reg device.Register, data []byte) error {
	if len(data) != reg.Width {
		return &device.Error{
			Op:       device.OpWrite,
			Register: reg.Name,
			Err:      fmt.Errorf("%w: %s expects %d bytes, got %d", device.ErrLengthMismatch, reg.Name, reg.Width, len(data)),
		}
	}
	return nil
}
