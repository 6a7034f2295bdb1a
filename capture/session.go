// Package capture drives a FrameSource through the grab, convert and save
// cycle for single still frames.
//
// A Session moves through Uninitialized, Initialized, Capturing and Stopped.
// Each capture call borrows exactly one driver buffer and always hands it
// back before returning, whether or not conversion or encoding succeeded.
// A Session is not safe for concurrent use.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"yuvsnap/camerr"
	"yuvsnap/jpegfile"
	"yuvsnap/yuv"
)

// State is a session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateCapturing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateCapturing:
		return "capturing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config fixes the frame geometry and device for the session lifetime.
type Config struct {
	Width  int
	Height int
	// Device identifies the capture node, e.g. "/dev/video0".
	Device string
}

// Validate checks that the geometry is positive and a device is named.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height)
	}
	if c.Device == "" {
		return errors.New("device is required")
	}
	return nil
}

// Stats counts buffer traffic over the session lifetime.
type Stats struct {
	// Acquired is the number of buffers handed out by the source.
	Acquired uint64
	// Released is the number of Release calls made for acquired buffers.
	Released uint64
	// Saved is the number of frames written to disk.
	Saved uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAcquireTimeout bounds every acquire. Zero, the default, waits for
// the driver indefinitely.
func WithAcquireTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.acquireTimeout = d
	}
}

// Session owns one FrameSource for one capture lifetime.
type Session struct {
	cfg            Config
	src            FrameSource
	state          State
	log            *slog.Logger
	acquireTimeout time.Duration
	stats          Stats
}

// New returns an Uninitialized session over src.
func New(src FrameSource, cfg Config, opts ...Option) (*Session, error) {
	if src == nil {
		return nil, camerr.Precondition("new", "frame source is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, camerr.Precondition("new", "%v", err)
	}
	s := &Session{
		cfg: cfg,
		src: src,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Config returns the session geometry and device.
func (s *Session) Config() Config {
	return s.cfg
}

// Stats returns the buffer counters.
func (s *Session) Stats() Stats {
	return s.stats
}

// Init opens the device. On failure the session stays Uninitialized.
func (s *Session) Init() error {
	if s.state != StateUninitialized {
		return camerr.InvalidState("init", "session is %s", s.state)
	}
	if err := s.src.Init(s.cfg.Width, s.cfg.Height, s.cfg.Device); err != nil {
		s.log.Error("capture: camera initialization failed", "device", s.cfg.Device, "error", err)
		return camerr.Device("init", err)
	}
	s.state = StateInitialized
	s.log.Info("capture: camera initialized",
		"device", s.cfg.Device,
		"resolution", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
	)
	return nil
}

// Start enables capture. On failure the state is unchanged.
func (s *Session) Start() error {
	if s.state != StateInitialized {
		return camerr.InvalidState("start", "session is %s", s.state)
	}
	if err := s.src.Start(); err != nil {
		s.log.Error("capture: camera start failed", "device", s.cfg.Device, "error", err)
		return camerr.Device("start", err)
	}
	s.state = StateCapturing
	s.log.Info("capture: capturing started", "device", s.cfg.Device)
	return nil
}

// Stop releases the device. The session ends Stopped even when the driver
// reports an error; it cannot be restarted.
func (s *Session) Stop() error {
	if s.state != StateInitialized && s.state != StateCapturing {
		return camerr.InvalidState("stop", "session is %s", s.state)
	}
	err := s.src.Stop()
	s.state = StateStopped
	if err != nil {
		s.log.Error("capture: camera close failed", "device", s.cfg.Device, "error", err)
		return camerr.Device("stop", err)
	}
	s.log.Info("capture: camera closed",
		"device", s.cfg.Device,
		"acquired", s.stats.Acquired,
		"released", s.stats.Released,
		"saved", s.stats.Saved,
	)
	return nil
}

// CaptureFrame grabs one raw YUYV frame and returns a copy the caller owns.
func (s *Session) CaptureFrame(ctx context.Context) ([]byte, error) {
	if s.state != StateCapturing {
		return nil, camerr.InvalidState("capture", "session is %s", s.state)
	}
	log := s.log.With("trace_id", uuid.NewString())

	index, data, err := s.acquire(ctx, log)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	if err := s.release(index, log); err != nil {
		return nil, err
	}
	return frame, nil
}

// CaptureAndSave grabs one frame, converts it to RGB and writes it as a
// JPEG at path with the given quality (0-100). The driver buffer is
// released on every path. A failed save leaves no file at path.
func (s *Session) CaptureAndSave(ctx context.Context, path string, quality int) error {
	if s.state != StateCapturing {
		return camerr.InvalidState("save", "session is %s", s.state)
	}
	log := s.log.With("trace_id", uuid.NewString(), "path", path)

	index, data, err := s.acquire(ctx, log)
	if err != nil {
		return err
	}

	saveErr := s.save(data, path, quality)
	relErr := s.release(index, log)
	if saveErr != nil {
		log.Error("capture: saving frame failed", "index", index, "error", saveErr)
		if relErr != nil {
			return errors.Join(saveErr, relErr)
		}
		return saveErr
	}
	if relErr != nil {
		return relErr
	}

	s.stats.Saved++
	log.Info("capture: frame saved", "index", index, "quality", quality)
	return nil
}

// save converts the borrowed frame into a fresh RGB buffer and encodes it.
// The RGB buffer does not outlive the call.
func (s *Session) save(frame []byte, path string, quality int) error {
	rgb, err := yuv.ToRGB(s.cfg.Width, s.cfg.Height, frame)
	if err != nil {
		return err
	}
	return jpegfile.WriteFile(path, s.cfg.Width, s.cfg.Height, rgb, quality)
}

func (s *Session) acquire(ctx context.Context, log *slog.Logger) (int, []byte, error) {
	if s.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.acquireTimeout)
		defer cancel()
	}
	index, data, err := s.src.Acquire(ctx)
	if err != nil {
		log.Error("capture: acquiring frame failed", "device", s.cfg.Device, "error", err)
		return 0, nil, camerr.Device("acquire", err)
	}
	s.stats.Acquired++
	log.Debug("capture: frame acquired", "index", index, "bytes", len(data))
	return index, data, nil
}

func (s *Session) release(index int, log *slog.Logger) error {
	s.stats.Released++
	if err := s.src.Release(index); err != nil {
		log.Error("capture: releasing buffer failed", "index", index, "error", err)
		return camerr.Device("release", err)
	}
	return nil
}
