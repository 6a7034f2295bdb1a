// Package capturetest provides a deterministic in-memory FrameSource for
// exercising capture sessions without hardware.
package capturetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors for ownership violations detected by Source.
var (
	ErrNotStreaming = errors.New("capturetest: not streaming")
	ErrOutstanding  = errors.New("capturetest: buffer still held by caller")
	ErrNotHeld      = errors.New("capturetest: buffer not held by caller")
)

// poison overwrites a buffer once it goes back to the pool so a caller
// reading a stale view sees garbage instead of the old frame.
const poison = 0xEE

// Source serves synthetic YUYV frames from a small ring of buffers and
// enforces the one-outstanding-buffer rule.
type Source struct {
	// Buffers is the ring size. Zero means 4.
	Buffers int

	// Fill writes frame number seq into a freshly acquired buffer. If nil,
	// every sample is set to Y=U=V=128 (mid gray).
	Fill func(seq int, frame []byte)

	// Ready, if set, must deliver a value before each Acquire returns. It
	// models a driver with no frame available yet.
	Ready chan struct{}

	// Hooks returning a non-nil error make the matching call fail.
	InitErr    func() error
	StartErr   func() error
	AcquireErr func(seq int) error
	ReleaseErr func(index int) error
	StopErr    func() error

	mu        sync.Mutex
	device    string
	bufs      [][]byte
	next      int
	held      int
	streaming bool
	calls     []Call
	acquires  int
	releases  int
}

// Call records a method invocation.
type Call struct {
	Method string
	Index  int
	Err    error
}

// NewGraySource returns a Source serving solid mid-gray frames.
func NewGraySource() *Source {
	return &Source{}
}

// Init allocates the buffer ring.
func (s *Source) Init(width, height int, device string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InitErr != nil {
		if err := s.InitErr(); err != nil {
			s.record("Init", -1, err)
			return err
		}
	}
	if width <= 0 || height <= 0 {
		err := fmt.Errorf("capturetest: invalid size %dx%d", width, height)
		s.record("Init", -1, err)
		return err
	}

	n := s.Buffers
	if n <= 0 {
		n = 4
	}
	s.device = device
	s.bufs = make([][]byte, n)
	for i := range s.bufs {
		s.bufs[i] = make([]byte, width*height*2)
	}
	s.held = -1
	s.record("Init", -1, nil)
	return nil
}

// Start enables Acquire.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StartErr != nil {
		if err := s.StartErr(); err != nil {
			s.record("Start", -1, err)
			return err
		}
	}
	if s.bufs == nil {
		err := errors.New("capturetest: start before init")
		s.record("Start", -1, err)
		return err
	}
	s.streaming = true
	s.record("Start", -1, nil)
	return nil
}

// Acquire lends the next buffer in the ring.
func (s *Source) Acquire(ctx context.Context) (int, []byte, error) {
	if s.Ready != nil {
		select {
		case <-s.Ready:
		case <-ctx.Done():
			s.mu.Lock()
			s.record("Acquire", -1, ctx.Err())
			s.mu.Unlock()
			return 0, nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.streaming {
		s.record("Acquire", -1, ErrNotStreaming)
		return 0, nil, ErrNotStreaming
	}
	if s.held >= 0 {
		s.record("Acquire", -1, ErrOutstanding)
		return 0, nil, ErrOutstanding
	}
	if s.AcquireErr != nil {
		if err := s.AcquireErr(s.acquires); err != nil {
			s.record("Acquire", -1, err)
			return 0, nil, err
		}
	}

	index := s.next
	s.next = (s.next + 1) % len(s.bufs)
	buf := s.bufs[index]
	if s.Fill != nil {
		s.Fill(s.acquires, buf)
	} else {
		for i := range buf {
			buf[i] = 128
		}
	}
	s.held = index
	s.acquires++
	s.record("Acquire", index, nil)
	return index, buf, nil
}

// Release returns buffer index to the ring.
func (s *Source) Release(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releases++
	if s.bufs == nil || index < 0 || index != s.held {
		err := fmt.Errorf("%w: index %d", ErrNotHeld, index)
		s.record("Release", index, err)
		return err
	}
	s.held = -1
	buf := s.bufs[index]
	for i := range buf {
		buf[i] = poison
	}
	if s.ReleaseErr != nil {
		if err := s.ReleaseErr(index); err != nil {
			s.record("Release", index, err)
			return err
		}
	}
	s.record("Release", index, nil)
	return nil
}

// Stop ends streaming and frees the ring.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streaming = false
	s.bufs = nil
	s.held = -1
	if s.StopErr != nil {
		if err := s.StopErr(); err != nil {
			s.record("Stop", -1, err)
			return err
		}
	}
	s.record("Stop", -1, nil)
	return nil
}

// Acquires returns the number of successful Acquire calls.
func (s *Source) Acquires() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquires
}

// Releases returns the number of Release calls.
func (s *Source) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// Held reports whether a buffer is currently lent out.
func (s *Source) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufs != nil && s.held >= 0
}

// Device returns the device name passed to Init.
func (s *Source) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Calls returns a copy of the recorded calls.
func (s *Source) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times method was called.
func (s *Source) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *Source) record(method string, index int, err error) {
	s.calls = append(s.calls, Call{Method: method, Index: index, Err: err})
}
