//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultBufferCount is the number of mmap buffers requested from the driver.
const DefaultBufferCount = 4

// pollInterval bounds each poll so a context without deadline is still
// checked for cancellation.
const pollInterval = 250 * time.Millisecond

// Device is a YUYV capture node streaming through mmap'd buffers. It
// implements capture.FrameSource. A Device is not safe for concurrent use.
type Device struct {
	bufCount uint32
	log      *slog.Logger

	path      string
	fd        uintptr
	open      bool
	width     int
	height    int
	bufs      []MmapBuffer
	held      int
	streaming bool
}

// NewDevice returns an unopened device that will request bufCount buffers.
// A nil logger logs to slog.Default().
func NewDevice(bufCount uint32, log *slog.Logger) *Device {
	if bufCount == 0 {
		bufCount = DefaultBufferCount
	}
	if log == nil {
		log = slog.Default()
	}
	return &Device{bufCount: bufCount, log: log, held: -1}
}

// Init opens path and configures it for width x height YUYV frames.
func (d *Device) Init(width, height int, path string) error {
	if d.open {
		return fmt.Errorf("v4l2: %s already open", d.path)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("v4l2: invalid frame size %dx%d", width, height)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("v4l2: open %s: %w", path, err)
	}
	d.fd = uintptr(fd)
	d.path = path
	d.open = true

	if err := d.configure(width, height); err != nil {
		_ = d.closeAll()
		return err
	}
	d.width, d.height = width, height
	d.held = -1
	return nil
}

func (d *Device) configure(width, height int) error {
	caps, err := queryCapabilities(d.fd)
	if err != nil {
		return err
	}
	d.log.Debug("v4l2: device capabilities",
		"path", d.path,
		"driver", cString(caps.Driver[:]),
		"card", cString(caps.Card[:]),
		"bus_info", cString(caps.BusInfo[:]),
		"version", fmt.Sprintf("%#x", caps.Version),
		"capabilities", fmt.Sprintf("%#x", caps.Capabilities),
		"device_caps", fmt.Sprintf("%#x", caps.DeviceCaps),
	)
	if caps.Caps()&CapVideoCapture == 0 {
		return fmt.Errorf("v4l2: %s does not support VIDEO_CAPTURE", d.path)
	}
	if caps.Caps()&CapStreaming == 0 {
		return fmt.Errorf("v4l2: %s does not support STREAMING", d.path)
	}

	formats, err := enumFormats(d.fd)
	if err != nil {
		return err
	}
	found := false
	for _, f := range formats {
		if f.PixelFormat == PixFmtYUYV {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("v4l2: %s does not offer %s", d.path, FourCCString(PixFmtYUYV))
	}

	pix, err := setFormat(d.fd, uint32(width), uint32(height), PixFmtYUYV)
	if err != nil {
		return err
	}
	d.log.Debug("v4l2: format set",
		"path", d.path,
		"pixel_format", FourCCString(pix.PixelFormat),
		"resolution", fmt.Sprintf("%dx%d", pix.Width, pix.Height),
		"bytes_per_line", pix.BytesPerLine,
		"size_image", pix.SizeImage,
	)
	if pix.PixelFormat != PixFmtYUYV || int(pix.Width) != width || int(pix.Height) != height {
		return fmt.Errorf("v4l2: driver adjusted format to %s %dx%d",
			FourCCString(pix.PixelFormat), pix.Width, pix.Height)
	}
	if pix.BytesPerLine != 0 && int(pix.BytesPerLine) != width*2 {
		return fmt.Errorf("v4l2: padded rows not supported (bytes per line %d)", pix.BytesPerLine)
	}

	bufs, err := initMmap(d.fd, d.bufCount)
	if err != nil {
		return err
	}
	d.bufs = bufs
	return nil
}

// Start queues every buffer and turns streaming on.
func (d *Device) Start() error {
	if !d.open {
		return errors.New("v4l2: device not open")
	}
	if d.streaming {
		return errors.New("v4l2: already streaming")
	}
	if err := startStreaming(d.fd, d.bufs); err != nil {
		return err
	}
	d.streaming = true
	return nil
}

// Acquire waits for a filled buffer and lends it to the caller. The
// returned slice aliases driver memory until Release(index).
func (d *Device) Acquire(ctx context.Context) (int, []byte, error) {
	if !d.streaming {
		return 0, nil, errors.New("v4l2: not streaming")
	}
	if d.held >= 0 {
		return 0, nil, fmt.Errorf("v4l2: buffer %d not released", d.held)
	}

	frameSize := d.width * d.height * 2
	for {
		if err := d.waitReadable(ctx); err != nil {
			return 0, nil, err
		}
		buf, err := dequeueBuffer(d.fd)
		if errors.Is(err, unix.EAGAIN) {
			continue
		}
		if err != nil {
			return 0, nil, fmt.Errorf("VIDIOC_DQBUF failed: %w", err)
		}

		idx := int(buf.Index)
		if idx >= len(d.bufs) {
			return 0, nil, fmt.Errorf("DQBUF returned invalid index %d (n=%d)", idx, len(d.bufs))
		}
		used := buf.BytesUsed
		if int(used) < frameSize || used > d.bufs[idx].Length {
			bad := fmt.Errorf("unexpected bytesused=%d (want %d, buffer length=%d)", used, frameSize, d.bufs[idx].Length)
			// The frame is unusable; hand it straight back to the driver.
			if qerr := queueBuffer(d.fd, buf.Index); qerr != nil {
				return 0, nil, errors.Join(bad, qerr)
			}
			return 0, nil, bad
		}

		d.held = idx
		d.log.Debug("v4l2: buffer dequeued", "index", idx, "sequence", buf.Sequence, "bytes_used", used)
		return idx, d.bufs[idx].Data[:frameSize], nil
	}
}

// waitReadable polls the descriptor until a frame is ready or ctx ends.
func (d *Device) waitReadable(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		timeout := pollInterval
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left < timeout {
				timeout = left
			}
		}
		if timeout < 0 {
			timeout = 0
		}

		fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll %s: %w", d.path, err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return fmt.Errorf("poll %s: revents %#x", d.path, fds[0].Revents)
		}
		return nil
	}
}

// Release requeues buffer index.
func (d *Device) Release(index int) error {
	if index < 0 || index != d.held {
		return fmt.Errorf("v4l2: buffer %d not held by caller", index)
	}
	d.held = -1
	return queueBuffer(d.fd, uint32(index))
}

// Stop turns streaming off, unmaps the buffers and closes the device.
func (d *Device) Stop() error {
	if !d.open {
		return errors.New("v4l2: device not open")
	}
	var errs []error
	if d.streaming {
		if err := stopStreaming(d.fd); err != nil {
			errs = append(errs, err)
		}
		d.streaming = false
	}
	if err := d.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Device) closeAll() error {
	var errs []error
	if err := unmapAll(d.bufs); err != nil {
		errs = append(errs, err)
	}
	d.bufs = nil
	d.held = -1
	if d.open {
		if err := unix.Close(int(d.fd)); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", d.path, err))
		}
		d.open = false
	}
	return errors.Join(errs...)
}
