//go:build linux

package v4l2

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type MmapBuffer struct {
	Data   []byte
	Length uint32
}

func initMmap(fd uintptr, bufCount uint32) ([]MmapBuffer, error) {
	var req RequestBuffers
	req.Count = bufCount
	req.Type = BufTypeVideoCapture
	req.Memory = MemoryMmap

	reqBufs := iowr(uintptr('V'), VIDIOC_REQBUFS, unsafe.Sizeof(req))
	if err := ioctl(fd, reqBufs, unsafe.Pointer(&req)); err != nil {
		return nil, fmt.Errorf("VIDIOC_REQBUFS failed: %w", err)
	}

	if req.Count < 2 {
		return nil, fmt.Errorf("insufficient buffer memory: requested %d, got %d", bufCount, req.Count)
	}

	bufs := make([]MmapBuffer, req.Count)

	for i := uint32(0); i < req.Count; i++ {
		var buf Buffer
		buf.Type = BufTypeVideoCapture
		buf.Memory = MemoryMmap
		buf.Index = i

		reqQueryBuf := iowr(uintptr('V'), VIDIOC_QUERYBUF, unsafe.Sizeof(buf))
		if err := ioctl(fd, reqQueryBuf, unsafe.Pointer(&buf)); err != nil {
			unmapAll(bufs)
			return nil, fmt.Errorf("VIDIOC_QUERYBUF index=%d failed: %w", i, err)
		}

		data, err := unix.Mmap(
			int(fd),
			int64(buf.Offset()),
			int(buf.Length),
			unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_SHARED,
		)
		if err != nil {
			unmapAll(bufs)
			return nil, fmt.Errorf("mmap index=%d failed: %w", i, err)
		}

		bufs[i] = MmapBuffer{
			Data:   data,
			Length: buf.Length,
		}
	}
	return bufs, nil
}

func unmapAll(bufs []MmapBuffer) error {
	var first error
	for i := range bufs {
		if bufs[i].Data == nil {
			continue
		}
		if err := unix.Munmap(bufs[i].Data); err != nil && first == nil {
			first = fmt.Errorf("munmap index=%d failed: %w", i, err)
		}
		bufs[i].Data = nil
	}
	return first
}

func queueBuffer(fd uintptr, index uint32) error {
	var buf Buffer
	buf.Type = BufTypeVideoCapture
	buf.Memory = MemoryMmap
	buf.Index = index

	reqBuf := iowr(uintptr('V'), VIDIOC_QBUF, unsafe.Sizeof(buf))
	if err := ioctl(fd, reqBuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("VIDIOC_QBUF index=%d failed: %w", index, err)
	}
	return nil
}

func startStreaming(fd uintptr, bufs []MmapBuffer) error {
	for i := range bufs {
		if err := queueBuffer(fd, uint32(i)); err != nil {
			return err
		}
	}

	bufType := uint32(BufTypeVideoCapture)
	reqStreamOn := iow(uintptr('V'), VIDIOC_STREAMON, unsafe.Sizeof(bufType))
	if err := ioctl(fd, reqStreamOn, unsafe.Pointer(&bufType)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMON failed: %w", err)
	}

	return nil
}

func stopStreaming(fd uintptr) error {
	bufType := uint32(BufTypeVideoCapture)
	reqStreamOff := iow(uintptr('V'), VIDIOC_STREAMOFF, unsafe.Sizeof(bufType))
	if err := ioctl(fd, reqStreamOff, unsafe.Pointer(&bufType)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMOFF failed: %w", err)
	}
	return nil
}

// dequeueBuffer takes one filled buffer from the driver. With a
// non-blocking descriptor it returns EAGAIN when no frame is ready.
func dequeueBuffer(fd uintptr) (Buffer, error) {
	var buf Buffer
	buf.Type = BufTypeVideoCapture
	buf.Memory = MemoryMmap

	reqDQBuf := iowr(uintptr('V'), VIDIOC_DQBUF, unsafe.Sizeof(buf))
	if err := ioctl(fd, reqDQBuf, unsafe.Pointer(&buf)); err != nil {
		return buf, err
	}
	return buf, nil
}
