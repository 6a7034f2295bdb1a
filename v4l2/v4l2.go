//go:build linux

// Package v4l2 talks to Video4Linux2 capture devices through raw ioctls and
// mmap'd streaming buffers.
package v4l2

import (
	"bytes"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func init() {
	if unsafe.Sizeof(Buffer{}) != 88 {
		panic("v4l2.Buffer size mismatch, check struct layout")
	}
	if unsafe.Sizeof(Format{}) != 208 {
		panic("v4l2.Format size mismatch, check struct layout")
	}
}

const (
	// [ dir(2) ][ size(14) ][ type(8) ][ nr(8) ]
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1 // user -> kernel
	iocRead  = 2 // kernel -> user
)

// ioctl numbers from linux/videodev2.h.
const (
	VIDIOC_QUERYCAP  = 0
	VIDIOC_ENUM_FMT  = 2
	VIDIOC_G_FMT     = 4
	VIDIOC_S_FMT     = 5
	VIDIOC_REQBUFS   = 8
	VIDIOC_QUERYBUF  = 9
	VIDIOC_QBUF      = 15
	VIDIOC_DQBUF     = 17
	VIDIOC_STREAMON  = 18
	VIDIOC_STREAMOFF = 19
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) |
		(size << iocSizeShift) |
		(typ << iocTypeShift) |
		(nr << iocNRShift)
}

func ior(typ, nr, size uintptr) uintptr {
	return ioc(iocRead, typ, nr, size)
}

func iow(typ, nr, size uintptr) uintptr {
	return ioc(iocWrite, typ, nr, size)
}

func iowr(typ, nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, typ, nr, size)
}

// ioctl retries calls interrupted by a signal.
func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// FourCC packs a four character pixel format code.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// FourCCString renders a pixel format code as text, e.g. "YUYV".
func FourCCString(f uint32) string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

const (
	CapVideoCapture = 0x00000001
	CapStreaming    = 0x04000000
	CapDeviceCaps   = 0x80000000

	BufTypeVideoCapture = 1
	MemoryMmap          = 1
	FieldNone           = 1
)

// PixFmtYUYV is packed YUV 4:2:2, [Y0 U Y1 V].
var PixFmtYUYV = FourCC('Y', 'U', 'Y', 'V')

type Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

// Caps returns the capabilities of the opened node, preferring the
// per-node device caps when the driver reports them.
func (c *Capability) Caps() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

type FmtDesc struct {
	Index       uint32
	Type        uint32
	Flags       uint32
	Description [32]byte
	PixelFormat uint32
	MbusCode    uint32
	Reserved    [3]uint32
}

type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// Format is struct v4l2_format with the pix member of its union. The union
// is 8-byte aligned on 64-bit kernels.
type Format struct {
	Type uint32
	_    [4]byte
	Pix  PixFormat
	_    [152]byte
}

type RequestBuffers struct {
	Count    uint32
	Type     uint32
	Memory   uint32
	Reserved [2]uint32
}

type Timeval struct {
	Sec  int64
	Usec int64
}

type Timecode struct {
	Type     uint32
	Flags    uint32
	Frames   uint8
	Seconds  uint8
	Minutes  uint8
	Hours    uint8
	UserBits [4]uint8
}

type Buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32

	Timestamp Timeval
	Timecode  Timecode

	Sequence uint32
	Memory   uint32

	M [8]byte

	Length    uint32
	Reserved2 uint32
	Reserved  uint32
}

func (b *Buffer) Offset() uint32 {
	return *(*uint32)(unsafe.Pointer(&b.M[0]))
}

func (b *Buffer) SetOffset(off uint32) {
	*(*uint32)(unsafe.Pointer(&b.M[0])) = off
}

func queryCapabilities(fd uintptr) (Capability, error) {
	var caps Capability
	req := ior(uintptr('V'), VIDIOC_QUERYCAP, unsafe.Sizeof(caps))
	if err := ioctl(fd, req, unsafe.Pointer(&caps)); err != nil {
		return caps, fmt.Errorf("VIDIOC_QUERYCAP failed: %w", err)
	}
	return caps, nil
}

// enumFormats lists the pixel formats the capture queue offers.
func enumFormats(fd uintptr) ([]FmtDesc, error) {
	var out []FmtDesc
	for i := uint32(0); ; i++ {
		desc := FmtDesc{Index: i, Type: BufTypeVideoCapture}
		req := iowr(uintptr('V'), VIDIOC_ENUM_FMT, unsafe.Sizeof(desc))
		if err := ioctl(fd, req, unsafe.Pointer(&desc)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				return out, nil
			}
			return nil, fmt.Errorf("VIDIOC_ENUM_FMT index=%d failed: %w", i, err)
		}
		out = append(out, desc)
	}
}

func setFormat(fd uintptr, width, height uint32, pixFmt uint32) (PixFormat, error) {
	var f Format
	f.Type = BufTypeVideoCapture
	f.Pix = PixFormat{
		Width:       width,
		Height:      height,
		PixelFormat: pixFmt,
		Field:       FieldNone,
	}
	req := iowr(uintptr('V'), VIDIOC_S_FMT, unsafe.Sizeof(f))
	if err := ioctl(fd, req, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_S_FMT failed: %w", err)
	}
	return f.Pix, nil
}
