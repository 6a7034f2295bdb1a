// Package jpegfile writes RGB888 images as JPEG files.
//
// Rows are fed to an Encoder one scanline at a time, top to bottom, in the
// same start / write scanlines / finish sequence libjpeg uses. The
// compression itself is delegated to image/jpeg.
package jpegfile

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"

	"yuvsnap/camerr"
)

// DefaultQuality is the JPEG quality used when the caller has no preference.
const DefaultQuality = 70

const components = 3

// Encoder accepts RGB888 scanlines and compresses them on Finish.
type Encoder struct {
	w       io.Writer
	width   int
	height  int
	quality int

	img  *image.RGBA
	next int
	done bool
}

// NewEncoder starts a width x height image that will be written to w.
// Quality ranges 0-100; values below 1 encode at 1.
func NewEncoder(w io.Writer, width, height, quality int) (*Encoder, error) {
	if width <= 0 || height <= 0 {
		return nil, camerr.Precondition("encode", "invalid image size %dx%d", width, height)
	}
	if quality < 0 || quality > 100 {
		return nil, camerr.Precondition("encode", "quality %d out of range 0-100", quality)
	}
	if quality < 1 {
		quality = 1
	}
	return &Encoder{
		w:       w,
		width:   width,
		height:  height,
		quality: quality,
		img:     image.NewRGBA(image.Rect(0, 0, width, height)),
	}, nil
}

// NextScanline returns the index of the next row to be written.
func (e *Encoder) NextScanline() int {
	return e.next
}

// WriteScanlines appends rows to the image. Each row must hold exactly
// width*3 bytes. It returns the number of rows accepted.
func (e *Encoder) WriteScanlines(rows ...[]byte) (int, error) {
	if e.done {
		return 0, errors.New("jpegfile: write after finish")
	}
	n := 0
	for _, row := range rows {
		if e.next >= e.height {
			return n, fmt.Errorf("jpegfile: scanline %d beyond image height %d", e.next, e.height)
		}
		if len(row) != e.width*components {
			return n, camerr.Precondition("encode", "scanline %d is %d bytes, want %d",
				e.next, len(row), e.width*components)
		}
		pix := e.img.Pix[e.next*e.img.Stride : e.next*e.img.Stride+e.width*4]
		for x := 0; x < e.width; x++ {
			pix[x*4] = row[x*3]
			pix[x*4+1] = row[x*3+1]
			pix[x*4+2] = row[x*3+2]
			pix[x*4+3] = 0xff
		}
		e.next++
		n++
	}
	return n, nil
}

// Finish compresses the image into the writer. Every scanline must have
// been written.
func (e *Encoder) Finish() error {
	if e.done {
		return errors.New("jpegfile: already finished")
	}
	if e.next != e.height {
		return fmt.Errorf("jpegfile: finish after %d of %d scanlines", e.next, e.height)
	}
	e.done = true
	return jpeg.Encode(e.w, e.img, &jpeg.Options{Quality: e.quality})
}

// WriteFile encodes rgb as a JPEG at path, creating or truncating it.
// A file left behind by a failed encode is removed.
func WriteFile(path string, width, height int, rgb []byte, quality int) (err error) {
	if width <= 0 || height <= 0 {
		return camerr.Precondition("write", "invalid image size %dx%d", width, height)
	}
	if len(rgb) != width*height*components {
		return camerr.Precondition("write", "rgb buffer is %d bytes, want %d for %dx%d",
			len(rgb), width*height*components, width, height)
	}
	if quality < 0 || quality > 100 {
		return camerr.Precondition("write", "quality %d out of range 0-100", quality)
	}

	f, err := os.Create(path)
	if err != nil {
		return camerr.Encode("open", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = camerr.Encode("close", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	bw := bufio.NewWriter(f)
	enc, err := NewEncoder(bw, width, height, quality)
	if err != nil {
		return err
	}

	stride := width * components
	for enc.NextScanline() < height {
		off := enc.NextScanline() * stride
		if _, err := enc.WriteScanlines(rgb[off : off+stride]); err != nil {
			return err
		}
	}

	if err := enc.Finish(); err != nil {
		return camerr.Encode("write", err)
	}
	if err := bw.Flush(); err != nil {
		return camerr.Encode("write", err)
	}
	return nil
}
