package jpegfile

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"yuvsnap/camerr"
)

func gray(width, height int, v byte) []byte {
	return bytes.Repeat([]byte{v}, width*height*components)
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func TestWriteFileGray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jpg")
	if err := WriteFile(path, 640, 480, gray(640, 480, 128), DefaultQuality); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	img := decodeFile(t, path)
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 480 {
		t.Fatalf("bounds = %v, want 640x480", b)
	}
	for y := 0; y < 480; y += 7 {
		for x := 0; x < 640; x += 5 {
			r, g, b, _ := img.At(x, y).RGBA()
			for _, c := range []uint32{r >> 8, g >> 8, b >> 8} {
				if c < 127 || c > 129 {
					t.Fatalf("pixel (%d,%d) = (%d,%d,%d), want ~128", x, y, r>>8, g>>8, b>>8)
				}
			}
		}
	}
}

func TestWriteFileTruncatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jpg")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 1<<20), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, 8, 8, gray(8, 8, 40), DefaultQuality); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	decodeFile(t, path)
}

func TestWriteFileUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.jpg")
	err := WriteFile(path, 4, 4, gray(4, 4, 128), DefaultQuality)
	if !errors.Is(err, camerr.ErrEncode) {
		t.Fatalf("WriteFile() error = %v, want encode error", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("WriteFile() error = %v, want cause os.ErrNotExist", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Errorf("file exists after failed write: %v", statErr)
	}
}

func TestWriteFilePreconditions(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name          string
		width, height int
		rgb           []byte
		quality       int
	}{
		{name: "short buffer", width: 4, height: 4, rgb: make([]byte, 47), quality: 70},
		{name: "long buffer", width: 4, height: 4, rgb: make([]byte, 49), quality: 70},
		{name: "zero size", width: 0, height: 4, rgb: nil, quality: 70},
		{name: "quality too high", width: 4, height: 4, rgb: gray(4, 4, 0), quality: 101},
		{name: "quality negative", width: 4, height: 4, rgb: gray(4, 4, 0), quality: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".jpg")
			err := WriteFile(path, tt.width, tt.height, tt.rgb, tt.quality)
			if !errors.Is(err, camerr.ErrPrecondition) {
				t.Fatalf("WriteFile() error = %v, want precondition error", err)
			}
			if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
				t.Errorf("file created despite precondition failure")
			}
		})
	}
}

func TestEncoderScanlineProtocol(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, 3, 2, 0)
	if err != nil {
		t.Fatalf("NewEncoder() error = %v", err)
	}
	row := gray(3, 1, 200)

	if err := enc.Finish(); err == nil {
		t.Fatal("Finish() before any scanline succeeded")
	}
	if n, err := enc.WriteScanlines(row[:5]); err == nil || n != 0 {
		t.Fatalf("WriteScanlines(short row) = %d, %v", n, err)
	}
	if n, err := enc.WriteScanlines(row); err != nil || n != 1 {
		t.Fatalf("WriteScanlines() = %d, %v", n, err)
	}
	if enc.NextScanline() != 1 {
		t.Fatalf("NextScanline() = %d, want 1", enc.NextScanline())
	}
	if n, err := enc.WriteScanlines(row, row); err == nil || n != 1 {
		t.Fatalf("WriteScanlines past height = %d, %v; want 1 row and an error", n, err)
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := enc.Finish(); err == nil {
		t.Error("second Finish() succeeded")
	}
	if _, err := enc.WriteScanlines(row); err == nil {
		t.Error("WriteScanlines after Finish succeeded")
	}

	img, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Errorf("bounds = %v, want 3x2", b)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestEncoderWriterFailure(t *testing.T) {
	enc, err := NewEncoder(failWriter{}, 2, 1, DefaultQuality)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.WriteScanlines(gray(2, 1, 9)); err != nil {
		t.Fatal(err)
	}
	if err := enc.Finish(); err == nil {
		t.Error("Finish() with failing writer succeeded")
	}
}
