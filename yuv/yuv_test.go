package yuv

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"yuvsnap/camerr"
)

// solid returns a width x height YUYV frame where every sample group is
// [y, u, y, v].
func solid(width, height int, y, u, v byte) []byte {
	src := make([]byte, FrameSize(width, height))
	for i := 0; i+3 < len(src); i += 4 {
		src[i], src[i+1], src[i+2], src[i+3] = y, u, y, v
	}
	if len(src)%4 == 2 {
		src[len(src)-2], src[len(src)-1] = y, u
	}
	return src
}

func TestToRGBGrayMidpoint(t *testing.T) {
	src := solid(640, 480, 128, 128, 128)
	rgb, err := ToRGB(640, 480, src)
	if err != nil {
		t.Fatalf("ToRGB() error = %v", err)
	}
	for i := 0; i < len(rgb); i += 3 {
		if rgb[i] != 128 || rgb[i+1] != 128 || rgb[i+2] != 128 {
			t.Fatalf("pixel %d = (%d,%d,%d), want (128,128,128)", i/3, rgb[i], rgb[i+1], rgb[i+2])
		}
	}
}

func TestToRGBPixelValues(t *testing.T) {
	tests := []struct {
		name    string
		y, u, v byte
		want    [3]byte
	}{
		{name: "gray", y: 128, u: 128, v: 128, want: [3]byte{128, 128, 128}},
		{name: "red saturates high", y: 255, u: 128, v: 255, want: [3]byte{255, 164, 255}},
		{name: "red saturates low", y: 0, u: 128, v: 0, want: [3]byte{0, 91, 0}},
		{name: "green saturates low", y: 0, u: 128, v: 255, want: [3]byte{178, 0, 0}},
		{name: "blue saturates high", y: 200, u: 255, v: 128, want: [3]byte{200, 156, 255}},
		{name: "truncates toward zero", y: 100, u: 150, v: 90, want: [3]byte{46, 119, 138}},
		{name: "black", y: 0, u: 128, v: 128, want: [3]byte{0, 0, 0}},
		{name: "white", y: 255, u: 128, v: 128, want: [3]byte{255, 255, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rgb, err := ToRGB(2, 1, []byte{tt.y, tt.u, tt.y, tt.v})
			if err != nil {
				t.Fatalf("ToRGB() error = %v", err)
			}
			for px := 0; px < 2; px++ {
				got := [3]byte{rgb[px*3], rgb[px*3+1], rgb[px*3+2]}
				if got != tt.want {
					t.Errorf("pixel %d = %v, want %v", px, got, tt.want)
				}
			}
		})
	}
}

func TestToRGBSharesChromaPerPair(t *testing.T) {
	// Two groups with different chroma: pixels 0-1 take the first pair,
	// pixels 2-3 the second.
	src := []byte{
		50, 128, 60, 128,
		70, 255, 80, 128,
	}
	rgb, err := ToRGB(4, 1, src)
	if err != nil {
		t.Fatalf("ToRGB() error = %v", err)
	}
	want := []byte{
		50, 50, 50,
		60, 60, 60,
		70, 26, 255,
		80, 36, 255,
	}
	if !bytes.Equal(rgb, want) {
		t.Errorf("ToRGB() = %v, want %v", rgb, want)
	}
}

func TestToRGBOutputSize(t *testing.T) {
	sizes := [][2]int{
		{1, 1}, {1, 2}, {2, 1}, {2, 2}, {3, 1}, {3, 3},
		{4, 3}, {5, 7}, {7, 5}, {16, 9}, {640, 480},
	}
	for _, sz := range sizes {
		w, h := sz[0], sz[1]
		t.Run(fmt.Sprintf("%dx%d", w, h), func(t *testing.T) {
			rgb, err := ToRGB(w, h, solid(w, h, 128, 128, 128))
			if err != nil {
				t.Fatalf("ToRGB() error = %v", err)
			}
			if len(rgb) != w*h*3 {
				t.Fatalf("len = %d, want %d", len(rgb), w*h*3)
			}
			for i, b := range rgb {
				if b != 128 {
					t.Fatalf("byte %d = %d, want 128", i, b)
				}
			}
		})
	}
}

func TestToRGBRejectsBadInput(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		src           []byte
	}{
		{name: "short", width: 2, height: 2, src: make([]byte, 7)},
		{name: "long", width: 2, height: 2, src: make([]byte, 9)},
		{name: "nil", width: 2, height: 2, src: nil},
		{name: "zero width", width: 0, height: 2, src: nil},
		{name: "negative height", width: 2, height: -1, src: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rgb, err := ToRGB(tt.width, tt.height, tt.src)
			if !errors.Is(err, camerr.ErrPrecondition) {
				t.Fatalf("ToRGB() error = %v, want precondition error", err)
			}
			if rgb != nil {
				t.Errorf("ToRGB() returned %d bytes on error", len(rgb))
			}
		})
	}
}

func TestToRGBIntoReusesBuffer(t *testing.T) {
	dst := make([]byte, RGBSize(2, 2))
	if err := ToRGBInto(dst, 2, 2, solid(2, 2, 255, 128, 128)); err != nil {
		t.Fatalf("ToRGBInto() error = %v", err)
	}
	for i, b := range dst {
		if b != 255 {
			t.Fatalf("byte %d = %d, want 255", i, b)
		}
	}

	err := ToRGBInto(make([]byte, 5), 2, 2, solid(2, 2, 0, 0, 0))
	if !errors.Is(err, camerr.ErrPrecondition) {
		t.Errorf("ToRGBInto() with short dst error = %v, want precondition error", err)
	}
}

func BenchmarkToRGB640x480(b *testing.B) {
	src := solid(640, 480, 90, 140, 110)
	dst := make([]byte, RGBSize(640, 480))
	b.SetBytes(int64(len(src)))
	for i := 0; i < b.N; i++ {
		if err := ToRGBInto(dst, 640, 480, src); err != nil {
			b.Fatal(err)
		}
	}
}
