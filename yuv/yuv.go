// Package yuv converts packed YUYV (YUV 4:2:2) frames to RGB888.
//
// In YUYV every four bytes hold two pixels: two luma samples sharing one
// Cb/Cr pair, laid out as [Y0 U Y1 V]. The conversion uses the BT.601
// full-range coefficients:
//
//	R = Y + 1.402 (V-128)
//	G = Y - 0.344 (U-128) - 0.714 (V-128)
//	B = Y + 1.772 (U-128)
package yuv

import "yuvsnap/camerr"

const (
	// BytesPerPixel of a packed YUYV frame.
	BytesPerPixel = 2
	// RGBBytesPerPixel of the converted output.
	RGBBytesPerPixel = 3
)

// FrameSize returns the YUYV byte length of a width x height frame.
func FrameSize(width, height int) int {
	return width * height * BytesPerPixel
}

// RGBSize returns the RGB888 byte length of a width x height image.
func RGBSize(width, height int) int {
	return width * height * RGBBytesPerPixel
}

// ToRGB converts src into a newly allocated RGB888 buffer.
func ToRGB(width, height int, src []byte) ([]byte, error) {
	if err := checkSource(width, height, src); err != nil {
		return nil, err
	}
	dst := make([]byte, RGBSize(width, height))
	convert(dst, width, height, src)
	return dst, nil
}

// ToRGBInto converts src into dst, which must be exactly RGBSize bytes.
func ToRGBInto(dst []byte, width, height int, src []byte) error {
	if err := checkSource(width, height, src); err != nil {
		return err
	}
	if len(dst) != RGBSize(width, height) {
		return camerr.Precondition("convert", "rgb buffer is %d bytes, want %d for %dx%d",
			len(dst), RGBSize(width, height), width, height)
	}
	convert(dst, width, height, src)
	return nil
}

func checkSource(width, height int, src []byte) error {
	if width <= 0 || height <= 0 {
		return camerr.Precondition("convert", "invalid frame size %dx%d", width, height)
	}
	if len(src) != FrameSize(width, height) {
		return camerr.Precondition("convert", "yuyv buffer is %d bytes, want %d for %dx%d",
			len(src), FrameSize(width, height), width, height)
	}
	return nil
}

// convert walks luma two bytes at a time and moves to the next chroma pair
// after every odd column. The chroma position is not realigned at the start
// of a row, so odd widths share pairs across row boundaries.
func convert(dst []byte, width, height int, src []byte) {
	y, c, o := 0, 0, 0
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			u := float64(src[c+1]) - 128
			// A single-row frame with an odd width ends on half a group;
			// its missing V sample is treated as neutral.
			v := 0.0
			if c+3 < len(src) {
				v = float64(src[c+3]) - 128
			}
			l := float64(src[y])

			// Explicit conversions keep the products rounded, no fused multiply-add.
			dst[o] = clip(l + float64(1.402*v))
			dst[o+1] = clip(l - float64(0.344*u) - float64(0.714*v))
			dst[o+2] = clip(l + float64(1.772*u))

			y += BytesPerPixel
			o += RGBBytesPerPixel
			if col&1 == 1 {
				c += 4
			}
		}
	}
}

// clip saturates x to [0,255]; values in range truncate toward zero.
func clip(x float64) byte {
	switch {
	case x >= 255:
		return 255
	case x <= 0:
		return 0
	default:
		return byte(x)
	}
}
