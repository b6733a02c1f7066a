// Package convert holds pixel format conversion routines for emulated
// camera frames.
package convert

import "image/color"

// YUV420ToRGB32 converts one planar YUV 4:2:0 frame to packed 32-bit RGB.
// y holds width*height luma bytes; u and v hold width/2 * height/2 chroma
// bytes each, one sample per 2x2 pixel block. dst receives width*height
// pixels of 4 bytes each (R, G, B, 0xFF) and must be sized accordingly.
func YUV420ToRGB32(y, u, v, dst []byte, width, height int) {
	chromaStride := width / 2
	for row := 0; row < height; row++ {
		lumaRow := row * width
		chromaRow := (row / 2) * chromaStride
		for col := 0; col < width; col++ {
			ci := chromaRow + col/2
			r, g, b := color.YCbCrToRGB(y[lumaRow+col], u[ci], v[ci])
			o := (lumaRow + col) * 4
			dst[o] = r
			dst[o+1] = g
			dst[o+2] = b
			dst[o+3] = 0xFF
		}
	}
}

// RGBToYUV returns the YUV triple for a packed RGB color. Backends use it
// to precompute plane values for synthetic content.
func RGBToYUV(r, g, b uint8) (y, u, v uint8) {
	return color.RGBToYCbCr(r, g, b)
}
