package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var (
	iconOnce sync.Once
	iconPNG  []byte
)

// iconBytes renders the 16x16 tray icon: a dashed selection frame with a
// text bar inside.
func iconBytes() []byte {
	iconOnce.Do(func() {
		iconPNG = renderIcon(16)
	})
	return iconPNG
}

func renderIcon(size int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	frame := color.NRGBA{R: 0x00, G: 0x78, B: 0xd4, A: 0xff}
	text := color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}

	lo, hi := 1, size-2
	for i := lo; i <= hi; i++ {
		if i%3 == 2 {
			continue // dash gap
		}
		img.SetNRGBA(i, lo, frame)
		img.SetNRGBA(i, hi, frame)
		img.SetNRGBA(lo, i, frame)
		img.SetNRGBA(hi, i, frame)
	}
	for _, y := range []int{size/2 - 2, size / 2, size/2 + 2} {
		for x := 4; x < size-4; x++ {
			img.SetNRGBA(x, y, text)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
