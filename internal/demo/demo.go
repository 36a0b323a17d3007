// Package demo renders the synthetic screenshot used by the demo smoke test.
package demo

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FileName is the name of the rendered demo image
const FileName = "demo_test.png"

// Size of the rendered image
const (
	Width  = 1100
	Height = 500
)

// Lines is the text drawn on the demo image, top to bottom
var Lines = []string{
	"VaultGuard Security OCR Demo",
	"Windows Security: ON",
	"Firewall: ENABLED",
	"Antivirus: UP TO DATE",
	"SmartScreen: ENABLED",
	"Password policy: STRONG",
	"Backup: OFF (RISK)",
}

// Text returns Lines joined by newlines, the reference for accuracy checks
func Text() string {
	return strings.Join(Lines, "\n")
}

// scale is the magnification from the 7x13 bitmap font to roughly 34px text
const scale = 3

// Render draws Lines in black on a white Width x Height canvas
func Render() image.Image {
	small := image.NewGray(image.Rect(0, 0, Width/scale, Height/scale))
	xdraw.Draw(small, small.Bounds(), image.White, image.Point{}, xdraw.Src)

	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	y := 10 + basicfont.Face7x13.Ascent
	for _, line := range Lines {
		d.Dot = fixed.P(13, y)
		d.DrawString(line)
		y += 18
	}

	out := image.NewGray(image.Rect(0, 0, Width, Height))
	xdraw.CatmullRom.Scale(out, out.Bounds(), small, small.Bounds(), xdraw.Src, nil)
	return out
}

// RenderPNG returns Render encoded as PNG
func RenderPNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Render()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
