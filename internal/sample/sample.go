// Package sample renders a synthetic prescription scan for smoke tests.
package sample

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// The page is laid out at half size and scaled up, since basicfont
	// glyphs are 7x13 pixels.
	layoutWidth, layoutHeight = 400, 500
	scale                     = 2
)

type textLine struct {
	x, y int
	text string
}

var page = []textLine{
	{25, 25, "Dr. Smith Medical Clinic"},
	{25, 45, "123 Health Street, Medical City"},
	{25, 65, "Phone: (123) 456-7890"},
	{25, 100, "Patient: John Doe"},
	{25, 120, "Date: 2023-10-15"},
	{25, 150, "Rx:"},
	{50, 175, "Amoxicillin 500mg"},
	{50, 195, "Take 1 capsule three times daily for 7 days"},
	{50, 225, "Metformin 1000mg"},
	{50, 245, "Take 1 tablet twice daily with meals"},
	{25, 300, "Signature: ___________________"},
}

type Options struct {
	// Noise is the standard deviation of the per-pixel Gaussian noise.
	Noise float64
	Seed  uint64
}

func DefaultOptions() Options {
	return Options{Noise: 5, Seed: 1}
}

// Lines returns the text printed on the sample, top to bottom.
func Lines() []string {
	out := make([]string, len(page))
	for i, l := range page {
		out[i] = l.text
	}
	return out
}

// Render draws the prescription page.
func Render(opts Options) *image.RGBA {
	small := image.NewRGBA(image.Rect(0, 0, layoutWidth, layoutHeight))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  small,
		Src:  image.Black,
		Face: basicfont.Face7x13,
	}
	for _, l := range page {
		d.Dot = fixed.P(l.x, l.y)
		d.DrawString(l.text)
	}
	for x := 25; x < layoutWidth-25; x++ {
		small.Set(x, 85, color.Black)
	}

	img := image.NewRGBA(image.Rect(0, 0, layoutWidth*scale, layoutHeight*scale))
	xdraw.CatmullRom.Scale(img, img.Bounds(), small, small.Bounds(), xdraw.Src, nil)

	if opts.Noise > 0 {
		addNoise(img, opts.Noise, opts.Seed)
	}
	return img
}

func addNoise(img *image.RGBA, sigma float64, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := float64(img.Pix[i+c]) + rng.NormFloat64()*sigma
			img.Pix[i+c] = uint8(min(255, max(0, v)))
		}
	}
}

// Encode writes img as "png" or "jpeg".
func Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case "png":
		return png.Encode(w, img)
	case "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteFile renders the sample and saves it, choosing the format from the
// file extension.
func WriteFile(path string, opts Options) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		return fmt.Errorf("output path %q has no extension", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, Render(opts), format); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
