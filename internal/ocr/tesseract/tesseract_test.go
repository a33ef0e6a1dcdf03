package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MuhaiminulSajid16/image-to-text/internal/ocr"
)

func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestEngineRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 320, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 45),
	}
	d.DrawString("Amoxicillin 500mg")

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	engine := New()
	res, err := engine.Recognize(context.Background(), ocr.Input{
		Image:     buf.Bytes(),
		Languages: []string{"eng"},
		DPI:       300,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Lines)

	got := strings.ToLower(res.Lines[0].Text)
	assert.Contains(t, got, "500")
	assert.Greater(t, res.Lines[0].Confidence, 0.0)
	assert.LessOrEqual(t, res.Lines[0].Confidence, 1.0)
}

func TestEngineHealth(t *testing.T) {
	ensureTesseractAvailable(t)
	assert.NoError(t, New().CheckHealth(context.Background()))
}
