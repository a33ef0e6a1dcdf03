package utils

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
)

func whiteImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	p := NewImageProcessor(0, zap.NewNop())

	img, format, err := p.Decode(encode(t, whiteImage(20, 10)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, _, err = p.Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, domain.ErrInvalidImage)

	_, _, err = p.Decode(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)
}

func TestCropClamps(t *testing.T) {
	p := NewImageProcessor(0, zap.NewNop())
	img := whiteImage(100, 50)

	tests := []struct {
		name string
		crop *domain.Crop
		want image.Rectangle
	}{
		{name: "nil crop", crop: nil, want: image.Rect(0, 0, 100, 50)},
		{name: "inside", crop: &domain.Crop{X: 10, Y: 5, Width: 20, Height: 10}, want: image.Rect(10, 5, 30, 15)},
		{name: "negative origin", crop: &domain.Crop{X: -5, Y: -5, Width: 10, Height: 10}, want: image.Rect(0, 0, 10, 10)},
		{name: "overflowing size", crop: &domain.Crop{X: 90, Y: 40, Width: 500, Height: 500}, want: image.Rect(90, 40, 100, 50)},
		{name: "origin past edge", crop: &domain.Crop{X: 200, Y: 200, Width: 10, Height: 10}, want: image.Rect(99, 49, 100, 50)},
		{name: "zero size", crop: &domain.Crop{X: 0, Y: 0, Width: 0, Height: 0}, want: image.Rect(0, 0, 1, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Crop(img, tt.crop)
			assert.Equal(t, tt.want, got.Bounds())
		})
	}
}

func TestEnhanceProducesBinaryImage(t *testing.T) {
	p := NewImageProcessor(0, zap.NewNop())
	img := whiteImage(40, 40)
	for y := 15; y < 25; y++ {
		for x := 5; x < 35; x++ {
			img.Set(x, y, color.Black)
		}
	}

	out := p.Enhance(img)

	// upscaled so the short side reaches the OCR minimum
	assert.Equal(t, minShortSide, out.Bounds().Dx())
	assert.Equal(t, minShortSide, out.Bounds().Dy())
	for _, v := range out.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("expected binary output, found %d", v)
		}
	}
	// background stays white
	assert.Equal(t, uint8(255), out.GrayAt(2, 2).Y)
}

func TestEnhanceKeepsLargeImageSize(t *testing.T) {
	p := NewImageProcessor(0, zap.NewNop())
	out := p.Enhance(whiteImage(700, 650))
	assert.Equal(t, image.Rect(0, 0, 700, 650), out.Bounds())
}

func TestParseCrop(t *testing.T) {
	crop, err := ParseCrop(`{"x": 10, "y": 20.7, "width": 30, "height": 40}`)
	require.NoError(t, err)
	assert.Equal(t, &domain.Crop{X: 10, Y: 20, Width: 30, Height: 40}, crop)

	crop, err = ParseCrop("")
	assert.NoError(t, err)
	assert.Nil(t, crop)

	_, err = ParseCrop(`{"x": 1, "y": 2}`)
	assert.Error(t, err)

	_, err = ParseCrop(`not json`)
	assert.Error(t, err)
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, whiteImage(8, 8), &jpeg.Options{Quality: 80}))

	_, format, err := NewImageProcessor(0, zap.NewNop()).Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

// pngHeader returns a PNG that stops after its IHDR chunk. The header is
// valid, so DecodeConfig reports the declared size.
func pngHeader(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	chunk := make([]byte, 0, 17)
	chunk = append(chunk, "IHDR"...)
	chunk = binary.BigEndian.AppendUint32(chunk, width)
	chunk = binary.BigEndian.AppendUint32(chunk, height)
	chunk = append(chunk, 8, 0, 0, 0, 0) // 8-bit grayscale

	_ = binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodeRejectsTooManyPixels(t *testing.T) {
	p := NewImageProcessor(40_000_000, zap.NewNop())

	data := pngHeader(100_000, 100_000)
	assert.Less(t, len(data), 64)

	_, _, err := p.Decode(data)
	require.ErrorIs(t, err, domain.ErrInvalidImage)
	assert.Contains(t, err.Error(), "100000x100000 exceeds 40000000 pixels")

	_, _, err = NewImageProcessor(100, zap.NewNop()).Decode(encode(t, whiteImage(20, 10)))
	assert.ErrorContains(t, err, "exceeds 100 pixels")

	img, _, err := NewImageProcessor(200, zap.NewNop()).Decode(encode(t, whiteImage(20, 10)))
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
}
