package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"sort"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
)

const (
	// minShortSide is the smallest short edge handed to OCR; smaller scans are
	// upscaled first.
	minShortSide = 600

	thresholdBlock = 11
	thresholdC     = 2
)

var cropDecoder = sonic.Config{UseNumber: true}.Froze()

type ImageProcessor struct {
	maxPixels int64
	log       *zap.Logger
}

// NewImageProcessor returns a processor that refuses images with more than
// maxPixels pixels. Zero disables the limit.
func NewImageProcessor(maxPixels int64, log *zap.Logger) *ImageProcessor {
	return &ImageProcessor{maxPixels: maxPixels, log: log}
}

// Decode decodes any registered format: JPEG, PNG, GIF, BMP, TIFF and WebP.
// Dimensions are read from the header first so an oversized raster is never
// allocated.
func (p *ImageProcessor) Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty upload", domain.ErrInvalidImage)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); p.maxPixels > 0 && pixels > p.maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", domain.ErrInvalidImage, cfg.Width, cfg.Height, p.maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", domain.ErrInvalidImage)
	}
	return img, format, nil
}

// Crop returns the part of img selected by c. Coordinates are clamped so the
// result always holds at least one pixel. A nil crop returns img unchanged.
func (p *ImageProcessor) Crop(img image.Image, c *domain.Crop) image.Image {
	if c == nil {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	x := clamp(c.X, 0, w-1)
	y := clamp(c.Y, 0, h-1)
	width := clamp(c.Width, 1, w-x)
	height := clamp(c.Height, 1, h-y)

	rect := image.Rect(x, y, x+width, y+height).Add(b.Min)

	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(dst, dst.Bounds(), img, rect.Min, xdraw.Src)
	return dst
}

// Enhance prepares a scan for OCR: grayscale, upscale small images, adaptive
// Gaussian threshold and a 3x3 median filter.
func (p *ImageProcessor) Enhance(img image.Image) *image.Gray {
	gray := toGray(img)
	gray = upscale(gray)
	binary := adaptiveThreshold(gray, thresholdBlock, thresholdC)
	denoised := medianFilter(binary)

	if p.log != nil {
		p.log.Debug("Image enhanced",
			zap.Int("width", denoised.Bounds().Dx()),
			zap.Int("height", denoised.Bounds().Dy()))
	}
	return denoised
}

func (p *ImageProcessor) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseCrop parses the crop_data form field. All four keys are required.
func ParseCrop(raw string) (*domain.Crop, error) {
	if raw == "" {
		return nil, nil
	}
	var fields map[string]json.Number
	if err := cropDecoder.UnmarshalFromString(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid crop data: %w", err)
	}

	var vals [4]int
	for i, key := range []string{"x", "y", "width", "height"} {
		n, ok := fields[key]
		if !ok {
			return nil, fmt.Errorf("invalid crop data: missing %q", key)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid crop data: %q: %w", key, err)
		}
		vals[i] = int(f)
	}

	return &domain.Crop{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(gray, gray.Bounds(), img, b.Min, xdraw.Src)
	return gray
}

func upscale(src *image.Gray) *image.Gray {
	b := src.Bounds()
	short := b.Dx()
	if b.Dy() < short {
		short = b.Dy()
	}
	if short >= minShortSide {
		return src
	}
	scale := float64(minShortSide) / float64(short)
	w := int(math.Round(float64(b.Dx()) * scale))
	h := int(math.Round(float64(b.Dy()) * scale))
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	half := size / 2
	kernel := make([]float64, size)
	var sum float64
	for i := range kernel {
		d := float64(i - half)
		kernel[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// adaptiveThreshold sets a pixel white when it is brighter than its
// Gaussian-weighted neighbourhood mean minus c, black otherwise.
func adaptiveThreshold(src *image.Gray, block int, c float64) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	kernel := gaussianKernel(block)
	half := block / 2

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			var acc float64
			for k := -half; k <= half; k++ {
				acc += kernel[k+half] * float64(row[clamp(x+k, 0, w-1)])
			}
			tmp[y*w+x] = acc
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var mean float64
			for k := -half; k <= half; k++ {
				mean += kernel[k+half] * tmp[clamp(y+k, 0, h-1)*w+x]
			}
			if float64(src.Pix[y*src.Stride+x]) > mean-c {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

func medianFilter(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	window := make([]int, 0, 9)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					px := clamp(x+dx, 0, w-1)
					py := clamp(y+dy, 0, h-1)
					window = append(window, int(src.Pix[py*src.Stride+px]))
				}
			}
			sort.Ints(window)
			dst.Pix[y*dst.Stride+x] = uint8(window[4])
		}
	}
	return dst
}
