// Package imaging decodes fetched images and re-encodes them as bounded RGB
// JPEGs suitable for durable storage and similarity comparison.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUnsupported reports bytes that no registered decoder accepts.
	ErrUnsupported = errors.New("unsupported image format")
	// ErrTooLarge reports an image whose declared dimensions exceed the pixel budget.
	ErrTooLarge = errors.New("image dimensions exceed pixel budget")
)

// Options bounds the normalized output.
type Options struct {
	// MaxDimension caps the longer edge in pixels. Zero disables scaling.
	MaxDimension int
	// MaxBytes caps the encoded size. Zero disables the cap.
	MaxBytes int
	// Quality is the starting JPEG quality (1-100).
	Quality int
	// MaxPixels caps the declared source width*height checked before any
	// pixel is decoded. Zero uses DefaultMaxPixels.
	MaxPixels int64
}

// DefaultMaxPixels is the source pixel budget applied when Options.MaxPixels is zero.
const DefaultMaxPixels int64 = 50_000_000

const (
	defaultQuality = 90
	minQuality     = 40
	qualityStep    = 10
	shrinkFactor   = 0.8
	minDimension   = 64
)

// Result is a normalized image.
type Result struct {
	Data   []byte
	Width  int
	Height int
	// Format is the decoder name of the source image (jpeg, png, gif, webp).
	Format string
}

// Normalize decodes data, flattens any alpha channel onto white, scales the
// longer edge down to MaxDimension, and encodes a JPEG no larger than MaxBytes.
// Quality is stepped down first, then dimensions, until the cap is met.
// Images declaring more than MaxPixels are rejected with ErrTooLarge.
func Normalize(data []byte, opts Options) (Result, error) {
	cfg, _, err := DecodeConfig(data)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return Result{}, ErrUnsupported
		}
		return Result{}, fmt.Errorf("decode image header: %w", err)
	}
	budget := opts.MaxPixels
	if budget <= 0 {
		budget = DefaultMaxPixels
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > budget {
		return Result{}, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Result{}, ErrUnsupported
		}
		return Result{}, fmt.Errorf("decode image: %w", err)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}

	rgb := scale(flatten(src), opts.MaxDimension)
	for {
		encoded, err := encode(rgb, quality)
		if err != nil {
			return Result{}, err
		}
		bounds := rgb.Bounds()
		if opts.MaxBytes <= 0 || len(encoded) <= opts.MaxBytes {
			return Result{Data: encoded, Width: bounds.Dx(), Height: bounds.Dy(), Format: format}, nil
		}
		if quality > minQuality {
			quality = max(quality-qualityStep, minQuality)
			continue
		}
		longest := max(bounds.Dx(), bounds.Dy())
		next := int(float64(longest) * shrinkFactor)
		if next < minDimension {
			return Result{}, fmt.Errorf("image exceeds %d bytes at minimum size", opts.MaxBytes)
		}
		rgb = scale(rgb, next)
	}
}

// DecodeConfig reports the format and dimensions without decoding pixels.
func DecodeConfig(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return cfg, "", ErrUnsupported
	}
	return cfg, format, err
}

func flatten(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	return dst
}

func scale(src *image.RGBA, maxDimension int) *image.RGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxDimension <= 0 || (w <= maxDimension && h <= maxDimension) {
		return src
	}
	var nw, nh int
	if w >= h {
		nw = maxDimension
		nh = max(1, h*maxDimension/w)
	} else {
		nh = maxDimension
		nw = max(1, w*maxDimension/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
