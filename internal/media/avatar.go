package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultAvatarSize = 256
	maxSourcePixels   = 40_000_000
	jpegQuality       = 85
)

var ErrNotImage = errors.New("media: not a supported image")

type Avatar struct {
	Bytes       []byte
	ContentType string
	Width       int
	Height      int
	Resized     bool
}

// NormalizeAvatar checks that data is a decodable GIF, JPEG, PNG or WebP
// image and scales it down so neither side exceeds maxDim. JPEG and PNG
// sources that already fit are returned unchanged; everything else is
// re-encoded, JPEG as JPEG and the rest as PNG.
func NormalizeAvatar(data []byte, maxDim int) (*Avatar, error) {
	if len(data) == 0 {
		return nil, ErrNotImage
	}
	if maxDim <= 0 {
		maxDim = DefaultAvatarSize
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrNotImage, cfg.Width, cfg.Height)
	}

	fits := cfg.Width <= maxDim && cfg.Height <= maxDim
	if fits && (format == "jpeg" || format == "png") {
		return &Avatar{
			Bytes:       data,
			ContentType: "image/" + format,
			Width:       cfg.Width,
			Height:      cfg.Height,
		}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	width, height := cfg.Width, cfg.Height
	var out image.Image = src
	if !fits {
		width, height = scaleToFit(cfg.Width, cfg.Height, maxDim)
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	contentType := "image/png"
	if format == "jpeg" {
		contentType = "image/jpeg"
		err = jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality})
	} else {
		err = png.Encode(&buf, out)
	}
	if err != nil {
		return nil, fmt.Errorf("media: encode avatar: %w", err)
	}

	return &Avatar{
		Bytes:       buf.Bytes(),
		ContentType: contentType,
		Width:       width,
		Height:      height,
		Resized:     !fits,
	}, nil
}

func scaleToFit(width, height, maxDim int) (int, int) {
	if width >= height {
		return maxDim, atLeastOne(int(math.Round(float64(height) * float64(maxDim) / float64(width))))
	}
	return atLeastOne(int(math.Round(float64(width) * float64(maxDim) / float64(height)))), maxDim
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
