package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// InputOption configures an Input built by InputFromImage.
type InputOption func(*Input)

// WithLanguages sets the recognition languages.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithDPI records the render resolution.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithPageSegMode sets the page segmentation mode. Tesseract mode 6
// ("single uniform block") suits forms with a fixed layout.
func WithPageSegMode(mode int) InputOption {
	return func(in *Input) { in.PageSegMode = mode }
}

// WithWhitelist restricts recognition to chars.
func WithWhitelist(chars string) InputOption {
	return func(in *Input) { in.Whitelist = chars }
}

// InputFromImage encodes a rendered page as PNG. The ID is stable per page
// so results can be correlated with their page.
func InputFromImage(img image.Image, page int, opts ...InputOption) (Input, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Input{}, fmt.Errorf("encode page image: %w", err)
	}
	in := Input{
		ID:        fmt.Sprintf("page-%d", page),
		Image:     buf.Bytes(),
		PageIndex: page,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}
