// Package media normalizes incoming camera frames: it decodes base64 image
// payloads, downscales them to bounded dimensions, and re-encodes them as
// JPEG to cap payload size and inference cost.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"regexp"

	"golang.org/x/image/draw"

	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder

	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/AltairaLabs/SightRelay/types"
)

// MIMETypeJPEG is the media type of every normalized frame.
const MIMETypeJPEG = "image/jpeg"

// Default normalization bounds.
const (
	DefaultMaxWidth  = 1024
	DefaultMaxHeight = 1024
	DefaultQuality   = 85
)

// ErrInvalidImage is returned when the input is absent, not decodable as
// binary image data, or decodes to zero bytes. Only input validation fails
// hard; processing failures on present data degrade gracefully instead.
var ErrInvalidImage = errors.New("invalid image data")

// dataURIPrefix matches browser-style data-URI prefixes on base64 payloads.
var dataURIPrefix = regexp.MustCompile(`^data:image/[a-zA-Z0-9.+-]+;base64,`)

// NormalizeConfig bounds the normalizer output.
type NormalizeConfig struct {
	// MaxWidth is the maximum output width in pixels.
	MaxWidth int

	// MaxHeight is the maximum output height in pixels.
	MaxHeight int

	// Quality is the JPEG encoding quality (1-100).
	Quality int
}

// DefaultNormalizeConfig returns sensible defaults for frame normalization.
func DefaultNormalizeConfig() NormalizeConfig {
	return NormalizeConfig{
		MaxWidth:  DefaultMaxWidth,
		MaxHeight: DefaultMaxHeight,
		Quality:   DefaultQuality,
	}
}

// Normalizer re-encodes frames to bounded dimensions. Pure and stateless per
// call; safe for concurrent use.
type Normalizer struct {
	cfg NormalizeConfig
}

// NewNormalizer creates a Normalizer with the given bounds. Zero values fall
// back to defaults.
func NewNormalizer(cfg NormalizeConfig) *Normalizer {
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = DefaultMaxWidth
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = DefaultMaxHeight
	}
	if cfg.Quality <= 0 {
		cfg.Quality = DefaultQuality
	}
	return &Normalizer{cfg: cfg}
}

// StripDataURIPrefix removes a data:image/...;base64, prefix if present.
// Payloads without a prefix pass through unchanged.
func StripDataURIPrefix(raw string) string {
	return dataURIPrefix.ReplaceAllString(raw, "")
}

// Normalize decodes a base64 frame payload, downscales it to fit inside the
// configured bounds (preserving aspect ratio, never cropping, never
// upscaling), and re-encodes it as JPEG at the configured quality.
//
// Absent or undecodable-as-base64 input fails with ErrInvalidImage. Any
// failure on present binary data (corrupt image, unsupported subtype,
// encoder fault) is absorbed: the stripped original payload is returned
// unmodified so one malformed frame never blocks the guidance loop.
func (n *Normalizer) Normalize(raw string) (types.NormalizedFrame, error) {
	stripped := StripDataURIPrefix(raw)
	if stripped == "" {
		return types.NormalizedFrame{}, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	data, err := decodeBase64(stripped)
	if err != nil {
		return types.NormalizedFrame{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return types.NormalizedFrame{}, fmt.Errorf("%w: zero-byte payload", ErrInvalidImage)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return n.passthrough(stripped, data), nil
	}

	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()

	targetWidth, targetHeight := fitDimensions(origWidth, origHeight, n.cfg.MaxWidth, n.cfg.MaxHeight)

	scaled := img
	if targetWidth < origWidth || targetHeight < origHeight {
		scaled = downscale(img, targetWidth, targetHeight)
	}

	encoded, err := encodeJPEG(scaled, n.cfg.Quality)
	if err != nil {
		return n.passthrough(stripped, data), nil
	}

	finalBounds := scaled.Bounds()
	return types.NormalizedFrame{
		Data:     base64.StdEncoding.EncodeToString(encoded),
		MIMEType: MIMETypeJPEG,
		Width:    finalBounds.Dx(),
		Height:   finalBounds.Dy(),
		Size:     int64(len(encoded)),
	}, nil
}

// passthrough returns the stripped original payload unmodified. The media
// type is still declared JPEG: the upstream service decodes the data URI
// itself and tolerates subtype mismatches better than a dropped frame.
func (n *Normalizer) passthrough(stripped string, data []byte) types.NormalizedFrame {
	return types.NormalizedFrame{
		Data:     stripped,
		MIMEType: MIMETypeJPEG,
		Size:     int64(len(data)),
		Degraded: true,
	}
}

// decodeBase64 decodes standard base64, tolerating missing padding.
func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// fitDimensions shrinks (origWidth, origHeight) to fit entirely inside
// (maxWidth, maxHeight) while preserving aspect ratio. Images already within
// bounds are returned unchanged: normalization never enlarges.
func fitDimensions(origWidth, origHeight, maxWidth, maxHeight int) (targetWidth, targetHeight int) {
	targetWidth = origWidth
	targetHeight = origHeight

	if maxWidth > 0 && targetWidth > maxWidth {
		ratio := float64(maxWidth) / float64(targetWidth)
		targetWidth = maxWidth
		targetHeight = int(float64(targetHeight) * ratio)
	}

	if maxHeight > 0 && targetHeight > maxHeight {
		ratio := float64(maxHeight) / float64(targetHeight)
		targetHeight = maxHeight
		targetWidth = int(float64(targetWidth) * ratio)
	}

	if targetWidth < 1 {
		targetWidth = 1
	}
	if targetHeight < 1 {
		targetHeight = 1
	}

	return targetWidth, targetHeight
}

// downscale performs the resize using high-quality CatmullRom scaling.
func downscale(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// encodeJPEG encodes an image as JPEG at the given quality.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
