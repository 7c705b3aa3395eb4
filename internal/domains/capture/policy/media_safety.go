package policy

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"net/http"
	"strings"
	"time"

	"verisay/go-client/pkg/models"
)

const (
	maxImageWidth  = 8192
	maxImageHeight = 8192
	maxImagePixels = 30_000_000

	// DefaultImageQuality matches the face camera's compression setting.
	DefaultImageQuality = 0.5

	maxMediaBytes = 64 << 20
)

var (
	ErrInvalidImage   = errors.New("invalid image payload")
	ErrImageTooLarge  = errors.New("image dimensions exceed safety limits")
	ErrInvalidAudio   = errors.New("audio is not a RIFF/WAVE recording")
	ErrMediaTooLarge  = errors.New("media exceeds maximum size")
	ErrInvalidQuality = errors.New("image quality must be in (0,1]")
)

// NormalizeImage decodes a JPEG, PNG or GIF still and re-encodes it as JPEG at quality.
func NormalizeImage(data []byte, quality float64) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}
	if len(data) > maxMediaBytes {
		return nil, ErrMediaTooLarge
	}
	percent, err := QualityPercent(quality)
	if err != nil {
		return nil, err
	}
	if !isSupportedImageMime(strings.ToLower(http.DetectContentType(data))) {
		return nil, ErrInvalidImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidImage
	}
	if !isSafeImageBounds(cfg.Width, cfg.Height) {
		return nil, ErrImageTooLarge
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidImage
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: percent}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return buf.Bytes(), nil
}

// ValidateWAV checks the RIFF/WAVE container header.
func ValidateWAV(data []byte) error {
	if len(data) > maxMediaBytes {
		return ErrMediaTooLarge
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return ErrInvalidAudio
	}
	return nil
}

// QualityPercent maps a (0,1] compression quality onto the JPEG 1..100 scale; zero means default.
func QualityPercent(quality float64) (int, error) {
	if quality == 0 {
		quality = DefaultImageQuality
	}
	if math.IsNaN(quality) || quality < 0 || quality > 1 {
		return 0, ErrInvalidQuality
	}
	percent := int(math.Round(quality * 100))
	if percent < 1 {
		percent = 1
	}
	return percent, nil
}

// SampleRate returns the recording sample rate for an audio preset.
func SampleRate(preset models.AudioPreset) int {
	if preset == models.AudioPresetLow {
		return 16000
	}
	return 44100
}

// NormalizeOptions fills defaults and rejects values the devices cannot honour.
func NormalizeOptions(kind models.CaptureKind, opts models.CaptureOptions, defaultDuration time.Duration) (models.CaptureOptions, error) {
	switch kind {
	case models.CaptureKindImage:
		if opts.Camera == "" {
			opts.Camera = models.CameraFront
		}
		if opts.Camera != models.CameraFront && opts.Camera != models.CameraRear {
			return models.CaptureOptions{}, fmt.Errorf("unknown camera %q", opts.Camera)
		}
		if opts.Quality == 0 {
			opts.Quality = DefaultImageQuality
		}
		if _, err := QualityPercent(opts.Quality); err != nil {
			return models.CaptureOptions{}, err
		}
	case models.CaptureKindAudio:
		if opts.AudioPreset == "" {
			opts.AudioPreset = models.AudioPresetHigh
		}
		if opts.AudioPreset != models.AudioPresetHigh && opts.AudioPreset != models.AudioPresetLow {
			return models.CaptureOptions{}, fmt.Errorf("unknown audio preset %q", opts.AudioPreset)
		}
		if opts.Duration <= 0 {
			opts.Duration = defaultDuration
		}
	default:
		return models.CaptureOptions{}, fmt.Errorf("unknown capture kind %q", kind)
	}
	opts.Source = strings.TrimSpace(opts.Source)
	return opts, nil
}

func flatten(img image.Image) image.Image {
	if _, ok := img.(*image.Paletted); !ok {
		return img
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}

func isSupportedImageMime(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif":
		return true
	default:
		return false
	}
}

func isSafeImageBounds(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	if width > maxImageWidth || height > maxImageHeight {
		return false
	}
	return int64(width)*int64(height) <= maxImagePixels
}
