// Package media prepares images for the publishing platforms: it converts
// formats the platforms reject and brands free-tier images with a watermark.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/Niabag/Plublista-sub000/internal/storage"
)

var (
	ErrDecodeImage = errors.New("failed to decode image")
	ErrEncodeImage = errors.New("failed to encode image")
)

const (
	convertQuality   = 90
	watermarkQuality = 92
)

type Config struct {
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
}

// Objects is the part of object storage the processor needs.
type Objects interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

type Processor struct {
	objects     Objects
	frontendURL string
	log         *slog.Logger
}

type Option func(*Processor)

func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.log = l }
}

func NewProcessor(objects Objects, cfg Config, opts ...Option) *Processor {
	p := &Processor{
		objects:     objects,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		log:         slog.Default(),
	}
	if p.frontendURL == "" {
		p.frontendURL = "http://localhost:5173"
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NeedsConversion reports keys the platforms do not accept as is.
func NeedsConversion(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), ".webp")
}

// ConvertForPlatform re-encodes every WebP key as JPEG and returns a map from
// old key to new key. Keys that need no conversion are absent from the map.
func (p *Processor) ConvertForPlatform(ctx context.Context, userID, contentItemID uuid.UUID, keys []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, key := range keys {
		if !NeedsConversion(key) {
			continue
		}
		data, err := p.objects.Download(ctx, key)
		if err != nil {
			return out, fmt.Errorf("download %s: %w", key, err)
		}
		jpg, err := ToJPEG(data, convertQuality)
		if err != nil {
			return out, fmt.Errorf("convert %s: %w", key, err)
		}
		newKey := storage.ScopedKey(userID, "converted", contentItemID, "jpg")
		if err := p.objects.Upload(ctx, newKey, jpg, "image/jpeg"); err != nil {
			return out, fmt.Errorf("upload %s: %w", newKey, err)
		}
		out[key] = newKey
		p.log.InfoContext(ctx, "media converted",
			slog.String("from", key),
			slog.String("to", newKey),
		)
	}
	return out, nil
}

// ToJPEG decodes any registered image format (JPEG, PNG, WebP) and encodes
// it as JPEG.
func ToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Join(ErrDecodeImage, err)
	}
	return encodeJPEG(flatten(img), quality)
}

// flatten copies img onto an opaque canvas anchored at the origin.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Join(ErrEncodeImage, err)
	}
	return buf.Bytes(), nil
}
