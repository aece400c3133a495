package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"net/url"

	"github.com/google/uuid"
	skipqrcode "github.com/skip2/go-qrcode"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Niabag/Plublista-sub000/internal/storage"
)

var ErrQRCode = errors.New("failed to generate QR code")

const watermarkText = "Made with Publista"

var (
	qrForeground = color.NRGBA{R: 255, G: 255, B: 255, A: 0xA6}
	textColor    = color.NRGBA{R: 255, G: 255, B: 255, A: 140}
	shadowColor  = color.NRGBA{A: 89}
)

// Watermark brands the image stored at key and uploads the result as a new
// JPEG. The original object is left untouched.
func (p *Processor) Watermark(ctx context.Context, key string, userID, contentItemID uuid.UUID) (string, error) {
	data, err := p.objects.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", errors.Join(ErrDecodeImage, err)
	}

	branded, err := ApplyWatermark(src, p.TrackingURL(contentItemID))
	if err != nil {
		return "", err
	}
	jpg, err := encodeJPEG(branded, watermarkQuality)
	if err != nil {
		return "", err
	}

	newKey := storage.ScopedKey(userID, "watermarked", contentItemID, "jpg")
	if err := p.objects.Upload(ctx, newKey, jpg, "image/jpeg"); err != nil {
		return "", fmt.Errorf("upload %s: %w", newKey, err)
	}
	return newKey, nil
}

// WatermarkAll brands every key in order. The first failure aborts the batch.
func (p *Processor) WatermarkAll(ctx context.Context, keys []string, userID, contentItemID uuid.UUID) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		newKey, err := p.Watermark(ctx, key, userID, contentItemID)
		if err != nil {
			return nil, err
		}
		out = append(out, newKey)
	}
	return out, nil
}

// TrackingURL is the address encoded in the watermark QR code.
func (p *Processor) TrackingURL(contentItemID uuid.UUID) string {
	return fmt.Sprintf("%s/tv?utm_source=qr_logo&utm_medium=watermark&utm_campaign=%s",
		p.frontendURL, url.QueryEscape(contentItemID.String()))
}

type layout struct {
	qrSize   int
	padding  int
	fontSize int
}

func layoutFor(width int) layout {
	return layout{
		qrSize:   clamp(int(math.Round(float64(width)*0.06)), 48, 80),
		padding:  int(math.Round(float64(width) * 0.025)),
		fontSize: clamp(int(math.Round(float64(width)*0.018)), 12, 36),
	}
}

// ApplyWatermark draws a QR code in the bottom-right corner with a caption
// right-aligned above it.
func ApplyWatermark(src image.Image, target string) (*image.RGBA, error) {
	dst := flatten(src)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	l := layoutFor(w)

	qr, err := skipqrcode.New(target, skipqrcode.Medium)
	if err != nil {
		return nil, errors.Join(ErrQRCode, err)
	}
	qr.ForegroundColor = qrForeground
	qr.BackgroundColor = color.Transparent
	qr.DisableBorder = true
	code := qr.Image(l.qrSize)

	cb := code.Bounds()
	qrLeft := w - cb.Dx() - l.padding
	qrTop := h - cb.Dy() - l.padding
	draw.Draw(dst, image.Rect(qrLeft, qrTop, qrLeft+cb.Dx(), qrTop+cb.Dy()), code, cb.Min, draw.Over)

	textRight := w - l.padding
	baseline := qrTop - int(math.Round(float64(l.padding)*0.4))
	mask := textMask(watermarkText, l.fontSize)
	mb := mask.Bounds()
	rect := image.Rect(textRight-mb.Dx(), baseline-mb.Dy(), textRight, baseline)

	draw.DrawMask(dst, rect.Add(image.Pt(1, 1)), image.NewUniform(shadowColor), image.Point{}, mask, image.Point{}, draw.Over)
	draw.DrawMask(dst, rect, image.NewUniform(textColor), image.Point{}, mask, image.Point{}, draw.Over)
	return dst, nil
}

// textMask renders text with the built-in bitmap face and scales it to the
// requested pixel height.
func textMask(text string, height int) *image.Alpha {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	raw := image.NewAlpha(image.Rect(0, 0, width, face.Height))
	d := &font.Drawer{
		Dst:  raw,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	scaledW := width * height / face.Height
	scaled := image.NewAlpha(image.Rect(0, 0, scaledW, height))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), raw, raw.Bounds(), xdraw.Src, nil)
	return scaled
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
