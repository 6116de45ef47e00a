package assemble

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Downscale returns pngData scaled to maxWidth pixels wide, keeping the
// aspect ratio. Images already narrow enough are returned unchanged.
func Downscale(pngData []byte, maxWidth int) ([]byte, error) {
	if maxWidth <= 0 {
		return pngData, nil
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("assemble: decode png header: %w", err)
	}
	if cfg.Width <= maxWidth {
		return pngData, nil
	}
	src, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("assemble: decode png: %w", err)
	}
	h := cfg.Height * maxWidth / cfg.Width
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("assemble: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail scales pngData to width pixels with a faster kernel.
func Thumbnail(pngData []byte, width int) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("assemble: decode png: %w", err)
	}
	b := src.Bounds()
	if width <= 0 || width >= b.Dx() {
		return pngData, nil
	}
	h := max(b.Dy()*width/b.Dx(), 1)
	dst := image.NewRGBA(image.Rect(0, 0, width, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("assemble: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func pngSize(pngData []byte) (int, int, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(pngData))
	if err != nil {
		return 0, 0, fmt.Errorf("assemble: decode png header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
