package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	scaleFactor = 0.8
	jpegQuality = 85
)

var errNotRaster = errors.New("vector images cannot be compressed")

// Compress decodes a raster image, scales it to 80% of its width keeping the
// aspect ratio, and re-encodes it. It returns the new bytes and their MIME
// type, which differs from mimeType only for WebP input: WebP is re-encoded
// as JPEG. Animated GIFs keep their first frame.
func Compress(data []byte, mimeType string) ([]byte, string, error) {
	if mimeType == mimeSVG {
		return nil, "", errNotRaster
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, "", fmt.Errorf("image has no pixels")
	}
	newW := int(float64(w) * scaleFactor)
	newH := int(float64(newW) / (float64(w) / float64(h)))
	rect := image.Rect(0, 0, max(newW, 1), max(newH, 1))

	var buf bytes.Buffer
	switch mimeType {
	case mimePNG:
		dst := image.NewNRGBA(rect)
		draw.CatmullRom.Scale(dst, rect, src, bounds, draw.Src, nil)
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, dst); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), mimePNG, nil

	case mimeGIF:
		dst := image.NewNRGBA(rect)
		draw.CatmullRom.Scale(dst, rect, src, bounds, draw.Src, nil)
		if err := gif.Encode(&buf, dst, &gif.Options{NumColors: 256}); err != nil {
			return nil, "", fmt.Errorf("encode gif: %w", err)
		}
		return buf.Bytes(), mimeGIF, nil

	case mimeJPEG, mimeWebP:
		dst := image.NewRGBA(rect)
		draw.Draw(dst, rect, image.White, image.Point{}, draw.Src)
		draw.CatmullRom.Scale(dst, rect, src, bounds, draw.Over, nil)
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, "", fmt.Errorf("encode jpeg: %w", err)
		}
		return buf.Bytes(), mimeJPEG, nil

	default:
		return nil, "", fmt.Errorf("unsupported image type %q", mimeType)
	}
}
