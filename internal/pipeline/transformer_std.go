package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/pixelgate/pixelgate/internal/domain"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

type stdlibTransformer struct{}

func (t stdlibTransformer) Transform(ctx context.Context, input []byte, plan domain.TransformPlan) ([]byte, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	default:
	}

	src, srcFormat, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}

	out := src
	if plan.HasResize() {
		bounds := src.Bounds()
		w, h := targetSize(plan, bounds.Dx(), bounds.Dy())
		out = resizeImage(src, w, h)
	}

	// Orientation correction runs after resize so the output is upright
	// regardless of how the source was stored.
	if tag, ok := exifOrientation(input); ok {
		out = orientImage(out, tag)
	}

	format, spec := resolveFormat(plan.Format, srcFormat)
	if !spec.keepsAlpha && !isOpaque(out) {
		out = flattenToOpaque(out)
	}

	data, err := encodeImage(out, format, plan.Quality)
	if err != nil {
		return nil, "", err
	}
	return data, spec.contentType, nil
}

func resizeImage(src image.Image, width, height int) image.Image {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

// flattenToOpaque composites the image over white, producing a fully opaque
// RGB representation for lossy targets that carry no alpha channel.
func flattenToOpaque(src image.Image) image.Image {
	dst := image.NewRGBA(src.Bounds())
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, xdraw.Over)
	return dst
}

func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case "jpeg":
		if quality <= 0 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, &EncodeError{Format: format, Err: err}
		}
	case "png":
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, &EncodeError{Format: format, Err: err}
		}
	case "gif":
		if err := gif.Encode(&buf, img, &gif.Options{NumColors: 256}); err != nil {
			return nil, &EncodeError{Format: format, Err: err}
		}
	case "webp", "avif":
		return nil, &EncodeError{Format: format, Err: errors.New("export requires govips build tag")}
	default:
		return nil, &EncodeError{Format: format, Err: fmt.Errorf("unsupported output format")}
	}

	return buf.Bytes(), nil
}
