//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/pixelgate/pixelgate/internal/domain"
)

type govipsTransformer struct{}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, plan domain.TransformPlan) ([]byte, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	defer img.Close()

	if plan.HasResize() {
		if err := applyGovipsResize(img, plan); err != nil {
			return nil, "", err
		}
	}

	// Orientation correction runs after resize, matching the default
	// transformer.
	if err := img.AutoRotate(); err != nil {
		return nil, "", &DecodeError{Err: fmt.Errorf("autorotate: %w", err)}
	}

	format, spec := resolveFormat(plan.Format, nativeFormat(input))
	if !spec.keepsAlpha && img.HasAlpha() {
		if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return nil, "", &EncodeError{Format: format, Err: fmt.Errorf("flatten alpha: %w", err)}
		}
	}

	data, err := exportGovipsImage(img, format, plan.Quality)
	if err != nil {
		return nil, "", err
	}
	return data, spec.contentType, nil
}

func applyGovipsResize(img *vips.ImageRef, plan domain.TransformPlan) error {
	srcW, srcH := img.Width(), img.Height()
	if srcW <= 0 || srcH <= 0 {
		return &DecodeError{Err: fmt.Errorf("source image has invalid dimensions")}
	}

	w, h := targetSize(plan, srcW, srcH)
	scale := float64(w) / float64(srcW)
	vscale := float64(h) / float64(srcH)
	if err := img.ResizeWithVScale(scale, vscale, vips.KernelLanczos3); err != nil {
		return &EncodeError{Format: "", Err: fmt.Errorf("resize image: %w", err)}
	}
	return nil
}

func nativeFormat(input []byte) string {
	switch vips.DetermineImageType(input) {
	case vips.ImageTypeJPEG:
		return "jpeg"
	case vips.ImageTypePNG:
		return "png"
	case vips.ImageTypeGIF:
		return "gif"
	case vips.ImageTypeWEBP:
		return "webp"
	case vips.ImageTypeAVIF:
		return "avif"
	default:
		return ""
	}
}

func exportGovipsImage(img *vips.ImageRef, format string, quality int) ([]byte, error) {
	switch format {
	case "jpeg":
		params := vips.NewJpegExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, &EncodeError{Format: format, Err: err}
		}
		return data, nil
	case "png":
		params := vips.NewPngExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, &EncodeError{Format: format, Err: err}
		}
		return data, nil
	case "gif":
		data, _, err := img.ExportGIF(vips.NewGifExportParams())
		if err != nil {
			return nil, &EncodeError{Format: format, Err: err}
		}
		return data, nil
	case "webp":
		params := vips.NewWebpExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, &EncodeError{Format: format, Err: err}
		}
		return data, nil
	case "avif":
		params := vips.NewAvifExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportAvif(params)
		if err != nil {
			return nil, &EncodeError{Format: format, Err: err}
		}
		return data, nil
	default:
		return nil, &EncodeError{Format: format, Err: fmt.Errorf("unsupported output format")}
	}
}
