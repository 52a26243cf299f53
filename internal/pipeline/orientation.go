package pipeline

import (
	"bytes"
	"image"

	"github.com/rwcarlsen/goexif/exif"
)

// exifOrientation reads the EXIF orientation tag from the raw source bytes.
// ok is false when the source has no EXIF block, the tag is absent, or the
// image is already upright.
func exifOrientation(input []byte) (int, bool) {
	x, err := exif.Decode(bytes.NewReader(input))
	if err != nil {
		return 0, false
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0, false
	}

	orientation, err := tag.Int(0)
	if err != nil || orientation <= 1 || orientation > 8 {
		return 0, false
	}
	return orientation, true
}

// orientImage applies the transpose that makes an image with the given EXIF
// orientation tag visually upright.
func orientImage(src image.Image, orientation int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// Tags 5-8 swap the axes.
	dstW, dstH := w, h
	if orientation >= 5 {
		dstW, dstH = h, w
	}

	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			var sx, sy int
			switch orientation {
			case 2: // mirrored horizontally
				sx, sy = w-1-x, y
			case 3: // rotated 180
				sx, sy = w-1-x, h-1-y
			case 4: // mirrored vertically
				sx, sy = x, h-1-y
			case 5: // transposed
				sx, sy = y, x
			case 6: // rotated 90 CW
				sx, sy = y, h-1-x
			case 7: // transversed
				sx, sy = w-1-y, h-1-x
			case 8: // rotated 270 CW
				sx, sy = w-1-y, x
			default:
				sx, sy = x, y
			}
			dst.Set(x, y, src.At(bounds.Min.X+sx, bounds.Min.Y+sy))
		}
	}
	return dst
}
