// Package imgutil loads and prepares capture frames: alpha compositing onto
// a solid background, visibility-mask extraction and downsampling.
package imgutil

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Load decodes the image at path.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading image %q", path)
	}
	return img, nil
}

// Resize scales an image to exactly width x height.
func Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// Downsample scales an image down by an integer factor; a factor of 1 or
// less returns the image unchanged.
func Downsample(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	bounds := img.Bounds()
	return imaging.Resize(img, bounds.Dx()/factor, bounds.Dy()/factor, imaging.Lanczos)
}

// Flatten composites an image onto a solid white or black background and
// returns the flattened RGB image together with the source alpha channel as
// a visibility mask.
func Flatten(img image.Image, whiteBackground bool) (image.Image, *image.Alpha) {
	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	mask := image.NewAlpha(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	var bg float64
	if whiteBackground {
		bg = 255
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			a := float64(c.A) / 255.0
			blend := func(v uint8) uint8 {
				return uint8(float64(v)*a + bg*(1-a) + 0.5)
			}
			ox, oy := x-bounds.Min.X, y-bounds.Min.Y
			out.SetNRGBA(ox, oy, color.NRGBA{R: blend(c.R), G: blend(c.G), B: blend(c.B), A: 255})
			mask.SetAlpha(ox, oy, color.Alpha{A: c.A})
		}
	}
	return out, mask
}

// MaskVisible reports whether the mask is opaque (any coverage) at a pixel.
func MaskVisible(mask *image.Alpha, x, y int) bool {
	return mask.AlphaAt(x, y).A > 0
}
