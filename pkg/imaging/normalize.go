// Package imaging shrinks uploaded receipt photos before they are sent to the vision model.
package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

// Options bound the output image.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// DefaultOptions matches the receipt upload policy: fit within 800x600 at quality 85.
var DefaultOptions = Options{MaxWidth: 800, MaxHeight: 600, Quality: 85}

// Normalize decodes a JPEG or PNG, applies its EXIF orientation, fits it inside the
// configured bounds keeping aspect ratio and re-encodes it as RGB JPEG.
func Normalize(input []byte, opts Options) ([]byte, error) {
	if len(input) == 0 {
		return nil, errors.New("empty image")
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions.Quality
	}

	img, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	img = applyOrientation(img, readOrientation(input))
	img = fit(img, opts.MaxWidth, opts.MaxHeight)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Compress runs Normalize but never fails: the original bytes come back when
// normalization errors or does not make the payload smaller.
func Compress(input []byte, opts Options) []byte {
	out, err := Normalize(input, opts)
	if err != nil || len(out) >= len(input) {
		return input
	}
	return out
}

func readOrientation(input []byte) int {
	x, err := exif.Decode(bytes.NewReader(input))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	ori, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return ori
}

// EXIF orientation 2..8 map to mirror and quarter-turn combinations.
func applyOrientation(src image.Image, ori int) image.Image {
	switch ori {
	case 2:
		return transform(src, false, func(x, y, w, h int) (int, int) { return w - 1 - x, y })
	case 3:
		return transform(src, false, func(x, y, w, h int) (int, int) { return w - 1 - x, h - 1 - y })
	case 4:
		return transform(src, false, func(x, y, w, h int) (int, int) { return x, h - 1 - y })
	case 5:
		return transform(src, true, func(x, y, w, h int) (int, int) { return y, x })
	case 6:
		return transform(src, true, func(x, y, w, h int) (int, int) { return h - 1 - y, x })
	case 7:
		return transform(src, true, func(x, y, w, h int) (int, int) { return h - 1 - y, w - 1 - x })
	case 8:
		return transform(src, true, func(x, y, w, h int) (int, int) { return y, w - 1 - x })
	default:
		return src
	}
}

func transform(src image.Image, swap bool, mapPoint func(x, y, w, h int) (int, int)) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	rect := image.Rect(0, 0, w, h)
	if swap {
		rect = image.Rect(0, 0, h, w)
	}
	dst := image.NewRGBA(rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := mapPoint(x, y, w, h)
			dst.Set(dx, dy, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// fit downsizes src to fit maxW x maxH. Images already inside the box are only
// flattened to RGB.
func fit(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = math.Min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 && h > maxH {
		scale = math.Min(scale, float64(maxH)/float64(h))
	}
	newW := int(math.Max(1, math.Round(float64(w)*scale)))
	newH := int(math.Max(1, math.Round(float64(h)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if scale == 1.0 {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
