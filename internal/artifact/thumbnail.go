package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ErrDecode is returned when the source bytes are not a decodable image.
var ErrDecode = errors.New("image decode failed")

// Box is the target thumbnail size in pixels.
type Box struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DefaultBox matches the gallery grid cell.
var DefaultBox = Box{Width: 320, Height: 240}

// Thumbnail scales src to fit inside box, preserving aspect ratio, and
// centers it on a box-sized black canvas. The result is JPEG encoded at
// quality. Thumbnail has no side effects.
func Thumbnail(src []byte, box Box, quality int) ([]byte, error) {
	if box.Width <= 0 || box.Height <= 0 {
		return nil, fmt.Errorf("invalid thumbnail box %dx%d", box.Width, box.Height)
	}
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, box.Width, box.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(canvas, FitRect(img.Bounds().Dx(), img.Bounds().Dy(), box), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// FitRect returns the rectangle, inside box, that a width x height image
// occupies once scaled to fit and centered.
func FitRect(width, height int, box Box) image.Rectangle {
	if width <= 0 || height <= 0 {
		return image.Rectangle{}
	}

	scaledW := box.Width
	scaledH := height * box.Width / width
	if scaledH > box.Height {
		scaledH = box.Height
		scaledW = width * box.Height / height
	}
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}

	x := (box.Width - scaledW) / 2
	y := (box.Height - scaledH) / 2
	return image.Rect(x, y, x+scaledW, y+scaledH)
}
