package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnreadable marks input that is not a decodable image.
var ErrUnreadable = errors.New("image unreadable")

// MaxPixels bounds decoded images (about 40 megapixels).
const MaxPixels = 40_000_000

type Info struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Validate reads only the image header.
func Validate(raw []byte) (Info, error) {
	if len(raw) == 0 {
		return Info{}, fmt.Errorf("%w: empty payload", ErrUnreadable)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("%w: zero-sized image", ErrUnreadable)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return Info{}, fmt.Errorf("%w: %dx%d exceeds pixel limit", ErrUnreadable, cfg.Width, cfg.Height)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func Decode(raw []byte) (image.Image, Info, error) {
	info, err := Validate(raw)
	if err != nil {
		return nil, Info{}, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return img, info, nil
}

// Resize scales src to exactly w×h with bilinear interpolation.
func Resize(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// Normalization holds per-channel mean and standard deviation for RGB in [0,1].
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// ImageNet is the normalization used by the bundled MobileNet-family models.
var ImageNet = Normalization{
	Mean: [3]float32{0.485, 0.456, 0.406},
	Std:  [3]float32{0.229, 0.224, 0.225},
}

// Tensor resizes src to size×size and returns an HWC float tensor.
func Tensor(src image.Image, size int, norm Normalization) [][][3]float32 {
	rgba := Resize(src, size, size)
	out := make([][][3]float32, size)
	for y := 0; y < size; y++ {
		row := make([][3]float32, size)
		for x := 0; x < size; x++ {
			i := rgba.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float32(rgba.Pix[i+c]) / 255
				std := norm.Std[c]
				if std == 0 {
					std = 1
				}
				row[x][c] = (v - norm.Mean[c]) / std
			}
		}
		out[y] = row
	}
	return out
}
