package main

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/image/draw"
)

const imageSize = 128

// class ids of the trimap
const (
	classPet        = 0
	classBackground = 1
	classOutline    = 2
)

// readImage reads image from file.
func readImage(filename string) (image.Image, error) {
	ext := filepath.Ext(filename)
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".png", ".PNG":
		return png.Decode(f)
	case ".jpg", ".jpeg", ".JPG", ".JPEG":
		return jpeg.Decode(f)
	case ".tiff", ".tif", ".TIFF", ".TIF":
		return tiff.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported image format: %v", ext)
	}
}

// imageTensor resizes img to the network input resolution and converts it to
// a [3 imageSize imageSize] float tensor with values in [0, 1].
func imageTensor(img image.Image, flip bool) *ts.Tensor {
	resized := imaging.Resize(img, imageSize, imageSize, imaging.Lanczos)
	if flip {
		resized = imaging.FlipH(resized)
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, imageSize, imageSize))
	draw.Draw(rgba, rgba.Bounds(), resized, resized.Bounds().Min, draw.Src)

	vals := make([]float32, 3*imageSize*imageSize)
	plane := imageSize * imageSize
	for y := 0; y < imageSize; y++ {
		for x := 0; x < imageSize; x++ {
			off := rgba.PixOffset(x, y)
			p := y*imageSize + x
			vals[p] = float32(rgba.Pix[off]) / 255.0
			vals[plane+p] = float32(rgba.Pix[off+1]) / 255.0
			vals[2*plane+p] = float32(rgba.Pix[off+2]) / 255.0
		}
	}

	return ts.MustOfSlice(vals).MustView([]int64{3, imageSize, imageSize}, true)
}

// maskTensor resizes a trimap image with nearest-neighbor (labels must not
// be interpolated) and converts it to a [imageSize imageSize] int64 label
// map. Trimap pixel values 1, 2, 3 map to classes 0 (pet), 1 (background),
// 2 (outline).
func maskTensor(img image.Image, flip bool) *ts.Tensor {
	resized := resize.Resize(imageSize, imageSize, img, resize.NearestNeighbor)
	if flip {
		resized = imaging.FlipH(resized)
	}

	labels := make([]int64, imageSize*imageSize)
	bounds := resized.Bounds()
	for y := 0; y < imageSize; y++ {
		for x := 0; x < imageSize; x++ {
			gray := color.GrayModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			label := int64(gray.Y) - 1
			if label < classPet {
				label = classPet
			}
			if label > classOutline {
				label = classOutline
			}
			labels[y*imageSize+x] = label
		}
	}

	return ts.MustOfSlice(labels).MustView([]int64{imageSize, imageSize}, true)
}

// maskPalette maps class ids to display colors.
var maskPalette = []color.NRGBA{
	classPet:        {R: 255, G: 128, B: 0, A: 255},
	classBackground: {R: 0, G: 0, B: 0, A: 255},
	classOutline:    {R: 255, G: 255, B: 255, A: 255},
}

// saveMask renders an int64 label map [H W] as a color PNG.
func saveMask(labels *ts.Tensor, path string) error {
	size := labels.MustSize()
	if len(size) != 2 {
		return fmt.Errorf("saveMask wants a [H W] label map, got shape %v", size)
	}
	h, w := int(size[0]), int(size[1])

	vals := labels.Int64Values()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := vals[y*w+x]
			if c < 0 || c >= int64(len(maskPalette)) {
				c = classBackground
			}
			out.SetNRGBA(x, y, maskPalette[c])
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return imaging.Save(out, path)
}
