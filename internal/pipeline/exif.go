package pipeline

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// ReadOrientation returns the EXIF orientation tag (1-8) found in r, or 1 if
// the data carries no usable EXIF block.
func ReadOrientation(r io.ReadSeeker) int {
	if r == nil {
		return 1
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 1
	}
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orient, err := tag.Int(0)
	if err != nil || orient < 1 || orient > 8 {
		return 1
	}
	return orient
}

// ApplyEXIFOrientation rotates or flips img so that it is displayed upright
// according to the EXIF block in r. Missing or corrupt EXIF leaves img as is.
func ApplyEXIFOrientation(img image.Image, r io.ReadSeeker) image.Image {
	return orientationTransform(img, ReadOrientation(r))
}

var orientations = map[int]func(image.Image) image.Image{
	2: func(img image.Image) image.Image { return imaging.FlipH(img) },
	3: func(img image.Image) image.Image { return imaging.Rotate180(img) },
	4: func(img image.Image) image.Image { return imaging.FlipV(img) },
	5: func(img image.Image) image.Image { return imaging.Transpose(img) },
	6: func(img image.Image) image.Image { return imaging.Rotate270(img) },
	7: func(img image.Image) image.Image { return imaging.Transverse(img) },
	8: func(img image.Image) image.Image { return imaging.Rotate90(img) },
}

// orientationTransform applies the flip/rotation for EXIF orientation values
// 2-8. imaging rotates counter-clockwise, so "rotate 90 CW" is Rotate270.
func orientationTransform(img image.Image, orientation int) image.Image {
	if img == nil {
		return nil
	}
	if fn, ok := orientations[orientation]; ok {
		return fn(img)
	}
	return img
}
