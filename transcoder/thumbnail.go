package transcoder

import (
	"image/jpeg"
	"os"

	"github.com/nfnt/resize"
)

const (
	thumbnailMaxWidth  = 640
	thumbnailMaxHeight = 360
)

// ShrinkThumbnail bounds a captured frame to thumbnail size, re-encoding it
// in place. Frames already within bounds are rewritten unchanged.
func ShrinkThumbnail(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	img, err := jpeg.Decode(f)
	f.Close()
	if err != nil {
		return err
	}

	small := resize.Thumbnail(thumbnailMaxWidth, thumbnailMaxHeight, img, resize.Lanczos3)

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	return jpeg.Encode(out, small, nil)
}
