package media

import (
	"context"
	"fmt"
	"image"
	"os"

	// Register the still codecs the engine accepts natively.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// stillExtensions are the asset suffixes decoded as stills.
var stillExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// decodeStillFile decodes a still image and resamples it to w x h.
// Exact-size images skip the resample entirely.
func decodeStillFile(ctx context.Context, path string, w, h int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if bounds.Dx() == w && bounds.Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	} else {
		// Catmull-Rom keeps edges crisp at the downscales the draft
		// pipeline leans on.
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	}
	return dst.Pix, nil
}
