package generation

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/ManuelReschke/ArtFox/internal/pkg/upload"
)

const (
	DefaultMaxDimension = 1536
	jpegQuality         = 90
)

// PreparedImage is the normalized source image sent to the provider.
type PreparedImage struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// PrepareImage validates an upload, applies EXIF orientation, fits it into
// maxDim x maxDim and re-encodes it as JPEG.
func PrepareImage(filename string, data []byte, maxDim int) (*PreparedImage, error) {
	if len(data) > upload.MaxImageBytes {
		return nil, upload.ErrUploadTooLarge
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if _, err := upload.ValidateImageBySniff(filename, head); err != nil {
		return nil, err
	}
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, flatten(img), imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	final := img.Bounds()
	return &PreparedImage{
		Data:        out.Bytes(),
		ContentType: "image/jpeg",
		Width:       final.Dx(),
		Height:      final.Dy(),
	}, nil
}

// flatten puts transparent images on white so JPEG output has no black
// background.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
