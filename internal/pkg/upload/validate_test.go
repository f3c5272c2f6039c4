package upload

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestValidateImageBySniff(t *testing.T) {
	data := pngBytes(t)

	mime, err := ValidateImageBySniff("photo.png", data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	mime, err = ValidateImageBySniff("", data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = ValidateImageBySniff("photo.svg", data)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ValidateImageBySniff("photo.png", []byte("<html><body>hi</body></html>"))
	assert.ErrorIs(t, err, ErrScriptableContent)

	_, err = ValidateImageBySniff("photo.png", []byte(`<?xml version="1.0"?><svg></svg>`))
	assert.ErrorIs(t, err, ErrSVGNotSupported)

	_, err = ValidateImageBySniff("photo.jpg", []byte("plain text, not an image"))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = ValidateImageBySniff("photo.jpg", nil)
	assert.ErrorIs(t, err, ErrEmptyUpload)
}
