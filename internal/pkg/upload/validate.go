package upload

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxImageBytes caps a single uploaded source image.
const MaxImageBytes = 15 << 20

var (
	ErrUnsupportedFormat = errors.New("only JPG, JPEG, PNG, GIF, WEBP and BMP images are supported")
	ErrScriptableContent = errors.New("invalid file type: HTML content is not allowed")
	ErrSVGNotSupported   = errors.New("SVG/XML images are not supported")
	ErrUnknownType       = errors.New("the file type is not supported")
	ErrEmptyUpload       = errors.New("the uploaded file is empty")
	ErrUploadTooLarge    = errors.New("the uploaded file is too large")
)

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	// Note: SVG is intentionally excluded due to XSS risk without sanitization
}

var allowedMime = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// ValidateImageBySniff checks the provided filename (extension) and the first bytes (head)
// against a whitelist of image types. Returns detected mime or an error.
func ValidateImageBySniff(filename string, head []byte) (string, error) {
	if len(head) == 0 {
		return "", ErrEmptyUpload
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && !allowedExt[ext] {
		return "", ErrUnsupportedFormat
	}

	detected := http.DetectContentType(head)

	// Block obvious scriptable types regardless of extension
	if strings.HasPrefix(detected, "text/html") || strings.HasPrefix(detected, "application/xhtml") {
		return "", ErrScriptableContent
	}
	if strings.HasPrefix(detected, "text/xml") || strings.HasPrefix(detected, "application/xml") || detected == "image/svg+xml" {
		return "", ErrSVGNotSupported
	}

	if allowedMime[detected] {
		return detected, nil
	}
	return "", ErrUnknownType
}
