package media

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// Validation failures returned by CheckPicture.
var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrFileTooLarge     = errors.New("file exceeds the maximum size")
	ErrUnsupportedType  = errors.New("only jpg, jpeg, png and gif images are allowed")
	ErrUndecodableImage = errors.New("file is not a readable image")
)

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
}

var allowedMIMEs = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
}

// CheckPicture validates an uploaded profile picture by name, size and sniffed content type.
func CheckPicture(filename string, data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return ErrEmptyFile
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return ErrFileTooLarge
	}
	if _, ok := allowedExtensions[strings.ToLower(filepath.Ext(filename))]; !ok {
		return ErrUnsupportedType
	}
	if _, ok := allowedMIMEs[mimetype.Detect(data).String()]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// NormalizePicture decodes the image, fits it inside a maxDim square and
// re-encodes it as JPEG.
func NormalizePicture(data []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = 512
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > maxDim || bounds.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode picture: %w", err)
	}
	return buf.Bytes(), nil
}
