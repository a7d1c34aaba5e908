package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"mime"
)

// JPEGQuality is the quality used for rendered output.
const JPEGQuality = 90

var (
	// ErrUnsupportedFormat is returned for uploads that are neither JPEG nor PNG.
	ErrUnsupportedFormat = errors.New("invalid image format")
	// ErrDecode is returned when the upload cannot be decoded as an image.
	ErrDecode = errors.New("failed to load image")
)

var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// Allowed reports whether contentType is accepted for processing.
func Allowed(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	_, ok := allowedContentTypes[mediaType]
	return ok
}

// Decode validates the declared content type and decodes data.
func Decode(contentType string, data []byte) (image.Image, error) {
	if !Allowed(contentType) {
		return nil, ErrUnsupportedFormat
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// EncodeJPEG encodes img with JPEGQuality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
