package qrtoken

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultImageSize is the PNG width in pixels used when PNG is called with size <= 0.
const DefaultImageSize = 300

// PNG renders a token as a QR code image with medium error correction.
func PNG(token string, size int) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("render qr code: %w", ErrInvalidFormat)
	}
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}
