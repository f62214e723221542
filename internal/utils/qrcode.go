package utils

import (
	"github.com/skip2/go-qrcode"
)

// GenerateQRCode encodes content as a PNG QR code of size x size pixels.
func GenerateQRCode(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
