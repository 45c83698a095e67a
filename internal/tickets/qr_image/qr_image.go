package qr_image

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

// Render encodes a ticket's scan token as a PNG for display in wallets and
// confirmation emails. The image is derived from the token alone, so it can
// be regenerated at any time without touching storage.
func Render(qrToken string) ([]byte, error) {
	png, err := qrcode.Encode(qrToken, qrcode.Medium, defaultSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr image: %w", err)
	}
	return png, nil
}
