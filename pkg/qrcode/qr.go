// Package qrcode renders QR codes that link a room to its public schedule page.
package qrcode

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	goqr "github.com/skip2/go-qrcode"
)

const defaultSize = 290

// Generator builds schedule links and encodes them as PNG QR codes.
type Generator struct {
	frontendURL string
	size        int
}

// NewGenerator returns a generator for the given frontend origin.
func NewGenerator(frontendURL string, size int) *Generator {
	if size <= 0 {
		size = defaultSize
	}
	return &Generator{frontendURL: strings.TrimRight(frontendURL, "/"), size: size}
}

// ScheduleURL is the link encoded into a room's QR code.
func (g *Generator) ScheduleURL(roomID string) string {
	return fmt.Sprintf("%s/room/%s/schedule", g.frontendURL, url.PathEscape(roomID))
}

// PNG encodes the room's schedule link.
func (g *Generator) PNG(roomID string) ([]byte, error) {
	if roomID == "" {
		return nil, fmt.Errorf("room id required")
	}
	png, err := goqr.Encode(g.ScheduleURL(roomID), goqr.Medium, g.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}

// DataURL returns the PNG as an inline data URI.
func (g *Generator) DataURL(roomID string) (string, error) {
	png, err := g.PNG(roomID)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
