// Package qr renders pairing codes as scannable SVG images.
package qr

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	moduleSize = 8
	quietZone  = 4
)

// ToSVG encodes content as a QR code and renders it as a standalone SVG
// document, one rect per dark module with a quiet-zone border.
func ToSVG(content string) (string, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	code.DisableBorder = true

	bitmap := code.Bitmap()
	size := len(bitmap)
	canvas := (size + 2*quietZone) * moduleSize

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" shape-rendering="crispEdges">`, canvas, canvas)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`, canvas, canvas)

	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="#000000"/>`,
				(x+quietZone)*moduleSize, (y+quietZone)*moduleSize, moduleSize, moduleSize)
		}
	}

	b.WriteString(`</svg>`)
	return b.String(), nil
}
