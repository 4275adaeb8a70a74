// Package qrcode renders session share codes as scannable PNG artifacts.
package qrcode

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	qr "github.com/skip2/go-qrcode"
)

const pngSize = 300

// Generator writes QR PNGs under a local uploads directory. The encoded
// payload is the scan URL carrying the share code, so any phone camera lands
// the student on the mark endpoint.
type Generator struct {
	dir     string
	baseURL string
}

// New creates a generator. dir is created if missing.
func New(dir, baseURL string) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("qrcode: create dir %s: %w", dir, err)
	}
	return &Generator{dir: dir, baseURL: baseURL}, nil
}

// Generate renders the PNG and returns its reference path, relative to the
// uploads dir so the API can serve it statically.
func (g *Generator) Generate(code string) (string, error) {
	payload := g.baseURL
	if payload == "" {
		payload = code
	} else {
		payload = fmt.Sprintf("%s/scan?code=%s", g.baseURL, code)
	}
	name := uuid.NewString() + ".png"
	if err := qr.WriteFile(payload, qr.Medium, pngSize, filepath.Join(g.dir, name)); err != nil {
		return "", fmt.Errorf("qrcode: render %s: %w", code, err)
	}
	return name, nil
}
