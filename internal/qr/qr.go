// Package qr renders the QR codes students scan to reach the submission page.
package qr

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 300

// ErrNoBaseURL is returned when no public base URL is configured.
var ErrNoBaseURL = errors.New("public base URL not set")

// ScanURL returns <baseURL>/scan?cours=<course>.
func ScanURL(baseURL, course string) (string, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return "", ErrNoBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/scan"
	u.RawQuery = url.Values{"cours": {course}}.Encode()
	return u.String(), nil
}

// PNG encodes content as a QR code image of size pixels.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}

// WriteFile renders the scan URL for course into path, creating parent
// directories as needed.
func WriteFile(path, baseURL, course string) (string, error) {
	target, err := ScanURL(baseURL, course)
	if err != nil {
		return "", err
	}
	png, err := PNG(target, DefaultSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return target, nil
}
