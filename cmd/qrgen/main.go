package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"presence/internal/config"
	"presence/internal/logging"
	"presence/internal/qr"
)

// qrgen writes the QR code pointing at <PUBLIC_URL>/scan?cours=<course>.
func main() {
	cfg := config.Load()

	course := flag.String("course", cfg.DefaultCourse, "course label encoded in the scan URL")
	out := flag.String("out", "", "output PNG path (default <STATIC_DIR>/qr_<course>.png)")
	baseURL := flag.String("base-url", cfg.PublicURL, "public base URL of the service (PUBLIC_URL or REPLIT_URL)")
	flag.Parse()

	logger, flush, err := logging.Install(cfg.Production(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer flush()

	path := *out
	if path == "" {
		path = filepath.Join(cfg.StaticDir, fmt.Sprintf("qr_%s.png", *course))
	}

	target, err := qr.WriteFile(path, *baseURL, *course)
	if errors.Is(err, qr.ErrNoBaseURL) {
		logger.Warn("PUBLIC_URL not set, nothing generated; set PUBLIC_URL or REPLIT_URL, or pass -base-url")
		flush()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("qr generation failed", zap.Error(err))
	}
	logger.Info("qr generated", zap.String("path", path), zap.String("url", target))
}
