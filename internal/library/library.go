// Package library lists the images waiting in the to-generate folder.
package library

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrFolderNotFound = errors.New("folder not found")

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Image is one file found in a scanned folder.
type Image struct {
	Filename string  `json:"filename"`
	Data     string  `json:"data"`
	Size     int64   `json:"size"`
	SizeMB   float64 `json:"size_mb"`
}

// Scan reads every image file directly under dir, sorted by name. Files that
// cannot be read are skipped.
func Scan(dir string) ([]Image, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, dir)
		}
		return nil, fmt.Errorf("stat folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrFolderNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	images := []Image{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Warn("skipping unreadable image", "filename", e.Name(), "error", err)
			continue
		}
		images = append(images, Image{
			Filename: e.Name(),
			Data:     base64.StdEncoding.EncodeToString(data),
			Size:     int64(len(data)),
			SizeMB:   math.Round(float64(len(data))/(1024*1024)*100) / 100,
		})
	}
	slog.Debug("scanned image folder", "path", dir, "images", len(images))
	return images, nil
}
