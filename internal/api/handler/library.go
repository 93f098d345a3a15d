package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/insrobot/internal/api/response"
	"github.com/kiranshivaraju/insrobot/internal/library"
)

type libraryResponse struct {
	Images      []library.Image `json:"images"`
	TotalImages int             `json:"total_images"`
	Path        string          `json:"path"`
}

// NewLibraryHandler returns an http.HandlerFunc for GET /api/v1/library/to-generate.
func NewLibraryHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		images, err := library.Scan(dir)
		if err != nil {
			if errors.Is(err, library.ErrFolderNotFound) {
				response.Error(w, http.StatusNotFound, "FOLDER_NOT_FOUND",
					"The to-generate folder does not exist", map[string]string{"path": dir})
				return
			}
			slog.Error("scan library failed", "path", dir, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.JSON(w, libraryResponse{Images: images, TotalImages: len(images), Path: dir})
	}
}
