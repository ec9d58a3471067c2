package handlers

import (
	"context"
	"net/http"

	"whattoeat/logging"
	"whattoeat/models"
)

// TagSource lists the tag vocabulary of the catalog.
type TagSource interface {
	TagCounts(ctx context.Context) ([]models.TagCount, error)
}

type tagsResponse struct {
	Success bool              `json:"success"`
	Count   int               `json:"count"`
	Results []models.TagCount `json:"results"`
}

// TagsHandler retrieves every tag with its restaurant count to populate the cuisine and
// dietary steps of the wizard.
func TagsHandler(src TagSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := src.TagCounts(r.Context())
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Tags query failed")
			writeError(w, r, http.StatusInternalServerError, "Failed to get tags")
			return
		}

		writeJSON(w, r, http.StatusOK, tagsResponse{
			Success: true,
			Count:   len(tags),
			Results: tags,
		})
	}
}
