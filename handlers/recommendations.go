package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"whattoeat/logging"
	"whattoeat/metrics"
	"whattoeat/models"
	"whattoeat/validation"
)

// maxBodyBytes bounds a recommendation request body.
const maxBodyBytes = 64 << 10

const (
	msgInvalidBody            = "Invalid request body"
	msgRecommendationsFailure = "Failed to get recommendations"
)

// Recommender runs the recommendation pipeline.
type Recommender interface {
	Recommend(ctx context.Context, q models.PreferenceQuery) ([]models.ScoredRestaurant, error)
}

type recommendationResponse struct {
	Success bool                      `json:"success"`
	Count   int                       `json:"count"`
	Results []models.ScoredRestaurant `json:"results"`
}

// recommendationRequest is decoded loosely so that a field of the wrong JSON type is
// reported with that field's message rather than as a malformed body.
type recommendationRequest struct {
	Location            interface{} `json:"location"`
	Budget              interface{} `json:"budget"`
	Cuisines            interface{} `json:"cuisines"`
	DietaryRestrictions interface{} `json:"dietaryRestrictions"`
	TimePreference      interface{} `json:"timePreference"`
}

// preferences converts the request into validator input. The second return value reports a
// list or time preference of the wrong JSON type.
func (req recommendationRequest) preferences() (validation.Preferences, error) {
	var p validation.Preferences
	var typeErr error

	if loc, ok := req.Location.(map[string]interface{}); ok {
		p.Lat = number(loc["lat"])
		p.Lng = number(loc["lng"])
	}
	p.Budget = number(req.Budget)

	var ok bool
	if p.Cuisines, ok = stringList(req.Cuisines); !ok {
		typeErr = &validation.Error{Field: "cuisines", Message: validation.MsgInvalidTags}
	}
	if p.DietaryRestrictions, ok = stringList(req.DietaryRestrictions); !ok && typeErr == nil {
		typeErr = &validation.Error{Field: "dietaryRestrictions", Message: validation.MsgInvalidTags}
	}

	switch tp := req.TimePreference.(type) {
	case nil:
	case string:
		p.TimePreference = tp
	default:
		if typeErr == nil {
			typeErr = &validation.Error{Field: "timePreference", Message: validation.MsgInvalidTimePreference}
		}
	}
	return p, typeErr
}

func number(v interface{}) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

func stringList(v interface{}) ([]string, bool) {
	if v == nil {
		return nil, true
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// RecommendationsHandler validates a preference query, runs the pipeline and returns the
// ranked restaurants. Validation failures never reach the catalog store.
func RecommendationsHandler(rec Recommender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			metrics.RecordRecommendation("invalid", 0, 0)
			writeError(w, r, http.StatusBadRequest, msgInvalidBody)
			return
		}

		var req recommendationRequest
		if err := json.Unmarshal(body, &req); err != nil {
			metrics.RecordRecommendation("invalid", 0, 0)
			writeError(w, r, http.StatusBadRequest, msgInvalidBody)
			return
		}

		prefs, typeErr := req.preferences()
		q, err := validation.Query(prefs)
		if err == nil {
			err = typeErr
		}
		if err != nil {
			var verr *validation.Error
			if !errors.As(err, &verr) {
				verr = &validation.Error{Message: msgInvalidBody}
			}
			metrics.RecordRecommendation("invalid", 0, 0)
			logging.Ctx(r.Context()).Debug().Str("field", verr.Field).Msg("Rejected recommendation request")
			writeError(w, r, http.StatusBadRequest, verr.Message)
			return
		}

		results, err := rec.Recommend(r.Context(), q)
		if err != nil {
			logging.Ctx(r.Context()).Error().
				Err(err).
				Float64("lat", q.Location.Lat).
				Float64("lng", q.Location.Lng).
				Int("budget", q.Budget).
				Strs("cuisines", q.Cuisines).
				Strs("dietary_restrictions", q.DietaryRestrictions).
				Msg("Recommendation pipeline failed")
			writeError(w, r, http.StatusInternalServerError, msgRecommendationsFailure)
			return
		}
		if results == nil {
			results = []models.ScoredRestaurant{}
		}

		writeJSON(w, r, http.StatusOK, recommendationResponse{
			Success: true,
			Count:   len(results),
			Results: results,
		})
	}
}
