// Package validation checks inbound recommendation preferences with go-playground/validator
// and translates failures into the client-facing messages of the HTTP contract.
package validation

import (
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"whattoeat/models"
)

// Client-facing messages.
const (
	MsgInvalidLocation       = "Invalid location. Must provide lat and lng as numbers."
	MsgInvalidBudget         = "Invalid budget. Must be 1, 2, or 3."
	MsgInvalidTimePreference = `Invalid timePreference. Must be "now" or an ISO-8601 datetime.`
	MsgInvalidTags           = "Invalid preferences. cuisines and dietaryRestrictions must be lists of up to 20 non-empty strings."
)

// MaxTags bounds each preference list.
const MaxTags = 20

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the custom rules registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("budget_tier", isBudgetTier)
		_ = validate.RegisterValidation("time_preference", isTimePreference)
	})
	return validate
}

// Error is a validation failure carrying the message returned to the client.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Preferences is the loosely typed request shape. Fields are nil when absent or of the
// wrong JSON type.
type Preferences struct {
	Lat                 *float64 `validate:"required,min=-90,max=90"`
	Lng                 *float64 `validate:"required,min=-180,max=180"`
	Budget              *float64 `validate:"required,budget_tier"`
	Cuisines            []string `validate:"max=20,dive,required,max=64"`
	DietaryRestrictions []string `validate:"max=20,dive,required,max=64"`
	TimePreference      string   `validate:"time_preference"`
}

// Query validates p and returns the normalised PreferenceQuery. Location problems are
// reported before budget problems.
func Query(p Preferences) (models.PreferenceQuery, error) {
	if err := Validator().Struct(p); err != nil {
		return models.PreferenceQuery{}, translate(err)
	}

	tp := strings.TrimSpace(p.TimePreference)
	if tp == "" {
		tp = models.TimePreferenceNow
	}

	return models.PreferenceQuery{
		Location:            models.GeoPoint{Lat: *p.Lat, Lng: *p.Lng},
		Budget:              int(*p.Budget),
		Cuisines:            models.NormalizeTags(p.Cuisines),
		DietaryRestrictions: models.NormalizeTags(p.DietaryRestrictions),
		TimePreference:      tp,
	}, nil
}

func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Message: "Invalid request."}
	}

	first := verrs[0]
	switch first.StructField() {
	case "Lat", "Lng":
		return &Error{Field: "location", Message: MsgInvalidLocation}
	case "Budget":
		return &Error{Field: "budget", Message: MsgInvalidBudget}
	case "TimePreference":
		return &Error{Field: "timePreference", Message: MsgInvalidTimePreference}
	default:
		return &Error{Field: strings.ToLower(first.StructField()[:1]) + first.StructField()[1:], Message: MsgInvalidTags}
	}
}

func isBudgetTier(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return v >= 1 && v <= 3 && v == math.Trunc(v)
}

// timeLayouts are the accepted non-"now" datetime forms. The wizard's datetime-local input
// produces the minute-precision form.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func isTimePreference(fl validator.FieldLevel) bool {
	_, ok := ParseTimePreference(fl.Field().String())
	return ok
}

// ParseTimePreference accepts "" and "now" (zero time) or an ISO-8601 datetime.
func ParseTimePreference(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == models.TimePreferenceNow {
		return time.Time{}, true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
