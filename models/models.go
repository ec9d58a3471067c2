package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Restaurant is a catalog entry as stored in the restaurants table. Field names on the wire
// match what the recommendation wizard renders.
type Restaurant struct {
	ID           int64        `json:"id" db:"id"`
	Name         string       `json:"name_th" db:"name_th"`
	Address      string       `json:"address_th" db:"address_th"`
	Latitude     float64      `json:"latitude" db:"latitude"`
	Longitude    float64      `json:"longitude" db:"longitude"`
	BudgetLevel  int          `json:"budget_level" db:"budget_level"`
	Tags         Tags         `json:"tags" db:"tags"`
	OpeningHours OpeningHours `json:"opening_hours" db:"opening_hours"`
}

// ErrInvalidRestaurant is returned for catalog records the recommendation engine cannot use.
var ErrInvalidRestaurant = errors.New("invalid restaurant")

// Validate checks the invariants of a catalog record.
func (r Restaurant) Validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: name_th is required", ErrInvalidRestaurant)
	case r.BudgetLevel < 1 || r.BudgetLevel > 3:
		return fmt.Errorf("%w: budget_level %d outside 1..3", ErrInvalidRestaurant, r.BudgetLevel)
	case r.Latitude < -90 || r.Latitude > 90:
		return fmt.Errorf("%w: latitude %v", ErrInvalidRestaurant, r.Latitude)
	case r.Longitude < -180 || r.Longitude > 180:
		return fmt.Errorf("%w: longitude %v", ErrInvalidRestaurant, r.Longitude)
	}
	return nil
}

// Location returns the restaurant coordinates as a GeoPoint.
func (r Restaurant) Location() GeoPoint {
	return GeoPoint{Lat: r.Latitude, Lng: r.Longitude}
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Tags is the free-form label set attached to a restaurant (cuisines, dietary labels, ambience).
type Tags []string

// Scan reads a Postgres text[] column. Values that cannot be decoded are treated as an empty set.
func (t *Tags) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		*t = Tags{}
		return nil
	}
	*t = Tags(arr)
	return nil
}

// Value encodes the tag set as a Postgres text[] literal.
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return pq.StringArray{}.Value()
	}
	return pq.StringArray(t).Value()
}

// Has reports whether tag is part of the set.
func (t Tags) Has(tag string) bool {
	for _, v := range t {
		if v == tag {
			return true
		}
	}
	return false
}

// CountMatches returns how many of wanted are present in the set.
func (t Tags) CountMatches(wanted []string) int {
	n := 0
	for _, w := range wanted {
		if t.Has(w) {
			n++
		}
	}
	return n
}

// ContainsAll reports whether every element of wanted is present in the set.
func (t Tags) ContainsAll(wanted []string) bool {
	for _, w := range wanted {
		if !t.Has(w) {
			return false
		}
	}
	return true
}

// PreferenceQuery is a validated recommendation request.
type PreferenceQuery struct {
	Location            GeoPoint
	Budget              int
	Cuisines            []string
	DietaryRestrictions []string
	TimePreference      string
}

// TimePreferenceNow is the literal that asks for open-now evaluation.
const TimePreferenceNow = "now"

// IsNow reports whether the query asks about restaurants open at request time.
func (q PreferenceQuery) IsNow() bool {
	return q.TimePreference == "" || q.TimePreference == TimePreferenceNow
}

// CandidateFilter is the Geo-Filter Stage input handed to a catalog store.
type CandidateFilter struct {
	Location            GeoPoint
	Budget              int
	Cuisines            []string
	DietaryRestrictions []string
	RadiusMeters        float64
	Limit               int
}

// Candidate is a restaurant that passed the Geo-Filter Stage, with its unrounded
// great-circle distance to the query location.
type Candidate struct {
	Restaurant
	DistanceMeters float64 `db:"distance"`
}

// ScoredRestaurant is one entry of the recommendation response.
type ScoredRestaurant struct {
	Restaurant
	Distance         int     `json:"distance"`
	SuitabilityScore float64 `json:"suitability_score"`
}

// TagCount is a tag from the catalog vocabulary and the number of restaurants carrying it.
type TagCount struct {
	Tag         string `json:"tag" db:"tag"`
	Restaurants int    `json:"restaurants" db:"restaurants"`
}

// NormalizeTags trims, drops empty entries and removes duplicates while keeping the first
// occurrence order. It never returns nil.
func NormalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
