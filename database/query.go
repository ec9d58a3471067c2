package database

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"whattoeat/models"
)

// DefaultCandidateLimit caps a geo-filter query when the filter does not.
const DefaultCandidateLimit = 100

const restaurantColumns = `id, name_th, address_th,
		ST_Y(location::geometry) AS latitude,
		ST_X(location::geometry) AS longitude,
		budget_level, tags, opening_hours`

// buildCandidateQuery renders the geo-filter query: budget within one tier, inside the
// radius, any requested cuisine, every dietary restriction, nearest first.
func buildCandidateQuery(f models.CandidateFilter) (string, []interface{}) {
	// PostGIS points are (longitude, latitude).
	args := []interface{}{f.Location.Lng, f.Location.Lat}
	idx := 3
	point := "ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography"

	conditions := []string{
		fmt.Sprintf("budget_level BETWEEN $%d AND $%d", idx, idx+1),
		fmt.Sprintf("ST_DWithin(location, %s, $%d)", point, idx+2),
	}
	args = append(args, f.Budget-1, f.Budget+1, f.RadiusMeters)
	idx += 3

	if len(f.Cuisines) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags && $%d::text[]", idx))
		args = append(args, pq.Array(f.Cuisines))
		idx++
	}

	if len(f.DietaryRestrictions) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags @> $%d::text[]", idx))
		args = append(args, pq.Array(f.DietaryRestrictions))
		idx++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s,
		       ST_Distance(location, %s) AS distance
		FROM restaurants
		WHERE %s
		ORDER BY distance ASC, id ASC
		LIMIT $%d
	`, restaurantColumns, point, strings.Join(conditions, " AND "), idx)

	return query, args
}
