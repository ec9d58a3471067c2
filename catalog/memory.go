package catalog

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"whattoeat/metrics"
	"whattoeat/models"
)

// earthRadiusMeters is the IUGG mean Earth radius.
const earthRadiusMeters = 6371008.8

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b models.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// MemoryStore is a catalog held in process. It answers the same geo-filter query as the
// PostGIS store using haversine distances.
type MemoryStore struct {
	mu          sync.RWMutex
	restaurants []models.Restaurant
	nextID      int64
}

// NewMemoryStore copies restaurants into a new store. Records without an id get one.
func NewMemoryStore(restaurants []models.Restaurant) *MemoryStore {
	s := &MemoryStore{}
	for _, r := range restaurants {
		s.add(r)
	}
	return s
}

func (s *MemoryStore) add(r models.Restaurant) int64 {
	if r.ID <= 0 {
		r.ID = s.nextID + 1
	}
	if r.ID > s.nextID {
		s.nextID = r.ID
	}
	s.restaurants = append(s.restaurants, r)
	return r.ID
}

// NearbyCandidates returns restaurants within filter.RadiusMeters whose budget is within one
// tier, carrying at least one requested cuisine and every dietary restriction, nearest first.
func (s *MemoryStore) NearbyCandidates(ctx context.Context, filter models.CandidateFilter) ([]models.Candidate, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		metrics.RecordStoreQuery("memory", "nearby", time.Since(start), err)
		return nil, err
	}

	s.mu.RLock()
	out := make([]models.Candidate, 0)
	for _, r := range s.restaurants {
		if budgetGap(r.BudgetLevel, filter.Budget) > 1 {
			continue
		}
		if len(filter.Cuisines) > 0 && r.Tags.CountMatches(filter.Cuisines) == 0 {
			continue
		}
		if len(filter.DietaryRestrictions) > 0 && !r.Tags.ContainsAll(filter.DietaryRestrictions) {
			continue
		}
		d := Distance(filter.Location, r.Location())
		if d > filter.RadiusMeters {
			continue
		}
		out = append(out, models.Candidate{Restaurant: r, DistanceMeters: d})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	metrics.RecordStoreQuery("memory", "nearby", time.Since(start), nil)
	return out, nil
}

func budgetGap(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// InsertRestaurant adds r and returns its id.
func (s *MemoryStore) InsertRestaurant(ctx context.Context, r models.Restaurant) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := r.Validate(); err != nil {
		return 0, err
	}
	r.ID = 0
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(r), nil
}

// DeleteAll empties the store.
func (s *MemoryStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.restaurants))
	s.restaurants = nil
	return n, nil
}

// TagCounts lists every tag with the number of restaurants carrying it, most used first.
func (s *MemoryStore) TagCounts(ctx context.Context) ([]models.TagCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	s.mu.RLock()
	for _, r := range s.restaurants {
		for _, tag := range models.NormalizeTags(r.Tags) {
			counts[tag]++
		}
	}
	s.mu.RUnlock()

	out := make([]models.TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, models.TagCount{Tag: tag, Restaurants: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Restaurants != out[j].Restaurants {
			return out[i].Restaurants > out[j].Restaurants
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

// Now reports the store clock. The memory store is always reachable.
func (s *MemoryStore) Now(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	return time.Now(), nil
}

// Len returns the number of restaurants held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.restaurants)
}
