package catalog

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"whattoeat/models"
)

var sukhumvit = models.GeoPoint{Lat: 13.7300, Lng: 100.5400}

func ids(candidates []models.Candidate) []int64 {
	out := make([]int64, len(candidates))
	for i, c := range candidates {
		out[i] = c.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDistance(t *testing.T) {
	// One degree of latitude is about 111.2 km.
	d := Distance(models.GeoPoint{Lat: 0, Lng: 0}, models.GeoPoint{Lat: 1, Lng: 0})
	if math.Abs(d-111195) > 100 {
		t.Fatalf("Distance() = %v, want about 111195", d)
	}
	if Distance(sukhumvit, sukhumvit) != 0 {
		t.Fatal("distance to self should be zero")
	}
}

func TestSample(t *testing.T) {
	restaurants := Sample()
	if len(restaurants) != 8 {
		t.Fatalf("expected 8 sample restaurants, got %d", len(restaurants))
	}
	japanese := restaurants[3]
	if got, _ := japanese.OpeningHours.Day(1); got != "11:30-14:00,17:00-22:00" {
		t.Errorf("unexpected split-shift hours %q", got)
	}
}

func TestNearbyCandidates(t *testing.T) {
	store := NewMemoryStore(Sample())

	tests := []struct {
		name   string
		filter models.CandidateFilter
		want   []int64
	}{
		{
			name:   "budget tolerance excludes two tiers away",
			filter: models.CandidateFilter{Location: sukhumvit, Budget: 1, RadiusMeters: 5000},
			want:   []int64{1, 5, 2, 3, 6, 7},
		},
		{
			name:   "any requested cuisine",
			filter: models.CandidateFilter{Location: sukhumvit, Budget: 1, Cuisines: []string{"thai", "sushi"}, RadiusMeters: 5000},
			want:   []int64{1, 2, 3, 7},
		},
		{
			name:   "every dietary restriction",
			filter: models.CandidateFilter{Location: sukhumvit, Budget: 2, DietaryRestrictions: []string{"vegetarian", "vegan"}, RadiusMeters: 5000},
			want:   []int64{5},
		},
		{
			name:   "missing restriction excludes the restaurant",
			filter: models.CandidateFilter{Location: sukhumvit, Budget: 2, Cuisines: []string{"thai"}, DietaryRestrictions: []string{"vegan"}, RadiusMeters: 5000},
			want:   []int64{},
		},
		{
			name:   "radius",
			filter: models.CandidateFilter{Location: sukhumvit, Budget: 2, RadiusMeters: 500},
			want:   []int64{1, 5, 4},
		},
		{
			name:   "limit keeps the nearest",
			filter: models.CandidateFilter{Location: sukhumvit, Budget: 2, RadiusMeters: 5000, Limit: 2},
			want:   []int64{1, 5},
		},
		{
			name:   "nothing nearby",
			filter: models.CandidateFilter{Location: models.GeoPoint{Lat: 0, Lng: 0}, Budget: 2, RadiusMeters: 5000},
			want:   []int64{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := store.NearbyCandidates(context.Background(), test.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil {
				t.Fatal("expected non-nil slice")
			}
			if !equalIDs(ids(got), test.want) {
				t.Fatalf("ids = %v, want %v", ids(got), test.want)
			}
			for _, c := range got {
				if c.DistanceMeters > test.filter.RadiusMeters {
					t.Errorf("candidate %d outside radius: %v", c.ID, c.DistanceMeters)
				}
			}
		})
	}
}

func TestNearbyCandidatesCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore(Sample()).NearbyCandidates(ctx, models.CandidateFilter{Budget: 2, RadiusMeters: 5000})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInsertAndDelete(t *testing.T) {
	store := NewMemoryStore(Sample())
	ctx := context.Background()

	id, err := store.InsertRestaurant(ctx, models.Restaurant{Name: "ครัวใหม่", BudgetLevel: 2, Latitude: 13.73, Longitude: 100.54})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 9 {
		t.Errorf("id = %d, want 9", id)
	}

	if _, err := store.InsertRestaurant(ctx, models.Restaurant{Name: "bad", BudgetLevel: 4}); !errors.Is(err, models.ErrInvalidRestaurant) {
		t.Errorf("expected models.ErrInvalidRestaurant, got %v", err)
	}

	n, _ := store.DeleteAll(ctx)
	if n != 9 || store.Len() != 0 {
		t.Fatalf("DeleteAll removed %d, %d left", n, store.Len())
	}
}

func TestTagCounts(t *testing.T) {
	counts, err := NewMemoryStore(Sample()).TagCounts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []models.TagCount{
		{Tag: "thai", Restaurants: 5},
		{Tag: "healthy", Restaurants: 2},
		{Tag: "street-food", Restaurants: 2},
		{Tag: "vegetarian", Restaurants: 2},
	}
	for i, w := range want {
		if counts[i] != w {
			t.Fatalf("counts[%d] = %+v, want %+v", i, counts[i], w)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	content := `[{"name_th":"ร้าน","latitude":13.7,"longitude":100.5,"budget_level":1,"tags":["thai"," thai "],"opening_hours":{"1":"10:00-20:00"}}]`
	if err := os.WriteFile(good, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	restaurants, err := LoadFile(good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(restaurants) != 1 || len(restaurants[0].Tags) != 1 {
		t.Fatalf("unexpected restaurants %+v", restaurants)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"name_th":"ร้าน","budget_level":7}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); !errors.Is(err, models.ErrInvalidRestaurant) {
		t.Fatalf("expected models.ErrInvalidRestaurant, got %v", err)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
