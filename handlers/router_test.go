package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"whattoeat/catalog"
	"whattoeat/models"
	"whattoeat/recommend"
	"whattoeat/validation"
)

// Monday 2024-01-15 18:00 in Bangkok.
var bangkokEvening = time.Date(2024, 1, 15, 18, 0, 0, 0, time.FixedZone("ICT", 7*60*60))

// countingStore wraps a candidate store and records how often it was queried.
type countingStore struct {
	recommend.CandidateStore
	calls int
	err   error
}

func (s *countingStore) NearbyCandidates(ctx context.Context, f models.CandidateFilter) ([]models.Candidate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.CandidateStore.NearbyCandidates(ctx, f)
}

type failingProbe struct{}

func (failingProbe) Now(context.Context) (time.Time, error) {
	return time.Time{}, errors.New("connection refused")
}

func (failingProbe) TagCounts(context.Context) ([]models.TagCount, error) {
	return nil, errors.New("connection refused")
}

type panickingRecommender struct{}

func (panickingRecommender) Recommend(context.Context, models.PreferenceQuery) ([]models.ScoredRestaurant, error) {
	panic("boom")
}

func newTestRouter(t *testing.T, store *countingStore, cfg RouterConfig) http.Handler {
	t.Helper()
	memory := catalog.NewMemoryStore(catalog.Sample())
	if store.CandidateStore == nil {
		store.CandidateStore = memory
	}
	svc := recommend.NewService(store, recommend.Config{Location: bangkokEvening.Location()},
		recommend.WithClock(func() time.Time { return bangkokEvening }))
	if cfg.RateLimitRequests == 0 {
		cfg.RateLimitDisabled = true
	}
	return NewRouter(Dependencies{
		Recommender: svc,
		Tags:        memory,
		Health:      memory,
		CatalogName: "memory",
	}, cfg)
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/recommendations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool                      `json:"success"`
	Count   int                       `json:"count"`
	Error   string                    `json:"error"`
	Results []models.ScoredRestaurant `json:"results"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestRecommendationsValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "budget only", body: `{"budget": 5}`, message: validation.MsgInvalidLocation},
		{name: "string latitude", body: `{"location": {"lat": "13.7", "lng": 100.5}, "budget": 2}`, message: validation.MsgInvalidLocation},
		{name: "location not an object", body: `{"location": "bangkok", "budget": 2}`, message: validation.MsgInvalidLocation},
		{name: "budget out of range", body: `{"location": {"lat": 13.7, "lng": 100.5}, "budget": 5}`, message: validation.MsgInvalidBudget},
		{name: "budget missing", body: `{"location": {"lat": 13.7, "lng": 100.5}}`, message: validation.MsgInvalidBudget},
		{name: "budget as string", body: `{"location": {"lat": 13.7, "lng": 100.5}, "budget": "2"}`, message: validation.MsgInvalidBudget},
		{name: "cuisines not a list", body: `{"location": {"lat": 13.7, "lng": 100.5}, "budget": 2, "cuisines": "thai"}`, message: validation.MsgInvalidTags},
		{name: "restriction not a string", body: `{"location": {"lat": 13.7, "lng": 100.5}, "budget": 2, "dietaryRestrictions": [1]}`, message: validation.MsgInvalidTags},
		{name: "bad time preference", body: `{"location": {"lat": 13.7, "lng": 100.5}, "budget": 2, "timePreference": "later"}`, message: validation.MsgInvalidTimePreference},
		{name: "malformed JSON", body: `{"location":`, message: msgInvalidBody},
		{name: "empty body", body: ``, message: msgInvalidBody},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := &countingStore{}
			rec := post(t, newTestRouter(t, store, RouterConfig{}), test.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			env := decode(t, rec)
			if env.Success || env.Error != test.message {
				t.Fatalf("unexpected envelope %+v", env)
			}
			if strings.Contains(rec.Body.String(), `"results"`) {
				t.Error("error response must not carry results")
			}
			if store.calls != 0 {
				t.Fatalf("store queried %d times for an invalid request", store.calls)
			}
		})
	}
}

func TestRecommendationsSuccess(t *testing.T) {
	store := &countingStore{}
	rec := post(t, newTestRouter(t, store, RouterConfig{}),
		`{"location": {"lat": 13.7300, "lng": 100.5400}, "budget": 2, "cuisines": ["thai"]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decode(t, rec)
	if !env.Success || env.Count != len(env.Results) || env.Count == 0 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	for i, r := range env.Results {
		if r.SuitabilityScore < 0 || r.SuitabilityScore > 1 {
			t.Errorf("score out of bounds: %v", r.SuitabilityScore)
		}
		if !r.Tags.Has("thai") {
			t.Errorf("%s does not match the requested cuisine", r.Name)
		}
		if i > 0 && r.SuitabilityScore > env.Results[i-1].SuitabilityScore+0.01 {
			t.Errorf("results not ranked at %d", i)
		}
	}
	for _, field := range []string{`"name_th"`, `"address_th"`, `"budget_level"`, `"opening_hours"`, `"distance":`, `"suitability_score"`} {
		if !strings.Contains(rec.Body.String(), field) {
			t.Errorf("response missing %s", field)
		}
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
}

func TestRecommendationsDietaryIsHardFilter(t *testing.T) {
	h := newTestRouter(t, &countingStore{}, RouterConfig{})

	env := decode(t, post(t, h, `{"location": {"lat": 13.73, "lng": 100.54}, "budget": 2, "dietaryRestrictions": ["vegan"]}`))
	if env.Count != 1 || !env.Results[0].Tags.Has("vegan") {
		t.Fatalf("expected only the vegan restaurant, got %+v", env.Results)
	}

	env = decode(t, post(t, h, `{"location": {"lat": 13.73, "lng": 100.54}, "budget": 2, "cuisines": ["thai"], "dietaryRestrictions": ["vegan"]}`))
	if env.Count != 0 {
		t.Fatalf("restaurants lacking a restriction must be excluded, got %+v", env.Results)
	}
}

func TestRecommendationsNoCandidates(t *testing.T) {
	rec := post(t, newTestRouter(t, &countingStore{}, RouterConfig{}),
		`{"location": {"lat": 18.7883, "lng": 98.9853}, "budget": 2}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) || !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Fatalf("expected empty results, got %s", rec.Body.String())
	}
}

func TestRecommendationsStoreFailure(t *testing.T) {
	store := &countingStore{err: errors.New("pq: password authentication failed")}
	rec := post(t, newTestRouter(t, store, RouterConfig{}),
		`{"location": {"lat": 13.73, "lng": 100.54}, "budget": 2}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	env := decode(t, rec)
	if env.Success || env.Error != msgRecommendationsFailure {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatal("internal error details leaked to the client")
	}
}

func TestRecommendationsRateLimit(t *testing.T) {
	h := newTestRouter(t, &countingStore{}, RouterConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute})
	body := `{"location": {"lat": 13.73, "lng": 100.54}, "budget": 2}`

	for i := 0; i < 2; i++ {
		if rec := post(t, h, body); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	if rec := post(t, h, body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestPanicRecovery(t *testing.T) {
	h := NewRouter(Dependencies{Recommender: panickingRecommender{}}, RouterConfig{RateLimitDisabled: true})
	rec := post(t, h, `{"location": {"lat": 13.73, "lng": 100.54}, "budget": 2}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"Internal server error"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, &countingStore{}, RouterConfig{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, want := range []string{`"status":"healthy"`, `"database":"connected"`, `"timestamp"`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("body %s missing %s", rec.Body.String(), want)
		}
	}

	unhealthy := NewRouter(Dependencies{Health: failingProbe{}, CatalogName: "postgis"}, RouterConfig{RateLimitDisabled: true})
	rec = httptest.NewRecorder()
	unhealthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), `"status":"unhealthy"`) {
		t.Fatalf("unexpected unhealthy response %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"timestamp"`) {
		t.Errorf("unhealthy response should not carry a timestamp: %s", rec.Body.String())
	}
}

func TestTags(t *testing.T) {
	h := newTestRouter(t, &countingStore{}, RouterConfig{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tags", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Success bool              `json:"success"`
		Count   int               `json:"count"`
		Results []models.TagCount `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || body.Count != len(body.Results) || body.Results[0].Tag != "thai" {
		t.Fatalf("unexpected tags response %+v", body)
	}

	failing := NewRouter(Dependencies{Tags: failingProbe{}}, RouterConfig{RateLimitDisabled: true})
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tags", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestUnknownRoutes(t *testing.T) {
	h := newTestRouter(t, &countingStore{}, RouterConfig{})

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{method: http.MethodGet, path: "/api/restaurants", status: http.StatusNotFound, body: `{"error":"Not found","message":"Route GET /api/restaurants not found"}`},
		{method: http.MethodGet, path: "/nope", status: http.StatusNotFound, body: `{"error":"Not found","message":"Route GET /nope not found"}`},
		{method: http.MethodGet, path: "/api/recommendations", status: http.StatusMethodNotAllowed, body: `{"error":"Method not allowed","message":"Route GET /api/recommendations not allowed"}`},
	}

	for _, test := range tests {
		t.Run(test.method+" "+test.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(test.method, test.path, nil))
			if rec.Code != test.status {
				t.Fatalf("status = %d, want %d", rec.Code, test.status)
			}
			if rec.Body.String() != test.body {
				t.Fatalf("body = %s, want %s", rec.Body.String(), test.body)
			}
		})
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	h := newTestRouter(t, &countingStore{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("a request id should be generated when none is sent")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, &countingStore{}, RouterConfig{})
	post(t, h, `{"location": {"lat": 13.73, "lng": 100.54}, "budget": 2}`)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "whattoeat_http_requests_total") {
		t.Fatalf("metrics not exposed: %d", rec.Code)
	}
}
