package recommend

import (
	"math"
	"sort"
	"time"

	"whattoeat/models"
)

// Score adjustments applied on top of baseScore.
const (
	baseScore = 1.0

	budgetExactBonus = 0.30
	budgetNearBonus  = 0.15

	cuisineMatchWeight = 0.40
	cuisineMissPenalty = 0.20

	dietaryMetBonus    = 0.20
	dietaryMissPenalty = 0.50

	walkingDistanceM   = 500
	walkingBonus       = 0.10
	shortTripDistanceM = 1000
	shortTripBonus     = 0.05
	longTripDistanceM  = 3000
	longTripPenalty    = 0.05

	openNowBonus     = 0.10
	closedNowPenalty = 0.30

	scoreTieEpsilon = 0.01
)

// Suitability scores a candidate against q at instant now. The result is clamped to [0,1].
func Suitability(c models.Candidate, q models.PreferenceQuery, now time.Time) float64 {
	return math.Max(0, math.Min(1, rawSuitability(c, q, now)))
}

func rawSuitability(c models.Candidate, q models.PreferenceQuery, now time.Time) float64 {
	score := baseScore

	switch budgetGap(c.BudgetLevel, q.Budget) {
	case 0:
		score += budgetExactBonus
	case 1:
		score += budgetNearBonus
	}

	if len(q.Cuisines) > 0 {
		if matched := c.Tags.CountMatches(q.Cuisines); matched > 0 {
			score += cuisineMatchWeight * float64(matched) / float64(len(q.Cuisines))
		} else {
			score -= cuisineMissPenalty
		}
	}

	if len(q.DietaryRestrictions) > 0 {
		if c.Tags.ContainsAll(q.DietaryRestrictions) {
			score += dietaryMetBonus
		} else {
			score -= dietaryMissPenalty
		}
	}

	switch d := c.DistanceMeters; {
	case d < walkingDistanceM:
		score += walkingBonus
	case d < shortTripDistanceM:
		score += shortTripBonus
	case d > longTripDistanceM:
		score -= longTripPenalty
	}

	if q.IsNow() {
		if open, known := c.OpeningHours.IsOpenAt(now); known {
			if open {
				score += openNowBonus
			} else {
				score -= closedNowPenalty
			}
		}
	}

	return score
}

func budgetGap(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// Rank scores every candidate and orders them best first. Scores closer than 0.01 are
// treated as equal and fall back to the rounded distance, then to the id.
func Rank(candidates []models.Candidate, q models.PreferenceQuery, now time.Time) []models.ScoredRestaurant {
	ranked := make([]models.ScoredRestaurant, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, models.ScoredRestaurant{
			Restaurant:       c.Restaurant,
			Distance:         int(math.Round(c.DistanceMeters)),
			SuitabilityScore: Suitability(c, q, now),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if math.Abs(a.SuitabilityScore-b.SuitabilityScore) >= scoreTieEpsilon {
			return a.SuitabilityScore > b.SuitabilityScore
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.ID < b.ID
	})
	return ranked
}
