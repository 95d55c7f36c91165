// Package technician implements the Technician Matcher from §4.7: a
// weighted multi-factor scoring function ranking candidate workers for a
// Job, with an emergency-job override path that never silently succeeds
// with a zero-score match.
package technician

import (
	"math"
	"sort"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/domain"
)

// Weight constants from §4.7 / SPEC_FULL.md Open Question 2 — tunable, not
// inlined magic numbers.
const (
	WeightTradeFit      = 0.35
	WeightCertification = 0.15
	WeightAvailability  = 0.20
	WeightWorkload      = 0.15
	WeightProximity     = 0.15

	// MatchThreshold is the minimum score for a candidate to be returned.
	MatchThreshold = 0.4
)

// tradeSimilarity gives partial credit between related trades when the
// worker doesn't carry the job's exact category, per §4.7's similarity
// table example.
var tradeSimilarity = map[[2]domain.TradeCategory]float64{
	{domain.TradePlumbingHeating, domain.TradeSanitary}: 0.6,
	{domain.TradeSanitary, domain.TradePlumbingHeating}: 0.6,
}

// Candidate is a scored worker.
type Candidate struct {
	Worker *domain.Worker
	Score  float64
}

// Match ranks workers for a job. availableToday reports, per candidate, whether the
// worker is within working hours and below max load (availability today);
// emergency jobs filter to available-only candidates and return
// apperr.ErrNoneAvailable rather than a degraded match when none qualify.
func Match(trade domain.TradeCategory, urgency domain.Urgency, requiredCerts []string, jobGeo domain.GeoPoint, workers []*domain.Worker, availableToday func(*domain.Worker) bool) ([]Candidate, error) {
	pool := workers
	if urgency == domain.UrgencyEmergency {
		var filtered []*domain.Worker
		for _, w := range workers {
			if availableToday(w) {
				filtered = append(filtered, w)
			}
		}
		if len(filtered) == 0 {
			return nil, apperr.Wrap(apperr.KindConflict, "none_available", "no technician available for emergency job", apperr.ErrNoneAvailable)
		}
		pool = filtered
	}

	candidates := make([]Candidate, 0, len(pool))
	for _, w := range pool {
		score := score(w, trade, requiredCerts, jobGeo, availableToday(w))
		if score >= MatchThreshold {
			candidates = append(candidates, Candidate{Worker: w, Score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		wi, wj := candidates[i].Worker, candidates[j].Worker
		availI, availJ := availableToday(wi), availableToday(wj)
		if availI != availJ {
			return availI // higher availability first
		}
		if wi.CurrentJobsToday != wj.CurrentJobsToday {
			return wi.CurrentJobsToday < wj.CurrentJobsToday // lower workload first
		}
		return wi.ID < wj.ID // lexical tie-break, deterministic
	})

	if urgency == domain.UrgencyEmergency && len(candidates) == 0 {
		return nil, apperr.Wrap(apperr.KindConflict, "none_available", "no qualifying technician above match threshold", apperr.ErrNoneAvailable)
	}
	return candidates, nil
}

func score(w *domain.Worker, trade domain.TradeCategory, requiredCerts []string, jobGeo domain.GeoPoint, availableToday bool) float64 {
	tradeFit := tradeFitScore(w, trade)
	certCoverage := w.CertificationCoverage(requiredCerts)
	availability := 0.0
	if availableToday {
		availability = 1.0
	}
	workload := 1.0
	if w.MaxPerDay > 0 {
		workload = 1 - float64(w.CurrentJobsToday)/float64(w.MaxPerDay)
		workload = clamp01(workload)
	}
	proximity := proximityScore(w, jobGeo)

	return tradeFit*WeightTradeFit +
		certCoverage*WeightCertification +
		availability*WeightAvailability +
		workload*WeightWorkload +
		proximity*WeightProximity
}

func tradeFitScore(w *domain.Worker, trade domain.TradeCategory) float64 {
	for _, t := range w.Trades {
		if t == trade {
			return 1.0
		}
	}
	best := 0.0
	for _, t := range w.Trades {
		if sim, ok := tradeSimilarity[[2]domain.TradeCategory{t, trade}]; ok && sim > best {
			best = sim
		}
	}
	return best
}

func proximityScore(w *domain.Worker, jobGeo domain.GeoPoint) float64 {
	if w.ServiceRadiusKM <= 0 {
		return 0
	}
	d := greatCircleKM(w.Geo, jobGeo)
	return clamp01(1 - math.Min(d, w.ServiceRadiusKM)/w.ServiceRadiusKM)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const earthRadiusKM = 6371.0

// greatCircleKM computes the Haversine great-circle distance in km.
func greatCircleKM(a, b domain.GeoPoint) float64 {
	lat1, lon1 := degToRad(a.Lat), degToRad(a.Lon)
	lat2, lon2 := degToRad(b.Lat), degToRad(b.Lon)
	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
