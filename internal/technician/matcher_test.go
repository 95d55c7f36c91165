package technician

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/domain"
)

func worker(id string, trades []domain.TradeCategory, certs []string, geo domain.GeoPoint, radius float64, current, max int) *domain.Worker {
	return &domain.Worker{
		ID: id, Trades: trades, Certifications: certs, Geo: geo,
		ServiceRadiusKM: radius, CurrentJobsToday: current, MaxPerDay: max, Active: true,
	}
}

func TestMatch_RanksByWeightedScore(t *testing.T) {
	hq := domain.GeoPoint{Lat: 52.52, Lon: 13.405} // Berlin
	nearby := worker("w-close", []domain.TradeCategory{domain.TradePlumbingHeating}, nil, hq, 30, 1, 6)
	far := worker("w-far", []domain.TradeCategory{domain.TradePlumbingHeating}, nil, domain.GeoPoint{Lat: 48.13, Lon: 11.58}, 30, 1, 6) // Munich

	workers := []*domain.Worker{far, nearby}
	candidates, err := Match(domain.TradePlumbingHeating, domain.UrgencyNormal, nil, hq, workers, func(w *domain.Worker) bool { return true })
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "w-close", candidates[0].Worker.ID) // proximity tips the ranking
	assert.Greater(t, candidates[0].Score, candidates[1].Score)
}

func TestMatch_EmergencyNoneAvailable(t *testing.T) {
	hq := domain.GeoPoint{Lat: 52.52, Lon: 13.405}
	w := worker("w1", []domain.TradeCategory{domain.TradePlumbingHeating}, nil, hq, 30, 1, 6)

	_, err := Match(domain.TradePlumbingHeating, domain.UrgencyEmergency, nil, hq, []*domain.Worker{w}, func(*domain.Worker) bool { return false })
	assert.ErrorIs(t, err, apperr.ErrNoneAvailable)
}

func TestMatch_DeterministicTieBreak(t *testing.T) {
	hq := domain.GeoPoint{Lat: 52.52, Lon: 13.405}
	a := worker("w-a", []domain.TradeCategory{domain.TradePlumbingHeating}, nil, hq, 30, 2, 6)
	b := worker("w-b", []domain.TradeCategory{domain.TradePlumbingHeating}, nil, hq, 30, 2, 6)

	candidates, err := Match(domain.TradePlumbingHeating, domain.UrgencyNormal, nil, hq, []*domain.Worker{b, a}, func(*domain.Worker) bool { return true })
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "w-a", candidates[0].Worker.ID) // lexical tie-break
}

func TestMatch_TradeSimilarityPartialCredit(t *testing.T) {
	hq := domain.GeoPoint{Lat: 52.52, Lon: 13.405}
	sanitary := worker("w-sanitary", []domain.TradeCategory{domain.TradeSanitary}, nil, hq, 30, 0, 6)

	candidates, err := Match(domain.TradePlumbingHeating, domain.UrgencyNormal, nil, hq, []*domain.Worker{sanitary}, func(*domain.Worker) bool { return true })
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Less(t, candidates[0].Score, 1.0)
}
