package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/fieldops/internal/domain"
	"github.com/snarg/fieldops/internal/triage"
)

func testTriageEngine() *triage.Engine {
	rules := []triage.Rule{
		{Name: "burst_pipe", Patterns: []string{"flooding", "burst"}, UrgencyDelta: 60, Category: domain.TradePlumbingHeating},
	}
	return triage.NewEngine(rules, domain.TradeGeneral)
}

func TestTriageAssessHandler_ClassifiesDescription(t *testing.T) {
	s := &Server{triage: testTriageEngine()}
	e := echo.New()
	body := `{"description":"pipe burst flooding the kitchen","out_of_hours":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/assess", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.triageAssessHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var result triage.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.TradePlumbingHeating, result.TradeCategory)
	assert.Contains(t, result.Reasoning, "modifier:out_of_hours")
}

func TestTriageAssessHandler_RequiresDescription(t *testing.T) {
	s := &Server{triage: testTriageEngine()}
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/assess", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := s.triageAssessHandler(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}
