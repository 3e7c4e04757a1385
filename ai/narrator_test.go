package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-analytics/models"
)

var sampleForecast = models.ForecastResult{
	Historical: []models.HistoricalPoint{
		{Date: "2024-03-05", Actual: 1200, TrendLine: 1190},
		{Date: "2024-03-06", Actual: 1310, TrendLine: 1300},
	},
	Forecast: []models.ForecastPoint{
		{Date: "2024-03-07", Predicted: 1410, DayNumber: 2},
		{Date: "2024-03-09", Predicted: 1630, DayNumber: 4},
	},
	Analysis: models.TrendAnalysis{Metric: "revenue", Trend: models.TrendIncreasing, PercentChangePerDay: 8.7, RSquared: 0.93, Quality: models.QualityGood},
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":{"b":2}}`, extractJSON(`Sure! {"a":{"b":2}} Hope that helps.`))
	assert.Equal(t, "", extractJSON("no json here"))
	assert.Equal(t, "", extractJSON("} backwards {"))
}

func TestParseNarrative(t *testing.T) {
	now := time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)
	text := "```json\n{\"summary\":\"Revenue keeps climbing.\",\"positive_factors\":[\"weekend demand\"]}\n```"

	a, err := parseNarrative(text, sampleForecast, now)
	require.NoError(t, err)
	assert.Equal(t, "Revenue keeps climbing.", a.Summary)
	assert.Equal(t, []string{"weekend demand"}, a.PositiveFactors)
	assert.Equal(t, []string{}, a.NegativeFactors)
	assert.Equal(t, now, a.GeneratedAt)
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), a.Period.StartDate)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), a.Period.EndDate)
}

func TestParseNarrative_Garbage(t *testing.T) {
	_, err := parseNarrative("I cannot help with that.", sampleForecast, time.Now())
	assert.Error(t, err)

	_, err = parseNarrative(`{"summary": 12}`, sampleForecast, time.Now())
	assert.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt(sampleForecast, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, p, "Metric: revenue")
	assert.Contains(t, p, "On 2024-03-06 the revenue was 1310.00.")
	assert.Contains(t, p, "2024-03-09: 1630.00")
	assert.Contains(t, p, "Today's Date: 2024-03-07")
	assert.Contains(t, p, `"positive_factors"`)
}

func TestResponseText(t *testing.T) {
	_, err := responseText(nil)
	assert.Error(t, err)

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"summary":`), genai.Text(`"ok"}`)}},
	}}}
	text, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, text)
}

func TestNewGeminiNarrator_RequiresKey(t *testing.T) {
	_, err := NewGeminiNarrator(context.Background(), "", "gemini-2.5-flash-lite")
	assert.True(t, errors.Is(err, ErrDisabled))
}
