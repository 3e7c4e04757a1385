// Package ai asks a Gemini model for a short qualitative reading of a trend forecast.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"restaurant-analytics/models"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("ai narrative is not configured")

// Narrator explains a computed forecast in plain language.
type Narrator interface {
	Narrate(ctx context.Context, f models.ForecastResult) (*models.AiAnalysis, error)
}

// GeminiNarrator implements Narrator with the Gemini API.
type GeminiNarrator struct {
	client *genai.Client
	model  string
	now    func() time.Time
}

// NewGeminiNarrator creates the client. The caller closes it with Close.
func NewGeminiNarrator(ctx context.Context, apiKey, model string) (*GeminiNarrator, error) {
	if apiKey == "" {
		return nil, ErrDisabled
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &GeminiNarrator{client: client, model: model, now: time.Now}, nil
}

func (g *GeminiNarrator) Close() error {
	return g.client.Close()
}

func (g *GeminiNarrator) Narrate(ctx context.Context, f models.ForecastResult) (*models.AiAnalysis, error) {
	model := g.client.GenerativeModel(g.model)
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
	}

	now := g.now()
	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(f, now)))
	if err != nil {
		log.Printf("❌ [AI] Gemini request failed: %v", err)
		return nil, fmt.Errorf("generating narrative: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	return parseNarrative(text, f, now)
}

// buildPrompt describes the fitted trend and recent history and asks for a minified JSON
// answer.
func buildPrompt(f models.ForecastResult, now time.Time) string {
	var history strings.Builder
	for _, h := range f.Historical {
		fmt.Fprintf(&history, "On %s the %s was %.2f.\n", h.Date, f.Analysis.Metric, h.Actual)
	}
	if history.Len() == 0 {
		history.WriteString("No daily data available.\n")
	}
	var forecast strings.Builder
	for _, p := range f.Forecast {
		fmt.Fprintf(&forecast, "%s: %.2f\n", p.Date, p.Predicted)
	}

	jsonFormat := `{"summary":"string","positive_factors":["string",...],"negative_factors":["string",...]}`

	return fmt.Sprintf(`
        You are an expert restaurant data analyst. Explain the following sales trend to a restaurant owner in two or three sentences and list the factors behind it.

        **Analysis Context:**
        - Metric: %s
        - Trend: %s (%.2f%% per day, R² %.2f, fit quality %s)
        - Today's Date: %s

        **Daily History:**
        %s
        **Linear Forecast:**
        %s
        **Required Output:**
        You must provide a single, minified JSON object with the following exact structure. Do not include any markdown formatting, backticks, or explanatory text before or after the JSON object.

        %s
    `, f.Analysis.Metric, f.Analysis.Trend, f.Analysis.PercentChangePerDay, f.Analysis.RSquared,
		f.Analysis.Quality, now.Format("2006-01-02"), history.String(), forecast.String(), jsonFormat)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no content received from AI")
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text += string(txt)
		}
	}
	if text == "" {
		return "", errors.New("no text content received from AI")
	}
	return text, nil
}

func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return raw[start : end+1]
}

// parseNarrative reads the model's JSON answer, tolerating surrounding prose or code fences.
func parseNarrative(text string, f models.ForecastResult, now time.Time) (*models.AiAnalysis, error) {
	jsonStr := extractJSON(text)
	if jsonStr == "" {
		log.Printf("[AI] Could not extract JSON from Gemini response: %s", text)
		return nil, errors.New("failed to parse AI response format")
	}

	var out struct {
		Summary         string   `json:"summary"`
		PositiveFactors []string `json:"positive_factors"`
		NegativeFactors []string `json:"negative_factors"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		log.Printf("[AI] Error parsing Gemini JSON: %v\nRaw JSON: %s", err, jsonStr)
		return nil, fmt.Errorf("failed to parse AI narrative: %w", err)
	}

	a := &models.AiAnalysis{
		Summary:         out.Summary,
		PositiveFactors: out.PositiveFactors,
		NegativeFactors: out.NegativeFactors,
		GeneratedAt:     now,
	}
	if a.PositiveFactors == nil {
		a.PositiveFactors = []string{}
	}
	if a.NegativeFactors == nil {
		a.NegativeFactors = []string{}
	}
	if n := len(f.Forecast); n > 0 {
		start, err1 := time.Parse("2006-01-02", f.Forecast[0].Date)
		end, err2 := time.Parse("2006-01-02", f.Forecast[n-1].Date)
		if err1 == nil && err2 == nil {
			a.Period = models.ForecastPeriod{StartDate: start, EndDate: end}
		}
	}
	return a, nil
}
