package models

import "time"

// ForecastPeriod defines the start and end dates for a forecast.
type ForecastPeriod struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// AiAnalysis contains the qualitative reading of a forecast from the Gemini model.
type AiAnalysis struct {
	Summary         string         `json:"summary"`
	PositiveFactors []string       `json:"positive_factors"`
	NegativeFactors []string       `json:"negative_factors"`
	Period          ForecastPeriod `json:"period"`
	GeneratedAt     time.Time      `json:"generatedAt"`
}
