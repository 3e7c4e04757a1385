package analytics

import (
	"context"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/stat"

	"restaurant-analytics/cache"
	"restaurant-analytics/models"
	"restaurant-analytics/query"
	"restaurant-analytics/utils"
)

const (
	maxForecastHistory = 365
	maxForecastDays    = 90
	minForecastPoints  = 2
)

// Forecast metrics.
const (
	MetricRevenue   = "revenue"
	MetricOrders    = "orders"
	MetricAvgTicket = "avg_ticket"
)

type linearFit struct {
	slope     float64
	intercept float64
	rSquared  float64
	mean      float64
}

// fitLine is ordinary least squares of ys against x = 0..n-1. R² is clamped to [0, 1]; a
// constant series is fitted exactly and gets 1.
func fitLine(ys []float64) linearFit {
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	mean := stat.Mean(ys, nil)
	if len(ys) < 2 {
		return linearFit{intercept: mean, rSquared: 1, mean: mean}
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	r2 := 1.0
	if stat.Variance(ys, nil) != 0 {
		r2 = stat.RSquared(xs, ys, nil, intercept, slope)
		if math.IsNaN(r2) {
			r2 = 0
		}
		r2 = math.Min(1, math.Max(0, r2))
	}
	return linearFit{slope: slope, intercept: intercept, rSquared: r2, mean: mean}
}

func classifyTrend(fit linearFit, stablePct float64) (string, float64) {
	var pct float64
	if fit.mean != 0 {
		pct = fit.slope / math.Abs(fit.mean) * 100
	}
	switch {
	case math.Abs(pct) < stablePct:
		return models.TrendStable, pct
	case pct > 0:
		return models.TrendIncreasing, pct
	}
	return models.TrendDecreasing, pct
}

func classifyQuality(r2 float64, th Thresholds) string {
	switch {
	case r2 >= th.ForecastGoodR2:
		return models.QualityGood
	case r2 >= th.ForecastFairR2:
		return models.QualityFair
	}
	return models.QualityPoor
}

func trendInsights(a models.TrendAnalysis, th Thresholds) []string {
	name := utils.Title(a.Metric)
	var out []string
	switch a.Trend {
	case models.TrendIncreasing:
		out = append(out, fmt.Sprintf("✅ %s is trending upward by %.2f per day", name, math.Abs(a.Slope)))
		if a.RSquared >= th.ForecastGoodR2 {
			out = append(out, "The trend is strong and consistent")
		}
	case models.TrendDecreasing:
		out = append(out, fmt.Sprintf("⚠️ %s is trending downward by %.2f per day", name, math.Abs(a.Slope)))
		if a.RSquared >= th.ForecastGoodR2 {
			out = append(out, "The decline is consistent, action may be needed")
		}
	default:
		out = append(out, fmt.Sprintf("📊 %s is relatively stable", name))
	}
	if a.RSquared < th.ForecastFairR2 {
		out = append(out, "⚠️ High variability in the data, predictions are less reliable")
	}
	return out
}

// TrendForecast fits a straight line to a daily metric over the last daysBack complete days
// and projects it forecastDays ahead.
func (e *Engine) TrendForecast(ctx context.Context, metric string, daysBack, forecastDays int) (models.ForecastResult, error) {
	switch metric {
	case MetricRevenue, MetricOrders, MetricAvgTicket:
	default:
		return models.ForecastResult{}, query.InvalidParameter("metric", "metric must be one of revenue, orders, avg_ticket")
	}
	if daysBack < minForecastPoints {
		return models.ForecastResult{}, &InsufficientDataError{Op: "trend_forecast", Required: minForecastPoints, Got: daysBack}
	}
	if daysBack > maxForecastHistory {
		return models.ForecastResult{}, query.InvalidParameter("daysBack", "daysBack must be at most %d", maxForecastHistory)
	}
	if forecastDays < 1 || forecastDays > maxForecastDays {
		return models.ForecastResult{}, query.InvalidParameter("forecastDays", "forecastDays must be between 1 and %d", maxForecastDays)
	}

	end := e.today()
	start := end.AddDate(0, 0, -daysBack)
	params := map[string]interface{}{
		"metric": metric, "start": start.Format(dateLayout), "end": end.Format(dateLayout), "forecastDays": forecastDays,
	}

	return cache.Fetch(ctx, e.cache, "trend_forecast", params, e.settings.AnalysisTTL, func(ctx context.Context) (models.ForecastResult, error) {
		series, err := e.dailySeries(ctx, "trend_forecast", start, end)
		if err != nil {
			return models.ForecastResult{}, err
		}

		var points []dailyPoint
		var ys []float64
		for _, p := range series {
			switch metric {
			case MetricRevenue:
				ys = append(ys, p.revenue)
			case MetricOrders:
				ys = append(ys, p.orders)
			case MetricAvgTicket:
				if p.orders == 0 {
					continue
				}
				ys = append(ys, p.revenue/p.orders)
			}
			points = append(points, p)
		}
		if len(ys) < minForecastPoints {
			return models.ForecastResult{}, &InsufficientDataError{Op: "trend_forecast", Required: minForecastPoints, Got: len(ys)}
		}

		return e.buildForecast(metric, points, ys, daysBack, forecastDays), nil
	})
}

func (e *Engine) buildForecast(metric string, points []dailyPoint, ys []float64, daysBack, forecastDays int) models.ForecastResult {
	th := e.settings.Thresholds
	fit := fitLine(ys)
	trend, pct := classifyTrend(fit, th.TrendStablePct)

	res := models.ForecastResult{
		Historical: make([]models.HistoricalPoint, 0, len(ys)),
		Forecast:   make([]models.ForecastPoint, 0, forecastDays),
		Analysis: models.TrendAnalysis{
			Metric:              metric,
			Trend:               trend,
			Slope:               utils.Round(fit.slope, 4),
			Intercept:           utils.Round(fit.intercept, 4),
			PercentChangePerDay: utils.Round(pct, 2),
			RSquared:            utils.Round(fit.rSquared, 4),
			Quality:             classifyQuality(fit.rSquared, th),
			DaysAnalyzed:        daysBack,
			ForecastDays:        forecastDays,
		},
	}
	for i, y := range ys {
		res.Historical = append(res.Historical, models.HistoricalPoint{
			Date:      points[i].day.Format(dateLayout),
			Actual:    utils.RoundMoney(y),
			TrendLine: utils.RoundMoney(fit.slope*float64(i) + fit.intercept),
		})
	}
	last := points[len(points)-1].day
	n := len(ys)
	for i := 0; i < forecastDays; i++ {
		x := n + i
		res.Forecast = append(res.Forecast, models.ForecastPoint{
			Date:      last.AddDate(0, 0, i+1).Format(dateLayout),
			Predicted: utils.RoundMoney(fit.slope*float64(x) + fit.intercept),
			DayNumber: x,
		})
	}
	res.Insights = trendInsights(res.Analysis, th)

	log.Printf("[ANALYTICS] forecast %s: %s trend, R²=%.3f over %d points", metric, trend, fit.rSquared, n)
	return res
}
