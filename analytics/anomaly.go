package analytics

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"restaurant-analytics/cache"
	"restaurant-analytics/models"
	"restaurant-analytics/query"
	"restaurant-analytics/utils"
)

const (
	maxAnomalyDays   = 365
	maxSensitivity   = 10.0
	normalDaysReturn = 10
)

const dailySQL = `
SELECT DATE(s.created_at) AS day,
  COUNT(*) AS order_count,
  SUM(s.total_amount)::float8 AS revenue
FROM sales s
WHERE ` + query.StatusPredicate + `
  AND s.created_at >= $1
  AND s.created_at < $2
GROUP BY 1
ORDER BY 1`

type dailyPoint struct {
	day     time.Time
	orders  float64
	revenue float64
	seen    bool
}

// dailySeries fetches per-day orders and revenue for [start, end) with every calendar day
// present; days without completed sales have seen == false and zero values.
func (e *Engine) dailySeries(ctx context.Context, op string, start, end time.Time) ([]dailyPoint, error) {
	rows, err := e.fetch(ctx, op, dailySQL, start, end)
	if err != nil {
		return nil, err
	}
	byDay := make(map[time.Time]map[string]interface{}, len(rows))
	for _, row := range rows {
		if d, ok := rowDate(row, "day"); ok {
			byDay[d] = row
		}
	}

	var out []dailyPoint
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		p := dailyPoint{day: d}
		if row, ok := byDay[d]; ok {
			p.orders = float64(rowInt(row, "order_count"))
			p.revenue = rowFloat(row, "revenue")
			p.seen = true
		}
		out = append(out, p)
	}
	return out, nil
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean, sd := stat.PopMeanStdDev(xs, nil)
	if math.IsNaN(sd) {
		sd = 0
	}
	return mean, sd
}

// Anomalies flags days in the last daysBack complete days whose order count or revenue lies
// more than sensitivity standard deviations from the window mean.
func (e *Engine) Anomalies(ctx context.Context, daysBack int, sensitivity float64) (models.AnomalyResult, error) {
	if daysBack < 1 || daysBack > maxAnomalyDays {
		return models.AnomalyResult{}, query.InvalidParameter("daysBack", "daysBack must be between 1 and %d", maxAnomalyDays)
	}
	if math.IsNaN(sensitivity) || sensitivity <= 0 || sensitivity > maxSensitivity {
		return models.AnomalyResult{}, query.InvalidParameter("sensitivity", "sensitivity must be greater than 0 and at most %g", maxSensitivity)
	}

	end := e.today()
	start := end.AddDate(0, 0, -daysBack)
	params := map[string]interface{}{"start": start.Format(dateLayout), "end": end.Format(dateLayout), "sensitivity": sensitivity}

	return cache.Fetch(ctx, e.cache, "anomalies", params, e.settings.AnalysisTTL, func(ctx context.Context) (models.AnomalyResult, error) {
		series, err := e.dailySeries(ctx, "anomalies", start, end)
		if err != nil {
			return models.AnomalyResult{}, err
		}
		res := detectAnomalies(series, sensitivity, e.settings.Thresholds.AnomalyHighSigma)
		log.Printf("[ANALYTICS] anomalies: %d of %d days flagged at %.2f sigma", res.Summary.AnomaliesFound, res.Summary.DaysAnalyzed, sensitivity)
		return res, nil
	})
}

func detectAnomalies(series []dailyPoint, sensitivity, highSigma float64) models.AnomalyResult {
	orders := make([]float64, len(series))
	revenue := make([]float64, len(series))
	for i, p := range series {
		orders[i] = p.orders
		revenue[i] = p.revenue
	}
	muO, sdO := meanStdDev(orders)
	muR, sdR := meanStdDev(revenue)

	res := models.AnomalyResult{Anomalies: []models.AnomalyRecord{}, NormalDays: []models.DailyStat{}}

	// Newest first.
	for i := len(series) - 1; i >= 0; i-- {
		p := series[i]
		stat := models.DailyStat{
			Date:       p.day.Format(dateLayout),
			OrderCount: int64(p.orders),
			Revenue:    utils.RoundMoney(p.revenue),
		}
		if p.orders > 0 {
			stat.AvgTicket = utils.RoundMoney(p.revenue / p.orders)
		}

		var types []string
		var devO, devR float64
		if sdO > 0 {
			devO = math.Abs(p.orders-muO) / sdO
			if math.Abs(p.orders-muO) > sensitivity*sdO {
				if p.orders > muO {
					types = append(types, models.AnomalyOrderSpike)
				} else {
					types = append(types, models.AnomalyOrderDrop)
				}
			}
		}
		if sdR > 0 {
			devR = math.Abs(p.revenue-muR) / sdR
			if math.Abs(p.revenue-muR) > sensitivity*sdR {
				if p.revenue > muR {
					types = append(types, models.AnomalyRevenueSpike)
				} else {
					types = append(types, models.AnomalyRevenueDrop)
				}
			}
		}

		if len(types) == 0 {
			if len(res.NormalDays) < normalDaysReturn {
				res.NormalDays = append(res.NormalDays, stat)
			}
			continue
		}

		severity := models.SeverityModerate
		if devO > highSigma || devR > highSigma {
			severity = models.SeverityHigh
		}
		res.Anomalies = append(res.Anomalies, models.AnomalyRecord{
			DailyStat:        stat,
			MeanOrders:       utils.Round(muO, 2),
			StdDevOrders:     utils.Round(sdO, 2),
			MeanRevenue:      utils.RoundMoney(muR),
			StdDevRevenue:    utils.RoundMoney(sdR),
			OrderDeviation:   utils.Round(devO, 2),
			RevenueDeviation: utils.Round(devR, 2),
			Severity:         severity,
			Types:            types,
		})
	}

	sort.SliceStable(res.Anomalies, func(i, j int) bool { return res.Anomalies[i].Date > res.Anomalies[j].Date })

	res.Summary = models.AnomalySummary{
		DaysAnalyzed:   len(series),
		AnomaliesFound: len(res.Anomalies),
		Sensitivity:    sensitivity,
	}
	if len(series) > 0 {
		res.Summary.AnomalyRate = utils.Round(float64(len(res.Anomalies))*100/float64(len(series)), 2)
	}
	return res
}
