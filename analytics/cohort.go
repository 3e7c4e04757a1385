package analytics

import (
	"context"
	"log"
	"sort"
	"time"

	"restaurant-analytics/cache"
	"restaurant-analytics/models"
	"restaurant-analytics/query"
	"restaurant-analytics/utils"
)

const maxCohortMonths = 24

// First-purchase month is taken over the full history so a returning customer is never
// mistaken for a new one; only cohorts inside the lookback are reported.
const cohortSQL = `
WITH firsts AS (
  SELECT s.customer_id, DATE_TRUNC('month', MIN(s.created_at))::date AS cohort_month
  FROM sales s
  WHERE ` + query.StatusPredicate + `
    AND s.customer_id IS NOT NULL
  GROUP BY s.customer_id
),
activity AS (
  SELECT DISTINCT s.customer_id, DATE_TRUNC('month', s.created_at)::date AS order_month
  FROM sales s
  WHERE ` + query.StatusPredicate + `
    AND s.customer_id IS NOT NULL
    AND s.created_at >= $1
)
SELECT f.cohort_month, a.order_month, COUNT(*) AS active_customers
FROM firsts f
JOIN activity a ON a.customer_id = f.customer_id
WHERE f.cohort_month >= $1
GROUP BY f.cohort_month, a.order_month
ORDER BY f.cohort_month, a.order_month`

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// CohortRetention groups customers by first-purchase month and reports, for each following
// month up to cohortMonths, the share of the cohort that bought again.
func (e *Engine) CohortRetention(ctx context.Context, cohortMonths int) (models.CohortResult, error) {
	if cohortMonths < 1 || cohortMonths > maxCohortMonths {
		return models.CohortResult{}, query.InvalidParameter("cohortMonths", "cohortMonths must be between 1 and %d", maxCohortMonths)
	}
	today := e.today()
	since := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(e.settings.CohortLookbackMonths - 1), 0)

	params := map[string]interface{}{"months": cohortMonths, "since": since.Format(dateLayout), "today": today.Format(dateLayout)}
	return cache.Fetch(ctx, e.cache, "cohort_retention", params, e.settings.AnalysisTTL, func(ctx context.Context) (models.CohortResult, error) {
		rows, err := e.fetch(ctx, "cohort_retention", cohortSQL, since)
		if err != nil {
			return models.CohortResult{}, err
		}
		res := buildCohorts(rows, cohortMonths, monthIndex(today))
		log.Printf("[ANALYTICS] cohort retention: %d cohorts, %d customers", res.Summary.TotalCohorts, res.Summary.TotalCustomers)
		return res, nil
	})
}

func buildCohorts(rows []map[string]interface{}, cohortMonths, currentMonth int) models.CohortResult {
	active := make(map[int]map[int]int64) // cohort month index -> offset -> customers
	for _, row := range rows {
		cm, ok := rowDate(row, "cohort_month")
		if !ok {
			continue
		}
		om, ok := rowDate(row, "order_month")
		if !ok {
			continue
		}
		c := monthIndex(cm)
		offset := monthIndex(om) - c
		if offset < 0 || offset > cohortMonths {
			continue
		}
		if active[c] == nil {
			active[c] = make(map[int]int64)
		}
		active[c][offset] += rowInt(row, "active_customers")
	}

	starts := make([]int, 0, len(active))
	for c := range active {
		starts = append(starts, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(starts)))

	res := models.CohortResult{
		Cohorts: []models.CohortRow{},
		Summary: models.CohortSummary{AverageRetention: map[int]float64{}},
	}
	sums := make(map[int]float64)
	counts := make(map[int]int)

	for _, c := range starts {
		size := active[c][0]
		if size == 0 {
			continue
		}
		row := models.CohortRow{
			CohortMonth: time.Date(c/12, time.Month(c%12+1), 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
			CohortSize:  size,
		}
		for m := 0; m <= cohortMonths && c+m <= currentMonth; m++ {
			rate := 100.0
			if m > 0 {
				rate = utils.Round(utils.Percent(float64(active[c][m]), float64(size)), 2)
			}
			row.Retention = append(row.Retention, models.RetentionPoint{Month: m, ActiveCustomers: active[c][m], RetentionRate: rate})
			sums[m] += rate
			counts[m]++
		}
		res.Cohorts = append(res.Cohorts, row)
		res.Summary.TotalCustomers += size
	}

	for m, n := range counts {
		res.Summary.AverageRetention[m] = utils.Round(sums[m]/float64(n), 2)
	}
	res.Summary.TotalCohorts = len(res.Cohorts)
	return res
}
