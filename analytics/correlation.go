package analytics

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"restaurant-analytics/cache"
	"restaurant-analytics/models"
	"restaurant-analytics/query"
	"restaurant-analytics/utils"
)

const correlationWhere = query.StatusPredicate + `
  AND s.created_at >= $1
  AND s.created_at < $2`

const discountImpactSQL = `
WITH banded AS (
  SELECT s.total_amount,
    CASE
      WHEN COALESCE(s.total_discount, 0) = 0 THEN 0
      WHEN COALESCE(s.total_amount_items, 0) <= 0 THEN 3
      WHEN s.total_discount * 100.0 / NULLIF(s.total_amount_items, 0) <= $3 THEN 1
      WHEN s.total_discount * 100.0 / NULLIF(s.total_amount_items, 0) <= $4 THEN 2
      ELSE 3
    END AS band
  FROM sales s
  WHERE ` + correlationWhere + `
)
SELECT band,
  COUNT(*) AS order_count,
  AVG(total_amount)::float8 AS avg_order_value,
  SUM(total_amount)::float8 AS total_revenue
FROM banded
GROUP BY band
ORDER BY band`

const dayOfWeekSQL = `
SELECT EXTRACT(DOW FROM s.created_at)::int AS day_of_week,
  COUNT(*) AS order_count,
  AVG(s.total_amount)::float8 AS avg_order_value,
  SUM(s.total_amount)::float8 AS total_revenue
FROM sales s
WHERE ` + correlationWhere + `
GROUP BY 1
ORDER BY 1`

const hourlySQL = `
SELECT EXTRACT(HOUR FROM s.created_at)::int AS hour,
  COUNT(*) AS order_count,
  AVG(s.total_amount)::float8 AS avg_order_value,
  SUM(s.total_amount)::float8 AS total_revenue,
  AVG(s.people_quantity)::float8 AS avg_party_size
FROM sales s
WHERE ` + correlationWhere + `
GROUP BY 1
ORDER BY 1`

const productionSQL = `
SELECT
  CASE
    WHEN s.production_seconds < 600 THEN 0
    WHEN s.production_seconds < 1200 THEN 1
    WHEN s.production_seconds < 1800 THEN 2
    ELSE 3
  END AS band,
  COUNT(*) AS order_count,
  AVG(s.total_amount)::float8 AS avg_order_value,
  SUM(s.total_amount)::float8 AS total_revenue,
  AVG(s.production_seconds)::float8 AS avg_production_seconds
FROM sales s
WHERE ` + correlationWhere + `
  AND s.production_seconds IS NOT NULL
GROUP BY 1
ORDER BY 1`

const channelSQL = `
SELECT ch.name AS channel_name,
  ch.type AS channel_type,
  COUNT(*) AS order_count,
  AVG(s.total_amount)::float8 AS avg_order_value,
  SUM(s.total_amount)::float8 AS total_revenue,
  AVG(s.production_seconds)::float8 AS avg_production_seconds,
  COUNT(*) FILTER (WHERE s.delivery_fee > 0) AS delivery_orders
FROM sales s
JOIN channels ch ON ch.id = s.channel_id
WHERE ` + correlationWhere + `
GROUP BY ch.id, ch.name, ch.type
ORDER BY total_revenue DESC`

var dayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

var productionBands = [4]string{"Fast (<10min)", "Normal (10-20min)", "Slow (20-30min)", "Very slow (>30min)"}

func mealPeriod(hour int) string {
	switch {
	case hour >= 6 && hour <= 11:
		return "Morning"
	case hour >= 12 && hour <= 14:
		return "Lunch"
	case hour >= 15 && hour <= 17:
		return "Afternoon"
	case hour >= 18 && hour <= 22:
		return "Dinner"
	}
	return "Night"
}

func segment(row map[string]interface{}) models.Segment {
	return models.Segment{
		Orders:    rowInt(row, "order_count"),
		AvgTicket: utils.RoundMoney(rowFloat(row, "avg_order_value")),
		Revenue:   utils.RoundMoney(rowFloat(row, "total_revenue")),
	}
}

// period resolves the analysis window. Dates are YYYY-MM-DD and the end day is included.
func (e *Engine) period(tr models.TimeRange) (start, end time.Time, err error) {
	end = e.today().AddDate(0, 0, 1)
	if tr.End != "" {
		t, perr := time.Parse(dateLayout, tr.End)
		if perr != nil {
			return start, end, query.InvalidParameter("endDate", "endDate must be YYYY-MM-DD")
		}
		end = t.AddDate(0, 0, 1)
	}
	start = end.AddDate(0, 0, -e.settings.CorrelationDefaultDays)
	if tr.Start != "" {
		t, perr := time.Parse(dateLayout, tr.Start)
		if perr != nil {
			return start, end, query.InvalidParameter("startDate", "startDate must be YYYY-MM-DD")
		}
		start = t
	}
	if !start.Before(end) {
		return start, end, query.InvalidParameter("startDate", "startDate must not be after endDate")
	}
	return start, end, nil
}

// CorrelationAnalysis segments completed sales in the window by discount, weekday, hour,
// production time and channel, and derives rule-based insights from the segments.
func (e *Engine) CorrelationAnalysis(ctx context.Context, tr models.TimeRange) (models.CorrelationResult, error) {
	start, end, err := e.period(tr)
	if err != nil {
		return models.CorrelationResult{}, err
	}
	th := e.settings.Thresholds
	if th.DiscountLowPct <= 0 || th.DiscountMediumPct <= th.DiscountLowPct {
		return models.CorrelationResult{}, query.InvalidParameter("discountBands", "discount bands must be increasing and positive")
	}

	params := map[string]interface{}{
		"start": start.Format(dateLayout),
		"end":   end.Format(dateLayout),
		"low":   th.DiscountLowPct,
		"mid":   th.DiscountMediumPct,
	}
	return cache.Fetch(ctx, e.cache, "correlations", params, e.settings.AnalysisTTL, func(ctx context.Context) (models.CorrelationResult, error) {
		return e.correlations(ctx, start, end)
	})
}

func (e *Engine) correlations(ctx context.Context, start, end time.Time) (models.CorrelationResult, error) {
	th := e.settings.Thresholds
	var discount, dow, hourly, production, channels []map[string]interface{}

	g, gctx := errgroup.WithContext(ctx)
	run := func(dst *[]map[string]interface{}, sql string, args ...interface{}) {
		g.Go(func() error {
			rows, err := e.fetch(gctx, "correlations", sql, args...)
			*dst = rows
			return err
		})
	}
	run(&discount, discountImpactSQL, start, end, th.DiscountLowPct, th.DiscountMediumPct)
	run(&dow, dayOfWeekSQL, start, end)
	run(&hourly, hourlySQL, start, end)
	run(&production, productionSQL, start, end)
	run(&channels, channelSQL, start, end)
	if err := g.Wait(); err != nil {
		return models.CorrelationResult{}, err
	}

	bandNames := [4]string{
		"No discount",
		fmt.Sprintf("Low (<=%g%%)", th.DiscountLowPct),
		fmt.Sprintf("Medium (%g-%g%%)", th.DiscountLowPct, th.DiscountMediumPct),
		fmt.Sprintf("High (>%g%%)", th.DiscountMediumPct),
	}

	var a models.CorrelationAnalyses
	for _, row := range discount {
		band := rowInt(row, "band")
		if band < 0 || band > 3 {
			continue
		}
		a.DiscountImpact = append(a.DiscountImpact, models.DiscountBand{Band: bandNames[band], Segment: segment(row)})
	}
	for _, row := range dow {
		d := int(rowInt(row, "day_of_week"))
		if d < 0 || d > 6 {
			continue
		}
		a.DayOfWeek = append(a.DayOfWeek, models.DayPattern{DayOfWeek: d, DayName: dayNames[d], Segment: segment(row)})
	}
	for _, row := range hourly {
		h := int(rowInt(row, "hour"))
		a.Hourly = append(a.Hourly, models.HourPattern{
			Hour:         h,
			Period:       mealPeriod(h),
			AvgPartySize: utils.Round(rowFloat(row, "avg_party_size"), 2),
			Segment:      segment(row),
		})
	}
	for _, row := range production {
		band := rowInt(row, "band")
		if band < 0 || band > 3 {
			continue
		}
		a.Production = append(a.Production, models.ProductionBand{
			Band:              productionBands[band],
			AvgProductionSecs: utils.Round(rowFloat(row, "avg_production_seconds"), 1),
			Segment:           segment(row),
		})
	}
	var channelRevenue float64
	for _, row := range channels {
		channelRevenue += rowFloat(row, "total_revenue")
	}
	for _, row := range channels {
		a.Channels = append(a.Channels, models.ChannelPerformance{
			ChannelName:       rowString(row, "channel_name"),
			ChannelType:       rowString(row, "channel_type"),
			AvgProductionSecs: utils.Round(rowFloat(row, "avg_production_seconds"), 1),
			DeliveryOrders:    rowInt(row, "delivery_orders"),
			Share:             utils.Round(utils.Percent(rowFloat(row, "total_revenue"), channelRevenue), 2),
			Segment:           segment(row),
		})
	}

	insights := correlationInsights(a, th)
	log.Printf("[ANALYTICS] correlations %s..%s: %d insights", start.Format(dateLayout), end.Format(dateLayout), len(insights))

	return models.CorrelationResult{
		Period:   models.TimeRange{Start: start.Format(dateLayout), End: end.AddDate(0, 0, -1).Format(dateLayout)},
		Analyses: a,
		Insights: insights,
	}, nil
}

func correlationInsights(a models.CorrelationAnalyses, th Thresholds) []models.Insight {
	insights := []models.Insight{}

	// Discount effectiveness: ticket of discounted orders against undiscounted ones.
	var base *models.DiscountBand
	var discOrders int64
	var discRevenue float64
	for i := range a.DiscountImpact {
		b := &a.DiscountImpact[i]
		if i == 0 && b.Band == "No discount" {
			base = b
			continue
		}
		discOrders += b.Orders
		discRevenue += b.Revenue
	}
	if base != nil && base.AvgTicket > 0 && discOrders > 0 {
		withAvg := discRevenue / float64(discOrders)
		diff := utils.Percent(withAvg-base.AvgTicket, base.AvgTicket)
		in := models.Insight{Category: "discount_effectiveness"}
		if diff > 0 {
			in.Type = "positive"
			in.Title = "Discounts raise the average ticket"
			in.Description = fmt.Sprintf("Discounted orders average %.1f%% more (%.2f vs %.2f)", diff, withAvg, base.AvgTicket)
		} else {
			in.Type = "warning"
			in.Title = "Discounts do not raise the average ticket"
			in.Description = fmt.Sprintf("Discounted orders average %.1f%% less (%.2f vs %.2f)", -diff, withAvg, base.AvgTicket)
		}
		insights = append(insights, in)
	}

	if len(a.DayOfWeek) > 0 {
		busiest, quietest := a.DayOfWeek[0], a.DayOfWeek[0]
		for _, d := range a.DayOfWeek[1:] {
			if d.Orders > busiest.Orders {
				busiest = d
			}
			if d.Orders < quietest.Orders {
				quietest = d
			}
		}
		insights = append(insights, models.Insight{
			Type:        "info",
			Category:    "busiest_day",
			Title:       busiest.DayName + " is the busiest day",
			Description: fmt.Sprintf("%d orders with %.2f in revenue", busiest.Orders, busiest.Revenue),
		})
		if len(a.DayOfWeek) > 1 && quietest.DayOfWeek != busiest.DayOfWeek {
			insights = append(insights, models.Insight{
				Type:        "info",
				Category:    "quietest_day",
				Title:       quietest.DayName + " is the quietest day",
				Description: fmt.Sprintf("%d orders with %.2f in revenue", quietest.Orders, quietest.Revenue),
			})
		}

		var weekday, weekend float64
		var nWeekday, nWeekend int
		for _, d := range a.DayOfWeek {
			if d.DayOfWeek == 0 || d.DayOfWeek == 6 {
				weekend += d.Revenue
				nWeekend++
			} else {
				weekday += d.Revenue
				nWeekday++
			}
		}
		if nWeekday > 0 && nWeekend > 0 {
			weekday /= float64(nWeekday)
			weekend /= float64(nWeekend)
			switch {
			case weekend > 0 && utils.Percent(weekday-weekend, weekend) > th.WeekendGapPct:
				insights = append(insights, models.Insight{
					Type:        "info",
					Category:    "weekday_vs_weekend",
					Title:       "Weekdays outsell weekends",
					Description: fmt.Sprintf("Average weekday revenue is %.1f%% higher than weekend revenue", utils.Percent(weekday-weekend, weekend)),
				})
			case weekday > 0 && utils.Percent(weekend-weekday, weekday) > th.WeekendGapPct:
				insights = append(insights, models.Insight{
					Type:        "info",
					Category:    "weekday_vs_weekend",
					Title:       "Weekends outsell weekdays",
					Description: fmt.Sprintf("Average weekend revenue is %.1f%% higher than weekday revenue", utils.Percent(weekend-weekday, weekday)),
				})
			}
		}
	}

	if len(a.Hourly) > 0 {
		peak := a.Hourly[0]
		for _, h := range a.Hourly[1:] {
			if h.Orders > peak.Orders {
				peak = h
			}
		}
		insights = append(insights, models.Insight{
			Type:        "info",
			Category:    "peak_hour",
			Title:       fmt.Sprintf("%02dh is the peak hour (%s)", peak.Hour, peak.Period),
			Description: fmt.Sprintf("%d orders with an average ticket of %.2f", peak.Orders, peak.AvgTicket),
		})
	}

	if len(a.Channels) > 1 {
		top := append([]models.ChannelPerformance(nil), a.Channels...)
		sort.SliceStable(top, func(i, j int) bool { return top[i].Share > top[j].Share })
		if top[0].Share > th.ChannelConcentrationPct {
			insights = append(insights, models.Insight{
				Type:        "warning",
				Category:    "channel_concentration",
				Title:       top[0].ChannelName + " dominates revenue",
				Description: fmt.Sprintf("%.1f%% of revenue comes from a single channel", top[0].Share),
			})
		}
	}

	return insights
}
