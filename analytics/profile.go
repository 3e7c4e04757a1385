package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"restaurant-analytics/cache"
	"restaurant-analytics/models"
	"restaurant-analytics/query"
	"restaurant-analytics/utils"
)

const histogramBuckets = 10

// The profile is the one report that reads every status: it counts cancellations. Value
// statistics stay restricted to completed sales through FILTER clauses.
const profileWindow = `s.created_at >= $1
  AND s.created_at < $2`

const profileStatsSQL = `
SELECT COUNT(*) AS total_records,
  COUNT(*) FILTER (WHERE ` + query.StatusPredicate + `) AS completed_sales,
  COUNT(*) FILTER (WHERE s.sale_status_desc = 'CANCELLED') AS cancelled_sales,
  COUNT(DISTINCT s.store_id) AS unique_stores,
  COUNT(DISTINCT s.customer_id) AS unique_customers,
  COUNT(DISTINCT s.channel_id) AS unique_channels,
  MIN(s.total_amount) FILTER (WHERE ` + query.StatusPredicate + `)::float8 AS min_revenue,
  MAX(s.total_amount) FILTER (WHERE ` + query.StatusPredicate + `)::float8 AS max_revenue,
  AVG(s.total_amount) FILTER (WHERE ` + query.StatusPredicate + `)::float8 AS avg_revenue,
  PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY s.total_amount) FILTER (WHERE ` + query.StatusPredicate + `) AS median_revenue,
  PERCENTILE_CONT(0.25) WITHIN GROUP (ORDER BY s.total_amount) FILTER (WHERE ` + query.StatusPredicate + `) AS q1_revenue,
  PERCENTILE_CONT(0.75) WITHIN GROUP (ORDER BY s.total_amount) FILTER (WHERE ` + query.StatusPredicate + `) AS q3_revenue,
  STDDEV(s.total_amount) FILTER (WHERE ` + query.StatusPredicate + `)::float8 AS stddev_revenue,
  COUNT(*) FILTER (WHERE s.total_discount > 0) AS orders_with_discount,
  AVG(s.total_discount) FILTER (WHERE s.total_discount > 0)::float8 AS avg_discount,
  COUNT(*) FILTER (WHERE s.delivery_fee > 0) AS orders_with_delivery,
  AVG(s.delivery_fee) FILTER (WHERE s.delivery_fee > 0)::float8 AS avg_delivery_fee,
  AVG(s.production_seconds)::float8 AS avg_production_seconds,
  AVG(s.delivery_seconds)::float8 AS avg_delivery_seconds,
  COUNT(*) FILTER (WHERE s.customer_id IS NULL) AS missing_customer_id,
  COUNT(*) FILTER (WHERE s.total_amount <= 0) AS invalid_amounts
FROM sales s
WHERE ` + profileWindow

const profileHistogramSQL = `
SELECT WIDTH_BUCKET(s.total_amount, 0, $3::numeric, 10) AS bucket,
  COUNT(*) AS order_count
FROM sales s
WHERE ` + profileWindow + `
  AND ` + query.StatusPredicate + `
  AND s.total_amount >= 0
  AND s.total_amount < $3::numeric
GROUP BY 1
ORDER BY 1`

const profileOutlierSQL = `
SELECT COUNT(*) AS outlier_count
FROM sales s
WHERE ` + profileWindow + `
  AND ` + query.StatusPredicate + `
  AND (s.total_amount < $3::numeric OR s.total_amount > $4::numeric)`

// ProfileSales summarises the sales in the window: status and entity counts, the ticket
// distribution with IQR outliers, discount and delivery rates, and data quality.
func (e *Engine) ProfileSales(ctx context.Context, tr models.TimeRange) (models.SalesProfile, error) {
	start, end, err := e.period(tr)
	if err != nil {
		return models.SalesProfile{}, err
	}
	histMax := e.settings.ProfileHistogramMax
	if histMax <= 0 {
		return models.SalesProfile{}, query.InvalidParameter("histogramMax", "histogram upper bound must be positive")
	}

	params := map[string]interface{}{"start": start.Format(dateLayout), "end": end.Format(dateLayout), "histogramMax": histMax}
	return cache.Fetch(ctx, e.cache, "profile", params, e.settings.AnalysisTTL, func(ctx context.Context) (models.SalesProfile, error) {
		return e.profile(ctx, start, end, histMax)
	})
}

func (e *Engine) profile(ctx context.Context, start, end time.Time, histMax float64) (models.SalesProfile, error) {
	var stats, histogram []map[string]interface{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.fetch(gctx, "profile", profileStatsSQL, start, end)
		stats = rows
		return err
	})
	g.Go(func() error {
		rows, err := e.fetch(gctx, "profile", profileHistogramSQL, start, end, histMax)
		histogram = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return models.SalesProfile{}, err
	}

	row := map[string]interface{}{}
	if len(stats) > 0 {
		row = stats[0]
	}
	p := buildProfile(row, histogram, histMax)
	p.Period = models.TimeRange{Start: start.Format(dateLayout), End: end.AddDate(0, 0, -1).Format(dateLayout)}

	rs := &p.Revenue
	if iqr := rs.Q3 - rs.Q1; iqr > 0 {
		rs.OutlierBounds = models.OutlierBounds{
			Lower: utils.RoundMoney(rs.Q1 - 1.5*iqr),
			Upper: utils.RoundMoney(rs.Q3 + 1.5*iqr),
		}
		rows, err := e.fetch(ctx, "profile", profileOutlierSQL, start, end, rs.Q1-1.5*iqr, rs.Q3+1.5*iqr)
		if err != nil {
			return models.SalesProfile{}, err
		}
		if len(rows) > 0 {
			rs.Outliers = rowInt(rows[0], "outlier_count")
		}
	}

	p.Insights = profileInsights(p, e.settings.Thresholds)
	log.Printf("[ANALYTICS] profile %s..%s: %d records, %d outliers", p.Period.Start, p.Period.End, p.Summary.TotalRecords, rs.Outliers)
	return p, nil
}

func buildProfile(row map[string]interface{}, histogram []map[string]interface{}, histMax float64) models.SalesProfile {
	total := float64(rowInt(row, "total_records"))
	p := models.SalesProfile{
		Summary: models.ProfileSummary{
			TotalRecords:    rowInt(row, "total_records"),
			CompletedSales:  rowInt(row, "completed_sales"),
			CancelledSales:  rowInt(row, "cancelled_sales"),
			UniqueStores:    rowInt(row, "unique_stores"),
			UniqueCustomers: rowInt(row, "unique_customers"),
			UniqueChannels:  rowInt(row, "unique_channels"),
		},
		Revenue: models.RevenueStats{
			Min:    utils.RoundMoney(rowFloat(row, "min_revenue")),
			Max:    utils.RoundMoney(rowFloat(row, "max_revenue")),
			Mean:   utils.RoundMoney(rowFloat(row, "avg_revenue")),
			Median: utils.RoundMoney(rowFloat(row, "median_revenue")),
			Q1:     utils.RoundMoney(rowFloat(row, "q1_revenue")),
			Q3:     utils.RoundMoney(rowFloat(row, "q3_revenue")),
			StdDev: utils.RoundMoney(rowFloat(row, "stddev_revenue")),
		},
		Discounts: models.DiscountProfile{
			OrdersWithDiscount: rowInt(row, "orders_with_discount"),
			AvgDiscount:        utils.RoundMoney(rowFloat(row, "avg_discount")),
		},
		Delivery: models.DeliveryProfile{
			OrdersWithDelivery: rowInt(row, "orders_with_delivery"),
			AvgDeliveryFee:     utils.RoundMoney(rowFloat(row, "avg_delivery_fee")),
		},
		Operational: models.OperationalProfile{
			AvgProductionSeconds: utils.Round(rowFloat(row, "avg_production_seconds"), 1),
			AvgDeliverySeconds:   utils.Round(rowFloat(row, "avg_delivery_seconds"), 1),
		},
		DataQuality: models.DataQuality{
			MissingCustomerID: rowInt(row, "missing_customer_id"),
			InvalidAmounts:    rowInt(row, "invalid_amounts"),
		},
	}
	p.Summary.CancellationRate = utils.Round(utils.Percent(float64(p.Summary.CancelledSales), total), 2)
	p.Discounts.DiscountRate = utils.Round(utils.Percent(float64(p.Discounts.OrdersWithDiscount), total), 2)
	p.Delivery.DeliveryRate = utils.Round(utils.Percent(float64(p.Delivery.OrdersWithDelivery), total), 2)
	if total > 0 {
		p.DataQuality.CompletenessScore = utils.Round(100-utils.Percent(float64(p.DataQuality.MissingCustomerID), total), 2)
	}

	// Every bucket is reported, empty ones with a zero count.
	width := histMax / histogramBuckets
	p.Distribution = make([]models.RevenueBucket, histogramBuckets)
	for i := range p.Distribution {
		p.Distribution[i] = models.RevenueBucket{
			Bucket:     i + 1,
			RangeStart: utils.RoundMoney(float64(i) * width),
			RangeEnd:   utils.RoundMoney(float64(i+1) * width),
		}
	}
	for _, h := range histogram {
		b := int(rowInt(h, "bucket"))
		if b < 1 || b > histogramBuckets {
			continue
		}
		p.Distribution[b-1].Count = rowInt(h, "order_count")
	}
	return p
}

func profileInsights(p models.SalesProfile, th Thresholds) []models.Insight {
	insights := []models.Insight{}
	if p.Summary.CancellationRate > th.CancellationRatePct {
		insights = append(insights, models.Insight{
			Type:        "warning",
			Category:    "cancellation_rate",
			Title:       "High cancellation rate",
			Description: fmt.Sprintf("%.1f%% of orders were cancelled", p.Summary.CancellationRate),
		})
	}
	if p.Summary.CompletedSales > 0 {
		pct := utils.Percent(float64(p.Revenue.Outliers), float64(p.Summary.CompletedSales))
		if pct > th.OutlierRatePct {
			insights = append(insights, models.Insight{
				Type:        "info",
				Category:    "revenue_outliers",
				Title:       "Many atypical tickets",
				Description: fmt.Sprintf("%.1f%% of completed orders fall outside the IQR bounds", pct),
			})
		}
	}
	if p.Summary.TotalRecords > 0 && p.DataQuality.InvalidAmounts > 0 {
		insights = append(insights, models.Insight{
			Type:        "warning",
			Category:    "data_quality",
			Title:       "Orders with non-positive totals",
			Description: fmt.Sprintf("%d orders have a total of zero or less", p.DataQuality.InvalidAmounts),
		})
	}
	return insights
}
