package analytics

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"restaurant-analytics/cache"
	"restaurant-analytics/models"
	"restaurant-analytics/query"
	"restaurant-analytics/utils"
)

const (
	maxAffinityLimit = 100
	maxUpsells       = 3
)

const basketSQL = `
WITH recent AS (
  SELECT s.id
  FROM sales s
  WHERE ` + query.StatusPredicate + `
    AND s.created_at >= $1
  ORDER BY s.created_at DESC
  LIMIT $2
)
SELECT r.id AS sale_id, ps.product_id, p.name AS product_name
FROM recent r
LEFT JOIN product_sales ps ON ps.sale_id = r.id
LEFT JOIN products p ON p.id = ps.product_id`

type productPair struct{ a, b int64 }

// basketStats is the market-basket view of a set of sales.
type basketStats struct {
	total  int64
	counts map[int64]int64
	names  map[int64]string
	pairs  map[productPair]int64
}

// countBaskets builds per-product and per-pair sale counts. Only the maxProducts most
// frequent products take part in pair counting.
func countBaskets(rows []map[string]interface{}, maxProducts int) basketStats {
	baskets := make(map[int64]map[int64]struct{})
	names := make(map[int64]string)
	for _, row := range rows {
		sale := rowInt(row, "sale_id")
		basket, ok := baskets[sale]
		if !ok {
			basket = make(map[int64]struct{})
			baskets[sale] = basket
		}
		if row["product_id"] == nil {
			continue
		}
		pid := rowInt(row, "product_id")
		basket[pid] = struct{}{}
		if name := rowString(row, "product_name"); name != "" {
			names[pid] = name
		} else if _, ok := names[pid]; !ok {
			names[pid] = fmt.Sprintf("product %d", pid)
		}
	}

	counts := make(map[int64]int64)
	for _, basket := range baskets {
		for pid := range basket {
			counts[pid]++
		}
	}

	ranked := make([]int64, 0, len(counts))
	for pid := range counts {
		ranked = append(ranked, pid)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if maxProducts > 0 && len(ranked) > maxProducts {
		ranked = ranked[:maxProducts]
	}
	universe := make(map[int64]bool, len(ranked))
	for _, pid := range ranked {
		universe[pid] = true
	}

	pairs := make(map[productPair]int64)
	items := make([]int64, 0, 16)
	for _, basket := range baskets {
		items = items[:0]
		for pid := range basket {
			if universe[pid] {
				items = append(items, pid)
			}
		}
		sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
		for i := 0; i < len(items); i++ {
			for j := i + 1; j < len(items); j++ {
				pairs[productPair{items[i], items[j]}]++
			}
		}
	}

	return basketStats{total: int64(len(baskets)), counts: counts, names: names, pairs: pairs}
}

func classifyStrength(lift, maxConf float64, th Thresholds) string {
	switch {
	case lift >= th.AffinityStrongLift && maxConf >= th.AffinityStrongConfidence:
		return models.StrengthStrong
	case lift >= th.AffinityModerateLift:
		return models.StrengthModerate
	}
	return models.StrengthWeak
}

func affinityRules(st basketStats, minSupport float64, th Thresholds) []models.AffinityRule {
	rules := []models.AffinityRule{}
	if st.total == 0 {
		return rules
	}
	total := float64(st.total)
	for pair, co := range st.pairs {
		support := float64(co) / total
		if support < minSupport {
			continue
		}
		countA, countB := st.counts[pair.a], st.counts[pair.b]
		if countA == 0 || countB == 0 {
			continue
		}
		confAB := float64(co) / float64(countA)
		confBA := float64(co) / float64(countB)
		lift := confAB / (float64(countB) / total)

		r := models.AffinityRule{
			ProductAID:     pair.a,
			ProductA:       st.names[pair.a],
			ProductBID:     pair.b,
			ProductB:       st.names[pair.b],
			CoCount:        co,
			Support:        utils.Round(support, 4),
			ConfidenceAToB: utils.Round(confAB, 4),
			ConfidenceBToA: utils.Round(confBA, 4),
			Lift:           utils.Round(lift, 4),
			Strength:       classifyStrength(lift, math.Max(confAB, confBA), th),
		}
		if lift > 1 {
			r.Interpretation = fmt.Sprintf("Customers who buy %s are %.1fx more likely to buy %s", r.ProductA, lift, r.ProductB)
		}
		rules = append(rules, r)
	}

	sort.Slice(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Lift != b.Lift {
			return a.Lift > b.Lift
		}
		if a.CoCount != b.CoCount {
			return a.CoCount > b.CoCount
		}
		if a.ProductAID != b.ProductAID {
			return a.ProductAID < b.ProductAID
		}
		return a.ProductBID < b.ProductBID
	})
	return rules
}

func affinityRecommendations(rules []models.AffinityRule, th Thresholds) []models.Recommendation {
	recs := []models.Recommendation{}
	for _, r := range rules {
		if r.Strength == models.StrengthStrong {
			recs = append(recs, models.Recommendation{
				Type:           "bundle",
				Title:          fmt.Sprintf("Create combo: %s + %s", r.ProductA, r.ProductB),
				Reason:         fmt.Sprintf("Bought together %d times with %.1fx lift", r.CoCount, r.Lift),
				ExpectedImpact: "high",
			})
			break
		}
	}

	upsells := 0
	for _, r := range rules {
		if upsells == maxUpsells {
			break
		}
		if r.Strength == models.StrengthWeak {
			continue
		}
		from, to, conf := r.ProductA, r.ProductB, r.ConfidenceAToB
		if r.ConfidenceBToA > conf {
			from, to, conf = r.ProductB, r.ProductA, r.ConfidenceBToA
		}
		if conf < th.AffinityUpsellConfidence {
			continue
		}
		recs = append(recs, models.Recommendation{
			Type:           "upsell",
			Title:          fmt.Sprintf("Suggest %s when ordering %s", to, from),
			Reason:         fmt.Sprintf("%.0f%% of customers who buy %s also buy %s", conf*100, from, to),
			ExpectedImpact: "medium",
		})
		upsells++
	}
	return recs
}

// ProductAffinity finds product pairs bought in the same sale more often than chance.
func (e *Engine) ProductAffinity(ctx context.Context, minSupport float64, limit int) (models.AffinityResult, error) {
	if math.IsNaN(minSupport) || minSupport <= 0 || minSupport > 1 {
		return models.AffinityResult{}, query.InvalidParameter("minSupport", "minSupport must be in (0, 1]")
	}
	if limit < 1 || limit > maxAffinityLimit {
		return models.AffinityResult{}, query.InvalidParameter("limit", "limit must be between 1 and %d", maxAffinityLimit)
	}

	since := e.today().AddDate(0, 0, -e.settings.AffinityLookbackDays)
	params := map[string]interface{}{"minSupport": minSupport, "limit": limit, "since": since.Format(dateLayout)}

	return cache.Fetch(ctx, e.cache, "affinity", params, e.settings.AnalysisTTL, func(ctx context.Context) (models.AffinityResult, error) {
		rows, err := e.fetch(ctx, "affinity", basketSQL, since, e.settings.MaxAffinitySales)
		if err != nil {
			return models.AffinityResult{}, err
		}
		th := e.settings.Thresholds
		st := countBaskets(rows, e.settings.MaxAffinityProducts)
		rules := affinityRules(st, minSupport, th)
		if len(rules) > limit {
			rules = rules[:limit]
		}
		log.Printf("[ANALYTICS] affinity: %d sales, %d products, %d rules", st.total, len(st.counts), len(rules))

		return models.AffinityResult{
			Rules:           rules,
			Recommendations: affinityRecommendations(rules, th),
			Summary: models.AffinitySummary{
				RulesFound:     len(rules),
				SalesAnalyzed:  st.total,
				MinSupport:     minSupport,
				AnalysisPeriod: fmt.Sprintf("Last %d days", e.settings.AffinityLookbackDays),
			},
		}, nil
	})
}
