package models

// --- Correlation ---

// Segment is the common aggregate computed for every correlation bucket.
type Segment struct {
	Orders    int64   `json:"orderCount"`
	AvgTicket float64 `json:"avgOrderValue"`
	Revenue   float64 `json:"totalRevenue"`
}

type DiscountBand struct {
	Band string `json:"band"`
	Segment
}

type DayPattern struct {
	DayOfWeek int    `json:"dayOfWeek"`
	DayName   string `json:"dayName"`
	Segment
}

type HourPattern struct {
	Hour         int     `json:"hour"`
	Period       string  `json:"period"`
	AvgPartySize float64 `json:"avgPartySize"`
	Segment
}

type ChannelPerformance struct {
	ChannelName       string  `json:"channelName"`
	ChannelType       string  `json:"channelType"`
	AvgProductionSecs float64 `json:"avgProductionSeconds"`
	DeliveryOrders    int64   `json:"deliveryOrders"`
	Share             float64 `json:"revenueShare"`
	Segment
}

type ProductionBand struct {
	Band              string  `json:"band"`
	AvgProductionSecs float64 `json:"avgProductionSeconds"`
	Segment
}

type CorrelationAnalyses struct {
	DiscountImpact []DiscountBand       `json:"discountImpact"`
	DayOfWeek      []DayPattern         `json:"dayOfWeekPattern"`
	Hourly         []HourPattern        `json:"hourlyPattern"`
	Production     []ProductionBand     `json:"productionTimeCorrelation"`
	Channels       []ChannelPerformance `json:"channelComparison"`
}

// Insight is a rule-derived observation about the analysed data.
type Insight struct {
	Type        string `json:"type"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type CorrelationResult struct {
	Period   TimeRange           `json:"period"`
	Analyses CorrelationAnalyses `json:"analyses"`
	Insights []Insight           `json:"insights"`
}

// --- Cohort ---

type RetentionPoint struct {
	Month           int     `json:"month"`
	ActiveCustomers int64   `json:"activeCustomers"`
	RetentionRate   float64 `json:"retentionRate"`
}

// CohortRow is one first-purchase month and its retention curve.
type CohortRow struct {
	CohortMonth string           `json:"cohortMonth"`
	CohortSize  int64            `json:"cohortSize"`
	Retention   []RetentionPoint `json:"retentionByMonth"`
}

type CohortSummary struct {
	AverageRetention map[int]float64 `json:"averageRetentionByMonth"`
	TotalCohorts     int             `json:"totalCohortsAnalyzed"`
	TotalCustomers   int64           `json:"totalCustomers"`
}

type CohortResult struct {
	Cohorts []CohortRow   `json:"cohorts"`
	Summary CohortSummary `json:"summary"`
}

// --- Anomaly ---

const (
	AnomalyOrderSpike   = "order_spike"
	AnomalyOrderDrop    = "order_drop"
	AnomalyRevenueSpike = "revenue_spike"
	AnomalyRevenueDrop  = "revenue_drop"

	SeverityModerate = "moderate"
	SeverityHigh     = "high"
)

type DailyStat struct {
	Date       string  `json:"date"`
	OrderCount int64   `json:"orderCount"`
	Revenue    float64 `json:"revenue"`
	AvgTicket  float64 `json:"avgTicket"`
}

// AnomalyRecord is a day whose order count or revenue left the expected band.
type AnomalyRecord struct {
	DailyStat
	MeanOrders       float64  `json:"meanOrders"`
	StdDevOrders     float64  `json:"stdDevOrders"`
	MeanRevenue      float64  `json:"meanRevenue"`
	StdDevRevenue    float64  `json:"stdDevRevenue"`
	OrderDeviation   float64  `json:"orderDeviation"`
	RevenueDeviation float64  `json:"revenueDeviation"`
	Severity         string   `json:"severity"`
	Types            []string `json:"anomalyTypes"`
}

type AnomalySummary struct {
	DaysAnalyzed   int     `json:"daysAnalyzed"`
	AnomaliesFound int     `json:"anomaliesFound"`
	AnomalyRate    float64 `json:"anomalyRate"`
	Sensitivity    float64 `json:"sensitivityThreshold"`
}

type AnomalyResult struct {
	Anomalies  []AnomalyRecord `json:"anomalies"`
	NormalDays []DailyStat     `json:"normalDays"`
	Summary    AnomalySummary  `json:"summary"`
}

// --- Affinity ---

const (
	StrengthWeak     = "weak"
	StrengthModerate = "moderate"
	StrengthStrong   = "strong"
)

// AffinityRule relates two products bought in the same sale. ProductA has the lower id.
type AffinityRule struct {
	ProductAID     int64   `json:"productAId"`
	ProductA       string  `json:"productA"`
	ProductBID     int64   `json:"productBId"`
	ProductB       string  `json:"productB"`
	CoCount        int64   `json:"timesBoughtTogether"`
	Support        float64 `json:"support"`
	ConfidenceAToB float64 `json:"confidenceAToB"`
	ConfidenceBToA float64 `json:"confidenceBToA"`
	Lift           float64 `json:"lift"`
	Strength       string  `json:"strength"`
	Interpretation string  `json:"interpretation,omitempty"`
}

type Recommendation struct {
	Type           string `json:"type"`
	Title          string `json:"title"`
	Reason         string `json:"reason"`
	ExpectedImpact string `json:"expectedImpact"`
}

type AffinitySummary struct {
	RulesFound     int     `json:"rulesFound"`
	SalesAnalyzed  int64   `json:"salesAnalyzed"`
	MinSupport     float64 `json:"minSupportThreshold"`
	AnalysisPeriod string  `json:"analysisPeriod"`
}

type AffinityResult struct {
	Rules           []AffinityRule   `json:"rules"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         AffinitySummary  `json:"summary"`
}

// --- Forecast ---

const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"

	QualityGood = "good"
	QualityFair = "fair"
	QualityPoor = "poor"
)

type HistoricalPoint struct {
	Date      string  `json:"date"`
	Actual    float64 `json:"actualValue"`
	TrendLine float64 `json:"trendLine"`
}

type ForecastPoint struct {
	Date      string  `json:"date"`
	Predicted float64 `json:"predictedValue"`
	DayNumber int     `json:"dayNumber"`
}

type TrendAnalysis struct {
	Metric              string  `json:"metric"`
	Trend               string  `json:"trend"`
	Slope               float64 `json:"slope"`
	Intercept           float64 `json:"intercept"`
	PercentChangePerDay float64 `json:"percentChangePerDay"`
	RSquared            float64 `json:"rSquared"`
	Quality             string  `json:"modelQuality"`
	DaysAnalyzed        int     `json:"daysAnalyzed"`
	ForecastDays        int     `json:"forecastDays"`
}

// ForecastResult is a fitted linear trend with its projection.
type ForecastResult struct {
	Historical []HistoricalPoint `json:"historicalData"`
	Forecast   []ForecastPoint   `json:"forecast"`
	Analysis   TrendAnalysis     `json:"analysis"`
	Insights   []string          `json:"insights"`
	Narrative  *AiAnalysis       `json:"aiAnalysis,omitempty"`
}

// --- Sales profile ---

type ProfileSummary struct {
	TotalRecords     int64   `json:"totalRecords"`
	CompletedSales   int64   `json:"completedSales"`
	CancelledSales   int64   `json:"cancelledSales"`
	CancellationRate float64 `json:"cancellationRate"`
	UniqueStores     int64   `json:"uniqueStores"`
	UniqueCustomers  int64   `json:"uniqueCustomers"`
	UniqueChannels   int64   `json:"uniqueChannels"`
}

type OutlierBounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// RevenueStats describes the ticket distribution of completed sales.
type RevenueStats struct {
	Min           float64       `json:"min"`
	Max           float64       `json:"max"`
	Mean          float64       `json:"mean"`
	Median        float64       `json:"median"`
	Q1            float64       `json:"q1"`
	Q3            float64       `json:"q3"`
	StdDev        float64       `json:"stdDev"`
	Outliers      int64         `json:"outliers"`
	OutlierBounds OutlierBounds `json:"outlierBounds"`
}

type RevenueBucket struct {
	Bucket     int     `json:"bucket"`
	RangeStart float64 `json:"rangeStart"`
	RangeEnd   float64 `json:"rangeEnd"`
	Count      int64   `json:"count"`
}

type DiscountProfile struct {
	OrdersWithDiscount int64   `json:"ordersWithDiscount"`
	DiscountRate       float64 `json:"discountRate"`
	AvgDiscount        float64 `json:"avgDiscount"`
}

type DeliveryProfile struct {
	OrdersWithDelivery int64   `json:"ordersWithDelivery"`
	DeliveryRate       float64 `json:"deliveryRate"`
	AvgDeliveryFee     float64 `json:"avgDeliveryFee"`
}

type OperationalProfile struct {
	AvgProductionSeconds float64 `json:"avgProductionSeconds"`
	AvgDeliverySeconds   float64 `json:"avgDeliverySeconds"`
}

type DataQuality struct {
	MissingCustomerID int64   `json:"missingCustomerId"`
	InvalidAmounts    int64   `json:"invalidAmounts"`
	CompletenessScore float64 `json:"completenessScore"`
}

type SalesProfile struct {
	Period       TimeRange          `json:"period"`
	Summary      ProfileSummary     `json:"summary"`
	Revenue      RevenueStats       `json:"revenueStats"`
	Distribution []RevenueBucket    `json:"distribution"`
	Discounts    DiscountProfile    `json:"discounts"`
	Delivery     DeliveryProfile    `json:"delivery"`
	Operational  OperationalProfile `json:"operational"`
	DataQuality  DataQuality        `json:"dataQuality"`
	Insights     []Insight          `json:"insights"`
}
