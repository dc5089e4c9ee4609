package domain

// Component identifies one of the four data categories that are collected,
// versioned, gated, and scored independently.
type Component string

const (
	ComponentFundamentals Component = "fundamentals"
	ComponentPriceData    Component = "price_data"
	ComponentNewsData     Component = "news_data"
	ComponentSentiment    Component = "sentiment_data"
)

// AllComponents returns every component in a stable order.
func AllComponents() []Component {
	return []Component{ComponentFundamentals, ComponentPriceData, ComponentNewsData, ComponentSentiment}
}

// IsValid reports whether c is one of the known components.
func (c Component) IsValid() bool {
	switch c {
	case ComponentFundamentals, ComponentPriceData, ComponentNewsData, ComponentSentiment:
		return true
	}
	return false
}

// FreshnessLevel is the coarse age bucket assigned to versioned reads.
type FreshnessLevel string

const (
	FreshnessFresh     FreshnessLevel = "FRESH"
	FreshnessRecent    FreshnessLevel = "RECENT"
	FreshnessStale     FreshnessLevel = "STALE"
	FreshnessVeryStale FreshnessLevel = "VERY_STALE"
	FreshnessMissing   FreshnessLevel = "MISSING"
)

// StalenessImpact returns the score multiplier for a freshness level.
// Monotonically non-increasing as data ages.
func (f FreshnessLevel) StalenessImpact() float64 {
	switch f {
	case FreshnessFresh:
		return 1.00
	case FreshnessRecent:
		return 0.95
	case FreshnessStale:
		return 0.85
	case FreshnessVeryStale:
		return 0.70
	default:
		return 0.00
	}
}

// GateStatus is the lifecycle state of a quality gate.
type GateStatus string

const (
	GatePending  GateStatus = "PENDING"
	GateApproved GateStatus = "APPROVED"
	GateRejected GateStatus = "REJECTED"
	GateBlocked  GateStatus = "BLOCKED"
	GateExpired  GateStatus = "EXPIRED"
)

// APIStatus is the health classification of an external data source,
// recorded after credential self-tests.
type APIStatus string

const (
	APIHealthy            APIStatus = "HEALTHY"
	APILimited            APIStatus = "LIMITED"
	APIRateLimited        APIStatus = "RATE_LIMITED"
	APIInvalidCredentials APIStatus = "INVALID_CREDENTIALS"
	APIFailed             APIStatus = "FAILED"
	APIUntested           APIStatus = "UNTESTED"
)

// DataType is a collectable category of data for a symbol.
type DataType string

const (
	DataTypeProfile      DataType = "profile"
	DataTypePrices       DataType = "prices"
	DataTypeFundamentals DataType = "fundamentals"
	DataTypeNews         DataType = "news"
	DataTypeSocial       DataType = "social"
)

// CollectionOrder returns data types in the order they must be written for a
// symbol: the stock profile row has to exist before dependent rows.
func CollectionOrder() []DataType {
	return []DataType{DataTypeProfile, DataTypePrices, DataTypeFundamentals, DataTypeNews, DataTypeSocial}
}

// OutlierCategory labels a stock relative to its sector cohort.
type OutlierCategory string

const (
	OutlierUndervalued      OutlierCategory = "undervalued"
	OutlierFairlyValued     OutlierCategory = "fairly_valued"
	OutlierOvervalued       OutlierCategory = "overvalued"
	OutlierInsufficientData OutlierCategory = "insufficient_data"
)
