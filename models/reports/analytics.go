// Package reports computes read-only stock analytics from the ledger, the balance cache and
// the valuation ledger. Nothing here takes a balance lock or writes.
package reports

import (
	"time"

	"github.com/mmdatafocus/stockledger/config"
	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/store"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const moduleName = "reports"

type Analytics struct {
	reader   store.Reader
	settings config.AnalyticsSettings
	logger   *logrus.Logger
	cache    Cache
	cacheTTL time.Duration
	now      func() time.Time
}

type Option func(*Analytics)

func WithSettings(s config.AnalyticsSettings) Option {
	return func(a *Analytics) { a.settings = s }
}

func WithLogger(l *logrus.Logger) Option {
	return func(a *Analytics) { a.logger = l }
}

// WithCache overrides the report cache; a nil cache disables caching.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(a *Analytics) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Analytics) { a.now = now }
}

// NewAnalytics reads thresholds and rates from the environment. The Redis report cache is
// used when ENABLE_REPORT_CACHE is set.
func NewAnalytics(reader store.Reader, opts ...Option) *Analytics {
	a := &Analytics{
		reader:   reader,
		settings: config.AnalyticsSettingsFromEnv(),
		logger:   config.GetLogger(),
		now:      time.Now,
	}
	if config.ReportCacheEnabled() {
		a.cache = RedisCache{}
		a.cacheTTL = config.ReportCacheTTL()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Period is a reporting window, From inclusive and To exclusive.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (p Period) validate() error {
	if p.From.IsZero() || p.To.IsZero() {
		return models.NewValidationError("Period", "from and to are required")
	}
	if !p.To.After(p.From) {
		return models.NewValidationError("Period", "to must be after from")
	}
	return nil
}

func (p Period) seconds() int64 {
	return int64(p.To.Sub(p.From) / time.Second)
}

// Days is the length of the period in (possibly fractional) days.
func (p Period) Days() decimal.Decimal {
	days, _ := decimal.NewFromInt(p.seconds()).QuoRem(decimal.NewFromInt(86400), utils.Scale)
	return days
}

func requireTenant(tenantId string) error {
	if tenantId == "" {
		return models.NewValidationError("TenantId", "is required")
	}
	return nil
}
