package quota

import (
	"fmt"
	"strings"

	"github.com/rankpilot/rankpilot/internal/models"
)

// Quota keys recognized by the engine. Each key maps to exactly one
// (period type, metric key) pair in the classification table below.
const (
	// KeyAuditsPerDay limits domain audit runs per day.
	KeyAuditsPerDay = "audits.runs_per_day"
	// KeyAuditsPerMonth limits domain audit runs per month.
	KeyAuditsPerMonth = "audits.runs_per_month"
	// KeySpeedChecksPerDay limits PageSpeed checks per day.
	KeySpeedChecksPerDay = "speed.checks_per_day"
	// KeyCrawlRequestsPerDay limits basic HTTP crawls per day.
	KeyCrawlRequestsPerDay = "crawl.requests_per_day"
	// KeyBacklinksFetchesPerMonth limits backlink-data fetches per month.
	KeyBacklinksFetchesPerMonth = "backlinks.fetches_per_month"
	// KeySerpChecksPerMonth limits keyword rank checks per month.
	KeySerpChecksPerMonth = "serp.checks_per_month"
	// KeyGoogleSyncNowPerDay limits manual Google data syncs per day.
	KeyGoogleSyncNowPerDay = "google.sync_now_per_day"
	// KeyPDFReportsPerMonth limits PDF report exports per month.
	KeyPDFReportsPerMonth = "reports.pdf_per_month"

	// KeyMaxActiveDomains caps concurrently active domains. This is a
	// standing cap, not a consumption metric: it is checked against the
	// live count of active domains and never touches the usage ledger,
	// so it has no reset date.
	KeyMaxActiveDomains = "domains.max_active"
)

// Classification resolves a quota key to its counter bucket.
type Classification struct {
	PeriodType models.PeriodType // Counter window.
	MetricKey  string            // Ledger metric name.
}

// classifications is the static quota-key classification table. It is a
// startup-time artifact, not user-editable at runtime.
var classifications = map[string]Classification{
	KeyAuditsPerDay:             {PeriodType: models.PeriodTypeDay, MetricKey: "audits.runs"},
	KeyAuditsPerMonth:           {PeriodType: models.PeriodTypeMonth, MetricKey: "audits.runs"},
	KeySpeedChecksPerDay:        {PeriodType: models.PeriodTypeDay, MetricKey: "speed.checks"},
	KeyCrawlRequestsPerDay:      {PeriodType: models.PeriodTypeDay, MetricKey: "crawl.requests"},
	KeyBacklinksFetchesPerMonth: {PeriodType: models.PeriodTypeMonth, MetricKey: "backlinks.fetches"},
	KeySerpChecksPerMonth:       {PeriodType: models.PeriodTypeMonth, MetricKey: "serp.checks"},
	KeyGoogleSyncNowPerDay:      {PeriodType: models.PeriodTypeDay, MetricKey: "google.sync_now"},
	KeyPDFReportsPerMonth:       {PeriodType: models.PeriodTypeMonth, MetricKey: "reports.pdf"},
}

// Classify resolves a quota key via the classification table. Keys absent
// from the table default to a monthly counter whose metric is the key
// itself.
func Classify(quotaKey string) Classification {
	if c, ok := classifications[quotaKey]; ok {
		return c
	}
	return Classification{PeriodType: models.PeriodTypeMonth, MetricKey: quotaKey}
}

// ValidateClassifications checks the static table for completeness once
// at startup: every entry must carry a known period type and a non-empty
// metric key.
func ValidateClassifications() error {
	for key, c := range classifications {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("quota: classification with empty key")
		}
		if c.PeriodType != models.PeriodTypeDay && c.PeriodType != models.PeriodTypeMonth {
			return fmt.Errorf("quota: key %s has unknown period type %q", key, c.PeriodType)
		}
		if strings.TrimSpace(c.MetricKey) == "" {
			return fmt.Errorf("quota: key %s has empty metric key", key)
		}
	}
	return nil
}
