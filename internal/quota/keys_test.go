package quota

import (
	"testing"

	"github.com/rankpilot/rankpilot/internal/models"
)

func TestClassifyKnownKeys(t *testing.T) {
	c := Classify(KeyAuditsPerDay)
	if c.PeriodType != models.PeriodTypeDay || c.MetricKey != "audits.runs" {
		t.Fatalf("unexpected classification: %+v", c)
	}

	c = Classify(KeySerpChecksPerMonth)
	if c.PeriodType != models.PeriodTypeMonth || c.MetricKey != "serp.checks" {
		t.Fatalf("unexpected classification: %+v", c)
	}
}

func TestClassifySharedMetricAcrossPeriods(t *testing.T) {
	day := Classify(KeyAuditsPerDay)
	month := Classify(KeyAuditsPerMonth)
	if day.MetricKey != month.MetricKey {
		t.Fatalf("daily and monthly audit keys must share a metric: %q vs %q", day.MetricKey, month.MetricKey)
	}
	if day.PeriodType == month.PeriodType {
		t.Fatal("daily and monthly audit keys must use different periods")
	}
}

func TestClassifyUnknownKeyDefaultsToMonthly(t *testing.T) {
	c := Classify("future.feature_per_month")
	if c.PeriodType != models.PeriodTypeMonth {
		t.Fatalf("expected monthly default, got %q", c.PeriodType)
	}
	if c.MetricKey != "future.feature_per_month" {
		t.Fatalf("expected metric to mirror the key, got %q", c.MetricKey)
	}
}

func TestValidateClassifications(t *testing.T) {
	if errValidate := ValidateClassifications(); errValidate != nil {
		t.Fatalf("validate: %v", errValidate)
	}
}
