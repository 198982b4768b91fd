package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Params carries task parameters and decoded driver settings.
type Params map[string]any

// Estimate describes the projected cost of one task execution.
type Estimate struct {
	Units    int64  // Provider units the task will consume.
	UnitName string // Unit label, defaulting to requests.
	Cents    int64  // Estimated cost in cents.
}

// Driver adapts one provider to the common capability set. Execute
// performs blocking network I/O; callers bound it with a context timeout
// and must not hold locks across the call.
type Driver interface {
	// EstimateCost projects the units and cost of executing params.
	EstimateCost(params Params) Estimate
	// Execute runs the task against the provider and returns its result.
	Execute(ctx context.Context, settings, params Params) (map[string]any, error)
	// ValidateSettings reports whether user settings suffice to execute.
	ValidateSettings(settings Params) error
}

// UnknownCodeError indicates a provider code with no registered driver.
// This is a programmer error: the driver registry is closed at startup
// and every catalog code must be registered.
type UnknownCodeError struct {
	Code string
}

// Error implements the error interface.
func (e *UnknownCodeError) Error() string {
	return fmt.Sprintf("provider: no driver registered for code %q", e.Code)
}

// DriverRegistry maps provider codes to driver implementations. The
// mapping is built once at startup and read-only afterwards.
type DriverRegistry struct {
	drivers map[string]Driver
}

// defaultExecuteTimeout bounds provider HTTP calls when the caller's
// context carries no earlier deadline.
const defaultExecuteTimeout = 30 * time.Second

// NewDriverRegistry builds the closed registry of production drivers.
// A nil client defaults to a client with the standard execute timeout.
func NewDriverRegistry(client *http.Client) *DriverRegistry {
	if client == nil {
		client = &http.Client{Timeout: defaultExecuteTimeout}
	}
	return NewDriverRegistryWith(map[string]Driver{
		CodeGooglePSI:   &PageSpeedDriver{client: client},
		CodeHTTPBasic:   &HTTPBasicDriver{client: client},
		CodeDataForSEO:  &DataForSEODriver{client: client},
		CodeGSCFallback: &SearchConsoleDriver{client: client},
	})
}

// NewDriverRegistryWith builds a registry from an explicit driver map.
func NewDriverRegistryWith(drivers map[string]Driver) *DriverRegistry {
	out := make(map[string]Driver, len(drivers))
	for code, driver := range drivers {
		out[code] = driver
	}
	return &DriverRegistry{drivers: out}
}

// Get returns the driver for a provider code, or UnknownCodeError when
// the code was never registered.
func (r *DriverRegistry) Get(code string) (Driver, error) {
	if r != nil {
		if driver, ok := r.drivers[code]; ok {
			return driver, nil
		}
	}
	return nil, &UnknownCodeError{Code: code}
}
