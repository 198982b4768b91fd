package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rankpilot/rankpilot/internal/costlog"
	"github.com/rankpilot/rankpilot/internal/models"
	"github.com/rankpilot/rankpilot/internal/provider"
	"github.com/rankpilot/rankpilot/internal/quota"
	"github.com/rankpilot/rankpilot/internal/ratelimit"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Task types requiring a resolved provider.
const (
	// TaskSpeedPageSpeed runs a page speed check.
	TaskSpeedPageSpeed = "speed.pagespeed"
	// TaskCrawlHTTPBasic runs a basic HTTP crawl of the domain root.
	TaskCrawlHTTPBasic = "crawl.http_basic"
	// TaskBacklinksFetch fetches a backlink summary.
	TaskBacklinksFetch = "backlinks.fetch"
	// TaskSerpRankCheck checks keyword positions in search results.
	TaskSerpRankCheck = "serp.rank_check"
)

// taskQuotaKeys maps each task type to the quota key gating it.
var taskQuotaKeys = map[string]string{
	TaskSpeedPageSpeed: quota.KeySpeedChecksPerDay,
	TaskCrawlHTTPBasic: quota.KeyCrawlRequestsPerDay,
	TaskBacklinksFetch: quota.KeyBacklinksFetchesPerMonth,
	TaskSerpRankCheck:  quota.KeySerpChecksPerMonth,
}

// NoProviderError signals that resolution yielded no usable provider for
// a task. Callers surface it as a configuration problem, not a system
// failure, and never retry automatically.
type NoProviderError struct {
	TaskType string
}

// Error implements the error interface.
func (e *NoProviderError) Error() string {
	return fmt.Sprintf("no provider configured for task %s", e.TaskType)
}

// RateLimitedError signals the per-user task rate limit was hit.
type RateLimitedError struct {
	Reset time.Time
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string { return "task rate limit exceeded" }

// Manager orchestrates provider-backed tasks: quota gate, provider
// resolution, driver execution, cost logging, and usage consumption.
// Driver failures propagate unretried; retry policy belongs to the
// calling job layer and every step here is safe to repeat.
type Manager struct {
	db       *gorm.DB
	quota    *quota.Engine
	resolver *provider.Resolver
	drivers  *provider.DriverRegistry
	costs    *costlog.Logger
	limiter  *ratelimit.Manager
	nowFn    func() time.Time
}

// NewManager constructs a Manager. limiter may be nil to disable the
// rate gate; a nil nowFn defaults to the wall clock.
func NewManager(db *gorm.DB, engine *quota.Engine, resolver *provider.Resolver, drivers *provider.DriverRegistry, costs *costlog.Logger, limiter *ratelimit.Manager, nowFn func() time.Time) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Manager{
		db:       db,
		quota:    engine,
		resolver: resolver,
		drivers:  drivers,
		costs:    costs,
		limiter:  limiter,
		nowFn:    nowFn,
	}
}

// RunSpeedCheck runs one page speed check against the domain root.
func (m *Manager) RunSpeedCheck(ctx context.Context, userID, domainID uint64, strategy string) (map[string]any, error) {
	domain, errDomain := m.loadDomain(ctx, userID, domainID)
	if errDomain != nil {
		return nil, errDomain
	}
	params := provider.Params{"url": "https://" + domain.Host}
	if strategy != "" {
		params["strategy"] = strategy
	}
	return m.runTask(ctx, userID, domain, TaskSpeedPageSpeed, 1, params)
}

// RunHTTPBasicCrawl fetches the domain root and reports status and timing.
func (m *Manager) RunHTTPBasicCrawl(ctx context.Context, userID, domainID uint64) (map[string]any, error) {
	domain, errDomain := m.loadDomain(ctx, userID, domainID)
	if errDomain != nil {
		return nil, errDomain
	}
	return m.runTask(ctx, userID, domain, TaskCrawlHTTPBasic, 1, provider.Params{"url": "https://" + domain.Host})
}

// RunBacklinksFetch fetches a backlink summary for the domain.
func (m *Manager) RunBacklinksFetch(ctx context.Context, userID, domainID uint64) (map[string]any, error) {
	domain, errDomain := m.loadDomain(ctx, userID, domainID)
	if errDomain != nil {
		return nil, errDomain
	}
	return m.runTask(ctx, userID, domain, TaskBacklinksFetch, 1, provider.Params{"target": domain.Host})
}

// RunSerpRankCheck checks positions for all of the domain's active
// keywords in one batch. Quota is asserted and consumed for the whole
// batch, and cost is logged once with aggregated totals rather than per
// keyword. Observed positions are persisted as rank results.
func (m *Manager) RunSerpRankCheck(ctx context.Context, userID, domainID uint64) (map[string]any, error) {
	domain, errDomain := m.loadDomain(ctx, userID, domainID)
	if errDomain != nil {
		return nil, errDomain
	}

	var keywords []models.Keyword
	if errFind := m.db.WithContext(ctx).
		Where("domain_id = ? AND is_active = ?", domainID, true).
		Order("id ASC").
		Find(&keywords).Error; errFind != nil {
		return nil, fmt.Errorf("crawl: load keywords: %w", errFind)
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("crawl: domain %s has no active keywords", domain.Host)
	}

	phrases := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		phrases = append(phrases, keyword.Phrase)
	}

	result, errRun := m.runTask(ctx, userID, domain, TaskSerpRankCheck, int64(len(keywords)), provider.Params{
		"target":   domain.Host,
		"keywords": phrases,
	})
	if errRun != nil {
		return nil, errRun
	}

	if errStore := m.storeRankResults(ctx, keywords, result); errStore != nil {
		return nil, errStore
	}
	return result, nil
}

// runTask is the shared task pipeline: rate gate, quota assertion,
// provider resolution, estimate, execute, cost log, consume.
func (m *Manager) runTask(ctx context.Context, userID uint64, domain *models.Domain, taskType string, amount int64, params provider.Params) (map[string]any, error) {
	if errGate := m.allowRate(ctx, userID); errGate != nil {
		return nil, errGate
	}

	quotaKey := taskQuotaKeys[taskType]
	if errQuota := m.quota.AssertAllowed(ctx, userID, quotaKey, amount); errQuota != nil {
		return nil, errQuota
	}

	resolved, errResolve := m.resolver.Resolve(ctx, userID, domain.ID, taskType)
	if errResolve != nil {
		return nil, errResolve
	}
	if resolved == nil {
		return nil, &NoProviderError{TaskType: taskType}
	}

	driver, errDriver := m.drivers.Get(resolved.Code)
	if errDriver != nil {
		return nil, errDriver
	}
	settings, errSettings := m.resolver.Settings(ctx, userID, resolved.Code)
	if errSettings != nil {
		return nil, errSettings
	}

	estimate := driver.EstimateCost(params)

	execCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	result, errExecute := driver.Execute(execCtx, settings, params)
	if errExecute != nil {
		return nil, fmt.Errorf("crawl: %s via %s: %w", taskType, resolved.Code, errExecute)
	}
	if result == nil {
		result = map[string]any{}
	}
	result["provider_code"] = resolved.Code

	taskContext := map[string]any{
		"task_type":     taskType,
		"provider_code": resolved.Code,
	}
	domainID := domain.ID
	if errCost := m.costs.Log(ctx, userID, &domainID, taskType, resolved.Code, estimate, taskContext); errCost != nil {
		return nil, errCost
	}

	c := quota.Classify(quotaKey)
	if errConsume := m.quota.Consume(ctx, userID, c.MetricKey, amount, c.PeriodType, &domainID, taskContext); errConsume != nil {
		return nil, errConsume
	}

	log.WithFields(log.Fields{
		"task":     taskType,
		"provider": resolved.Code,
		"domain":   domain.Host,
		"units":    estimate.Units,
	}).Info("task executed")
	return result, nil
}

// allowRate applies the per-user task rate limit when a limiter is wired.
func (m *Manager) allowRate(ctx context.Context, userID uint64) error {
	if m.limiter == nil {
		return nil
	}
	decision, errResolve := ratelimit.ResolveLimit(ctx, m.db, userID)
	if errResolve != nil {
		return errResolve
	}
	if decision.Limit <= 0 {
		return nil
	}
	result, errAllow := m.limiter.Allow(ctx, ratelimit.UserKey(userID), decision.Limit)
	if errAllow != nil {
		return errAllow
	}
	if !result.Allowed {
		return &RateLimitedError{Reset: result.Reset}
	}
	return nil
}

// loadDomain loads a domain and verifies ownership.
func (m *Manager) loadDomain(ctx context.Context, userID, domainID uint64) (*models.Domain, error) {
	var domain models.Domain
	errFind := m.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", domainID, userID).
		Take(&domain).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("crawl: domain %d not found", domainID)
		}
		return nil, fmt.Errorf("crawl: load domain: %w", errFind)
	}
	return &domain, nil
}

// storeRankResults persists one rank result per keyword from the driver
// payload. Keywords the provider did not report are stored as position 0.
func (m *Manager) storeRankResults(ctx context.Context, keywords []models.Keyword, result map[string]any) error {
	positions := positionsFromResult(result)
	now := m.nowFn().UTC()
	rows := make([]models.RankResult, 0, len(keywords))
	providerCode, _ := result["provider_code"].(string)
	for _, keyword := range keywords {
		rows = append(rows, models.RankResult{
			KeywordID:    keyword.ID,
			Position:     positions[keyword.Phrase],
			ProviderCode: providerCode,
			CheckedAt:    now,
			CreatedAt:    now,
		})
	}
	if errCreate := m.db.WithContext(ctx).Create(&rows).Error; errCreate != nil {
		return fmt.Errorf("crawl: store rank results: %w", errCreate)
	}
	return nil
}

// positionsFromResult extracts the keyword→position map drivers attach
// under "positions". Missing or malformed entries yield position 0.
func positionsFromResult(result map[string]any) map[string]int {
	out := make(map[string]int)
	raw, ok := result["positions"].(map[string]any)
	if !ok {
		return out
	}
	for phrase, value := range raw {
		switch v := value.(type) {
		case int:
			out[phrase] = v
		case int64:
			out[phrase] = int(v)
		case float64:
			out[phrase] = int(v)
		}
	}
	return out
}
