package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rankpilot/rankpilot/internal/crawl"
	"github.com/rankpilot/rankpilot/internal/quota"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// TaskHandler serves the task-run endpoints that hit external providers.
type TaskHandler struct {
	manager *crawl.Manager
}

// NewTaskHandler constructs a TaskHandler.
func NewTaskHandler(manager *crawl.Manager) *TaskHandler {
	return &TaskHandler{manager: manager}
}

// speedCheckRequest defines the optional speed-check payload.
type speedCheckRequest struct {
	Strategy string `json:"strategy"` // mobile or desktop; provider default when empty.
}

// RunSpeedCheck runs a page speed check for the domain.
func (h *TaskHandler) RunSpeedCheck(c *gin.Context) {
	domainID, ok := pathDomainID(c)
	if !ok {
		return
	}
	var req speedCheckRequest
	_ = c.ShouldBindJSON(&req)

	result, errRun := h.manager.RunSpeedCheck(c.Request.Context(), CurrentUserID(c), domainID, req.Strategy)
	h.respond(c, crawl.TaskSpeedPageSpeed, result, errRun)
}

// RunCrawl runs a basic HTTP crawl of the domain root.
func (h *TaskHandler) RunCrawl(c *gin.Context) {
	domainID, ok := pathDomainID(c)
	if !ok {
		return
	}
	result, errRun := h.manager.RunHTTPBasicCrawl(c.Request.Context(), CurrentUserID(c), domainID)
	h.respond(c, crawl.TaskCrawlHTTPBasic, result, errRun)
}

// RunBacklinksFetch fetches a backlink summary for the domain.
func (h *TaskHandler) RunBacklinksFetch(c *gin.Context) {
	domainID, ok := pathDomainID(c)
	if !ok {
		return
	}
	result, errRun := h.manager.RunBacklinksFetch(c.Request.Context(), CurrentUserID(c), domainID)
	h.respond(c, crawl.TaskBacklinksFetch, result, errRun)
}

// RunSerpCheck checks positions for the domain's active keywords.
func (h *TaskHandler) RunSerpCheck(c *gin.Context) {
	domainID, ok := pathDomainID(c)
	if !ok {
		return
	}
	result, errRun := h.manager.RunSerpRankCheck(c.Request.Context(), CurrentUserID(c), domainID)
	h.respond(c, crawl.TaskSerpRankCheck, result, errRun)
}

// respond maps task pipeline outcomes to HTTP statuses: quota denials to
// 403 with the denial details, missing providers to 409, rate limits to
// 429, and anything else to 500.
func (h *TaskHandler) respond(c *gin.Context, taskType string, result map[string]any, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"task_type": taskType, "result": result})
		return
	}

	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		body := gin.H{
			"error":     "quota exceeded",
			"quota_key": exceeded.QuotaKey,
			"limit":     exceeded.Limit,
			"used":      exceeded.Used,
		}
		if !exceeded.ResetAt.IsZero() {
			body["reset_at"] = exceeded.ResetAt
		}
		c.JSON(http.StatusForbidden, body)
		return
	}

	var noProvider *crawl.NoProviderError
	if errors.As(err, &noProvider) {
		c.JSON(http.StatusConflict, gin.H{
			"error":     "no provider configured",
			"task_type": noProvider.TaskType,
		})
		return
	}

	var limited *crawl.RateLimitedError
	if errors.As(err, &limited) {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	log.WithError(err).WithField("task", taskType).Warn("task run failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "task run failed"})
}

// pathDomainID parses the domain id path parameter, writing the error
// response itself on failure.
func pathDomainID(c *gin.Context) (uint64, bool) {
	domainID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || domainID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid domain id"})
		return 0, false
	}
	return domainID, true
}
