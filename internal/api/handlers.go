package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/internal/decision"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/moderation"
	"github.com/jonesrussell/north-cloud/moderation/internal/queue"
	"github.com/jonesrussell/north-cloud/moderation/internal/scorer"
	"github.com/jonesrussell/north-cloud/moderation/internal/stats"
)

// Service is the moderation surface the handlers call.
type Service interface {
	Intake(ctx context.Context, req queue.IntakeRequest) (*queue.IntakeResult, error)
	Score(ctx context.Context, text string, sc scorer.Context) (scorer.Result, error)
	List(ctx context.Context, f queue.Filter) ([]*domain.ModerationItem, error)
	GetDetail(ctx context.Context, queueID string) (*queue.Detail, error)
	Claim(ctx context.Context, queueID, moderatorID string) (*queue.Detail, error)
	Audit(ctx context.Context, queueID string) ([]domain.AuditEntry, error)
	Decide(ctx context.Context, req decision.Request) (*decision.FinalOutput, error)
	Summary(ctx context.Context, w stats.Window) (*stats.Summary, error)
	PolicyInfo() moderation.PolicyInfo
	ReloadPolicy(ctx context.Context, by decision.Moderator) (moderation.PolicyInfo, error)
}

// Handler handles HTTP requests for the moderation API
type Handler struct {
	svc    Service
	logger logger.Logger
	now    func() time.Time
}

// NewHandler creates a new API handler
func NewHandler(svc Service, log logger.Logger) *Handler {
	return &Handler{svc: svc, logger: log, now: time.Now}
}

// ScoreRequest is a dry-run scoring request.
type ScoreRequest struct {
	Text         string   `json:"text"`
	Series       string   `json:"series"`
	StressMarker bool     `json:"stress_marker"`
	Hints        []string `json:"hints,omitempty"`
}

// DecisionRequest is a moderator's decision on one item. The moderator comes
// from the authenticated identity, never from the body.
type DecisionRequest struct {
	Action       string `binding:"required" json:"action"`
	Notes        string `json:"notes"`
	EditedOutput string `json:"edited_output,omitempty"`
}

// ListResponse is the queue listing.
type ListResponse struct {
	Items []*domain.ModerationItem `json:"items"`
	Count int                      `json:"count"`
}

// AuditResponse is an item's audit trail.
type AuditResponse struct {
	QueueID string              `json:"queue_id"`
	Entries []domain.AuditEntry `json:"entries"`
}

// Intake handles POST /api/v1/intake
func (h *Handler) Intake(c *gin.Context) {
	var req queue.IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.svc.Intake(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	code := http.StatusOK
	if res.Disposition == queue.DispositionStored {
		code = http.StatusCreated
	}
	c.JSON(code, res)
}

// Score handles POST /api/v1/score
func (h *Handler) Score(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.svc.Score(c.Request.Context(), req.Text, scorer.Context{
		Series:       req.Series,
		StressMarker: req.StressMarker,
		Hints:        req.Hints,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListQueue handles GET /api/v1/moderation/queue
func (h *Handler) ListQueue(c *gin.Context) {
	f, err := queue.ParseFilter(c.Query("status"), c.Query("risk_level"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	items, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if items == nil {
		items = []*domain.ModerationItem{}
	}
	c.JSON(http.StatusOK, ListResponse{Items: items, Count: len(items)})
}

// GetItem handles GET /api/v1/moderation/queue/:queue_id
func (h *Handler) GetItem(c *gin.Context) {
	detail, err := h.svc.GetDetail(c.Request.Context(), c.Param("queue_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ClaimItem handles POST /api/v1/moderation/queue/:queue_id/claim
func (h *Handler) ClaimItem(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}

	detail, err := h.svc.Claim(c.Request.Context(), c.Param("queue_id"), id.ModeratorID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Decide handles POST /api/v1/moderation/queue/:queue_id/decision
func (h *Handler) Decide(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	queueID := c.Param("queue_id")
	out, err := h.svc.Decide(c.Request.Context(), decision.Request{
		QueueID:      queueID,
		Action:       req.Action,
		Moderator:    decision.Moderator{ID: id.ModeratorID, Privileged: id.Privileged},
		Notes:        req.Notes,
		EditedOutput: req.EditedOutput,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Moderation decision recorded",
		logger.String("queue_id", queueID),
		logger.String("status", string(out.Status)),
		logger.String("moderator_id", id.ModeratorID),
	)
	c.JSON(http.StatusOK, out)
}

// GetAudit handles GET /api/v1/moderation/queue/:queue_id/audit
func (h *Handler) GetAudit(c *gin.Context) {
	queueID := c.Param("queue_id")
	entries, err := h.svc.Audit(c.Request.Context(), queueID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AuditResponse{QueueID: queueID, Entries: entries})
}

// GetStats handles GET /api/v1/moderation/stats
func (h *Handler) GetStats(c *gin.Context) {
	w, err := h.parseWindow(c.Query("since"), c.Query("window"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	summary, err := h.svc.Summary(c.Request.Context(), w)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetPolicy handles GET /api/v1/policy
func (h *Handler) GetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.PolicyInfo())
}

// ReloadPolicy handles POST /api/v1/policy/reload
func (h *Handler) ReloadPolicy(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}

	info, err := h.svc.ReloadPolicy(c.Request.Context(), decision.Moderator{ID: id.ModeratorID, Privileged: id.Privileged})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// parseWindow accepts either an RFC 3339 since or a positive Go duration
// counted back from now. Giving both is rejected.
func (h *Handler) parseWindow(since, window string) (stats.Window, error) {
	since = strings.TrimSpace(since)
	window = strings.TrimSpace(window)

	switch {
	case since != "" && window != "":
		return stats.Window{}, domain.NewValidationError("since", "use either since or window, not both")
	case since != "":
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return stats.Window{}, domain.NewValidationError("since", "must be an RFC 3339 timestamp")
		}
		return stats.Window{Since: t}, nil
	case window != "":
		d, err := time.ParseDuration(window)
		if err != nil || d <= 0 {
			return stats.Window{}, domain.NewValidationError("window", "must be a positive duration such as 24h")
		}
		return stats.Window{Since: h.now().Add(-d)}, nil
	default:
		return stats.Window{}, nil
	}
}

func (h *Handler) requireIdentity(c *gin.Context) (jwt.Identity, bool) {
	id, ok := jwt.GetIdentity(c)
	if !ok || id.ModeratorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "moderator identity required"})
		return jwt.Identity{}, false
	}
	return id, true
}
