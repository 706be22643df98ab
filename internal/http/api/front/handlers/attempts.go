package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QuizAccess/internal/accessrule"
	"github.com/router-for-me/QuizAccess/internal/http/middleware"
	"github.com/router-for-me/QuizAccess/internal/models"
	"github.com/router-for-me/QuizAccess/internal/ratelimit"
	"github.com/router-for-me/QuizAccess/internal/security"
	"github.com/router-for-me/QuizAccess/internal/session"
	"github.com/router-for-me/QuizAccess/internal/store"
	log "github.com/sirupsen/logrus"
)

// Limiter throttles verification submissions.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
}

// AttemptHandler serves the student-facing access endpoints.
type AttemptHandler struct {
	quizzes  *store.QuizStore
	registry *accessrule.Registry
	sessions session.Store
	limiter  Limiter
	nowFn    func() time.Time
}

// NewAttemptHandler constructs an AttemptHandler.
func NewAttemptHandler(quizzes *store.QuizStore, registry *accessrule.Registry, sessions session.Store, limiter Limiter, nowFn func() time.Time) *AttemptHandler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &AttemptHandler{
		quizzes:  quizzes,
		registry: registry,
		sessions: sessions,
		limiter:  limiter,
		nowFn:    nowFn,
	}
}

type verifyRequest struct {
	Fields map[string]string `json:"fields"`
}

type startRequest struct {
	Preview bool `json:"preview"`
}

// decision bundles what one request needs to evaluate the rules.
type decision struct {
	identity security.Identity
	policy   accessrule.Policy
	manager  *accessrule.Manager
	state    accessrule.VerificationState
	now      int64
}

// Access returns the access summary for a quiz.
func (h *AttemptHandler) Access(c *gin.Context) {
	d, ok := h.loadQuizDecision(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	numFinished, lastFinished, errHistory := h.quizzes.AttemptHistory(ctx, d.policy.QuizID, d.identity.UserID, store.AttemptFilterFinished, false)
	if errHistory != nil {
		log.WithError(errHistory).Error("front: attempt history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	running, errRunning := h.quizzes.UnfinishedAttempt(ctx, d.policy.QuizID, d.identity.UserID)
	if errRunning != nil && !errors.Is(errRunning, store.ErrAttemptNotFound) {
		log.WithError(errRunning).Error("front: unfinished attempt lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var runningID uint64
	runningOut := gin.H(nil)
	if running != nil {
		runningID = running.ID
		runningOut = h.timerPayload(d, running)
	}

	required := d.manager.RequiresVerification(d.state, runningID)
	var fields []accessrule.Field
	if required {
		fields = d.manager.VerificationFields(d.state, runningID)
	}

	c.JSON(http.StatusOK, gin.H{
		"quiz_id":           d.policy.QuizID,
		"descriptions":      d.manager.Descriptions(),
		"access":            verdictPayload(d.manager.PreventAccess()),
		"new_attempt":       verdictPayload(d.manager.PreventNewAttempt(numFinished, lastFinished)),
		"finished":          d.manager.IsFinished(numFinished, lastFinished),
		"attempts_finished": numFinished,
		"unfinished":        runningOut,
		"verification": gin.H{
			"required": required,
			"fields":   fields,
		},
		"popup": gin.H{
			"required": d.manager.PopupRequired(),
			"options":  d.manager.PopupOptions(),
		},
	})
}

// Verify checks submitted verification fields and records success in the caller's session.
func (h *AttemptHandler) Verify(c *gin.Context) {
	d, ok := h.loadQuizDecision(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var body verifyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if h.limiter != nil {
		result, errLimit := h.limiter.Allow(ctx, ratelimit.KeyForVerify(d.identity.UserID, d.policy.QuizID))
		if errLimit != nil {
			log.WithError(errLimit).Warn("front: verify rate limit check failed")
		} else if !result.Allowed {
			retryAfter := int64(result.RetryAfter(h.nowFn()).Round(time.Second) / time.Second)
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many verification attempts", "retry_after": retryAfter})
			return
		}
	}

	if access := d.manager.PreventAccess(); !access.Allowed() {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied", "access": verdictPayload(access)})
		return
	}

	runningID, errRunning := h.runningAttemptID(ctx, d)
	if errRunning != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if !d.manager.RequiresVerification(d.state, runningID) {
		c.JSON(http.StatusOK, gin.H{"verified": true})
		return
	}

	if fieldErrors := d.manager.ValidateVerification(d.state, runningID, body.Fields); len(fieldErrors) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "verification failed", "fields": fieldErrors})
		return
	}

	next := d.manager.NotifyVerificationPassed(d.state, runningID)
	if errSave := h.sessions.Save(ctx, d.identity.UserID, next); errSave != nil {
		log.WithError(errSave).Error("front: save verification state failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save session failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// Start begins a new attempt or resumes the caller's unfinished one.
func (h *AttemptHandler) Start(c *gin.Context) {
	d, ok := h.loadQuizDecision(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var body startRequest
	if c.Request.ContentLength != 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil && !errors.Is(errBind, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	preview := body.Preview && d.identity.Admin

	if access := d.manager.PreventAccess(); !access.Allowed() {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied", "access": verdictPayload(access)})
		return
	}

	running, errRunning := h.quizzes.UnfinishedAttempt(ctx, d.policy.QuizID, d.identity.UserID)
	switch {
	case errRunning == nil:
		if d.manager.RequiresVerification(d.state, running.ID) {
			h.verificationRequired(c, d, running.ID)
			return
		}
		out := h.timerPayload(d, running)
		out["resumed"] = true
		c.JSON(http.StatusOK, out)
		return
	case !errors.Is(errRunning, store.ErrAttemptNotFound):
		log.WithError(errRunning).Error("front: unfinished attempt lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	// Previews are not graded: they neither count towards nor are limited by the attempt history.
	if !preview {
		numFinished, lastFinished, errHistory := h.quizzes.AttemptHistory(ctx, d.policy.QuizID, d.identity.UserID, store.AttemptFilterFinished, false)
		if errHistory != nil {
			log.WithError(errHistory).Error("front: attempt history failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		if verdict := d.manager.PreventNewAttempt(numFinished, lastFinished); !verdict.Allowed() {
			c.JSON(http.StatusForbidden, gin.H{"error": "new attempt denied", "new_attempt": verdictPayload(verdict)})
			return
		}
	}
	if d.manager.RequiresVerification(d.state, 0) {
		h.verificationRequired(c, d, 0)
		return
	}

	created, errStart := h.quizzes.StartAttempt(ctx, d.policy.QuizID, d.identity.UserID, preview, d.now)
	if errStart != nil {
		if errors.Is(errStart, store.ErrAttemptConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "attempt already started"})
			return
		}
		log.WithError(errStart).Error("front: start attempt failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "start attempt failed"})
		return
	}
	log.WithFields(log.Fields{
		"quiz_id":    created.QuizID,
		"user_id":    created.UserID,
		"attempt_id": created.ID,
		"number":     created.Number,
	}).Info("attempt started")

	out := h.timerPayload(d, created)
	out["resumed"] = false
	c.JSON(http.StatusCreated, out)
}

// Timer returns the deadline and remaining time of one of the caller's attempts.
func (h *AttemptHandler) Timer(c *gin.Context) {
	d, attempt, ok := h.loadAttemptDecision(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.timerPayload(d, attempt))
}

// Finish submits one of the caller's attempts and clears its verification state.
func (h *AttemptHandler) Finish(c *gin.Context) {
	d, attempt, ok := h.loadAttemptDecision(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	finished, errFinish := h.quizzes.FinishAttempt(ctx, attempt.ID, d.now)
	if errFinish != nil {
		if errors.Is(errFinish, store.ErrAttemptConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "attempt changed concurrently"})
			return
		}
		log.WithError(errFinish).Error("front: finish attempt failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "finish attempt failed"})
		return
	}

	next := d.manager.NotifyAttemptFinished(d.state)
	if errSave := h.sessions.Save(ctx, d.identity.UserID, next); errSave != nil {
		log.WithError(errSave).Error("front: save verification state failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save session failed"})
		return
	}
	c.JSON(http.StatusOK, h.timerPayload(d, finished))
}

func (h *AttemptHandler) loadQuizDecision(c *gin.Context) (decision, bool) {
	quizID, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || quizID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return decision{}, false
	}
	return h.loadDecision(c, quizID)
}

func (h *AttemptHandler) loadAttemptDecision(c *gin.Context) (decision, *models.Attempt, bool) {
	attemptID, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || attemptID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return decision{}, nil, false
	}
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return decision{}, nil, false
	}
	attempt, errGet := h.quizzes.GetAttempt(c.Request.Context(), attemptID)
	if errGet != nil {
		if errors.Is(errGet, store.ErrAttemptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return decision{}, nil, false
		}
		log.WithError(errGet).Error("front: get attempt failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return decision{}, nil, false
	}
	if attempt.UserID != identity.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return decision{}, nil, false
	}
	d, ok := h.loadDecision(c, attempt.QuizID)
	if !ok {
		return decision{}, nil, false
	}
	return d, attempt, true
}

func (h *AttemptHandler) loadDecision(c *gin.Context, quizID uint64) (decision, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return decision{}, false
	}
	ctx := c.Request.Context()

	policy, errPolicy := h.quizzes.LoadPolicy(ctx, quizID)
	if errPolicy != nil {
		if errors.Is(errPolicy, store.ErrQuizNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "quiz not found"})
			return decision{}, false
		}
		log.WithError(errPolicy).Error("front: load policy failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return decision{}, false
	}
	state, errState := h.sessions.Load(ctx, identity.UserID)
	if errState != nil {
		log.WithError(errState).Error("front: load verification state failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load session failed"})
		return decision{}, false
	}

	now := h.nowFn().Unix()
	env := accessrule.Env{
		Now:              now,
		IgnoreTimeLimits: identity.IgnoreTimeLimits,
		RemoteAddr:       c.ClientIP(),
		UserAgent:        c.GetHeader("User-Agent"),
	}
	return decision{
		identity: identity,
		policy:   policy,
		manager:  h.registry.Build(policy, env),
		state:    state,
		now:      now,
	}, true
}

func (h *AttemptHandler) runningAttemptID(ctx context.Context, d decision) (uint64, error) {
	running, errRunning := h.quizzes.UnfinishedAttempt(ctx, d.policy.QuizID, d.identity.UserID)
	if errRunning != nil {
		if errors.Is(errRunning, store.ErrAttemptNotFound) {
			return 0, nil
		}
		log.WithError(errRunning).Error("front: unfinished attempt lookup failed")
		return 0, errRunning
	}
	return running.ID, nil
}

func (h *AttemptHandler) verificationRequired(c *gin.Context, d decision, attemptID uint64) {
	c.JSON(http.StatusPreconditionRequired, gin.H{
		"error":  "verification required",
		"fields": d.manager.VerificationFields(d.state, attemptID),
	})
}

func (h *AttemptHandler) timerPayload(d decision, attempt *models.Attempt) gin.H {
	view := store.ToAccessAttempt(attempt)
	out := gin.H{
		"attempt_id":     attempt.ID,
		"quiz_id":        attempt.QuizID,
		"number":         attempt.Number,
		"state":          attempt.State,
		"preview":        attempt.Preview,
		"time_start":     attempt.TimeStart,
		"time_finish":    attempt.TimeFinish,
		"end_time":       nil,
		"time_remaining": nil,
	}
	if end, ok := d.manager.EndTime(view); ok {
		out["end_time"] = end
	}
	if attempt.State == models.AttemptStateInProgress || attempt.State == models.AttemptStateOverdue {
		if remaining, ok := d.manager.TimeRemaining(view, d.now); ok {
			out["time_remaining"] = remaining
		}
	}
	return out
}

func verdictPayload(v accessrule.Verdict) gin.H {
	denials := make([]gin.H, 0, len(v.Denials))
	for _, denial := range v.Denials {
		item := gin.H{
			"rule":    denial.Rule,
			"code":    denial.Code,
			"message": denial.Message(),
		}
		if denial.Until > 0 {
			item["until"] = denial.Until
		}
		denials = append(denials, item)
	}
	return gin.H{"allowed": v.Allowed(), "denials": denials}
}
