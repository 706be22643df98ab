package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QuizAccess/internal/accessrule"
	"github.com/router-for-me/QuizAccess/internal/models"
	"github.com/router-for-me/QuizAccess/internal/store"
	log "github.com/sirupsen/logrus"
)

// QuizHandler manages quiz access policies.
type QuizHandler struct {
	quizzes  *store.QuizStore
	registry *accessrule.Registry
	nowFn    func() time.Time
}

// NewQuizHandler constructs a QuizHandler.
func NewQuizHandler(quizzes *store.QuizStore, registry *accessrule.Registry, nowFn func() time.Time) *QuizHandler {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &QuizHandler{quizzes: quizzes, registry: registry, nowFn: nowFn}
}

type putQuizRequest struct {
	Name            string   `json:"name"`
	Attempts        int      `json:"attempts"`
	TimeLimit       int64    `json:"time_limit"`
	TimeOpen        int64    `json:"time_open"`
	TimeClose       int64    `json:"time_close"`
	DelayFirst      int64    `json:"delay_first"`
	DelayLater      int64    `json:"delay_later"`
	Password        string   `json:"password"`
	ExtraPasswords  []string `json:"extra_passwords"`
	Subnet          string   `json:"subnet"`
	BrowserSecurity string   `json:"browser_security"`
}

// Put creates or replaces the policy of a quiz.
func (h *QuizHandler) Put(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body putQuizRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
		return
	}
	if body.Attempts < 0 || body.TimeLimit < 0 || body.TimeOpen < 0 || body.TimeClose < 0 ||
		body.DelayFirst < 0 || body.DelayLater < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "numeric settings must not be negative"})
		return
	}
	if body.TimeOpen > 0 && body.TimeClose > 0 && body.TimeClose < body.TimeOpen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "time_close must not be before time_open"})
		return
	}

	mode := accessrule.BrowserSecurity(strings.TrimSpace(body.BrowserSecurity))
	if mode == "" {
		mode = accessrule.BrowserSecurityNone
	}
	if _, ok := h.registry.BrowserSecurityChoices()[mode]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid browser_security"})
		return
	}

	extra, errExtra := store.EncodeExtraPasswords(body.ExtraPasswords)
	if errExtra != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid extra_passwords"})
		return
	}

	quiz := models.Quiz{
		ID:              id,
		Name:            name,
		Attempts:        body.Attempts,
		TimeLimit:       body.TimeLimit,
		TimeOpen:        body.TimeOpen,
		TimeClose:       body.TimeClose,
		DelayFirst:      body.DelayFirst,
		DelayLater:      body.DelayLater,
		Password:        body.Password,
		ExtraPasswords:  extra,
		Subnet:          strings.TrimSpace(body.Subnet),
		BrowserSecurity: string(mode),
	}
	if existing, errGet := h.quizzes.GetQuiz(c.Request.Context(), id); errGet == nil {
		quiz.CreatedAt = existing.CreatedAt
	} else if !errors.Is(errGet, store.ErrQuizNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if errSave := h.quizzes.SaveQuiz(c.Request.Context(), &quiz); errSave != nil {
		log.WithError(errSave).Error("admin: save quiz failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save quiz failed"})
		return
	}
	log.WithFields(log.Fields{"quiz_id": id}).Info("quiz policy saved")

	h.respondQuiz(c, &quiz)
}

// Get returns the stored policy of a quiz and the rule descriptions it produces.
func (h *QuizHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	quiz, errGet := h.quizzes.GetQuiz(c.Request.Context(), id)
	if errGet != nil {
		if errors.Is(errGet, store.ErrQuizNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	h.respondQuiz(c, quiz)
}

// BrowserSecurityChoices lists the display modes an admin may select.
func (h *QuizHandler) BrowserSecurityChoices(c *gin.Context) {
	choices := h.registry.BrowserSecurityChoices()
	out := make([]gin.H, 0, len(choices))
	for mode, label := range choices {
		out = append(out, gin.H{"value": mode, "label": label})
	}
	sort.Slice(out, func(i, j int) bool {
		mi := out[i]["value"].(accessrule.BrowserSecurity)
		mj := out[j]["value"].(accessrule.BrowserSecurity)
		if mi == accessrule.BrowserSecurityNone || mj == accessrule.BrowserSecurityNone {
			return mi == accessrule.BrowserSecurityNone && mj != accessrule.BrowserSecurityNone
		}
		return mi < mj
	})
	c.JSON(http.StatusOK, gin.H{"choices": out})
}

func (h *QuizHandler) respondQuiz(c *gin.Context, quiz *models.Quiz) {
	policy, errPolicy := store.PolicyFromQuiz(quiz)
	if errPolicy != nil {
		log.WithError(errPolicy).Error("admin: decode quiz policy failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decode quiz failed"})
		return
	}
	manager := h.registry.Build(policy, accessrule.Env{Now: h.nowFn().Unix()})
	c.JSON(http.StatusOK, gin.H{
		"id":               quiz.ID,
		"name":             quiz.Name,
		"attempts":         policy.Attempts,
		"time_limit":       policy.TimeLimit,
		"time_open":        policy.TimeOpen,
		"time_close":       policy.TimeClose,
		"delay_first":      policy.DelayFirst,
		"delay_later":      policy.DelayLater,
		"password":         policy.Password,
		"extra_passwords":  policy.ExtraPasswords,
		"subnet":           policy.Subnet,
		"browser_security": policy.BrowserSecurity,
		"descriptions":     manager.Descriptions(),
		"created_at":       quiz.CreatedAt,
		"updated_at":       quiz.UpdatedAt,
	})
}
