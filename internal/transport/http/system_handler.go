package httptransport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tempalias/backend/internal/relay"
)

// sendTimeout 单次外发的最长等待时间
const sendTimeout = 30 * time.Second

type sendEmailRequest struct {
	To      string `json:"to" binding:"required,email"`
	Subject string `json:"subject" binding:"required,min=1"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
	From    string `json:"from" binding:"omitempty,email"`
}

// runCleanup 立即执行一次过期清理
func (h *Handler) runCleanup(c *gin.Context) {
	result, err := h.sweeper.RunOnce()
	if err != nil {
		InternalError(c, MsgCleanupFailed, err)
		return
	}
	OK(c, gin.H{
		"message":        MsgCleanupCompleted,
		"deletedAliases": result.DeletedAliases,
		"deletedEmails":  result.DeletedEmails,
	})
}

// sendEmail 通过外发中继发送邮件
func (h *Handler) sendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), sendTimeout)
	defer cancel()

	id, err := h.relay.Send(ctx, relay.Message{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    req.HTML,
	})
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrNotConfigured):
			h.log.Error("email relay is not configured")
			Error(c, http.StatusInternalServerError, MsgConfigError)
		case errors.Is(err, relay.ErrInvalidMessage):
			BadRequest(c, MsgInvalidRequest, err)
		default:
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"message": MsgEmailSendFailed,
				"error":   err.Error(),
			})
		}
		return
	}

	OK(c, gin.H{"message": MsgEmailSent, "messageId": id})
}

// healthSummary 汇总各依赖的状态
func (h *Handler) healthSummary(c *gin.Context) {
	report := h.health.CheckHealth()
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
