package httptransport

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"tempalias/backend/internal/middleware"
)

// InboundSecretHeader 入站 Webhook 携带共享密钥的请求头
const InboundSecretHeader = "X-Inbound-Secret"

// receiveInbound 接收邮件服务商转发的原始 MIME 报文
func (h *Handler) receiveInbound(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			Error(c, http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
			return
		}
		BadRequest(c, MsgInvalidEmailData, nil)
		return
	}

	result, err := h.inbound.Ingest(c.GetHeader(InboundSecretHeader), raw)
	if err != nil {
		status, msg := inboundStatus(err)
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		Error(c, status, msg)
		return
	}

	Created(c, gin.H{
		"message": MsgEmailReceived,
		"emailId": result.Email.ID,
	})
}
