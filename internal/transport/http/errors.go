package httptransport

import (
	"errors"
	"net/http"

	"tempalias/backend/internal/inbound"
)

// 响应消息，与前端约定一致
const (
	MsgInvalidRequest = "Invalid request data"

	MsgAliasesFetchFailed = "Failed to fetch aliases"
	MsgAliasFetchFailed   = "Failed to fetch alias"
	MsgAliasCreateFailed  = "Failed to create alias"
	MsgAliasDeleteFailed  = "Failed to delete alias"
	MsgAliasNotFound      = "Alias not found"
	MsgPrefixInUse        = "This email prefix is already in use. Please try another one."

	MsgEmailsFetchFailed   = "Failed to fetch emails"
	MsgEmailFetchFailed    = "Failed to fetch email"
	MsgEmailMarkReadFailed = "Failed to mark email as read"
	MsgEmailDeleteFailed   = "Failed to delete email"
	MsgEmailNotFound       = "Email not found"

	MsgConfigError      = "Server configuration error"
	MsgUnauthorized     = "Unauthorized"
	MsgInvalidEmailData = "Invalid email data"
	MsgInvalidRecipient = "Invalid recipient"
	MsgAliasExpired     = "Alias expired"
	MsgProcessFailed    = "Failed to process email"
	MsgEmailReceived    = "Email received"
	MsgBodyTooLarge     = "Request body too large"

	MsgCleanupCompleted = "Cleanup completed"
	MsgCleanupFailed    = "Cleanup failed"

	MsgEmailSent       = "Email sent successfully"
	MsgEmailSendFailed = "Failed to send email"
)

// inboundStatus 把入站拒绝原因映射为状态码与消息
func inboundStatus(err error) (int, string) {
	switch {
	case errors.Is(err, inbound.ErrMissingSecret):
		return http.StatusInternalServerError, MsgConfigError
	case errors.Is(err, inbound.ErrUnauthorized):
		return http.StatusUnauthorized, MsgUnauthorized
	case errors.Is(err, inbound.ErrInvalidPayload), errors.Is(err, inbound.ErrMalformedMessage):
		return http.StatusBadRequest, MsgInvalidEmailData
	case errors.Is(err, inbound.ErrInvalidRecipient):
		return http.StatusBadRequest, MsgInvalidRecipient
	case errors.Is(err, inbound.ErrAliasNotFound):
		return http.StatusNotFound, MsgAliasNotFound
	case errors.Is(err, inbound.ErrAliasExpired):
		return http.StatusGone, MsgAliasExpired
	default:
		return http.StatusInternalServerError, MsgProcessFailed
	}
}
