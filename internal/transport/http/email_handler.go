package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"tempalias/backend/internal/storage"
)

func (h *Handler) listAliasEmails(c *gin.Context) {
	emails, err := h.emails.ListByAlias(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrAliasNotFound) {
			NotFound(c, MsgAliasNotFound)
			return
		}
		InternalError(c, MsgEmailsFetchFailed, err)
		return
	}
	OK(c, emails)
}

func (h *Handler) getEmail(c *gin.Context) {
	email, err := h.emails.Get(c.Param("id"))
	if err != nil {
		h.emailError(c, err, MsgEmailFetchFailed)
		return
	}
	OK(c, email)
}

func (h *Handler) markEmailRead(c *gin.Context) {
	if err := h.emails.MarkRead(c.Param("id")); err != nil {
		h.emailError(c, err, MsgEmailMarkReadFailed)
		return
	}
	NoContent(c)
}

func (h *Handler) deleteEmail(c *gin.Context) {
	if err := h.emails.Delete(c.Param("id")); err != nil {
		h.emailError(c, err, MsgEmailDeleteFailed)
		return
	}
	NoContent(c)
}

func (h *Handler) emailError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, storage.ErrEmailNotFound) {
		NotFound(c, MsgEmailNotFound)
		return
	}
	InternalError(c, fallback, err)
}
