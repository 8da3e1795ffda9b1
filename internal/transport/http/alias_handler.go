package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempalias/backend/internal/service"
	"tempalias/backend/internal/storage"
)

type createAliasRequest struct {
	Prefix      *string `json:"prefix" binding:"omitempty,min=1,max=50"`
	TTLMinutes  *int    `json:"ttlMinutes" binding:"omitempty,min=1"`
	IsPermanent bool    `json:"isPermanent"`
}

func (h *Handler) listAliases(c *gin.Context) {
	aliases, err := h.aliases.List()
	if err != nil {
		InternalError(c, MsgAliasesFetchFailed, err)
		return
	}
	OK(c, aliases)
}

func (h *Handler) createAlias(c *gin.Context) {
	var req createAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest, err)
		return
	}

	input := service.CreateAliasInput{IsPermanent: req.IsPermanent}
	if req.Prefix != nil {
		input.Prefix = *req.Prefix
	}
	if req.TTLMinutes != nil {
		input.TTLMinutes = *req.TTLMinutes
	}

	alias, err := h.aliases.Create(input)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateAlias):
			Error(c, http.StatusConflict, MsgPrefixInUse)
		case errors.Is(err, service.ErrPrefixInvalid), errors.Is(err, service.ErrTTLInvalid):
			BadRequest(c, MsgInvalidRequest, err)
		default:
			h.log.Error("failed to create alias", zap.Error(err))
			InternalError(c, MsgAliasCreateFailed, err)
		}
		return
	}
	Created(c, alias)
}

func (h *Handler) getAlias(c *gin.Context) {
	alias, err := h.aliases.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrAliasNotFound) {
			NotFound(c, MsgAliasNotFound)
			return
		}
		InternalError(c, MsgAliasFetchFailed, err)
		return
	}
	OK(c, alias)
}

func (h *Handler) deleteAlias(c *gin.Context) {
	if err := h.aliases.Delete(c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrAliasNotFound) {
			NotFound(c, MsgAliasNotFound)
			return
		}
		InternalError(c, MsgAliasDeleteFailed, err)
		return
	}
	NoContent(c)
}
