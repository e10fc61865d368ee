package signald

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/domain"
)

type createSessionReq struct {
	CreatorID string `json:"creator_id"`
}

type createSessionResp struct {
	ID string `json:"id"`
	domain.SessionMeta
}

func (d *Daemon) createSession(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	if req.CreatorID == "" {
		req.CreatorID = c.GetString("client_token")
	}
	id := uuid.NewString()
	d.reg.CreateSession(id, req.CreatorID)
	log.Info().Str("module", "signald.sessions").Str("id", id).Str("creator", req.CreatorID).Msg("session created")
	c.JSON(http.StatusCreated, createSessionResp{
		ID:          id,
		SessionMeta: domain.SessionMeta{CreatorID: req.CreatorID, Status: domain.SessionActive},
	})
}

func (d *Daemon) getSession(c *gin.Context) {
	meta, ok := d.reg.Session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (d *Daemon) endSession(c *gin.Context) {
	id := c.Param("id")
	if !d.reg.EndSession(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	log.Info().Str("module", "signald.sessions").Str("id", id).Msg("session ended")
	c.Status(http.StatusNoContent)
}
