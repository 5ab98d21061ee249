package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type kioskTicketRequest struct {
	QueueID string `json:"queue_id" binding:"required"`
}

// PostKioskTicket handles POST /api/kiosk/tickets: a self-service kiosk
// prints a walk-in ticket. The client IP is taken from the connection, not
// the body, so the per-institution throttle cannot be spoofed by callers.
func (h *Handler) PostKioskTicket(c *gin.Context) {
	var req kioskTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.IssueKiosk(c.Request.Context(), req.QueueID, c.ClientIP())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toIssueResponse(result))
}
