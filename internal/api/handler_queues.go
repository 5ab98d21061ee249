package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type callNextRequest struct {
	Service  string `json:"service" binding:"required"`
	BranchID string `json:"branch_id"`
}

// PostCallNext handles POST /api/queues/call: a counter operator calls the
// next ticket.
func (h *Handler) PostCallNext(c *gin.Context) {
	var req callNextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := h.engine.CallNext(c.Request.Context(), req.Service, req.BranchID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

// GetEstimate handles GET /api/queues/:queue_id/estimate?number=N&priority=P.
func (h *Handler) GetEstimate(c *gin.Context) {
	number, err := strconv.Atoi(c.Query("number"))
	if err != nil || number <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a positive ticket number is required"})
		return
	}
	priority, _ := strconv.Atoi(c.DefaultQuery("priority", "0"))

	minutes, known, err := h.engine.Estimate(c.Request.Context(), c.Param("queue_id"), number, priority)
	if err != nil {
		fail(c, err)
		return
	}
	if !known {
		c.JSON(http.StatusOK, gin.H{"wait_minutes": nil, "status": "closed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wait_minutes": minutes, "status": "open"})
}
