package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"queue-ticketing-backend/internal/engine"
	"queue-ticketing-backend/internal/model"
)

type issueTicketRequest struct {
	Service    string `json:"service" binding:"required"`
	BranchID   string `json:"branch_id"`
	UserID     string `json:"user_id" binding:"required"`
	Priority   int    `json:"priority"`
	IsPhysical bool   `json:"is_physical"`
}

type ticketResponse struct {
	ID          string     `json:"id"`
	QueueID     string     `json:"queue_id"`
	Label       string     `json:"label"`
	Number      int        `json:"number"`
	QRCode      string     `json:"qr_code"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	Counter     *int       `json:"counter,omitempty"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CalledAt    *time.Time `json:"called_at,omitempty"`
	ServedAt    *time.Time `json:"served_at,omitempty"`
	SwapOffered bool       `json:"swap_offered"`
}

type issueTicketResponse struct {
	Ticket      ticketResponse `json:"ticket"`
	Position    int            `json:"position"`
	WaitMinutes *float64       `json:"wait_minutes,omitempty"`
}

func toTicketResponse(t *model.Ticket) ticketResponse {
	return ticketResponse{
		ID:          t.ID,
		QueueID:     t.QueueID,
		Label:       engine.Label(&t.Queue, t),
		Number:      t.Number,
		QRCode:      t.QRCode,
		Status:      string(t.Status),
		Priority:    t.Priority,
		Counter:     t.Counter,
		IssuedAt:    t.IssuedAt,
		ExpiresAt:   t.ExpiresAt,
		CalledAt:    t.CalledAt,
		ServedAt:    t.ServedAt,
		SwapOffered: t.SwapOffered,
	}
}

func toIssueResponse(r *engine.IssueResult) issueTicketResponse {
	resp := issueTicketResponse{
		Ticket:   toTicketResponse(r.Ticket),
		Position: r.Position,
	}
	if r.WaitKnown {
		resp.WaitMinutes = &r.WaitMinutes
	}
	return resp
}

// PostTicket handles POST /api/tickets: online ticket issuance.
func (h *Handler) PostTicket(c *gin.Context) {
	var req issueTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Issue(c.Request.Context(), req.Service, req.BranchID, req.UserID, req.Priority, req.IsPhysical)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toIssueResponse(result))
}

type validatePresenceRequest struct {
	QRCode    string   `json:"qr_code"`
	QueueID   string   `json:"queue_id"`
	Number    int      `json:"number"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// PostValidatePresence handles POST /api/tickets/validate.
func (h *Handler) PostValidatePresence(c *gin.Context) {
	var req validatePresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.QRCode == "" && (req.QueueID == "" || req.Number <= 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "qr_code or queue_id and number are required"})
		return
	}

	ticket, err := h.engine.ValidatePresence(c.Request.Context(), engine.TicketRef{
		QRCode:  req.QRCode,
		QueueID: req.QueueID,
		Number:  req.Number,
	}, req.Latitude, req.Longitude)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

type ticketActionRequest struct {
	TicketID string `json:"ticket_id" binding:"required"`
	UserID   string `json:"user_id" binding:"required"`
}

// PostCancelTicket handles POST /api/tickets/cancel.
func (h *Handler) PostCancelTicket(c *gin.Context) {
	var req ticketActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := h.engine.Cancel(c.Request.Context(), req.TicketID, req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

// PostOfferSwap handles POST /api/tickets/offer-swap.
func (h *Handler) PostOfferSwap(c *gin.Context) {
	var req ticketActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := h.engine.OfferSwap(c.Request.Context(), req.TicketID, req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

type acceptSwapRequest struct {
	FromTicketID string `json:"from_ticket_id" binding:"required"`
	ToTicketID   string `json:"to_ticket_id" binding:"required"`
	UserID       string `json:"user_id" binding:"required"`
}

// PostAcceptSwap handles POST /api/tickets/swap.
func (h *Handler) PostAcceptSwap(c *gin.Context) {
	var req acceptSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	from, to, err := h.engine.AcceptSwap(c.Request.Context(), req.FromTicketID, req.ToTicketID, req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from": toTicketResponse(from),
		"to":   toTicketResponse(to),
	})
}
