package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"queue-ticketing-backend/internal/rank"
	"queue-ticketing-backend/internal/store"
)

// GetSearch handles GET /api/search.
func (h *Handler) GetSearch(c *gin.Context) {
	params := rank.Params{
		Term:         c.Query("q"),
		UserID:       c.Query("user_id"),
		Institution:  c.Query("institution"),
		Neighborhood: c.Query("neighborhood"),
		BranchID:     c.Query("branch_id"),
	}
	if v, err := strconv.ParseFloat(c.Query("lat"), 64); err == nil {
		params.Lat = &v
	}
	if v, err := strconv.ParseFloat(c.Query("lon"), 64); err == nil {
		params.Lon = &v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		params.MaxResults = v
	}
	if v, err := strconv.ParseFloat(c.Query("max_distance_km"), 64); err == nil {
		params.MaxDistanceKM = v
	}

	resp, err := h.search.Search(c.Request.Context(), params)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type proximityRequest struct {
	UserID       string  `json:"user_id" binding:"required"`
	Latitude     float64 `json:"latitude" binding:"required"`
	Longitude    float64 `json:"longitude" binding:"required"`
	Institution  string  `json:"institution"`
	Neighborhood string  `json:"neighborhood"`
}

// PostProximityCheck handles POST /api/proximity: clients report their
// location and nearby open queues are pushed back over the notification
// channels.
func (h *Handler) PostProximityCheck(c *gin.Context) {
	var req proximityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.engine.CheckProximity(c.Request.Context(), req.UserID, req.Latitude, req.Longitude, store.QueueFilter{
		Institution:  req.Institution,
		Neighborhood: req.Neighborhood,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
