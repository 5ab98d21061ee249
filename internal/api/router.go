package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"queue-ticketing-backend/internal/engine"
	"queue-ticketing-backend/internal/mw"
	"queue-ticketing-backend/internal/rank"
	"queue-ticketing-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, eng *engine.Engine, search *rank.Service, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, eng, search, webpushOptions)

	// Rate limit: 10 requests per second with a burst of 5
	rateLimiter := mw.RateLimiter(rate.Limit(10), 5)

	// Discovery responses tolerate short staleness; 30 seconds keeps wait
	// estimates close to live without hammering the ranker.
	cacheStore := cache.New(30*time.Second, 5*time.Minute)
	caching := mw.Cache(cacheStore, 30*time.Second)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/tickets", handler.PostTicket)
		api.POST("/tickets/validate", handler.PostValidatePresence)
		api.POST("/tickets/swap", handler.PostAcceptSwap)
		api.POST("/tickets/cancel", handler.PostCancelTicket)
		api.POST("/tickets/offer-swap", handler.PostOfferSwap)

		api.POST("/queues/call", handler.PostCallNext)
		api.GET("/search", caching, handler.GetSearch)
		api.GET("/queues/:queue_id/estimate", handler.GetEstimate)

		api.POST("/kiosk/tickets", handler.PostKioskTicket)
		api.POST("/proximity", handler.PostProximityCheck)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
