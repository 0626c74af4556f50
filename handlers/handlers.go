package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"upswatch/database"
	"upswatch/kafka"
	"upswatch/models"
	"upswatch/notify"
	"upswatch/websocket"
)

// Handler contains all the dependencies needed for HTTP handlers
type Handler struct {
	db         *database.DB
	hub        *websocket.Hub
	dispatcher *notify.Dispatcher
	email      *notify.EmailChannel
	ntfy       *notify.NtfyChannel
	webhook    *notify.WebhookChannel
	producer   *kafka.Producer
	validate   *validator.Validate
}

// New creates a new handler instance
func New(db *database.DB, hub *websocket.Hub, dispatcher *notify.Dispatcher,
	email *notify.EmailChannel, ntfy *notify.NtfyChannel, webhook *notify.WebhookChannel,
	producer *kafka.Producer) *Handler {
	return &Handler{
		db:         db,
		hub:        hub,
		dispatcher: dispatcher,
		email:      email,
		ntfy:       ntfy,
		webhook:    webhook,
		producer:   producer,
		validate:   validator.New(),
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"clients": h.hub.GetClientCount(),
	})
}

// eventRequest is the ingestion payload. Either a structured event_type or
// a free-text upsmon message must be present.
type eventRequest struct {
	UPSName   string `json:"ups_name" validate:"required_without=Text"`
	EventType string `json:"event_type" validate:"required_without=Text"`
	Message   string `json:"message"`
	Text      string `json:"text"`
}

// IngestEvent accepts a UPS event, records it, and fans out notifications.
func (h *Handler) IngestEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	upsName := req.UPSName
	eventType := models.EventType(req.EventType)
	message := req.Message

	if req.Text != "" {
		name, parsed, ok := notify.ParseEventText(req.Text)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unrecognized event text"})
			return
		}
		eventType = parsed
		message = req.Text
		if upsName == "" {
			upsName = name
		}
	}

	if !eventType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown event type", "event_type": string(eventType)})
		return
	}
	if upsName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing ups_name"})
		return
	}

	event, err := h.db.RecordEvent(upsName, eventType, message, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record event", "details": err.Error()})
		return
	}

	h.hub.BroadcastEvent(event)
	h.producer.PublishEvent(event)

	// Delivery happens off the request path; the event is already durable.
	go func() {
		h.dispatcher.Dispatch(context.Background(), event)
	}()

	c.JSON(http.StatusCreated, gin.H{"event": event})
}

// GetEvents retrieves recent events
func (h *Handler) GetEvents(c *gin.Context) {
	limit := 50 // default
	if l := c.Query("limit"); l != "" {
		if parsedLimit, err := strconv.Atoi(l); err == nil && parsedLimit > 0 && parsedLimit <= 1000 {
			limit = parsedLimit
		}
	}

	events, err := h.db.GetRecentEvents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to retrieve events",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// AcknowledgeEvent marks an event as acknowledged
func (h *Handler) AcknowledgeEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event ID"})
		return
	}

	if err := h.db.AcknowledgeEvent(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Failed to acknowledge event", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"acknowledged": id})
}

// GetLatestData returns the most recent aggregate record
func (h *Handler) GetLatestData(c *gin.Context) {
	rec, err := h.db.LatestAggregate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to retrieve latest data",
			"details": err.Error(),
		})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No data recorded yet"})
		return
	}

	// Records land once a minute while polling is healthy. Anything much
	// older means the reader is failing and the data should not be
	// presented as current.
	stale := time.Since(rec.TimestampTZ) > 3*time.Minute

	c.JSON(http.StatusOK, gin.H{"data": rec.Fields(), "stale": stale})
}

// testRequest selects which notification target to exercise.
type testRequest struct {
	Channel string `json:"channel" validate:"required,oneof=email ntfy webhook"`
	ID      int64  `json:"id"`
}

// TestNotification sends a test message through one configured channel
// target.
func (h *Handler) TestNotification(c *gin.Context) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	var result notify.Result
	switch req.Channel {
	case "email":
		cfg, err := h.db.GetMailConfig(req.ID)
		if err != nil || cfg == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Mail config not found"})
			return
		}
		result = h.email.SendTest(c.Request.Context(), cfg)

	case "ntfy":
		cfg, err := h.findNtfyConfig(req.ID)
		if err != nil || cfg == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ntfy config not found"})
			return
		}
		result = h.ntfy.SendTest(c.Request.Context(), cfg)

	case "webhook":
		cfg, err := h.findWebhookConfig(req.ID)
		if err != nil || cfg == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook config not found"})
			return
		}
		result = h.webhook.SendTest(c.Request.Context(), cfg)
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"result": result})
}

func (h *Handler) findNtfyConfig(id int64) (*models.NtfyConfig, error) {
	configs, err := h.db.GetNtfyConfigs()
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if configs[i].ID == id || (id == 0 && configs[i].IsDefault) {
			return &configs[i], nil
		}
	}
	return nil, nil
}

func (h *Handler) findWebhookConfig(id int64) (*models.WebhookConfig, error) {
	configs, err := h.db.GetWebhookConfigs()
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if configs[i].ID == id || (id == 0 && configs[i].IsDefault) {
			return &configs[i], nil
		}
	}
	return nil, nil
}

// HandleWebSocket upgrades the connection and hands it to the hub
func (h *Handler) HandleWebSocket(c *gin.Context) {
	h.hub.HandleWebSocket(c.Writer, c.Request)
}

// RegisterRoutes wires the handlers into the gin engine.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ws", h.HandleWebSocket)

	api := router.Group("/api")
	{
		api.POST("/events", h.IngestEvent)
		api.GET("/events", h.GetEvents)
		api.PUT("/events/:id/acknowledge", h.AcknowledgeEvent)
		api.GET("/data/latest", h.GetLatestData)
		api.POST("/notifications/test", h.TestNotification)
	}
}
