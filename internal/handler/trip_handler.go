package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tripshare/service-carpool/internal/application"
	"github.com/tripshare/service-carpool/internal/platform/auth"
	"github.com/tripshare/service-carpool/internal/platform/middleware"
	"github.com/tripshare/service-carpool/internal/platform/response"
)

const streamKeepAlive = 15 * time.Second

// TripHandler handles HTTP requests for trip operations.
type TripHandler struct {
	service *application.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(service *application.TripService) *TripHandler {
	return &TripHandler{service: service}
}

// RegisterRoutes registers all trip routes on the given router group.
func (h *TripHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	public := r.Group("/api/v1/trips")
	public.Use(middleware.OptionalAuthMiddleware(jwtManager))
	{
		public.GET("", h.SearchTrips)
		public.GET("/:id", h.GetTrip)
		public.GET("/:id/location/stream", h.StreamLocation)
	}

	trips := r.Group("/api/v1/trips")
	trips.Use(middleware.AuthMiddleware(jwtManager))
	{
		trips.POST("", h.CreateTrip)
		trips.POST("/:id/status", h.SetStatus)
		trips.POST("/:id/visibility", h.SetVisibility)
		trips.GET("/:id/availability", h.Availability)
		trips.POST("/:id/location", h.UpdateLocation)
		trips.GET("/:id/location/history", h.LocationHistory)
		trips.GET("/:id/etas", h.ETAs)
	}

	drivers := r.Group("/api/v1/drivers/me")
	drivers.Use(middleware.AuthMiddleware(jwtManager))
	{
		drivers.GET("/trips", h.MyTrips)
	}
}

// CreateTrip handles POST /api/v1/trips.
func (h *TripHandler) CreateTrip(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateTrip(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// SearchTrips handles GET /api/v1/trips.
func (h *TripHandler) SearchTrips(c *gin.Context) {
	page, limit := parsePagination(c)
	req := application.SearchTripsRequest{
		Query: c.Query("q"),
		Page:  page,
		Limit: limit,
	}

	var err error
	if req.DepartFrom, err = parseTimeQuery(c, "depart_from"); err != nil {
		response.BadRequest(c, "depart_from must be an RFC 3339 timestamp")
		return
	}
	if req.DepartTo, err = parseTimeQuery(c, "depart_to"); err != nil {
		response.BadRequest(c, "depart_to must be an RFC 3339 timestamp")
		return
	}
	if raw := c.Query("max_price"); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || price < 0 {
			response.BadRequest(c, "max_price must be a non-negative integer")
			return
		}
		req.MaxPerSeatPrice = &price
	}

	result, err := h.service.SearchTrips(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// MyTrips handles GET /api/v1/drivers/me/trips.
func (h *TripHandler) MyTrips(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	page, limit := parsePagination(c)
	result, err := h.service.MyTrips(c.Request.Context(), userID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetTrip handles GET /api/v1/trips/:id.
func (h *TripHandler) GetTrip(c *gin.Context) {
	tripID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid trip ID")
		return
	}
	userID, _ := middleware.GetUserID(c)

	result, err := h.service.GetTrip(c.Request.Context(), userID, tripID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// SetStatus handles POST /api/v1/trips/:id/status.
func (h *TripHandler) SetStatus(c *gin.Context) {
	tripID, userID, ok := h.tripAndUser(c)
	if !ok {
		return
	}

	var req application.SetTripStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.SetTripStatus(c.Request.Context(), userID, tripID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// SetVisibility handles POST /api/v1/trips/:id/visibility.
func (h *TripHandler) SetVisibility(c *gin.Context) {
	tripID, userID, ok := h.tripAndUser(c)
	if !ok {
		return
	}

	var body struct {
		IsPublic *bool `json:"is_public" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.SetVisibility(c.Request.Context(), userID, tripID, *body.IsPublic)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Availability handles GET /api/v1/trips/:id/availability.
func (h *TripHandler) Availability(c *gin.Context) {
	tripID, userID, ok := h.tripAndUser(c)
	if !ok {
		return
	}

	result, err := h.service.TripAvailability(c.Request.Context(), userID, tripID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// UpdateLocation handles POST /api/v1/trips/:id/location.
func (h *TripHandler) UpdateLocation(c *gin.Context) {
	tripID, userID, ok := h.tripAndUser(c)
	if !ok {
		return
	}

	var req application.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.UpdateLocation(c.Request.Context(), userID, tripID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// LocationHistory handles GET /api/v1/trips/:id/location/history.
func (h *TripHandler) LocationHistory(c *gin.Context) {
	tripID, userID, ok := h.tripAndUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "500"), 10, 64)

	result, err := h.service.LocationHistory(c.Request.Context(), userID, tripID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ETAs handles GET /api/v1/trips/:id/etas.
func (h *TripHandler) ETAs(c *gin.Context) {
	tripID, userID, ok := h.tripAndUser(c)
	if !ok {
		return
	}

	result, err := h.service.BookingETAs(c.Request.Context(), userID, tripID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// StreamLocation handles GET /api/v1/trips/:id/location/stream as
// server-sent events. Browsers pass the token as ?access_token=.
func (h *TripHandler) StreamLocation(c *gin.Context) {
	tripID, userID, ok := h.tripAndUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	latest, updates, err := h.service.StreamLocations(ctx, userID, tripID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	if latest != nil {
		c.SSEvent("location", latest)
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case u, open := <-updates:
			if !open {
				c.SSEvent("end", gin.H{"trip_id": tripID})
				return false
			}
			c.SSEvent("location", u)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}

func (h *TripHandler) tripAndUser(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tripID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid trip ID")
		return uuid.Nil, uuid.Nil, false
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	return tripID, userID, true
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
