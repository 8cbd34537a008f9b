package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tripshare/service-carpool/internal/application"
	"github.com/tripshare/service-carpool/internal/platform/auth"
	"github.com/tripshare/service-carpool/internal/platform/middleware"
	"github.com/tripshare/service-carpool/internal/platform/response"
)

// AdminHandler handles admin HTTP requests.
type AdminHandler struct {
	bookings *application.BookingService
	sweeper  *application.Sweeper
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(bookings *application.BookingService, sweeper *application.Sweeper) *AdminHandler {
	return &AdminHandler{bookings: bookings, sweeper: sweeper}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/api/v1/admin")
	admin.Use(authMW, adminRole)
	{
		admin.GET("/bookings", h.ListBookings)
		admin.GET("/stats/bookings", h.BookingStats)
		admin.POST("/housekeeping/run", h.RunHousekeeping)
	}
}

// ListBookings handles GET /api/v1/admin/bookings.
func (h *AdminHandler) ListBookings(c *gin.Context) {
	page, limit := parsePagination(c)

	bookings, total, err := h.bookings.ListAllBookings(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, bookings, total, page, limit)
}

// BookingStats handles GET /api/v1/admin/stats/bookings.
func (h *AdminHandler) BookingStats(c *gin.Context) {
	stats, err := h.bookings.GetBookingStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}

// RunHousekeeping handles POST /api/v1/admin/housekeeping/run.
func (h *AdminHandler) RunHousekeeping(c *gin.Context) {
	result, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
