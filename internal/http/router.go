// README: HTTP route registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"glide/internal/http/handlers"
	"glide/internal/http/middleware"
	"glide/internal/infra"
	"glide/internal/modules/dispatch"
	"glide/internal/modules/location"
	"glide/internal/modules/ride"
)

func NewRouter(
	rideService *ride.Service,
	dispatchService *dispatch.Service,
	locationService *location.Service,
	geocoder handlers.Geocoder,
	verifier infra.TokenVerifier,
	log *slog.Logger,
) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rider := handlers.NewRiderHandler(rideService, dispatchService, geocoder)
	driver := handlers.NewDriverHandler(rideService, dispatchService, locationService)

	api := r.Group("/api", middleware.Auth(verifier))

	api.POST("/rides", rider.Create)
	api.GET("/rides/:id", rider.Get)
	api.GET("/rides/:id/events", rider.Events)
	api.POST("/rides/:id/cancel", rider.Cancel)
	api.POST("/rides/:id/reassign", rider.Rebind)
	api.GET("/riders/nearby-drivers", rider.NearbyDrivers)
	api.GET("/geocode", rider.Geocode)

	api.GET("/drivers/nearby-rides", driver.NearbyRides)
	api.POST("/drivers/rides/:id/accept", driver.Accept)
	api.POST("/drivers/rides/:id/decline", driver.Decline)
	api.POST("/drivers/rides/:id/start", driver.Start)
	api.POST("/drivers/rides/:id/complete", driver.Complete)
	api.PUT("/drivers/availability", driver.SetAvailability)
	api.PUT("/drivers/location", driver.UpdateLocation)

	return r
}
