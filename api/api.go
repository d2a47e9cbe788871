// Package api exposes the HTTP surface: thin gin handlers over the
// reservation, trip, loyalty and operator services.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicmotion/bikeshare-backend/admin"
	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/bill"
	"github.com/civicmotion/bikeshare-backend/dock"
	"github.com/civicmotion/bikeshare-backend/internal/auth0"
	"github.com/civicmotion/bikeshare-backend/internal/database"
	"github.com/civicmotion/bikeshare-backend/internal/middleware"
	"github.com/civicmotion/bikeshare-backend/internal/o11y"
	"github.com/civicmotion/bikeshare-backend/loyalty"
	"github.com/civicmotion/bikeshare-backend/notify"
	"github.com/civicmotion/bikeshare-backend/rebalance"
	"github.com/civicmotion/bikeshare-backend/reservation"
	"github.com/civicmotion/bikeshare-backend/rider"
	"github.com/civicmotion/bikeshare-backend/station"
	"github.com/civicmotion/bikeshare-backend/trip"
)

// Deps bundles the services and repositories the handlers call into.
type Deps struct {
	DB *database.DB

	Stations *station.Repository
	Docks    *dock.Repository
	Bikes    *bike.Repository
	Riders   *rider.Repository
	Bills    *bill.Repository

	Reservations *reservation.Manager
	Trips        *trip.Manager
	Loyalty      *loyalty.Evaluator
	Resetter     *admin.Resetter
	Maintenance  *admin.Maintenance
	Rebalancer   *rebalance.Runner

	ReservationHistory *reservation.Repository
	TripHistory        *trip.Repository

	Events   *notify.EventLog
	Hub      *notify.Hub
	Profiles auth0.Client
}

// Config carries the deployment knobs the router needs.
type Config struct {
	Auth0Domain string
	Audience    string

	MetricsUsername string
	MetricsPassword string

	// Auth overrides the JWT middleware. Test setups inject a fake here.
	Auth gin.HandlerFunc
}

type API struct {
	r    *gin.Engine
	deps Deps
	obs  *o11y.Observability
}

func New(deps Deps, obs *o11y.Observability, cfg Config) (*API, error) {
	a := &API{
		r:    gin.New(),
		deps: deps,
		obs:  obs,
	}

	a.r.Use(gin.Recovery())
	a.r.Use(middleware.Tracing())
	a.r.Use(middleware.Logging(obs.Logger))
	a.r.Use(middleware.Metrics(obs.Registry))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	metricsHandler := gin.WrapH(promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{}))
	if cfg.MetricsUsername != "" {
		a.r.GET("/metrics", gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}), metricsHandler)
	} else {
		a.r.GET("/metrics", metricsHandler)
	}

	auth := cfg.Auth
	if auth == nil {
		var err error
		auth, err = middleware.EnsureValidToken(cfg.Auth0Domain, cfg.Audience)
		if err != nil {
			return nil, err
		}
	}

	protected := a.r.Group("/", auth)
	{
		protected.GET("/stations", a.listStationsHandler)
		protected.GET("/stations/:id", a.getStationHandler)
		protected.GET("/bikes", a.listBikesHandler)

		protected.POST("/reservations", a.createReservationHandler)
		protected.GET("/reservations/current", a.currentReservationHandler)
		protected.POST("/reservations/:id/cancel", a.cancelReservationHandler)

		protected.POST("/trips/rent", a.rentHandler)
		protected.POST("/trips/return", a.returnHandler)
		protected.GET("/trips/current", a.currentTripHandler)

		protected.GET("/history/trips", a.tripHistoryHandler)
		protected.GET("/history/reservations", a.reservationHistoryHandler)

		protected.POST("/loyalty/refresh", a.refreshLoyaltyHandler)
	}

	operator := a.r.Group("/operator", auth, a.requireOperator)
	{
		operator.GET("/events", a.eventsHandler)
		operator.GET("/ws", func(c *gin.Context) {
			deps.Hub.Serve(c.Writer, c.Request)
		})
		operator.POST("/bikes/:id/maintenance", a.flagMaintenanceHandler)
		operator.POST("/bikes/:id/activate", a.activateBikeHandler)
		operator.POST("/rebalance", a.rebalanceHandler)
		operator.POST("/reset", a.resetHandler)
	}

	return a, nil
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// currentRider resolves the authenticated subject to a rider row,
// provisioning one on first sight. Profile details are pulled from the
// identity provider in the background so provisioning never blocks on it.
func (a *API) currentRider(c *gin.Context) (rider.Rider, bool) {
	logger := middleware.GetLogger(c)

	subject, ok := middleware.GetAuthSubject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return rider.Rider{}, false
	}

	rd, err := a.deps.Riders.GetByAuthSubject(c, subject)
	if errors.Is(err, rider.ErrNotFound) {
		rd, err = a.deps.Riders.Create(c, subject)
		if err == nil {
			a.syncProfile(c, rd)
		}
	}
	if err != nil {
		logger.ErrorContext(c, "failed to resolve rider", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return rider.Rider{}, false
	}
	return rd, true
}

// syncProfile fetches name/email from the userinfo endpoint using the
// caller's own access token. Best effort.
func (a *API) syncProfile(c *gin.Context, rd rider.Rider) {
	if a.deps.Profiles == nil {
		return
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		return
	}
	logger := middleware.GetLogger(c)
	ctx := context.WithoutCancel(c.Request.Context())

	go func() {
		info, err := a.deps.Profiles.GetUserInfo(ctx, token)
		if err != nil {
			logger.Warn("profile sync failed", "rider", rd.ID, "error", err)
			return
		}
		if err := a.deps.Riders.UpdateProfile(ctx, rd.ID, info.Name, info.Email); err != nil {
			logger.Warn("profile update failed", "rider", rd.ID, "error", err)
		}
	}()
}

// requireOperator gates the /operator group on the rider's role tag.
func (a *API) requireOperator(c *gin.Context) {
	rd, ok := a.currentRider(c)
	if !ok {
		c.Abort()
		return
	}
	if rd.Role != rider.RoleOperator {
		c.JSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Operator role required"})
		c.Abort()
		return
	}
	c.Next()
}
