package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/civicmotion/bikeshare-backend/admin"
	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/dock"
	"github.com/civicmotion/bikeshare-backend/id"
	"github.com/civicmotion/bikeshare-backend/internal/middleware"
)

const defaultEventLimit = 50

func (a *API) eventsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	limit := defaultEventLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid limit"})
			return
		}
		limit = parsed
	}

	events, err := a.deps.Events.Recent(c, limit)
	if err != nil {
		logger.ErrorContext(c, "failed to list events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (a *API) flagMaintenanceHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	bikeID, err := id.ParseBike(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid bike id"})
		return
	}

	if err := a.deps.Maintenance.Flag(c, bikeID); err != nil {
		switch {
		case errors.Is(err, bike.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Bike not found"})
		case errors.Is(err, admin.ErrInvalidState):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "INVALID_STATE", "message": "Bike must be docked and available"})
		default:
			logger.ErrorContext(c, "failed to flag bike", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "maintenance"})
}

type activateBikeRequest struct {
	DockID id.Dock `json:"dockId" binding:"required"`
}

func (a *API) activateBikeHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	bikeID, err := id.ParseBike(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid bike id"})
		return
	}

	var req activateBikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	if err := a.deps.Maintenance.Activate(c, bikeID, req.DockID); err != nil {
		switch {
		case errors.Is(err, bike.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Bike not found"})
		case errors.Is(err, dock.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "DOCK_NOT_FOUND", "message": "Dock not found"})
		case errors.Is(err, admin.ErrInvalidState):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "INVALID_STATE", "message": "Bike must be in maintenance and the dock empty"})
		default:
			logger.ErrorContext(c, "failed to activate bike", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

func (a *API) rebalanceHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	plan, err := a.deps.Rebalancer.Run(c)
	if err != nil {
		logger.ErrorContext(c, "failed to rebalance", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"placed": plan.Placed, "unplaced": plan.Unplaced})
}

func (a *API) resetHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	plan, err := a.deps.Resetter.Reset(c)
	if err != nil {
		logger.ErrorContext(c, "failed to reset system", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "placed": plan.Placed, "unplaced": plan.Unplaced})
}
