package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/id"
	"github.com/civicmotion/bikeshare-backend/internal/middleware"
	"github.com/civicmotion/bikeshare-backend/reservation"
	"github.com/civicmotion/bikeshare-backend/station"
)

type reservationResponse struct {
	ID         id.Reservation     `json:"id"`
	BikeID     id.Bike            `json:"bikeId"`
	StationID  id.Station         `json:"stationId"`
	ReservedAt time.Time          `json:"reservedAt"`
	ExpiresAt  time.Time          `json:"expiresAt"`
	Status     reservation.Status `json:"status"`
}

func toReservationResponse(res reservation.Reservation) reservationResponse {
	return reservationResponse{
		ID:         res.ID,
		BikeID:     res.BikeID,
		StationID:  res.StationID,
		ReservedAt: res.ReservedAt,
		ExpiresAt:  res.ExpiresAt,
		Status:     res.Status,
	}
}

type createReservationRequest struct {
	BikeID    id.Bike    `json:"bikeId" binding:"required"`
	StationID id.Station `json:"stationId" binding:"required"`
}

func (a *API) createReservationHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	rd, ok := a.currentRider(c)
	if !ok {
		return
	}

	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	res, err := a.deps.Reservations.Create(c, req.BikeID, req.StationID, rd.ID)
	if err != nil {
		switch {
		case errors.Is(err, bike.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Bike not found"})
		case errors.Is(err, station.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "STATION_NOT_FOUND", "message": "Station not found"})
		case errors.Is(err, reservation.ErrAlreadyReserved):
			c.JSON(http.StatusConflict, gin.H{"code": "ALREADY_RESERVED", "message": "Rider already has an active reservation"})
		case errors.Is(err, reservation.ErrBikeUnavailable):
			c.JSON(http.StatusConflict, gin.H{"code": "BIKE_UNAVAILABLE", "message": "Bike is not available for reservation"})
		default:
			logger.ErrorContext(c, "failed to create reservation", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (a *API) currentReservationHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	rd, ok := a.currentRider(c)
	if !ok {
		return
	}

	res, err := a.deps.Reservations.ActiveForRider(c, rd.ID)
	if err != nil {
		logger.ErrorContext(c, "failed to get current reservation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if res == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(*res))
}

func (a *API) cancelReservationHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	rd, ok := a.currentRider(c)
	if !ok {
		return
	}

	resID, err := id.ParseReservation(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid reservation id"})
		return
	}

	// Riders may only cancel their own reservations.
	res, err := a.deps.ReservationHistory.Get(c, a.deps.DB, resID)
	if err != nil {
		if errors.Is(err, reservation.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "RESERVATION_NOT_FOUND", "message": "Reservation not found"})
			return
		}
		logger.ErrorContext(c, "failed to get reservation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if res.RiderID != rd.ID {
		c.JSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Not authorized to cancel this reservation"})
		return
	}

	if err := a.deps.Reservations.Cancel(c, resID); err != nil {
		logger.ErrorContext(c, "failed to cancel reservation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
