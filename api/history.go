package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicmotion/bikeshare-backend/internal/middleware"
)

func (a *API) tripHistoryHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	rd, ok := a.currentRider(c)
	if !ok {
		return
	}

	trips, err := a.deps.TripHistory.ListByRider(c, rd.ID)
	if err != nil {
		logger.ErrorContext(c, "failed to list trips", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]tripResponse, 0, len(trips))
	for _, t := range trips {
		responses = append(responses, toTripResponse(t))
	}
	c.JSON(http.StatusOK, responses)
}

func (a *API) reservationHistoryHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	rd, ok := a.currentRider(c)
	if !ok {
		return
	}

	reservations, err := a.deps.ReservationHistory.ListByRider(c, rd.ID)
	if err != nil {
		logger.ErrorContext(c, "failed to list reservations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]reservationResponse, 0, len(reservations))
	for _, res := range reservations {
		responses = append(responses, toReservationResponse(res))
	}
	c.JSON(http.StatusOK, responses)
}
