package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/invoice"

	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/dock"
	"github.com/civicmotion/bikeshare-backend/id"
	"github.com/civicmotion/bikeshare-backend/internal/middleware"
	"github.com/civicmotion/bikeshare-backend/rider"
	"github.com/civicmotion/bikeshare-backend/station"
	"github.com/civicmotion/bikeshare-backend/trip"
)

type tripResponse struct {
	ID             id.Trip     `json:"id"`
	Status         trip.Status `json:"status"`
	BikeID         id.Bike     `json:"bikeId"`
	StartStationID id.Station  `json:"startStationId"`
	EndStationID   *id.Station `json:"endStationId,omitempty"`
	StartTime      time.Time   `json:"startTime"`
	EndTime        *time.Time  `json:"endTime,omitempty"`
	BillID         *id.Bill    `json:"billId,omitempty"`
}

func toTripResponse(t trip.Trip) tripResponse {
	return tripResponse{
		ID:             t.ID,
		Status:         t.Status,
		BikeID:         t.BikeID,
		StartStationID: t.StartStationID,
		EndStationID:   t.EndStationID,
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
		BillID:         t.BillID,
	}
}

type rentRequest struct {
	BikeID    id.Bike    `json:"bikeId" binding:"required"`
	DockID    id.Dock    `json:"dockId" binding:"required"`
	StationID id.Station `json:"stationId" binding:"required"`
}

func (a *API) rentHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	rd, ok := a.currentRider(c)
	if !ok {
		return
	}

	var req rentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	t, err := a.deps.Trips.Rent(c, req.BikeID, req.DockID, rd.ID, req.StationID)
	if err != nil {
		switch {
		case errors.Is(err, bike.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Bike not found"})
		case errors.Is(err, dock.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "DOCK_NOT_FOUND", "message": "Dock not found"})
		case errors.Is(err, station.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "STATION_NOT_FOUND", "message": "Station not found"})
		case errors.Is(err, trip.ErrAlreadyRenting):
			c.JSON(http.StatusConflict, gin.H{"code": "ALREADY_RENTING", "message": "Rider already has an ongoing trip"})
		case errors.Is(err, trip.ErrBikeHeld):
			c.JSON(http.StatusConflict, gin.H{"code": "BIKE_RESERVED", "message": "Bike is held by another rider"})
		case errors.Is(err, trip.ErrNotRentable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "BIKE_NOT_RENTABLE", "message": "Bike cannot be unlocked"})
		case errors.Is(err, trip.ErrInvalidState):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "INVALID_STATE", "message": "Bike, dock and station do not match"})
		default:
			logger.ErrorContext(c, "failed to start trip", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, toTripResponse(t))
}

type returnRequest struct {
	TripID    id.Trip    `json:"tripId" binding:"required"`
	BikeID    id.Bike    `json:"bikeId" binding:"required"`
	DockID    id.Dock    `json:"dockId" binding:"required"`
	StationID id.Station `json:"stationId" binding:"required"`
}

type receiptResponse struct {
	Trip             tripResponse `json:"trip"`
	StartStationName string       `json:"startStationName"`
	EndStationName   string       `json:"endStationName"`
	DurationMinutes  int64        `json:"durationMinutes"`
	Pricing          string       `json:"pricing"`
	RegularCost      string       `json:"regularCost"`
	DiscountedCost   string       `json:"discountedCost"`
	BillStatus       string       `json:"billStatus"`
}

func (a *API) returnHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	rd, ok := a.currentRider(c)
	if !ok {
		return
	}

	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	res, err := a.deps.Trips.Return(c, req.TripID, req.BikeID, req.DockID, rd.ID, req.StationID)
	if err != nil {
		switch {
		case errors.Is(err, trip.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "TRIP_NOT_FOUND", "message": "Trip not found"})
		case errors.Is(err, dock.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "DOCK_NOT_FOUND", "message": "Dock not found"})
		case errors.Is(err, station.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "STATION_NOT_FOUND", "message": "Station not found"})
		case errors.Is(err, trip.ErrStationFull):
			c.JSON(http.StatusConflict, gin.H{"code": "STATION_FULL", "message": "Destination station is full"})
		case errors.Is(err, trip.ErrInvalidState):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "INVALID_STATE", "message": "Trip, bike and dock do not match"})
		default:
			logger.ErrorContext(c, "failed to return bike", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	a.pushInvoice(c, rd, res)

	t := res.Trip
	endTime := t.StartTime
	if t.EndTime != nil {
		endTime = *t.EndTime
	}
	c.JSON(http.StatusOK, receiptResponse{
		Trip:             toTripResponse(t),
		StartStationName: res.StartStationName,
		EndStationName:   res.EndStationName,
		DurationMinutes:  t.BilledMinutes(endTime),
		Pricing:          res.Pricing.Name(),
		RegularCost:      res.Bill.RegularCost.StringFixed(2),
		DiscountedCost:   res.Bill.DiscountedCost.StringFixed(2),
		BillStatus:       string(res.Bill.Status),
	})
}

// pushInvoice forwards the pending bill to stripe in the background.
// Billing failures never fail the return; the bill stays PENDING for a
// later retry.
func (a *API) pushInvoice(c *gin.Context, rd rider.Rider, res trip.ReturnResult) {
	if !rd.StripeID.Valid {
		return
	}
	logger := middleware.GetLogger(c)
	ctx := context.WithoutCancel(c.Request.Context())

	go func() {
		inParams := &stripe.InvoiceParams{
			Customer: stripe.String(rd.StripeID.String),
		}
		in, err := invoice.New(inParams)
		if err != nil {
			logger.Error("failed to create invoice", "bill", res.Bill.ID, "error", err)
			return
		}

		cents := res.Bill.DiscountedCost.Shift(2).IntPart()
		ilParams := &stripe.InvoiceAddLinesParams{
			Lines: []*stripe.InvoiceAddLinesLineParams{
				{
					Amount:      stripe.Int64(cents),
					Description: stripe.String(fmt.Sprintf("Trip %d - %s to %s", res.Trip.ID, res.StartStationName, res.EndStationName)),
				},
			},
		}
		if _, err := invoice.AddLines(in.ID, ilParams); err != nil {
			logger.Error("failed to add lines to invoice", "bill", res.Bill.ID, "error", err)
			return
		}

		if _, err := invoice.FinalizeInvoice(in.ID, &stripe.InvoiceFinalizeInvoiceParams{}); err != nil {
			logger.Error("failed to finalize invoice", "bill", res.Bill.ID, "error", err)
			return
		}
		if _, err := invoice.Pay(in.ID, nil); err != nil {
			logger.Error("failed to pay invoice", "bill", res.Bill.ID, "error", err)
			return
		}

		if err := a.deps.Bills.MarkPaid(ctx, res.Bill.ID); err != nil {
			logger.Error("failed to mark bill paid", "bill", res.Bill.ID, "error", err)
		}
	}()
}

func (a *API) currentTripHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	rd, ok := a.currentRider(c)
	if !ok {
		return
	}

	t, err := a.deps.Trips.CurrentForRider(c, rd.ID)
	if err != nil {
		logger.ErrorContext(c, "failed to get current trip", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if t == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, toTripResponse(*t))
}
