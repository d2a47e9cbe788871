package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicmotion/bikeshare-backend/bike"
	"github.com/civicmotion/bikeshare-backend/dock"
	"github.com/civicmotion/bikeshare-backend/id"
	"github.com/civicmotion/bikeshare-backend/internal/middleware"
	"github.com/civicmotion/bikeshare-backend/station"
)

type stationResponse struct {
	ID           id.Station           `json:"id"`
	Name         string               `json:"name"`
	Status       string               `json:"status"`
	Lat          float64              `json:"latitude"`
	Lng          float64              `json:"longitude"`
	Address      string               `json:"address"`
	Capacity     int                  `json:"capacity"`
	BikesDocked  int                  `json:"bikesDocked"`
	Availability station.Availability `json:"availability"`
	Docks        []dockResponse       `json:"docks,omitempty"`
}

type dockResponse struct {
	ID     id.Dock     `json:"id"`
	Status dock.Status `json:"status"`
}

func toStationResponse(s station.Station) stationResponse {
	return stationResponse{
		ID:           s.ID,
		Name:         s.Name,
		Status:       s.Status.String(),
		Lat:          s.Position.P.X,
		Lng:          s.Position.P.Y,
		Address:      s.Address,
		Capacity:     s.Capacity,
		BikesDocked:  s.BikesDocked,
		Availability: s.Availability(),
	}
}

func (a *API) listStationsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	stations, err := a.deps.Stations.List(c)
	if err != nil {
		logger.ErrorContext(c, "failed to list stations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]stationResponse, 0, len(stations))
	for _, s := range stations {
		responses = append(responses, toStationResponse(s))
	}
	c.JSON(http.StatusOK, responses)
}

func (a *API) getStationHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	stationID, err := id.ParseStation(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid station id"})
		return
	}

	s, err := a.deps.Stations.Get(c, a.deps.DB, stationID)
	if err != nil {
		if errors.Is(err, station.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "STATION_NOT_FOUND", "message": "Station not found"})
			return
		}
		logger.ErrorContext(c, "failed to get station", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	docks, err := a.deps.Docks.ListByStation(c, a.deps.DB, stationID)
	if err != nil {
		logger.ErrorContext(c, "failed to list docks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := toStationResponse(s)
	resp.Docks = make([]dockResponse, 0, len(docks))
	for _, d := range docks {
		resp.Docks = append(resp.Docks, dockResponse{ID: d.ID, Status: d.Status})
	}
	c.JSON(http.StatusOK, resp)
}

type bikeResponse struct {
	ID                id.Bike     `json:"id"`
	DockID            *id.Dock    `json:"dockId,omitempty"`
	Status            bike.Status `json:"status"`
	Type              bike.Type   `json:"type"`
	ReservationExpiry *time.Time  `json:"reservationExpiry,omitempty"`
}

func toBikeResponse(b bike.Bike) bikeResponse {
	return bikeResponse{
		ID:                b.ID,
		DockID:            b.DockID,
		Status:            b.Status,
		Type:              b.Type,
		ReservationExpiry: b.ReservationExpiry,
	}
}

func (a *API) listBikesHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var (
		bikes []bike.Bike
		err   error
	)
	if stationStr := c.Query("station"); stationStr != "" {
		stationID, perr := id.ParseStation(stationStr)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid station id"})
			return
		}
		bikes, err = a.deps.Bikes.ListAtStation(c, stationID)
	} else {
		bikes, err = a.deps.Bikes.List(c)
	}
	if err != nil {
		logger.ErrorContext(c, "failed to list bikes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]bikeResponse, 0, len(bikes))
	for _, b := range bikes {
		responses = append(responses, toBikeResponse(b))
	}
	c.JSON(http.StatusOK, responses)
}
