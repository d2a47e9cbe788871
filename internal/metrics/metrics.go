// Package metrics holds the domain counters shared by the managers.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ReservationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservations_created_total",
		Help: "Total number of reservations created",
	})
	ReservationsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservations_cancelled_total",
		Help: "Total number of reservations cancelled by riders",
	})
	ReservationsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservations_expired_total",
		Help: "Total number of reservations that expired unclaimed",
	})
	TripsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trips_started_total",
		Help: "Total number of bike unlocks",
	})
	TripsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trips_completed_total",
		Help: "Total number of bike returns",
	})
	StationsEmptied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stations_emptied_total",
		Help: "Times a station's last bike was rented (rebalance signal)",
	})
)

func Register(reg *prometheus.Registry) {
	reg.MustRegister(
		ReservationsCreated,
		ReservationsCancelled,
		ReservationsExpired,
		TripsStarted,
		TripsCompleted,
		StationsEmptied,
	)
}
