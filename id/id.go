// Package id defines typed identifiers for every entity in the system.
// Keeping them as distinct types stops a dock id from being handed to a
// bike lookup and similar cross-entity mixups at compile time.
package id

import "strconv"

type Bike int64

type Dock int64

type Station int64

type Reservation int64

type Trip int64

type Rider int64

type Bill int64

func (i Bike) String() string        { return strconv.FormatInt(int64(i), 10) }
func (i Dock) String() string        { return strconv.FormatInt(int64(i), 10) }
func (i Station) String() string     { return strconv.FormatInt(int64(i), 10) }
func (i Reservation) String() string { return strconv.FormatInt(int64(i), 10) }
func (i Trip) String() string        { return strconv.FormatInt(int64(i), 10) }
func (i Rider) String() string       { return strconv.FormatInt(int64(i), 10) }
func (i Bill) String() string        { return strconv.FormatInt(int64(i), 10) }

// ParseBike parses a path or query parameter into a bike id.
func ParseBike(s string) (Bike, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return Bike(v), err
}

func ParseDock(s string) (Dock, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return Dock(v), err
}

func ParseStation(s string) (Station, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return Station(v), err
}

func ParseReservation(s string) (Reservation, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return Reservation(v), err
}

func ParseTrip(s string) (Trip, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return Trip(v), err
}
