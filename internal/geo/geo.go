// Package geo resolves donor/request distances.
package geo

import (
	"math"

	"github.com/lifelink-community/lifelink/internal/domain"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between a and b.
func HaversineKm(a, b domain.GeoPoint) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PairDistance returns the donor-to-request distance in km, or nil when it
// cannot be determined. Coordinates on both sides win; otherwise the donor's
// self-reported distance hint is used.
func PairDistance(donor *domain.Donor, req *domain.BloodRequest) *float64 {
	if donor.Location != nil && req.Location != nil {
		d := HaversineKm(*donor.Location, *req.Location)
		return &d
	}
	if donor.DistanceHintKm != nil {
		d := *donor.DistanceHintKm
		return &d
	}
	return nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
