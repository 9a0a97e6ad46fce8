package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGreatCircleKm(t *testing.T) {
	newYork := location{Lat: 40.7, Lon: -74.0}
	london := location{Lat: 51.5, Lon: -0.1}
	sydney := location{Lat: -33.9, Lon: 151.2}

	assert.InDelta(t, 0.0, greatCircleKm(newYork, newYork), 1e-9)

	// Known distances, within a couple percent.
	assert.InDelta(t, 5570, greatCircleKm(newYork, london), 100)
	assert.InDelta(t, 16990, greatCircleKm(london, sydney), 300)

	// Symmetric.
	assert.InDelta(t, greatCircleKm(newYork, sydney), greatCircleKm(sydney, newYork), 1e-9)
}

func TestGreatCircleKm_Antipodal(t *testing.T) {
	a := location{Lat: 0, Lon: 0}
	b := location{Lat: 0, Lon: 180}
	// Half the Earth's circumference.
	assert.InDelta(t, 20015, greatCircleKm(a, b), 50)
}
