package domain

import (
	"fmt"
	"math"
)

// KMA short-term forecast grid parameters. The upstream API addresses data by
// integer grid cell, not by latitude/longitude, so any deviation from the
// published constants silently queries the wrong cell.
const (
	earthRadiusKm = 6371.00877 // Earth radius used by the KMA projection
	gridSpacingKm = 5.0        // cell size
	stdParallel1  = 30.0       // first standard parallel (degrees)
	stdParallel2  = 60.0       // second standard parallel (degrees)
	refLon        = 126.0      // reference meridian (degrees)
	refLat        = 38.0       // reference latitude (degrees)
	originX       = 43         // grid X of the reference point
	originY       = 136        // grid Y of the reference point
)

// Coordinate is a WGS-84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GridCell addresses a cell on the provider's 5 km Lambert conformal grid.
// It is used only as an upstream query parameter and cache key component.
type GridCell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String renders the cell in the form used inside cache keys.
func (g GridCell) String() string {
	return fmt.Sprintf("%d:%d", g.X, g.Y)
}

// lambert holds the projection terms that depend only on the grid constants.
type lambert struct {
	re     float64 // earth radius in grid units
	sn     float64 // cone constant
	sf     float64 // scale factor
	ro     float64 // projected radius at the reference latitude
	olon   float64 // reference meridian in radians
	xo, yo float64
}

var grid = newLambert()

func newLambert() lambert {
	const degrad = math.Pi / 180.0
	re := earthRadiusKm / gridSpacingKm
	slat1 := stdParallel1 * degrad
	slat2 := stdParallel2 * degrad
	olat := refLat * degrad

	sn := math.Tan(math.Pi*0.25+slat2*0.5) / math.Tan(math.Pi*0.25+slat1*0.5)
	sn = math.Log(math.Cos(slat1)/math.Cos(slat2)) / math.Log(sn)
	sf := math.Tan(math.Pi*0.25 + slat1*0.5)
	sf = math.Pow(sf, sn) * math.Cos(slat1) / sn
	ro := math.Tan(math.Pi*0.25 + olat*0.5)
	ro = re * sf / math.Pow(ro, sn)

	return lambert{
		re:   re,
		sn:   sn,
		sf:   sf,
		ro:   ro,
		olon: refLon * degrad,
		xo:   originX,
		yo:   originY,
	}
}

// Project maps a coordinate onto the KMA grid. It is a total function: every
// input produces a cell, and validating that the coordinate is sensible is the
// caller's job.
func Project(c Coordinate) GridCell {
	const degrad = math.Pi / 180.0

	ra := math.Tan(math.Pi*0.25 + c.Lat*degrad*0.5)
	ra = grid.re * grid.sf / math.Pow(ra, grid.sn)

	theta := c.Lon*degrad - grid.olon
	if theta > math.Pi {
		theta -= 2.0 * math.Pi
	}
	if theta < -math.Pi {
		theta += 2.0 * math.Pi
	}
	theta *= grid.sn

	// Round half up, matching the provider's published conversion.
	x := int(math.Floor(ra*math.Sin(theta) + grid.xo + 0.5))
	y := int(math.Floor(grid.ro - ra*math.Cos(theta) + grid.yo + 0.5))
	return GridCell{X: x, Y: y}
}
