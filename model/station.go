package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidTLE is returned when a satellite's element set cannot be split
// into two element lines.
var ErrInvalidTLE = errors.New("invalid TLE")

// GroundStation is a fixed antenna site. It is read-only to the scheduler.
type GroundStation struct {
	ID   uuid.UUID
	Name string

	// Geodetic position: degrees and metres above the WGS-84 ellipsoid.
	Lat    float64
	Lon    float64
	Height float64

	// Mask is the minimum elevation (degrees) for a usable pass.
	Mask float64

	// Capacity ratings (informational).
	Uplink   float64
	Downlink float64
	Science  float64
}

// Satellite is a tracked spacecraft.
type Satellite struct {
	ID   uuid.UUID
	Name string

	// TLE holds an optional name line followed by the two element lines,
	// separated by newlines.
	TLE string

	Uplink    float64
	Telemetry float64
	Science   float64
	Priority  int
}

// ElementLines splits TLE into its two element lines, discarding the
// optional leading name line and blank lines.
func (s Satellite) ElementLines() (line1, line2 string, err error) {
	var lines []string
	for _, l := range strings.Split(s.TLE, "\n") {
		l = strings.TrimRight(l, "\r ")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	switch len(lines) {
	case 2:
		return lines[0], lines[1], nil
	case 3:
		return lines[1], lines[2], nil
	default:
		return "", "", fmt.Errorf("%w: satellite %q has %d non-empty lines, want 2 or 3", ErrInvalidTLE, s.Name, len(lines))
	}
}

// ExclusionCone forbids booking SatelliteID at GroundStationID while the
// interfering satellite appears within AngleLimit degrees of it.
type ExclusionCone struct {
	ID                   uuid.UUID
	Mission              string
	AngleLimit           float64
	InterferingSatellite uuid.UUID
	SatelliteID          uuid.UUID
	GroundStationID      uuid.UUID
}
