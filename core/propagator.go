package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// ErrPropagation is returned when SGP4 produces an unusable state vector.
var ErrPropagation = errors.New("propagation failed")

// Propagator computes ECEF positions for one satellite with SGP4.
type Propagator struct {
	sat  satellite.Satellite
	name string
}

// NewPropagator parses the satellite's TLE. Lines are checked before they
// reach go-satellite, which exits the process on malformed input.
func NewPropagator(s model.Satellite) (*Propagator, error) {
	line1, line2, err := s.ElementLines()
	if err != nil {
		return nil, err
	}
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("%w: satellite %q: %v", model.ErrInvalidTLE, s.Name, err)
	}

	sat := satellite.TLEToSat(strings.TrimSpace(line1), strings.TrimSpace(line2), satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: satellite %q: sgp4 init code=%d %s", model.ErrInvalidTLE, s.Name, sat.Error, sat.ErrorStr)
	}
	return &Propagator{sat: sat, name: s.Name}, nil
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// PositionECEF propagates to t (whole-second resolution) and returns the
// earth-fixed position in kilometres.
func (p *Propagator) PositionECEF(t time.Time) (Vec3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	if math.IsNaN(posECI.X) || math.IsNaN(posECI.Y) || math.IsNaN(posECI.Z) ||
		math.IsInf(posECI.X, 0) || math.IsInf(posECI.Y, 0) || math.IsInf(posECI.Z, 0) {
		return Vec3{}, fmt.Errorf("%w: satellite %q at %s: output is NaN/Inf", ErrPropagation, p.name, t.Format(time.RFC3339))
	}
	if mag := math.Sqrt(posECI.X*posECI.X + posECI.Y*posECI.Y + posECI.Z*posECI.Z); mag < 6200.0 || mag > 50000.0 {
		return Vec3{}, fmt.Errorf("%w: satellite %q at %s: position magnitude %.1f km", ErrPropagation, p.name, t.Format(time.RFC3339), mag)
	}

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	return Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}, nil
}

// LookFrom returns the look angles from obs to the satellite at t.
func (p *Propagator) LookFrom(obs Observer, t time.Time) (LookAngles, Vec3, error) {
	pos, err := p.PositionECEF(t)
	if err != nil {
		return LookAngles{}, Vec3{}, err
	}
	return obs.Look(pos), pos, nil
}
