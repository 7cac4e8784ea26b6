package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/contact-scheduler/internal/allocator"
	"github.com/signalsfoundry/contact-scheduler/internal/service"
	"github.com/signalsfoundry/contact-scheduler/model"
)

// Durations cross the wire as whole seconds.

type requestBaseJSON struct {
	ID          uuid.UUID `json:"id,omitempty"`
	Mission     string    `json:"mission"`
	SatelliteID uuid.UUID `json:"satellite_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Priority    int       `json:"priority,omitempty"`
}

func (b requestBaseJSON) toModel() model.RequestBase {
	return model.RequestBase{
		ID:          b.ID,
		Mission:     b.Mission,
		SatelliteID: b.SatelliteID,
		StartTime:   b.StartTime.UTC(),
		EndTime:     b.EndTime.UTC(),
		Priority:    b.Priority,
	}
}

type rfRequestJSON struct {
	requestBaseJSON
	UplinkTime   int64 `json:"uplink_time"`
	DownlinkTime int64 `json:"downlink_time"`
	ScienceTime  int64 `json:"science_time"`
	MinPasses    int   `json:"min_passes"`
}

func (r rfRequestJSON) toModel() model.RFRequest {
	return model.RFRequest{
		RequestBase:  r.requestBaseJSON.toModel(),
		UplinkTime:   time.Duration(r.UplinkTime) * time.Second,
		DownlinkTime: time.Duration(r.DownlinkTime) * time.Second,
		ScienceTime:  time.Duration(r.ScienceTime) * time.Second,
		MinPasses:    r.MinPasses,
	}
}

type contactRequestJSON struct {
	requestBaseJSON
	GroundStationID uuid.UUID  `json:"ground_station_id"`
	Orbit           string     `json:"orbit,omitempty"`
	Uplink          bool       `json:"uplink"`
	Telemetry       bool       `json:"telemetry"`
	Science         bool       `json:"science"`
	AOS             *time.Time `json:"aos,omitempty"`
	RFOn            *time.Time `json:"rf_on,omitempty"`
	RFOff           *time.Time `json:"rf_off,omitempty"`
	LOS             *time.Time `json:"los,omitempty"`
	Duration        int64      `json:"duration"`
}

func (c contactRequestJSON) toModel() model.ContactRequest {
	return model.ContactRequest{
		RequestBase:     c.requestBaseJSON.toModel(),
		GroundStationID: c.GroundStationID,
		Orbit:           c.Orbit,
		Uplink:          c.Uplink,
		Telemetry:       c.Telemetry,
		Science:         c.Science,
		AOS:             deref(c.AOS),
		RFOn:            deref(c.RFOn),
		RFOff:           deref(c.RFOff),
		LOS:             deref(c.LOS),
		Duration:        time.Duration(c.Duration) * time.Second,
	}
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func ref(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// requestJSON is the response shape for both variants.
type requestJSON struct {
	Kind      model.Kind `json:"kind"`
	Scheduled bool       `json:"scheduled"`

	ID          uuid.UUID `json:"id"`
	Mission     string    `json:"mission"`
	SatelliteID uuid.UUID `json:"satellite_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Priority    int       `json:"priority"`

	GroundStationID *uuid.UUID `json:"ground_station_id,omitempty"`

	UplinkTime   *int64 `json:"uplink_time,omitempty"`
	DownlinkTime *int64 `json:"downlink_time,omitempty"`
	ScienceTime  *int64 `json:"science_time,omitempty"`
	MinPasses    int    `json:"min_passes,omitempty"`

	Orbit     string     `json:"orbit,omitempty"`
	Uplink    bool       `json:"uplink,omitempty"`
	Telemetry bool       `json:"telemetry,omitempty"`
	Science   bool       `json:"science,omitempty"`
	AOS       *time.Time `json:"aos,omitempty"`
	RFOn      *time.Time `json:"rf_on,omitempty"`
	RFOff     *time.Time `json:"rf_off,omitempty"`
	LOS       *time.Time `json:"los,omitempty"`
	Duration  *int64     `json:"duration,omitempty"`
}

func secs(d time.Duration) *int64 {
	s := int64(d / time.Second)
	return &s
}

func toRequestJSON(r model.Request) requestJSON {
	h := r.Header()
	out := requestJSON{
		Kind:        r.Kind(),
		Scheduled:   h.Scheduled,
		ID:          h.ID,
		Mission:     h.Mission,
		SatelliteID: h.SatelliteID,
		StartTime:   h.StartTime,
		EndTime:     h.EndTime,
		Priority:    h.Priority,
	}
	switch v := r.(type) {
	case model.RFRequest:
		out.GroundStationID = v.GroundStationID
		out.UplinkTime = secs(v.UplinkTime)
		out.DownlinkTime = secs(v.DownlinkTime)
		out.ScienceTime = secs(v.ScienceTime)
		out.MinPasses = v.MinPasses
	case model.ContactRequest:
		gs := v.GroundStationID
		out.GroundStationID = &gs
		out.Orbit = v.Orbit
		out.Uplink, out.Telemetry, out.Science = v.Uplink, v.Telemetry, v.Science
		out.AOS, out.RFOn, out.RFOff, out.LOS = ref(v.AOS), ref(v.RFOn), ref(v.RFOff), ref(v.LOS)
		out.Duration = secs(v.Duration)
	}
	return out
}

type bookingJSON struct {
	ID              uuid.UUID  `json:"id"`
	RequestID       uuid.UUID  `json:"request_id"`
	GroundStationID uuid.UUID  `json:"ground_station_id"`
	SatelliteID     uuid.UUID  `json:"satellite_id"`
	Mission         string     `json:"mission"`
	Kind            model.Kind `json:"kind"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

func toBookingsJSON(in []model.Booking) []bookingJSON {
	out := make([]bookingJSON, 0, len(in))
	for _, b := range in {
		out = append(out, bookingJSON{
			ID:              b.ID,
			RequestID:       b.RequestID,
			GroundStationID: b.GroundStationID,
			SatelliteID:     b.SatelliteID,
			Mission:         b.Mission,
			Kind:            b.Kind,
			StartTime:       b.Start,
			EndTime:         b.End,
			CreatedAt:       ref(b.CreatedAt),
		})
	}
	return out
}

type stateJSON struct {
	RequestID uuid.UUID     `json:"request_id"`
	Kind      model.Kind    `json:"kind"`
	Scheduled bool          `json:"scheduled"`
	Status    model.Status  `json:"status"`
	Requested int64         `json:"requested"`
	Remaining int64         `json:"remaining"`
	Bookings  []bookingJSON `json:"bookings"`
}

func toStateJSON(st model.RequestState) stateJSON {
	return stateJSON{
		RequestID: st.RequestID,
		Kind:      st.Kind,
		Scheduled: st.Scheduled,
		Status:    st.Status,
		Requested: int64(st.Requested / time.Second),
		Remaining: int64(st.Remaining / time.Second),
		Bookings:  toBookingsJSON(st.Bookings),
	}
}

type shortfallJSON struct {
	RequestID uuid.UUID  `json:"request_id"`
	Kind      model.Kind `json:"kind"`
	Remaining int64      `json:"remaining"`
	Skipped   string     `json:"skipped,omitempty"`
}

type reportJSON struct {
	PassID     uuid.UUID       `json:"pass_id"`
	Trigger    string          `json:"trigger"`
	DurationMS int64           `json:"duration_ms"`
	Bookings   int             `json:"bookings"`
	Added      int             `json:"added"`
	Removed    int             `json:"removed"`
	Kept       int             `json:"kept"`
	Scheduled  []uuid.UUID     `json:"scheduled"`
	Shortfalls []shortfallJSON `json:"shortfalls"`
}

func toReportJSON(rep *service.Report) *reportJSON {
	if rep == nil {
		return nil
	}
	out := &reportJSON{
		PassID:     rep.PassID,
		Trigger:    rep.Trigger,
		DurationMS: rep.Duration.Milliseconds(),
		Added:      len(rep.Diff.Added),
		Removed:    len(rep.Diff.Removed),
		Kept:       len(rep.Diff.Kept),
		Scheduled:  []uuid.UUID{},
		Shortfalls: []shortfallJSON{},
	}
	if rep.Plan != nil {
		out.Bookings = len(rep.Plan.Bookings)
		out.Scheduled = append(out.Scheduled, rep.Plan.ScheduledIDs()...)
		for _, res := range rep.Plan.Shortfalls() {
			out.Shortfalls = append(out.Shortfalls, toShortfallJSON(res))
		}
	}
	return out
}

func toShortfallJSON(res allocator.Result) shortfallJSON {
	return shortfallJSON{
		RequestID: res.RequestID,
		Kind:      res.Kind,
		Remaining: int64(res.Remaining / time.Second),
		Skipped:   res.Skipped,
	}
}

type submitResponse struct {
	Request requestJSON `json:"request"`
	Report  *reportJSON `json:"report,omitempty"`
	// Error is set when the request was stored but the pass that should
	// place it failed.
	Error string `json:"error,omitempty"`
}

type stationJSON struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Height   float64   `json:"height"`
	Mask     float64   `json:"mask"`
	Uplink   float64   `json:"uplink"`
	Downlink float64   `json:"downlink"`
	Science  float64   `json:"science"`
}

func (s stationJSON) toModel() model.GroundStation {
	return model.GroundStation{
		ID: s.ID, Name: s.Name,
		Lat: s.Lat, Lon: s.Lon, Height: s.Height, Mask: s.Mask,
		Uplink: s.Uplink, Downlink: s.Downlink, Science: s.Science,
	}
}

func fromStation(gs model.GroundStation) stationJSON {
	return stationJSON{
		ID: gs.ID, Name: gs.Name,
		Lat: gs.Lat, Lon: gs.Lon, Height: gs.Height, Mask: gs.Mask,
		Uplink: gs.Uplink, Downlink: gs.Downlink, Science: gs.Science,
	}
}

func (s stationJSON) validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: station name is required", model.ErrInvalidRequest)
	case s.Lat < -90 || s.Lat > 90:
		return fmt.Errorf("%w: lat %v out of range", model.ErrInvalidRequest, s.Lat)
	case s.Lon < -180 || s.Lon > 180:
		return fmt.Errorf("%w: lon %v out of range", model.ErrInvalidRequest, s.Lon)
	case s.Mask < 0 || s.Mask >= 90:
		return fmt.Errorf("%w: mask %v out of range", model.ErrInvalidRequest, s.Mask)
	}
	return nil
}

type satelliteJSON struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	TLE       string    `json:"tle"`
	Uplink    float64   `json:"uplink"`
	Telemetry float64   `json:"telemetry"`
	Science   float64   `json:"science"`
	Priority  int       `json:"priority"`
}

func (s satelliteJSON) toModel() model.Satellite {
	return model.Satellite{
		ID: s.ID, Name: s.Name, TLE: s.TLE,
		Uplink: s.Uplink, Telemetry: s.Telemetry, Science: s.Science, Priority: s.Priority,
	}
}

func fromSatellite(s model.Satellite) satelliteJSON {
	return satelliteJSON{
		ID: s.ID, Name: s.Name, TLE: s.TLE,
		Uplink: s.Uplink, Telemetry: s.Telemetry, Science: s.Science, Priority: s.Priority,
	}
}

type coneJSON struct {
	ID                   uuid.UUID `json:"id"`
	Mission              string    `json:"mission"`
	AngleLimit           float64   `json:"angle_limit"`
	InterferingSatellite uuid.UUID `json:"interfering_satellite"`
	SatelliteID          uuid.UUID `json:"satellite_id"`
	GroundStationID      uuid.UUID `json:"ground_station_id"`
}

func (c coneJSON) toModel() model.ExclusionCone {
	return model.ExclusionCone{
		ID: c.ID, Mission: c.Mission, AngleLimit: c.AngleLimit,
		InterferingSatellite: c.InterferingSatellite,
		SatelliteID:          c.SatelliteID,
		GroundStationID:      c.GroundStationID,
	}
}

func fromCone(c model.ExclusionCone) coneJSON {
	return coneJSON{
		ID: c.ID, Mission: c.Mission, AngleLimit: c.AngleLimit,
		InterferingSatellite: c.InterferingSatellite,
		SatelliteID:          c.SatelliteID,
		GroundStationID:      c.GroundStationID,
	}
}
