package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// requestRecord is one row of the requests table. Both request variants
// share the table; Kind selects which columns are meaningful.
type requestRecord struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Kind        string `gorm:"type:varchar(16);index"`
	Mission     string `gorm:"index"`
	SatelliteID string `gorm:"type:uuid;index"`
	StartTime   time.Time
	EndTime     time.Time `gorm:"index"`
	Scheduled   bool
	Priority    int
	Status      string `gorm:"type:varchar(32)"`

	// Remaining demand after the last committed pass.
	RemainingSeconds int64

	// RF columns.
	UplinkSeconds   int64
	DownlinkSeconds int64
	ScienceSeconds  int64
	MinPasses       int

	// Contact station, or the RF station assigned by the allocator.
	GroundStationID *string `gorm:"type:uuid;index"`

	// Contact columns.
	Orbit           string
	Uplink          bool
	Telemetry       bool
	Science         bool
	AOS             *time.Time
	RFOn            *time.Time
	RFOff           *time.Time
	LOS             *time.Time
	DurationSeconds int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (requestRecord) TableName() string { return "requests" }

type bookingRecord struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	RequestID       string    `gorm:"type:uuid;index"`
	GroundStationID string    `gorm:"type:uuid;uniqueIndex:idx_booking_station_interval"`
	StartTime       time.Time `gorm:"uniqueIndex:idx_booking_station_interval"`
	EndTime         time.Time `gorm:"uniqueIndex:idx_booking_station_interval"`
	SatelliteID     string    `gorm:"type:uuid"`
	Mission         string
	Kind            string `gorm:"type:varchar(16)"`
	CreatedAt       time.Time
}

func (bookingRecord) TableName() string { return "bookings" }

type stationRecord struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	Lat       float64
	Lon       float64
	Height    float64
	Mask      float64
	Uplink    float64
	Downlink  float64
	Science   float64
	Position  int `gorm:"index"`
	CreatedAt time.Time
}

func (stationRecord) TableName() string { return "ground_stations" }

type satelliteRecord struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"index"`
	TLE       string `gorm:"type:text"`
	Uplink    float64
	Telemetry float64
	Science   float64
	Priority  int
	CreatedAt time.Time
}

func (satelliteRecord) TableName() string { return "satellites" }

type coneRecord struct {
	ID                     string `gorm:"type:uuid;primaryKey"`
	Mission                string
	AngleLimit             float64
	InterferingSatelliteID string `gorm:"type:uuid"`
	SatelliteID            string `gorm:"type:uuid;index"`
	GroundStationID        string `gorm:"type:uuid;index"`
	CreatedAt              time.Time
}

func (coneRecord) TableName() string { return "exclusion_cones" }

func seconds(d time.Duration) int64 { return int64(d / time.Second) }

func fromSeconds(s int64) time.Duration { return time.Duration(s) * time.Second }

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("stored %s %q: %w", field, raw, err)
	}
	return id, nil
}

func toRequestRecord(r model.Request) (requestRecord, error) {
	h := r.Header()
	rec := requestRecord{
		ID:               h.ID.String(),
		Kind:             string(r.Kind()),
		Mission:          h.Mission,
		SatelliteID:      h.SatelliteID.String(),
		StartTime:        h.StartTime.UTC(),
		EndTime:          h.EndTime.UTC(),
		Scheduled:        h.Scheduled,
		Priority:         h.Priority,
		Status:           string(model.StatusUnscheduled),
		RemainingSeconds: seconds(r.Demand()),
	}
	if h.Scheduled {
		rec.Status = string(model.StatusScheduled)
		rec.RemainingSeconds = 0
	}
	switch v := r.(type) {
	case model.RFRequest:
		rec.UplinkSeconds = seconds(v.UplinkTime)
		rec.DownlinkSeconds = seconds(v.DownlinkTime)
		rec.ScienceSeconds = seconds(v.ScienceTime)
		rec.MinPasses = v.MinPasses
		if v.GroundStationID != nil {
			gs := v.GroundStationID.String()
			rec.GroundStationID = &gs
		}
	case model.ContactRequest:
		gs := v.GroundStationID.String()
		rec.GroundStationID = &gs
		rec.Orbit = v.Orbit
		rec.Uplink = v.Uplink
		rec.Telemetry = v.Telemetry
		rec.Science = v.Science
		rec.AOS = optTime(v.AOS)
		rec.RFOn = optTime(v.RFOn)
		rec.RFOff = optTime(v.RFOff)
		rec.LOS = optTime(v.LOS)
		rec.DurationSeconds = seconds(v.Duration)
	default:
		return requestRecord{}, fmt.Errorf("unsupported request type %T", r)
	}
	return rec, nil
}

func (rec requestRecord) toModel() (model.Request, error) {
	id, err := parseID("request id", rec.ID)
	if err != nil {
		return nil, err
	}
	sat, err := parseID("satellite id", rec.SatelliteID)
	if err != nil {
		return nil, err
	}
	base := model.RequestBase{
		ID:          id,
		Mission:     rec.Mission,
		SatelliteID: sat,
		StartTime:   rec.StartTime.UTC(),
		EndTime:     rec.EndTime.UTC(),
		Scheduled:   rec.Scheduled,
		Priority:    rec.Priority,
	}

	switch model.Kind(rec.Kind) {
	case model.KindRF:
		r := model.RFRequest{
			RequestBase:  base,
			UplinkTime:   fromSeconds(rec.UplinkSeconds),
			DownlinkTime: fromSeconds(rec.DownlinkSeconds),
			ScienceTime:  fromSeconds(rec.ScienceSeconds),
			MinPasses:    rec.MinPasses,
		}
		if rec.GroundStationID != nil {
			gs, err := parseID("ground station id", *rec.GroundStationID)
			if err != nil {
				return nil, err
			}
			r.GroundStationID = &gs
		}
		return r, nil
	case model.KindContact:
		c := model.ContactRequest{
			RequestBase: base,
			Orbit:       rec.Orbit,
			Uplink:      rec.Uplink,
			Telemetry:   rec.Telemetry,
			Science:     rec.Science,
			AOS:         derefTime(rec.AOS),
			RFOn:        derefTime(rec.RFOn),
			RFOff:       derefTime(rec.RFOff),
			LOS:         derefTime(rec.LOS),
			Duration:    fromSeconds(rec.DurationSeconds),
		}
		if rec.GroundStationID != nil {
			gs, err := parseID("ground station id", *rec.GroundStationID)
			if err != nil {
				return nil, err
			}
			c.GroundStationID = gs
		}
		return c, nil
	default:
		return nil, fmt.Errorf("stored request %s has unknown kind %q", rec.ID, rec.Kind)
	}
}

func toBookingRecord(b model.Booking) bookingRecord {
	return bookingRecord{
		ID:              b.ID.String(),
		RequestID:       b.RequestID.String(),
		GroundStationID: b.GroundStationID.String(),
		StartTime:       b.Start.UTC(),
		EndTime:         b.End.UTC(),
		SatelliteID:     b.SatelliteID.String(),
		Mission:         b.Mission,
		Kind:            string(b.Kind),
		CreatedAt:       b.CreatedAt.UTC(),
	}
}

func (rec bookingRecord) toModel() (model.Booking, error) {
	id, err := parseID("booking id", rec.ID)
	if err != nil {
		return model.Booking{}, err
	}
	req, err := parseID("request id", rec.RequestID)
	if err != nil {
		return model.Booking{}, err
	}
	gs, err := parseID("ground station id", rec.GroundStationID)
	if err != nil {
		return model.Booking{}, err
	}
	sat, err := parseID("satellite id", rec.SatelliteID)
	if err != nil {
		return model.Booking{}, err
	}
	return model.Booking{
		ID:              id,
		RequestID:       req,
		GroundStationID: gs,
		Start:           rec.StartTime.UTC(),
		End:             rec.EndTime.UTC(),
		SatelliteID:     sat,
		Mission:         rec.Mission,
		Kind:            model.Kind(rec.Kind),
		CreatedAt:       rec.CreatedAt.UTC(),
	}, nil
}

func toStationRecord(gs model.GroundStation) stationRecord {
	return stationRecord{
		ID:       gs.ID.String(),
		Name:     gs.Name,
		Lat:      gs.Lat,
		Lon:      gs.Lon,
		Height:   gs.Height,
		Mask:     gs.Mask,
		Uplink:   gs.Uplink,
		Downlink: gs.Downlink,
		Science:  gs.Science,
	}
}

func (rec stationRecord) toModel() (model.GroundStation, error) {
	id, err := parseID("ground station id", rec.ID)
	if err != nil {
		return model.GroundStation{}, err
	}
	return model.GroundStation{
		ID:       id,
		Name:     rec.Name,
		Lat:      rec.Lat,
		Lon:      rec.Lon,
		Height:   rec.Height,
		Mask:     rec.Mask,
		Uplink:   rec.Uplink,
		Downlink: rec.Downlink,
		Science:  rec.Science,
	}, nil
}

func toSatelliteRecord(s model.Satellite) satelliteRecord {
	return satelliteRecord{
		ID:        s.ID.String(),
		Name:      s.Name,
		TLE:       s.TLE,
		Uplink:    s.Uplink,
		Telemetry: s.Telemetry,
		Science:   s.Science,
		Priority:  s.Priority,
	}
}

func (rec satelliteRecord) toModel() (model.Satellite, error) {
	id, err := parseID("satellite id", rec.ID)
	if err != nil {
		return model.Satellite{}, err
	}
	return model.Satellite{
		ID:        id,
		Name:      rec.Name,
		TLE:       rec.TLE,
		Uplink:    rec.Uplink,
		Telemetry: rec.Telemetry,
		Science:   rec.Science,
		Priority:  rec.Priority,
	}, nil
}

func toConeRecord(c model.ExclusionCone) coneRecord {
	return coneRecord{
		ID:                     c.ID.String(),
		Mission:                c.Mission,
		AngleLimit:             c.AngleLimit,
		InterferingSatelliteID: c.InterferingSatellite.String(),
		SatelliteID:            c.SatelliteID.String(),
		GroundStationID:        c.GroundStationID.String(),
	}
}

func (rec coneRecord) toModel() (model.ExclusionCone, error) {
	id, err := parseID("exclusion cone id", rec.ID)
	if err != nil {
		return model.ExclusionCone{}, err
	}
	interferer, err := parseID("interfering satellite id", rec.InterferingSatelliteID)
	if err != nil {
		return model.ExclusionCone{}, err
	}
	sat, err := parseID("satellite id", rec.SatelliteID)
	if err != nil {
		return model.ExclusionCone{}, err
	}
	gs, err := parseID("ground station id", rec.GroundStationID)
	if err != nil {
		return model.ExclusionCone{}, err
	}
	return model.ExclusionCone{
		ID:                   id,
		Mission:              rec.Mission,
		AngleLimit:           rec.AngleLimit,
		InterferingSatellite: interferer,
		SatelliteID:          sat,
		GroundStationID:      gs,
	}, nil
}
