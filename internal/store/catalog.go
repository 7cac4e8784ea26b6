package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/signalsfoundry/contact-scheduler/model"
)

func translate(what string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// CreateStation adds a ground station. Stations are listed, and therefore
// tried by the allocator, in creation order.
func (s *Store) CreateStation(ctx context.Context, gs model.GroundStation) error {
	if gs.ID == uuid.Nil {
		return fmt.Errorf("%w: station id is required", model.ErrInvalidRequest)
	}
	if gs.Name == "" {
		return fmt.Errorf("%w: station name is required", model.ErrInvalidRequest)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&stationRecord{}).Where("id = ? OR name = ?", gs.ID.String(), gs.Name).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("station %q: %w", gs.Name, ErrDuplicate)
		}
		var next struct{ Max *int }
		if err := tx.Model(&stationRecord{}).Select("MAX(position) AS max").Scan(&next).Error; err != nil {
			return err
		}
		rec := toStationRecord(gs)
		if next.Max != nil {
			rec.Position = *next.Max + 1
		}
		rec.CreatedAt = s.now()
		if err := tx.Create(&rec).Error; err != nil {
			return translate(fmt.Sprintf("create station %q", gs.Name), err)
		}
		return nil
	})
}

// ListStations returns every station in creation order.
func (s *Store) ListStations(ctx context.Context) ([]model.GroundStation, error) {
	var recs []stationRecord
	if err := s.db.WithContext(ctx).Order("position, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	out := make([]model.GroundStation, 0, len(recs))
	for _, rec := range recs {
		gs, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, gs)
	}
	return out, nil
}

// GetStation loads one station.
func (s *Store) GetStation(ctx context.Context, id uuid.UUID) (model.GroundStation, error) {
	var rec stationRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.GroundStation{}, fmt.Errorf("station %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.GroundStation{}, fmt.Errorf("get station %s: %w", id, err)
	}
	return rec.toModel()
}

// CreateSatellite adds a satellite.
func (s *Store) CreateSatellite(ctx context.Context, sat model.Satellite) error {
	if sat.ID == uuid.Nil {
		return fmt.Errorf("%w: satellite id is required", model.ErrInvalidRequest)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&satelliteRecord{}).Where("id = ?", sat.ID.String()).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("satellite %q: %w", sat.Name, ErrDuplicate)
		}
		rec := toSatelliteRecord(sat)
		rec.CreatedAt = s.now()
		if err := tx.Create(&rec).Error; err != nil {
			return translate(fmt.Sprintf("create satellite %q", sat.Name), err)
		}
		return nil
	})
}

// ListSatellites returns every satellite ordered by name.
func (s *Store) ListSatellites(ctx context.Context) ([]model.Satellite, error) {
	var recs []satelliteRecord
	if err := s.db.WithContext(ctx).Order("name, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list satellites: %w", err)
	}
	out := make([]model.Satellite, 0, len(recs))
	for _, rec := range recs {
		sat, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, sat)
	}
	return out, nil
}

// GetSatellite loads one satellite.
func (s *Store) GetSatellite(ctx context.Context, id uuid.UUID) (model.Satellite, error) {
	var rec satelliteRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Satellite{}, fmt.Errorf("satellite %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Satellite{}, fmt.Errorf("get satellite %s: %w", id, err)
	}
	return rec.toModel()
}

// CreateExclusionCone adds a cone. The station and both satellites must
// exist.
func (s *Store) CreateExclusionCone(ctx context.Context, cone model.ExclusionCone) error {
	if cone.ID == uuid.Nil {
		return fmt.Errorf("%w: exclusion cone id is required", model.ErrInvalidRequest)
	}
	if cone.AngleLimit <= 0 {
		return fmt.Errorf("%w: angle_limit must be positive", model.ErrInvalidRequest)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		checks := []struct {
			what  string
			model any
			id    uuid.UUID
		}{
			{"station", &stationRecord{}, cone.GroundStationID},
			{"satellite", &satelliteRecord{}, cone.SatelliteID},
			{"interfering satellite", &satelliteRecord{}, cone.InterferingSatellite},
		}
		for _, c := range checks {
			var n int64
			if err := tx.Model(c.model).Where("id = ?", c.id.String()).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: %s %s does not exist", model.ErrInvalidRequest, c.what, c.id)
			}
		}
		rec := toConeRecord(cone)
		rec.CreatedAt = s.now()
		if err := tx.Create(&rec).Error; err != nil {
			return translate("create exclusion cone", err)
		}
		return nil
	})
}

// ListExclusionCones returns the cones at stationID. uuid.Nil lists every
// cone.
func (s *Store) ListExclusionCones(ctx context.Context, stationID uuid.UUID) ([]model.ExclusionCone, error) {
	q := s.db.WithContext(ctx).Order("created_at, id")
	if stationID != uuid.Nil {
		q = q.Where("ground_station_id = ?", stationID.String())
	}
	var recs []coneRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list exclusion cones: %w", err)
	}
	out := make([]model.ExclusionCone, 0, len(recs))
	for _, rec := range recs {
		c, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// CatalogCounts reports the number of stations, satellites and cones.
func (s *Store) CatalogCounts(ctx context.Context) (stations, satellites, cones int, err error) {
	counts := make([]int64, 3)
	for i, m := range []any{&stationRecord{}, &satelliteRecord{}, &coneRecord{}} {
		if err := s.db.WithContext(ctx).Model(m).Count(&counts[i]).Error; err != nil {
			return 0, 0, 0, fmt.Errorf("count catalog: %w", err)
		}
	}
	return int(counts[0]), int(counts[1]), int(counts[2]), nil
}
