package kb

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// ErrNotFound is returned when a catalog lookup misses.
var ErrNotFound = model.ErrNotFound

// Catalog is an in-memory, thread-safe store for ground stations,
// satellites and exclusion cones. Stations are listed in insertion order,
// which is the order the allocator tries them in.
type Catalog struct {
	mu sync.RWMutex

	stations     map[uuid.UUID]model.GroundStation
	stationOrder []uuid.UUID
	satellites   map[uuid.UUID]model.Satellite
	cones        map[uuid.UUID]model.ExclusionCone
	coneOrder    []uuid.UUID
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		stations:   make(map[uuid.UUID]model.GroundStation),
		satellites: make(map[uuid.UUID]model.Satellite),
		cones:      make(map[uuid.UUID]model.ExclusionCone),
	}
}

// AddStation adds a ground station. It returns an error if the ID or name
// is already present.
func (c *Catalog) AddStation(gs model.GroundStation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.stations[gs.ID]; exists {
		return fmt.Errorf("station with ID %q already exists", gs.ID)
	}
	for _, existing := range c.stations {
		if existing.Name == gs.Name {
			return fmt.Errorf("station with name %q already exists", gs.Name)
		}
	}
	c.stations[gs.ID] = gs
	c.stationOrder = append(c.stationOrder, gs.ID)
	return nil
}

// AddSatellite adds a satellite. It returns an error if the ID exists.
func (c *Catalog) AddSatellite(s model.Satellite) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.satellites[s.ID]; exists {
		return fmt.Errorf("satellite with ID %q already exists", s.ID)
	}
	c.satellites[s.ID] = s
	return nil
}

// AddExclusionCone adds a cone. Both satellites and the station must
// already be present.
func (c *Catalog) AddExclusionCone(cone model.ExclusionCone) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cones[cone.ID]; exists {
		return fmt.Errorf("exclusion cone with ID %q already exists", cone.ID)
	}
	if _, ok := c.stations[cone.GroundStationID]; !ok {
		return fmt.Errorf("station with ID %q not found for exclusion cone", cone.GroundStationID)
	}
	for _, id := range []uuid.UUID{cone.SatelliteID, cone.InterferingSatellite} {
		if _, ok := c.satellites[id]; !ok {
			return fmt.Errorf("satellite with ID %q not found for exclusion cone", id)
		}
	}
	c.cones[cone.ID] = cone
	c.coneOrder = append(c.coneOrder, cone.ID)
	return nil
}

// ListStations returns a snapshot of all stations in catalog order.
func (c *Catalog) ListStations(context.Context) ([]model.GroundStation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]model.GroundStation, 0, len(c.stationOrder))
	for _, id := range c.stationOrder {
		res = append(res, c.stations[id])
	}
	return res, nil
}

// GetSatellite returns the satellite with the given ID.
func (c *Catalog) GetSatellite(_ context.Context, id uuid.UUID) (model.Satellite, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.satellites[id]
	if !ok {
		return model.Satellite{}, fmt.Errorf("satellite %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// ListExclusionCones returns the cones configured at stationID.
func (c *Catalog) ListExclusionCones(_ context.Context, stationID uuid.UUID) ([]model.ExclusionCone, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var res []model.ExclusionCone
	for _, id := range c.coneOrder {
		if cone := c.cones[id]; cone.GroundStationID == stationID {
			res = append(res, cone)
		}
	}
	return res, nil
}
