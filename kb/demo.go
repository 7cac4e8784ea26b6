package kb

import (
	"github.com/google/uuid"

	"github.com/signalsfoundry/contact-scheduler/model"
)

// demoNamespace derives stable ids for the demo catalog so repeated seeds
// are idempotent.
var demoNamespace = uuid.MustParse("0b6f7c1e-2a4d-5c83-9e10-5d7a3f2c8b64")

func demoID(name string) uuid.UUID {
	return uuid.NewSHA1(demoNamespace, []byte(name))
}

// DemoStations returns the Canadian ground station network used for demos
// and local testing.
func DemoStations() []model.GroundStation {
	return []model.GroundStation{
		{ID: demoID("Inuvik NorthWest"), Name: "Inuvik NorthWest", Lat: 68.3195, Lon: -133.549, Height: 102.5, Mask: 5, Uplink: 1, Downlink: 1, Science: 1},
		{ID: demoID("Prince Albert"), Name: "Prince Albert", Lat: 53.2124, Lon: -105.934, Height: 490.3, Mask: 5, Uplink: 1, Downlink: 1, Science: 1},
		{ID: demoID("Gatineau Quebec"), Name: "Gatineau Quebec", Lat: 45.5846, Lon: -75.8083, Height: 240.1, Mask: 5, Uplink: 1, Downlink: 1, Science: 1},
	}
}

// DemoSatellites returns SCISAT 1 and NEOSSAT with a recent element set.
func DemoSatellites() []model.Satellite {
	return []model.Satellite{
		{
			ID:   demoID("SCISAT 1"),
			Name: "SCISAT 1",
			TLE: "SCISAT 1\n" +
				"1 27858U 03036A   24271.51787419  .00002340  00000+0  31635-3 0  9999\n" +
				"2 27858  73.9336 337.0907 0007403 194.1129 165.9841 14.79656508138550",
			Uplink: 1, Telemetry: 1, Science: 1, Priority: 1,
		},
		{
			ID:   demoID("NEOSSAT"),
			Name: "NEOSSAT",
			TLE: "NEOSSAT\n" +
				"1 39089U 13009D   24271.52543360  .00000662  00000+0  24595-3 0  9997\n" +
				"2 39089  98.4054  96.2203 0010420 322.4732  37.5725 14.35304192606691",
			Uplink: 1, Telemetry: 1, Science: 1,
		},
	}
}

// NewDemoCatalog returns a catalog preloaded with DemoStations and
// DemoSatellites.
func NewDemoCatalog() *Catalog {
	c := NewCatalog()
	for _, gs := range DemoStations() {
		_ = c.AddStation(gs)
	}
	for _, s := range DemoSatellites() {
		_ = c.AddSatellite(s)
	}
	return c
}
