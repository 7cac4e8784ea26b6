package core

import (
	"github.com/google/uuid"

	"github.com/signalsfoundry/contact-scheduler/model"
)

var (
	scisat = model.Satellite{
		ID:   uuid.MustParse("00000000-0000-0000-0000-000000027858"),
		Name: "SCISAT 1",
		TLE: "SCISAT 1\n" +
			"1 27858U 03036A   24271.51787419  .00002340  00000+0  31635-3 0  9999\n" +
			"2 27858  73.9336 337.0907 0007403 194.1129 165.9841 14.79656508138550",
	}
	neossat = model.Satellite{
		ID:   uuid.MustParse("00000000-0000-0000-0000-000000039089"),
		Name: "NEOSSAT",
		TLE: "NEOSSAT\n" +
			"1 39089U 13009D   24271.52543360  .00000662  00000+0  24595-3 0  9997\n" +
			"2 39089  98.4054  96.2203 0010420 322.4732  37.5725 14.35304192606691",
	}
	princeAlbert = model.GroundStation{
		ID:     uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		Name:   "Prince Albert",
		Lat:    53.2124,
		Lon:    -105.934,
		Height: 490.3,
	}
)
