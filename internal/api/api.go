// Package api exposes the scheduler over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/internal/observability"
	"github.com/signalsfoundry/contact-scheduler/internal/service"
	"github.com/signalsfoundry/contact-scheduler/model"
)

const requestIDHeader = "X-Request-ID"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Scheduler is the service surface the API drives.
type Scheduler interface {
	Submit(ctx context.Context, r model.Request) (model.Request, *service.Report, error)
	Delete(ctx context.Context, id uuid.UUID) (*service.Report, error)
	Reschedule(ctx context.Context, trigger string) (*service.Report, error)
	State(ctx context.Context, id uuid.UUID) (model.RequestState, error)
	Bookings(ctx context.Context) ([]model.Booking, error)
}

// Catalog is the writable station, satellite and cone catalog.
type Catalog interface {
	CreateStation(ctx context.Context, gs model.GroundStation) error
	ListStations(ctx context.Context) ([]model.GroundStation, error)
	CreateSatellite(ctx context.Context, sat model.Satellite) error
	ListSatellites(ctx context.Context) ([]model.Satellite, error)
	CreateExclusionCone(ctx context.Context, cone model.ExclusionCone) error
	ListExclusionCones(ctx context.Context, stationID uuid.UUID) ([]model.ExclusionCone, error)
}

// API serves the scheduler HTTP endpoints.
type API struct {
	sched   Scheduler
	catalog Catalog
	metrics *observability.ServerCollector
	log     logging.Logger
}

// New constructs an API. metrics may be nil.
func New(sched Scheduler, catalog Catalog, metrics *observability.ServerCollector, log logging.Logger) *API {
	if log == nil {
		log = logging.Noop()
	}
	return &API{sched: sched, catalog: catalog, metrics: metrics, log: log}
}

// Handler returns the full HTTP handler including tracing.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)
	r.Use(a.metrics.Middleware(routePattern))
	a.Routes(r)
	return otelhttp.NewHandler(r, "scheduler-api")
}

// Routes registers the API routes on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Post("/rf", a.handleSubmitRF)
			r.Post("/contact", a.handleSubmitContact)
			r.Get("/{requestID}", a.handleRequestState)
			r.Delete("/{requestID}", a.handleRequestDelete)
		})
		r.Get("/bookings", a.handleBookings)
		r.Post("/schedule", a.handleSchedule)

		r.Route("/stations", func(r chi.Router) {
			r.Get("/", a.handleStationsList)
			r.Post("/", a.handleStationsCreate)
			r.Get("/{stationID}/exclusion-cones", a.handleConesList)
		})
		r.Route("/satellites", func(r chi.Router) {
			r.Get("/", a.handleSatellitesList)
			r.Post("/", a.handleSatellitesCreate)
		})
		r.Route("/exclusion-cones", func(r chi.Router) {
			r.Get("/", a.handleConesList)
			r.Post("/", a.handleConesCreate)
		})
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// requestLogger attaches a request id and a request scoped logger.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(requestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, a.log.With(
			logging.String("http_method", r.Method),
			logging.String("path", r.URL.Path)))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleSubmitRF(w http.ResponseWriter, r *http.Request) {
	var in rfRequestJSON
	if !a.decode(w, r, &in) {
		return
	}
	a.submit(w, r, in.toModel())
}

func (a *API) handleSubmitContact(w http.ResponseWriter, r *http.Request) {
	var in contactRequestJSON
	if !a.decode(w, r, &in) {
		return
	}
	a.submit(w, r, in.toModel())
}

func (a *API) submit(w http.ResponseWriter, r *http.Request, req model.Request) {
	stored, report, err := a.sched.Submit(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, submitResponse{Request: toRequestJSON(stored), Report: toReportJSON(report)})
	case stored != nil:
		// Stored; the next successful pass will place it.
		a.logger(r).Warn(r.Context(), "request stored but not scheduled", logging.Err(err))
		writeJSON(w, http.StatusAccepted, submitResponse{Request: toRequestJSON(stored), Error: err.Error()})
	default:
		a.fail(w, r, err)
	}
}

func (a *API) handleRequestState(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "requestID")
	if !ok {
		return
	}
	st, err := a.sched.State(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateJSON(st))
}

func (a *API) handleRequestDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "requestID")
	if !ok {
		return
	}
	report, err := a.sched.Delete(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toReportJSON(report))
	case errors.Is(err, service.ErrPassFailed):
		a.logger(r).Warn(r.Context(), "request deleted but not rescheduled", logging.Err(err))
		writeJSON(w, http.StatusAccepted, map[string]string{"error": err.Error()})
	default:
		a.fail(w, r, err)
	}
}

func (a *API) handleBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := a.sched.Bookings(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": toBookingsJSON(bookings)})
}

func (a *API) handleSchedule(w http.ResponseWriter, r *http.Request) {
	report, err := a.sched.Reschedule(r.Context(), service.TriggerManual)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportJSON(report))
}

func (a *API) handleStationsList(w http.ResponseWriter, r *http.Request) {
	stations, err := a.catalog.ListStations(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]stationJSON, 0, len(stations))
	for _, gs := range stations {
		out = append(out, fromStation(gs))
	}
	writeJSON(w, http.StatusOK, map[string]any{"stations": out})
}

func (a *API) handleStationsCreate(w http.ResponseWriter, r *http.Request) {
	var in stationJSON
	if !a.decode(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		a.fail(w, r, err)
		return
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if err := a.catalog.CreateStation(r.Context(), in.toModel()); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (a *API) handleSatellitesList(w http.ResponseWriter, r *http.Request) {
	sats, err := a.catalog.ListSatellites(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]satelliteJSON, 0, len(sats))
	for _, s := range sats {
		out = append(out, fromSatellite(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"satellites": out})
}

func (a *API) handleSatellitesCreate(w http.ResponseWriter, r *http.Request) {
	var in satelliteJSON
	if !a.decode(w, r, &in) {
		return
	}
	sat := in.toModel()
	if sat.Name == "" {
		a.fail(w, r, fmt.Errorf("%w: satellite name is required", model.ErrInvalidRequest))
		return
	}
	if _, _, err := sat.ElementLines(); err != nil {
		a.fail(w, r, err)
		return
	}
	if sat.ID == uuid.Nil {
		sat.ID = uuid.New()
	}
	if err := a.catalog.CreateSatellite(r.Context(), sat); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromSatellite(sat))
}

func (a *API) handleConesList(w http.ResponseWriter, r *http.Request) {
	stationID := uuid.Nil
	if chi.URLParam(r, "stationID") != "" {
		id, ok := a.pathID(w, r, "stationID")
		if !ok {
			return
		}
		stationID = id
	}
	cones, err := a.catalog.ListExclusionCones(r.Context(), stationID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]coneJSON, 0, len(cones))
	for _, c := range cones {
		out = append(out, fromCone(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"exclusion_cones": out})
}

func (a *API) handleConesCreate(w http.ResponseWriter, r *http.Request) {
	var in coneJSON
	if !a.decode(w, r, &in) {
		return
	}
	cone := in.toModel()
	if cone.ID == uuid.Nil {
		cone.ID = uuid.New()
	}
	if err := a.catalog.CreateExclusionCone(r.Context(), cone); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromCone(cone))
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", param))
		return uuid.Nil, false
	}
	return id, true
}

func (a *API) logger(r *http.Request) logging.Logger {
	return logging.FromContext(r.Context(), a.log)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		a.logger(r).Error(r.Context(), "request failed", logging.Err(err), logging.Int("status", status))
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
