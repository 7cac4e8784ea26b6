// Package stationsim serves the station state-machine simulator: one busy
// timeline per ground station, addressed by station name, plus a seeded
// random availability mock.
package stationsim

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signalsfoundry/contact-scheduler/internal/availability"
	"github.com/signalsfoundry/contact-scheduler/internal/logging"
	"github.com/signalsfoundry/contact-scheduler/model"
)

// Server holds the simulated station timelines.
type Server struct {
	mu        sync.Mutex
	timelines map[string]*availability.Timeline
	log       logging.Logger
}

// New returns a simulator with every station free.
func New(log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{timelines: make(map[string]*availability.Timeline), log: log}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.Routes(r)
	return r
}

// Routes mounts the simulator endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/gs/mock", s.handleMock)
	r.Route("/{station}", func(r chi.Router) {
		r.Post("/schedule_pass", s.handleSchedulePass)
		r.Post("/schedule_pass/", s.handleSchedulePass)
		r.Get("/query_busy_times", s.handleBusyTimes)
		r.Get("/query_busy_times/", s.handleBusyTimes)
		r.Get("/query_state_at/{time}", s.handleStateAt)
	})
}

// Set applies state over iv at station directly, for seeding.
func (s *Server) Set(station string, iv model.Interval, state availability.State, mission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline(station).Set(iv, state, mission)
}

// Stations lists known station names in order.
func (s *Server) Stations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.timelines))
	for name := range s.timelines {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Server) timeline(station string) *availability.Timeline {
	t, ok := s.timelines[station]
	if !ok {
		t = &availability.Timeline{}
		s.timelines[station] = t
	}
	return t
}

func stationParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "station")
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", errors.New("empty station name")
	}
	return name, nil
}

func (s *Server) handleSchedulePass(w http.ResponseWriter, r *http.Request) {
	station, err := stationParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in availability.SchedulePassRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	start, err := availability.ParseTime(in.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := availability.ParseTime(in.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := availability.ParseState(in.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	iv := model.Interval{Start: start, End: end}
	if err := s.Set(station, iv, state, in.Mission); err != nil {
		if errors.Is(err, availability.ErrConflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Info(r.Context(), "station state set",
		logging.String("station", station),
		logging.String("state", string(state)),
		logging.String("mission", in.Mission),
		logging.Time("start", start),
		logging.Time("end", end))

	writeJSON(w, http.StatusOK, availability.SchedulePassResponse{
		Station:   station,
		StartTime: start.Format(time.RFC3339),
		EndTime:   end.Format(time.RFC3339),
		State:     string(state),
		Mission:   in.Mission,
	})
}

func (s *Server) handleBusyTimes(w http.ResponseWriter, r *http.Request) {
	station, err := stationParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	start, err := availability.ParseTime(q.Get("start_time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time")
		return
	}
	end, err := availability.ParseTime(q.Get("end_time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time")
		return
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "start_time must be before end_time")
		return
	}

	s.mu.Lock()
	windows := s.timeline(station).Busy(start, end)
	s.mu.Unlock()

	resp := availability.BusyTimesResponse{BusyTimes: make([]availability.BusyTimeJSON, 0, len(windows))}
	for _, bw := range windows {
		resp.BusyTimes = append(resp.BusyTimes, bw.ToJSON())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStateAt(w http.ResponseWriter, r *http.Request) {
	station, err := stationParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, err := url.PathUnescape(chi.URLParam(r, "time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time")
		return
	}
	at, err := availability.ParseTime(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	bw := s.timeline(station).At(at)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, availability.StateResponse{State: string(bw.State), Mission: bw.Mission})
}

// MockRequest is the body of POST /gs/mock.
type MockRequest struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	DeltaMinutes int    `json:"delta_minutes"`
	Seed         *int64 `json:"seed,omitempty"`
}

// Mock returns one random availability flag per delta step between start
// and end. A fixed seed reproduces the same sequence.
func Mock(start, end time.Time, delta time.Duration, seed *int64) ([]bool, error) {
	if delta <= 0 {
		return nil, errors.New("delta must be positive")
	}
	if end.Before(start) {
		return nil, errors.New("end before start")
	}
	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewPCG(uint64(*seed), uint64(*seed)))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	out := make([]bool, int(end.Sub(start)/delta))
	for i := range out {
		out[i] = rng.IntN(2) == 0
	}
	return out, nil
}

func (s *Server) handleMock(w http.ResponseWriter, r *http.Request) {
	var in MockRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	start, err := availability.ParseTime(in.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := availability.ParseTime(in.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}
	flags, err := Mock(start, end, time.Duration(in.DeltaMinutes)*time.Minute, in.Seed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
