package availability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientQueryBusyParsesResponse(t *testing.T) {
	var gotPath, gotStart, gotEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotStart = r.URL.Query().Get("start_time")
		gotEnd = r.URL.Query().Get("end_time")
		_ = json.NewEncoder(w).Encode(BusyTimesResponse{BusyTimes: []BusyTimeJSON{
			{StartTime: "2025-01-21T10:00:00", EndTime: "2025-01-21T10:15:00", State: "both_busy", Mission: "SCISAT"},
			{StartTime: "2025-01-21T10:20:00Z", EndTime: "2025-01-21T10:25:00Z", State: "free"},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithHTTPClient(srv.Client()))
	busy, err := c.QueryBusy(context.Background(), "Prince Albert", span(0, 60).Start, span(0, 60).End)
	if err != nil {
		t.Fatalf("QueryBusy error: %v", err)
	}
	if gotPath != "/Prince Albert/query_busy_times/" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotStart != "2025-01-21T10:00:00" || gotEnd != "2025-01-21T11:00:00" {
		t.Fatalf("query window = %q..%q", gotStart, gotEnd)
	}
	if len(busy) != 1 || !busy[0].Equal(span(0, 15)) {
		t.Fatalf("QueryBusy = %v, want only the busy window", busy)
	}
}

func TestClientMapsFailuresToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if _, err := c.QueryBusy(context.Background(), "gs", span(0, 1).Start, span(0, 1).End); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("QueryBusy on 500 error = %v, want ErrUnavailable", err)
	}

	dead := NewClient("http://127.0.0.1:1", WithTimeout(200*time.Millisecond))
	if _, err := dead.QueryBusy(context.Background(), "gs", span(0, 1).Start, span(0, 1).End); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("QueryBusy on refused connection error = %v, want ErrUnavailable", err)
	}
}

func TestClientTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithTimeout(50*time.Millisecond))
	if _, err := c.QueryBusy(context.Background(), "gs", span(0, 1).Start, span(0, 1).End); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("QueryBusy after timeout error = %v, want ErrUnavailable", err)
	}
}

func TestClientRejectsMalformedBusyTimes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"busy_times":[{"start_time":"soon","end_time":"later","state":"both_busy"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if _, err := c.QueryBusy(context.Background(), "gs", span(0, 1).Start, span(0, 1).End); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("QueryBusy on bad payload error = %v, want ErrUnavailable", err)
	}
}

func TestClientReserveSendsPayloadAndMapsConflict(t *testing.T) {
	var got SchedulePassRequest
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Inuvik NorthWest/schedule_pass/" {
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err := c.Reserve(context.Background(), "Inuvik NorthWest", span(0, 15), StateBothBusy, "SCISAT"); err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if got.StartTime != "2025-01-21T10:00:00Z" || got.EndTime != "2025-01-21T10:15:00Z" || got.State != "both_busy" || got.Mission != "SCISAT" {
		t.Fatalf("payload = %+v", got)
	}

	status = http.StatusConflict
	if err := c.Reserve(context.Background(), "Inuvik NorthWest", span(0, 15), StateBothBusy, "SCISAT"); !errors.Is(err, ErrConflict) {
		t.Fatalf("Reserve on 409 error = %v, want ErrConflict", err)
	}
}
