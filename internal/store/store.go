// Package store persists requests, bookings and the station catalog with
// gorm. Any of the sqlite, postgres and mysql dialectors may back it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/signalsfoundry/contact-scheduler/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = model.ErrNotFound
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("already exists")
)

// Backend names a supported database.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMySQL    Backend = "mysql"
)

// Config selects the database.
type Config struct {
	Backend Backend `yaml:"backend"`
	DSN     string  `yaml:"dsn"`
	// Debug logs every statement.
	Debug bool `yaml:"debug"`
}

// Store is the gorm-backed request, booking and catalog store.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Connect opens the configured database.
func Connect(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Backend {
	case BackendPostgres:
		dialector = postgres.Open(cfg.DSN)
	case BackendMySQL:
		dialector = mysql.Open(cfg.DSN)
	case BackendSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database backend: %s", cfg.Backend)
	}

	mode := logger.Warn
	if cfg.Debug {
		mode = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(mode),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Backend, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Backend == BackendSQLite || cfg.Backend == "" {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return New(db), nil
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&requestRecord{},
		&bookingRecord{},
		&stationRecord{},
		&satelliteRecord{},
		&coneRecord{},
	)
}

// Close releases database resources.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRequest inserts r, or replaces the stored request with the same id.
func (s *Store) SaveRequest(ctx context.Context, r model.Request) error {
	rec, err := toRequestRecord(r)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing requestRecord
		err := tx.Select("id", "created_at").First(&existing, "id = ?", rec.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec.CreatedAt = s.now()
			return tx.Create(&rec).Error
		case err != nil:
			return err
		}
		rec.CreatedAt = existing.CreatedAt
		return tx.Save(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("save request %s: %w", rec.ID, err)
	}
	return nil
}

// GetRequest loads one request.
func (s *Store) GetRequest(ctx context.Context, id uuid.UUID) (model.Request, error) {
	var rec requestRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return rec.toModel()
}

// ListPending returns the whole backlog in submission order. Every stored
// request takes part in a full reschedule, including those already
// scheduled.
func (s *Store) ListPending(ctx context.Context) ([]model.Request, error) {
	var recs []requestRecord
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	out := make([]model.Request, 0, len(recs))
	for _, rec := range recs {
		r, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteRequest removes a request and every booking that references it in
// one transaction. The removed bookings are returned.
func (s *Store) DeleteRequest(ctx context.Context, id uuid.UUID) ([]model.Booking, error) {
	var removed []model.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&requestRecord{}, "id = ?", id.String())
		if res.Error != nil {
			return fmt.Errorf("delete request %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("request %s: %w", id, ErrNotFound)
		}
		var recs []bookingRecord
		if err := tx.Where("request_id = ?", id.String()).Order("start_time").Find(&recs).Error; err != nil {
			return err
		}
		for _, rec := range recs {
			b, err := rec.toModel()
			if err != nil {
				return err
			}
			removed = append(removed, b)
		}
		return tx.Where("request_id = ?", id.String()).Delete(&bookingRecord{}).Error
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// ListBookings returns every committed booking ordered by start time.
func (s *Store) ListBookings(ctx context.Context) ([]model.Booking, error) {
	return s.bookings(s.db.WithContext(ctx))
}

// BookingsForRequest returns the bookings of one request.
func (s *Store) BookingsForRequest(ctx context.Context, id uuid.UUID) ([]model.Booking, error) {
	return s.bookings(s.db.WithContext(ctx).Where("request_id = ?", id.String()))
}

func (s *Store) bookings(q *gorm.DB) ([]model.Booking, error) {
	var recs []bookingRecord
	if err := q.Order("start_time, ground_station_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]model.Booking, 0, len(recs))
	for _, rec := range recs {
		b, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// RequestUpdate is the outcome of a pass for one stored request.
type RequestUpdate struct {
	Request   model.Request
	Remaining time.Duration
	Status    model.Status
}

// Diff describes how a commit changed the booking set.
type Diff struct {
	Added   []model.Booking
	Removed []model.Booking
	Kept    []model.Booking
}

// CommitHook runs inside the commit transaction after the new booking set
// is written. Returning an error rolls the commit back.
type CommitHook func(ctx context.Context, diff Diff) error

// CommitPlan replaces the whole booking set and the scheduling columns of
// every updated request in a single transaction. Bookings whose id is
// already stored keep their creation time.
func (s *Store) CommitPlan(ctx context.Context, updates []RequestUpdate, bookings []model.Booking, hook CommitHook) (Diff, error) {
	var diff Diff
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []bookingRecord
		if err := tx.Find(&existing).Error; err != nil {
			return fmt.Errorf("load bookings: %w", err)
		}
		previous := make(map[string]bookingRecord, len(existing))
		for _, rec := range existing {
			previous[rec.ID] = rec
		}

		now := s.now()
		next := make([]bookingRecord, 0, len(bookings))
		seen := make(map[string]bool, len(bookings))
		for _, b := range bookings {
			rec := toBookingRecord(b)
			if old, ok := previous[rec.ID]; ok {
				rec.CreatedAt = old.CreatedAt
				b.CreatedAt = old.CreatedAt.UTC()
				diff.Kept = append(diff.Kept, b)
			} else {
				rec.CreatedAt = now
				b.CreatedAt = now
				diff.Added = append(diff.Added, b)
			}
			seen[rec.ID] = true
			next = append(next, rec)
		}
		for _, rec := range existing {
			if seen[rec.ID] {
				continue
			}
			b, err := rec.toModel()
			if err != nil {
				return err
			}
			diff.Removed = append(diff.Removed, b)
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&bookingRecord{}).Error; err != nil {
			return fmt.Errorf("clear bookings: %w", err)
		}
		if len(next) > 0 {
			if err := tx.CreateInBatches(next, 200).Error; err != nil {
				return fmt.Errorf("insert bookings: %w", err)
			}
		}

		for _, u := range updates {
			if err := updateRequest(tx, u); err != nil {
				return err
			}
		}

		if hook != nil {
			if err := hook(ctx, diff); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Diff{}, err
	}
	return diff, nil
}

func updateRequest(tx *gorm.DB, u RequestUpdate) error {
	h := u.Request.Header()
	cols := map[string]any{
		"scheduled":         h.Scheduled,
		"remaining_seconds": seconds(u.Remaining),
		"status":            string(u.Status),
	}
	if rf, ok := u.Request.(model.RFRequest); ok {
		if rf.GroundStationID != nil {
			cols["ground_station_id"] = rf.GroundStationID.String()
		} else {
			cols["ground_station_id"] = nil
		}
	}
	if err := tx.Model(&requestRecord{}).Where("id = ?", h.ID.String()).Updates(cols).Error; err != nil {
		return fmt.Errorf("update request %s: %w", h.ID, err)
	}
	return nil
}

// RequestStatus returns the status and remaining demand recorded by the
// last committed pass.
func (s *Store) RequestStatus(ctx context.Context, id uuid.UUID) (model.Status, time.Duration, error) {
	var rec requestRecord
	err := s.db.WithContext(ctx).Select("id", "status", "remaining_seconds").First(&rec, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", 0, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", 0, fmt.Errorf("get request %s: %w", id, err)
	}
	return model.Status(rec.Status), fromSeconds(rec.RemainingSeconds), nil
}
