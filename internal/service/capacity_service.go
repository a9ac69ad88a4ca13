package service

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type sectionSeatStore interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
	ReserveSeat(ctx context.Context, id string) (int64, error)
	ReleaseSeat(ctx context.Context, id string) (int64, error)
	SeatCount(ctx context.Context, id string) (int, error)
}

type reservationRecorder interface {
	RecordReservation(outcome string)
}

// CapacityLedger owns the materialized seat counter of every section. Reserve
// and release go through a single conditional UPDATE, so the database is the
// linearization point; the per-section mutex additionally serializes
// reserve/release pairs within this process so compensating actions cannot
// interleave with a racing reservation.
type CapacityLedger struct {
	sections sectionSeatStore
	metrics  reservationRecorder
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCapacityLedger constructs a CapacityLedger. Metrics may be nil.
func NewCapacityLedger(sections sectionSeatStore, metrics reservationRecorder, logger *zap.Logger) *CapacityLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityLedger{
		sections: sections,
		metrics:  metrics,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (l *CapacityLedger) record(outcome string) {
	if l.metrics != nil {
		l.metrics.RecordReservation(outcome)
	}
}

func (l *CapacityLedger) lockFor(sectionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[sectionID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sectionID] = lock
	}
	return lock
}

// TryReserve claims one seat in the section. It fails with CAPACITY_FULL when
// no seat remains and with SECTION_LOCKED when the section is not published
// or enrollment is locked. Two concurrent calls with one seat remaining never
// both succeed.
func (l *CapacityLedger) TryReserve(ctx context.Context, sectionID string) error {
	lock := l.lockFor(sectionID)
	lock.Lock()
	defer lock.Unlock()

	affected, err := l.sections.ReserveSeat(ctx, sectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to reserve seat")
	}
	if affected > 0 {
		l.record("reserved")
		return nil
	}

	// The conditional update rejected: distinguish a full section from a
	// closed one by re-reading the row.
	section, err := l.sections.FindByID(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load section")
	}
	if section.Status != models.SectionStatusPublished || section.EnrollmentLocked {
		l.record("locked")
		return appErrors.Clone(appErrors.ErrSectionLocked, "section is not open for enrollment")
	}
	l.record("full")
	return appErrors.Clone(appErrors.ErrCapacityFull, "section has no remaining seats")
}

// Release frees one seat, floored at zero. Releasing a seat that is already
// vacant is a no-op so duplicate drop requests stay idempotent.
func (l *CapacityLedger) Release(ctx context.Context, sectionID string) error {
	lock := l.lockFor(sectionID)
	lock.Lock()
	defer lock.Unlock()

	affected, err := l.sections.ReleaseSeat(ctx, sectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to release seat")
	}
	if affected == 0 {
		l.logger.Debug("release on vacated section ignored", zap.String("section_id", sectionID))
		return nil
	}
	l.record("released")
	return nil
}

// CurrentCount reads the section's seat counter.
func (l *CapacityLedger) CurrentCount(ctx context.Context, sectionID string) (int, error) {
	count, err := l.sections.SeatCount(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read seat count")
	}
	return count, nil
}
