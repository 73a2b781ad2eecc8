package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/database/testutil"
	"github.com/charlesng35/teacherrate/internal/models"
	"github.com/charlesng35/teacherrate/internal/repository"
	apperrors "github.com/charlesng35/teacherrate/pkg/errors"
)

func openServiceTestDB(t *testing.T) (*gorm.DB, repository.Gateway) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	gw, err := repository.NewGormGateway(db)
	require.NoError(t, err)
	return db, gw
}

func seedTeacher(t *testing.T, gw repository.Gateway, name string) *models.Teacher {
	t.Helper()
	teacher := &models.Teacher{Name: name, Role: "Lecturer", Unit: "Computer Science"}
	require.NoError(t, gw.Teachers().Create(context.Background(), teacher))
	return teacher
}

func seedUser(t *testing.T, gw repository.Gateway, email string) *models.User {
	t.Helper()
	user := &models.User{Name: "User", Email: email, Password: "x", IsVerified: true}
	require.NoError(t, gw.Users().Create(context.Background(), user))
	return user
}

func newRatingServiceForTest(t *testing.T, gw repository.Gateway, opts ...RatingOption) *RatingService {
	t.Helper()
	aggregate, err := NewAggregateService(gw)
	require.NoError(t, err)
	svc, err := NewRatingService(gw, aggregate, opts...)
	require.NoError(t, err)
	return svc
}

func score(v float64) *float64 {
	return &v
}

func uintPtr(v uint) *uint {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func reloadTeacher(t *testing.T, gw repository.Gateway, id uint) *models.Teacher {
	t.Helper()
	teacher, err := gw.Teachers().FindByID(context.Background(), id)
	require.NoError(t, err)
	return teacher
}

// racingGateway hides existing ratings from FindByTeacherAndUser a fixed
// number of times, reproducing a lost check-then-insert race.
type racingGateway struct {
	repository.Gateway
	misses *int
}

func (g racingGateway) Ratings() repository.RatingRepository {
	return racingRatings{RatingRepository: g.Gateway.Ratings(), misses: g.misses}
}

func (g racingGateway) WithTransaction(ctx context.Context, fn func(tx repository.Gateway) error) error {
	return g.Gateway.WithTransaction(ctx, func(tx repository.Gateway) error {
		return fn(racingGateway{Gateway: tx, misses: g.misses})
	})
}

type racingRatings struct {
	repository.RatingRepository
	misses *int
}

func (r racingRatings) FindByTeacherAndUser(ctx context.Context, teacherID, userID uint) (*models.Rating, error) {
	if *r.misses > 0 {
		*r.misses--
		return nil, repository.ErrNotFound
	}
	return r.RatingRepository.FindByTeacherAndUser(ctx, teacherID, userID)
}

// lockTrace records the teacher lock and average writes seen inside
// transactions, in call order.
type lockTrace struct {
	mu     sync.Mutex
	events []string
}

func (l *lockTrace) add(kind string, teacherID uint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf("%s:%d", kind, teacherID))
}

func (l *lockTrace) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func (l *lockTrace) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// requireLockedAggregate asserts that every stats read and average write for
// teacherID happened inside a transaction that locked the teacher first.
func (l *lockTrace) requireLockedAggregate(t *testing.T, teacherID uint) {
	t.Helper()
	events := l.snapshot()
	lock := fmt.Sprintf("lock:%d", teacherID)
	stats := fmt.Sprintf("stats:%d", teacherID)
	write := fmt.Sprintf("update_avg:%d", teacherID)

	require.Contains(t, events, write, "events: %v", events)
	locked := false
	for _, event := range events {
		switch event {
		case "begin:0", "end:0":
			locked = false
		case lock:
			locked = true
		case stats, write:
			require.True(t, locked, "%s before %s in %v", event, lock, events)
		}
	}
}

type tracingGateway struct {
	repository.Gateway
	trace *lockTrace
}

func (g tracingGateway) WithTransaction(ctx context.Context, fn func(tx repository.Gateway) error) error {
	defer g.trace.add("end", 0)
	return g.Gateway.WithTransaction(ctx, func(tx repository.Gateway) error {
		g.trace.add("begin", 0)
		return fn(tracingGateway{Gateway: tx, trace: g.trace})
	})
}

func (g tracingGateway) Teachers() repository.TeacherRepository {
	return tracingTeachers{TeacherRepository: g.Gateway.Teachers(), trace: g.trace}
}

func (g tracingGateway) Ratings() repository.RatingRepository {
	return tracingRatings{RatingRepository: g.Gateway.Ratings(), trace: g.trace}
}

type tracingTeachers struct {
	repository.TeacherRepository
	trace *lockTrace
}

func (r tracingTeachers) LockByID(ctx context.Context, id uint) (*models.Teacher, error) {
	r.trace.add("lock", id)
	return r.TeacherRepository.LockByID(ctx, id)
}

func (r tracingTeachers) UpdateAverage(ctx context.Context, id uint, avg float64) (int64, error) {
	r.trace.add("update_avg", id)
	return r.TeacherRepository.UpdateAverage(ctx, id, avg)
}

type tracingRatings struct {
	repository.RatingRepository
	trace *lockTrace
}

func (r tracingRatings) Stats(ctx context.Context, teacherID uint) (repository.RatingStats, error) {
	r.trace.add("stats", teacherID)
	return r.RatingRepository.Stats(ctx, teacherID)
}

// beforeTxGateway runs hook before each transaction starts.
type beforeTxGateway struct {
	repository.Gateway
	hook func()
}

func (g beforeTxGateway) WithTransaction(ctx context.Context, fn func(tx repository.Gateway) error) error {
	if g.hook != nil {
		g.hook()
	}
	return g.Gateway.WithTransaction(ctx, fn)
}

type recordingObserver struct {
	mu      sync.Mutex
	changed []uint
}

func (o *recordingObserver) TeacherChanged(_ context.Context, teacherID uint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changed = append(o.changed, teacherID)
}

func asAppError(t *testing.T, err error) *apperrors.AppError {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr
}
