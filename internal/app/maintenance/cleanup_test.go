package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/cache"
	testutil "github.com/charlesng35/teacherrate/internal/database/testutil"
	"github.com/charlesng35/teacherrate/internal/models"
	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/internal/services"
)

func TestClearStaleTokens(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	gateway, err := repository.NewGormGateway(db)
	require.NoError(t, err)

	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)
	stale := seedPendingUser(t, db, "stale@example.com", "stale-digest", now.Add(-8*24*time.Hour))
	recent := seedPendingUser(t, db, "recent@example.com", "recent-digest", now.Add(-time.Hour))

	cleared, err := ClearStaleTokens(context.Background(), gateway, now.Add(-defaultTokenRetention))
	require.NoError(t, err)
	require.Equal(t, int64(1), cleared)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, stale.ID).Error)
	require.Nil(t, reloaded.VerificationToken)
	require.Nil(t, reloaded.VerificationExpires)
	require.False(t, reloaded.IsVerified)

	require.NoError(t, db.First(&reloaded, recent.ID).Error)
	require.NotNil(t, reloaded.VerificationToken)
}

func TestClearStaleTokensRequiresGateway(t *testing.T) {
	_, err := ClearStaleTokens(context.Background(), nil, time.Now())
	require.Error(t, err)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	gateway, err := repository.NewGormGateway(db)
	require.NoError(t, err)

	aggregate, err := services.NewAggregateService(gateway)
	require.NoError(t, err)

	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	stale := seedPendingUser(t, db, "pending@example.com", "pending-digest", clock.Now().Add(-10*24*time.Hour))

	teacher := models.Teacher{Name: "Drifted", Role: "Lecturer", Unit: "Physics", AvgRating: 1}
	require.NoError(t, db.Create(&teacher).Error)
	require.NoError(t, db.Create(&models.Rating{Score: 4, Description: "Clear", TeacherID: teacher.ID}).Error)
	require.NoError(t, db.Create(&models.Rating{Score: 5, Description: "Great", TeacherID: teacher.ID}).Error)

	store := cache.NewDatabaseStore(db)
	require.NoError(t, db.Create(&models.CacheEntry{Key: "expired", Value: []byte("x"), ExpiresAt: clock.Now().Add(-time.Minute)}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{Key: "live", Value: []byte("y"), ExpiresAt: clock.Now().Add(time.Hour)}).Error)

	c := NewCleaner(gateway, aggregate, store,
		WithNow(clock.Now),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))

	var user models.User
	require.NoError(t, db.First(&user, stale.ID).Error)
	require.Nil(t, user.VerificationToken)

	var reloaded models.Teacher
	require.NoError(t, db.First(&reloaded, teacher.ID).Error)
	require.InDelta(t, 4.5, reloaded.AvgRating, 0.001)

	var count int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCleanerRunOnceAggregatesFailures(t *testing.T) {
	c := NewCleaner(nil, failingReconciler{}, failingPurger{})

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "reconcile ratings")
	require.ErrorContains(t, err, "purge cache")
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(nil, failingReconciler{}, nil, WithReconcileSchedule("not a schedule"))
	require.Error(t, c.Start())
}

func TestCleanerStartWithoutJobs(t *testing.T) {
	c := NewCleaner(nil, nil, nil)
	require.NoError(t, c.Start())
	<-c.Stop().Done()
}

func seedPendingUser(t *testing.T, db *gorm.DB, email, digest string, expires time.Time) *models.User {
	t.Helper()

	user := &models.User{
		Name:                "Pending",
		Email:               email,
		Password:            "$2a$10$hash",
		VerificationToken:   &digest,
		VerificationExpires: &expires,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

type failingReconciler struct{}

func (failingReconciler) ReconcileAll(context.Context) (int, error) {
	return 0, errors.New("boom")
}

type failingPurger struct{}

func (failingPurger) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}
