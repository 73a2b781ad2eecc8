package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/teacherrate/internal/cache"
	"github.com/charlesng35/teacherrate/internal/models"
	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/internal/search"
)

type fakeIndex struct {
	mu      sync.Mutex
	docs    map[uint]search.TeacherDocument
	hits    []uint
	err     error
	queries []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[uint]search.TeacherDocument)}
}

func (f *fakeIndex) Configure(context.Context) error { return nil }

func (f *fakeIndex) Upsert(_ context.Context, docs ...search.TeacherDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, query string, _ int) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.hits, f.err
}

func (f *fakeIndex) doc(id uint) (search.TeacherDocument, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	return doc, ok
}

func newCachedTeacherService(t *testing.T, gw repository.Gateway, idx search.Index) (*TeacherService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore(cache.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc, err := NewTeacherService(gw, WithTeacherCache(store, time.Minute), WithSearchIndex(idx))
	require.NoError(t, err)
	return svc, mr
}

func validTeacherInput(name string) TeacherInput {
	return TeacherInput{Name: name, Role: "Lecturer", Unit: "Mathematics", Room: "B-201", Email: "Teacher@School.edu"}
}

func TestNewTeacherServiceRequiresGateway(t *testing.T) {
	_, err := NewTeacherService(nil)
	require.Error(t, err)
}

func TestTeacherCreateAndValidation(t *testing.T) {
	ctx := context.Background()
	_, gw := openServiceTestDB(t)
	idx := newFakeIndex()
	svc, _ := newCachedTeacherService(t, gw, idx)

	created, err := svc.Create(ctx, validTeacherInput(" Alice   Johnson "))
	require.NoError(t, err)
	require.Equal(t, "Alice Johnson", created.Name)
	require.Equal(t, "teacher@school.edu", created.Email)
	require.Zero(t, created.AvgRating)
	require.Zero(t, created.RatingCount)

	doc, ok := idx.doc(created.ID)
	require.True(t, ok)
	require.Equal(t, "Alice Johnson", doc.Name)

	_, err = svc.Create(ctx, validTeacherInput("Alice Johnson"))
	require.ErrorIs(t, err, ErrDuplicateTeacher)

	cases := []struct {
		name  string
		mut   func(*TeacherInput)
		field string
	}{
		{name: "name", mut: func(in *TeacherInput) { in.Name = "" }, field: "name"},
		{name: "role", mut: func(in *TeacherInput) { in.Role = " " }, field: "role"},
		{name: "unit", mut: func(in *TeacherInput) { in.Unit = strings.Repeat("u", 101) }, field: "unit"},
		{name: "room", mut: func(in *TeacherInput) { in.Room = strings.Repeat("r", 51) }, field: "room"},
		{name: "email", mut: func(in *TeacherInput) { in.Email = "nope" }, field: "email"},
		{name: "address", mut: func(in *TeacherInput) { in.Address = strings.Repeat("a", 501) }, field: "address"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validTeacherInput("Someone New")
			tc.mut(&input)
			_, err := svc.Create(ctx, input)
			require.ErrorIs(t, err, ErrValidation)
			require.Equal(t, tc.field, asAppError(t, err).Details["field"])
		})
	}
}

func TestTeacherGetUsesCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	db, gw := openServiceTestDB(t)
	svc, mr := newCachedTeacherService(t, gw, newFakeIndex())
	teacher := seedTeacher(t, gw, "Bob Smith")

	first, err := svc.Get(ctx, teacher.ID)
	require.NoError(t, err)
	require.Equal(t, "Bob Smith", first.Name)
	require.True(t, mr.Exists("teacherrate:teachers:1"))

	// An out-of-band write is hidden by the cache.
	require.NoError(t, db.Model(&models.Teacher{}).Where("id = ?", teacher.ID).Update("room", "C-3").Error)
	cached, err := svc.Get(ctx, teacher.ID)
	require.NoError(t, err)
	require.Empty(t, cached.Room)

	svc.TeacherChanged(ctx, teacher.ID)
	fresh, err := svc.Get(ctx, teacher.ID)
	require.NoError(t, err)
	require.Equal(t, "C-3", fresh.Room)

	_, err = svc.Get(ctx, 999)
	require.ErrorIs(t, err, ErrTeacherNotFound)
}

// statsHookGateway runs hook once, right after the next stats read returns.
type statsHookGateway struct {
	repository.Gateway
	hook *func()
}

func (g statsHookGateway) Teachers() repository.TeacherRepository {
	return statsHookTeachers{TeacherRepository: g.Gateway.Teachers(), hook: g.hook}
}

type statsHookTeachers struct {
	repository.TeacherRepository
	hook *func()
}

func (r statsHookTeachers) StatsFor(ctx context.Context, ids []uint) (map[uint]repository.RatingStats, error) {
	stats, err := r.TeacherRepository.StatsFor(ctx, ids)
	if fn := *r.hook; fn != nil {
		*r.hook = nil
		fn()
	}
	return stats, err
}

func TestTeacherCacheSkipsValuesReadBeforeInvalidation(t *testing.T) {
	ctx := context.Background()
	_, gw := openServiceTestDB(t)
	var hook func()
	svc, _ := newCachedTeacherService(t, statsHookGateway{Gateway: gw, hook: &hook}, newFakeIndex())
	ratings := newRatingServiceForTest(t, gw, WithTeacherObserver(svc))
	teacher := seedTeacher(t, gw, "Hana Park")

	// A rating commits between the database read and the cache fill.
	hook = func() {
		_, err := ratings.CreateOrUpsert(ctx, CreateRatingInput{Rating: score(5), Description: "Great", TeacherID: teacher.ID})
		require.NoError(t, err)
	}
	stale, err := svc.Get(ctx, teacher.ID)
	require.NoError(t, err)
	require.Zero(t, stale.AvgRating)
	require.Zero(t, stale.RatingCount)

	fresh, err := svc.Get(ctx, teacher.ID)
	require.NoError(t, err)
	require.InDelta(t, 5.0, fresh.AvgRating, 0.001)
	require.EqualValues(t, 1, fresh.RatingCount)

	cached, err := svc.Get(ctx, teacher.ID)
	require.NoError(t, err)
	require.Equal(t, fresh.AvgRating, cached.AvgRating)
	require.Equal(t, fresh.RatingCount, cached.RatingCount)

	hook = func() {
		_, err := ratings.CreateOrUpsert(ctx, CreateRatingInput{Rating: score(1), Description: "Bad", TeacherID: teacher.ID})
		require.NoError(t, err)
	}
	_, err = svc.List(ctx, ListTeachersOptions{})
	require.NoError(t, err)

	list, err := svc.List(ctx, ListTeachersOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.InDelta(t, 3.0, list[0].AvgRating, 0.001)
	require.EqualValues(t, 2, list[0].RatingCount)
}

func TestTeacherCacheFailedDeleteStillInvalidates(t *testing.T) {
	ctx := context.Background()
	db, gw := openServiceTestDB(t)
	store := &failingDeleteStore{Store: cache.NewDatabaseStore(db)}
	svc, err := NewTeacherService(gw, WithTeacherCache(store, time.Minute))
	require.NoError(t, err)
	teacher := seedTeacher(t, gw, "Ivan Petrov")

	_, err = svc.Get(ctx, teacher.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Teacher{}).Where("id = ?", teacher.ID).Update("room", "D-4").Error)
	svc.TeacherChanged(ctx, teacher.ID)

	got, err := svc.Get(ctx, teacher.ID)
	require.NoError(t, err)
	require.Equal(t, "D-4", got.Room)
}

type failingDeleteStore struct {
	cache.Store
}

func (failingDeleteStore) Delete(context.Context, ...string) error {
	return errors.New("delete unavailable")
}

func TestTeacherListFilterSortAndCounts(t *testing.T) {
	ctx := context.Background()
	_, gw := openServiceTestDB(t)
	svc, mr := newCachedTeacherService(t, gw, newFakeIndex())
	ratings := newRatingServiceForTest(t, gw, WithTeacherObserver(svc))

	alice := seedTeacher(t, gw, "Alice Johnson")
	bob := seedTeacher(t, gw, "Bob Smith")
	seedTeacher(t, gw, "Carol Lee")

	list, err := svc.List(ctx, ListTeachersOptions{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "Alice Johnson", list[0].Name)
	require.True(t, mr.Exists("teacherrate:teachers:list:name"))

	_, err = ratings.CreateOrUpsert(ctx, CreateRatingInput{Rating: score(5), Description: "great", TeacherID: bob.ID})
	require.NoError(t, err)
	_, err = ratings.CreateOrUpsert(ctx, CreateRatingInput{Rating: score(3), Description: "ok", TeacherID: alice.ID})
	require.NoError(t, err)
	require.False(t, mr.Exists("teacherrate:teachers:list:name"))

	byRating, err := svc.List(ctx, ListTeachersOptions{Sort: repository.SortByRating})
	require.NoError(t, err)
	require.Equal(t, "Bob Smith", byRating[0].Name)
	require.InDelta(t, 5.0, byRating[0].AvgRating, 0.001)
	require.EqualValues(t, 1, byRating[0].RatingCount)
	require.Equal(t, "Carol Lee", byRating[2].Name)
	require.Zero(t, byRating[2].RatingCount)

	filtered, err := svc.List(ctx, ListTeachersOptions{Query: "SMI"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, bob.ID, filtered[0].ID)
}

func TestTeacherUpdate(t *testing.T) {
	ctx := context.Background()
	_, gw := openServiceTestDB(t)
	idx := newFakeIndex()
	svc, _ := newCachedTeacherService(t, gw, idx)
	alice := seedTeacher(t, gw, "Alice Johnson")
	seedTeacher(t, gw, "Bob Smith")

	updated, err := svc.Update(ctx, alice.ID, TeacherPatch{Unit: strPtr("Physics"), Phone: strPtr(" 555-0100 ")})
	require.NoError(t, err)
	require.Equal(t, "Physics", updated.Unit)
	require.Equal(t, "555-0100", updated.Phone)
	require.Equal(t, "Alice Johnson", updated.Name)

	doc, ok := idx.doc(alice.ID)
	require.True(t, ok)
	require.Equal(t, "Physics", doc.Unit)

	// Keeping its own name is not a conflict.
	_, err = svc.Update(ctx, alice.ID, TeacherPatch{Name: strPtr("Alice Johnson")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, alice.ID, TeacherPatch{Name: strPtr("Bob Smith")})
	require.ErrorIs(t, err, ErrDuplicateTeacher)

	_, err = svc.Update(ctx, alice.ID, TeacherPatch{Role: strPtr("")})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Update(ctx, 999, TeacherPatch{})
	require.ErrorIs(t, err, ErrTeacherNotFound)
}

func TestTeacherDeleteRemovesRatings(t *testing.T) {
	ctx := context.Background()
	_, gw := openServiceTestDB(t)
	idx := newFakeIndex()
	svc, mr := newCachedTeacherService(t, gw, idx)
	ratings := newRatingServiceForTest(t, gw, WithTeacherObserver(svc))

	teacher, err := svc.Create(ctx, validTeacherInput("Eva Green"))
	require.NoError(t, err)
	rating, err := ratings.CreateOrUpsert(ctx, CreateRatingInput{Rating: score(4), Description: "good", TeacherID: teacher.ID})
	require.NoError(t, err)
	_, err = svc.Get(ctx, teacher.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, teacher.ID))

	_, err = svc.Get(ctx, teacher.ID)
	require.ErrorIs(t, err, ErrTeacherNotFound)
	_, err = ratings.Get(ctx, rating.ID)
	require.ErrorIs(t, err, ErrRatingNotFound)
	_, ok := idx.doc(teacher.ID)
	require.False(t, ok)
	require.False(t, mr.Exists("teacherrate:teachers:1"))

	require.ErrorIs(t, svc.Delete(ctx, teacher.ID), ErrTeacherNotFound)
}

func TestTeacherSearch(t *testing.T) {
	ctx := context.Background()
	_, gw := openServiceTestDB(t)
	idx := newFakeIndex()
	svc, _ := newCachedTeacherService(t, gw, idx)

	alice := seedTeacher(t, gw, "Alice Johnson")
	carol := seedTeacher(t, gw, "Carol Lee")

	idx.hits = []uint{carol.ID, 999, alice.ID}
	found, err := svc.Search(ctx, "lecturer", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, carol.ID, found[0].ID)
	require.Equal(t, alice.ID, found[1].ID)
	require.Equal(t, []string{"lecturer"}, idx.queries)

	idx.err = errors.New("meilisearch down")
	found, err = svc.Search(ctx, "carol", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, carol.ID, found[0].ID)

	all, err := svc.Search(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestTeacherSearchWithoutIndexFallsBackToNameMatch(t *testing.T) {
	_, gw := openServiceTestDB(t)
	svc, err := NewTeacherService(gw)
	require.NoError(t, err)
	seedTeacher(t, gw, "David Kim")
	seedTeacher(t, gw, "Frank Liu")

	found, err := svc.Search(context.Background(), "kim", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "David Kim", found[0].Name)
}

func TestTeacherSyncIndex(t *testing.T) {
	_, gw := openServiceTestDB(t)
	idx := newFakeIndex()
	svc, err := NewTeacherService(gw, WithSearchIndex(idx))
	require.NoError(t, err)
	seedTeacher(t, gw, "Alice Johnson")
	seedTeacher(t, gw, "Bob Smith")

	n, err := svc.SyncIndex(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, idx.docs, 2)
}
