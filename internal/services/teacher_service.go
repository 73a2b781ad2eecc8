package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/teacherrate/internal/cache"
	"github.com/charlesng35/teacherrate/internal/models"
	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/internal/search"
	"github.com/charlesng35/teacherrate/pkg/logger"
	"github.com/charlesng35/teacherrate/pkg/metrics"
	"github.com/charlesng35/teacherrate/pkg/validator"
)

const (
	defaultTeacherCacheTTL = 5 * time.Minute
	teacherCachePrefix     = "teachers:"
	defaultSearchLimit     = 20

	listGenerationKey = teacherCachePrefix + "gen:list"
	// generationTTL outlives any cached entry so an expired counter cannot
	// come back at a value an old entry was stored under.
	generationTTL = 24 * time.Hour
)

// TeacherInput carries the profile of a new teacher.
type TeacherInput struct {
	Name    string
	Role    string
	Unit    string
	Address string
	Room    string
	Email   string
	Phone   string
	Image   string
}

// TeacherPatch is a partial profile update; nil fields are left untouched.
type TeacherPatch struct {
	Name    *string
	Role    *string
	Unit    *string
	Address *string
	Room    *string
	Email   *string
	Phone   *string
	Image   *string
}

// ListTeachersOptions narrows and orders a teacher listing.
type ListTeachersOptions struct {
	Query string
	Sort  repository.TeacherSort
}

// TeacherOption customises the TeacherService.
type TeacherOption func(*TeacherService)

// WithTeacherCache enables the read-through cache. A non-positive ttl keeps
// the default of five minutes.
func WithTeacherCache(store cache.Store, ttl time.Duration) TeacherOption {
	return func(s *TeacherService) {
		s.cache = store
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithSearchIndex keeps idx in sync with teacher mutations and serves Search from it.
func WithSearchIndex(idx search.Index) TeacherOption {
	return func(s *TeacherService) {
		if idx != nil {
			s.index = idx
		}
	}
}

// TeacherService manages the teacher catalogue.
type TeacherService struct {
	gateway  repository.Gateway
	cache    cache.Store
	cacheTTL time.Duration
	index    search.Index
	log      *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(gateway repository.Gateway, opts ...TeacherOption) (*TeacherService, error) {
	if gateway == nil {
		return nil, errors.New("teacher service: gateway is required")
	}

	svc := &TeacherService{
		gateway:  gateway,
		cacheTTL: defaultTeacherCacheTTL,
		index:    search.NoopIndex{},
		log:      logger.WithModule("teacher"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// List returns teachers with their rating counts. Unfiltered listings are cached.
func (s *TeacherService) List(ctx context.Context, opts ListTeachersOptions) ([]models.TeacherWithStats, error) {
	ctx = ensureContext(ctx)

	sort := opts.Sort
	if sort != repository.SortByRating {
		sort = repository.SortByName
	}
	query := strings.TrimSpace(opts.Query)

	key := listCacheKey(sort)
	var (
		generation string
		cacheable  bool
	)
	if query == "" {
		var cached []models.TeacherWithStats
		var hit bool
		generation, cacheable, hit = s.cacheGet(ctx, key, listGenerationKey, &cached)
		if hit {
			return cached, nil
		}
	}

	teachers, err := s.gateway.Teachers().List(ctx, repository.TeacherFilter{NameContains: query, Sort: sort})
	if err != nil {
		return nil, fmt.Errorf("teacher service: list: %w", err)
	}
	result, err := s.withStats(ctx, teachers)
	if err != nil {
		return nil, err
	}

	if cacheable {
		s.cacheSet(ctx, key, generation, result)
	}
	return result, nil
}

// Get returns a single teacher with its rating count.
func (s *TeacherService) Get(ctx context.Context, id uint) (*models.TeacherWithStats, error) {
	ctx = ensureContext(ctx)

	key := teacherCacheKey(id)
	var cached models.TeacherWithStats
	generation, cacheable, hit := s.cacheGet(ctx, key, teacherGenerationKey(id), &cached)
	if hit {
		return &cached, nil
	}

	teacher, err := s.gateway.Teachers().FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, ErrTeacherNotFound, "teacher service: load teacher")
	}
	result, err := s.withStats(ctx, []models.Teacher{*teacher})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrTeacherNotFound
	}

	if cacheable {
		s.cacheSet(ctx, key, generation, &result[0])
	}
	return &result[0], nil
}

// Search queries the search index and returns teachers in hit order. Without
// a usable index it falls back to a name match.
func (s *TeacherService) Search(ctx context.Context, query string, limit int) ([]models.TeacherWithStats, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return s.nameMatch(ctx, query, limit)
	}

	ids, err := s.index.Search(ctx, query, limit)
	if err != nil {
		if !errors.Is(err, search.ErrUnavailable) {
			s.log.Warn("search index query failed, using name match", zap.Error(err))
		}
		return s.nameMatch(ctx, query, limit)
	}
	if len(ids) == 0 {
		return []models.TeacherWithStats{}, nil
	}

	teachers, err := s.gateway.Teachers().ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("teacher service: load search hits: %w", err)
	}
	byID := make(map[uint]models.Teacher, len(teachers))
	for _, teacher := range teachers {
		byID[teacher.ID] = teacher
	}
	ordered := make([]models.Teacher, 0, len(ids))
	for _, id := range ids {
		// Hits for deleted teachers are skipped until the index catches up.
		if teacher, ok := byID[id]; ok {
			ordered = append(ordered, teacher)
		}
	}
	return s.withStats(ctx, ordered)
}

// Create adds a teacher. Its average rating starts at zero.
func (s *TeacherService) Create(ctx context.Context, input TeacherInput) (*models.TeacherWithStats, error) {
	ctx = ensureContext(ctx)

	teacher := &models.Teacher{
		Name:    cleanLine(input.Name),
		Role:    cleanLine(input.Role),
		Unit:    cleanLine(input.Unit),
		Address: cleanLine(input.Address),
		Room:    cleanLine(input.Room),
		Email:   strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:   strings.TrimSpace(input.Phone),
		Image:   strings.TrimSpace(input.Image),
	}
	if err := validateTeacher(teacher); err != nil {
		return nil, err
	}
	if err := s.ensureNameAvailable(ctx, teacher.Name, 0); err != nil {
		return nil, err
	}

	if err := s.gateway.Teachers().Create(ctx, teacher); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateTeacher
		}
		return nil, fmt.Errorf("teacher service: create: %w", err)
	}

	s.log.Info("teacher created", zap.Uint("teacher_id", teacher.ID), zap.String("name", teacher.Name))
	s.TeacherChanged(ctx, teacher.ID)
	return &models.TeacherWithStats{Teacher: *teacher}, nil
}

// Update applies patch to a teacher profile. The average rating cannot be
// changed through this path.
func (s *TeacherService) Update(ctx context.Context, id uint, patch TeacherPatch) (*models.TeacherWithStats, error) {
	ctx = ensureContext(ctx)

	teacher, err := s.gateway.Teachers().FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, ErrTeacherNotFound, "teacher service: load teacher")
	}

	applyLine(&teacher.Name, patch.Name, cleanLine)
	applyLine(&teacher.Role, patch.Role, cleanLine)
	applyLine(&teacher.Unit, patch.Unit, cleanLine)
	applyLine(&teacher.Address, patch.Address, cleanLine)
	applyLine(&teacher.Room, patch.Room, cleanLine)
	applyLine(&teacher.Email, patch.Email, func(v string) string { return strings.ToLower(strings.TrimSpace(v)) })
	applyLine(&teacher.Phone, patch.Phone, strings.TrimSpace)
	applyLine(&teacher.Image, patch.Image, strings.TrimSpace)

	if err := validateTeacher(teacher); err != nil {
		return nil, err
	}
	if err := s.ensureNameAvailable(ctx, teacher.Name, teacher.ID); err != nil {
		return nil, err
	}

	if err := s.gateway.Teachers().Update(ctx, teacher); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateTeacher
		}
		return nil, fmt.Errorf("teacher service: update: %w", err)
	}

	s.TeacherChanged(ctx, teacher.ID)
	return s.Get(ctx, teacher.ID)
}

// Delete removes a teacher together with its ratings.
func (s *TeacherService) Delete(ctx context.Context, id uint) error {
	ctx = ensureContext(ctx)

	var removed int64
	err := s.gateway.WithTransaction(ctx, func(tx repository.Gateway) error {
		if _, err := tx.Teachers().FindByID(ctx, id); err != nil {
			return mapLookupError(err, ErrTeacherNotFound, "teacher service: load teacher")
		}
		n, err := tx.Ratings().DeleteByTeacher(ctx, id)
		if err != nil {
			return fmt.Errorf("teacher service: delete ratings: %w", err)
		}
		removed = n
		if err := tx.Teachers().Delete(ctx, id); err != nil {
			return fmt.Errorf("teacher service: delete: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("teacher deleted", zap.Uint("teacher_id", id), zap.Int64("ratings_removed", removed))
	s.invalidate(ctx, id)
	if err := s.index.Remove(ctx, id); err != nil {
		s.log.Warn("search index removal failed", zap.Uint("teacher_id", id), zap.Error(err))
	}
	return nil
}

// TeacherChanged drops cached copies of the teacher and refreshes its search
// document. Failures are logged; the database remains authoritative.
func (s *TeacherService) TeacherChanged(ctx context.Context, teacherID uint) {
	ctx = ensureContext(ctx)
	s.invalidate(ctx, teacherID)

	teacher, err := s.gateway.Teachers().FindByID(ctx, teacherID)
	if errors.Is(err, repository.ErrNotFound) {
		if err := s.index.Remove(ctx, teacherID); err != nil {
			s.log.Warn("search index removal failed", zap.Uint("teacher_id", teacherID), zap.Error(err))
		}
		return
	}
	if err != nil {
		s.log.Warn("reload teacher for indexing failed", zap.Uint("teacher_id", teacherID), zap.Error(err))
		return
	}
	if err := s.index.Upsert(ctx, search.NewTeacherDocument(teacher)); err != nil {
		s.log.Warn("search index update failed", zap.Uint("teacher_id", teacherID), zap.Error(err))
	}
}

// SyncIndex pushes every teacher to the search index.
func (s *TeacherService) SyncIndex(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	if err := s.index.Configure(ctx); err != nil {
		return 0, err
	}
	teachers, err := s.gateway.Teachers().List(ctx, repository.TeacherFilter{})
	if err != nil {
		return 0, fmt.Errorf("teacher service: list for index: %w", err)
	}
	if len(teachers) == 0 {
		return 0, nil
	}
	docs := make([]search.TeacherDocument, 0, len(teachers))
	for i := range teachers {
		docs = append(docs, search.NewTeacherDocument(&teachers[i]))
	}
	if err := s.index.Upsert(ctx, docs...); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *TeacherService) ensureNameAvailable(ctx context.Context, name string, selfID uint) error {
	existing, err := s.gateway.Teachers().FindByName(ctx, name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("teacher service: lookup name: %w", err)
	case existing.ID != selfID:
		return ErrDuplicateTeacher
	default:
		return nil
	}
}

// withStats attaches rating counts. The average and the count are taken from
// the same statement so a concurrent rating write cannot split them.
func (s *TeacherService) withStats(ctx context.Context, teachers []models.Teacher) ([]models.TeacherWithStats, error) {
	ids := make([]uint, 0, len(teachers))
	for _, teacher := range teachers {
		ids = append(ids, teacher.ID)
	}
	stats, err := s.gateway.Teachers().StatsFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("teacher service: rating stats: %w", err)
	}

	result := make([]models.TeacherWithStats, 0, len(teachers))
	for _, teacher := range teachers {
		snapshot, ok := stats[teacher.ID]
		if !ok {
			continue
		}
		teacher.AvgRating = snapshot.Average
		result = append(result, models.TeacherWithStats{Teacher: teacher, RatingCount: snapshot.Count})
	}
	return result, nil
}

func (s *TeacherService) nameMatch(ctx context.Context, query string, limit int) ([]models.TeacherWithStats, error) {
	teachers, err := s.List(ctx, ListTeachersOptions{Query: query})
	if err != nil {
		return nil, err
	}
	if len(teachers) > limit {
		teachers = teachers[:limit]
	}
	return teachers, nil
}

// cachedEntry tags a cached payload with the generation that was current
// before the database read that produced it.
type cachedEntry struct {
	Generation string          `json:"generation"`
	Value      json.RawMessage `json:"value"`
}

// cacheGet returns the generation to store a fresh value under and whether
// caching is possible at all. Entries written under an older generation miss.
func (s *TeacherService) cacheGet(ctx context.Context, key, generationKey string, dest any) (string, bool, bool) {
	if s.cache == nil {
		return "", false, false
	}

	generation, err := s.generation(ctx, generationKey)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("cache generation read failed", zap.String("key", generationKey), zap.Error(err))
		return "", false, false
	}

	var entry cachedEntry
	ok, err := cache.GetJSON(ctx, s.cache, key, &entry)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return generation, true, false
	case ok && entry.Generation == generation && json.Unmarshal(entry.Value, dest) == nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return generation, true, true
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return generation, true, false
	}
}

func (s *TeacherService) cacheSet(ctx context.Context, key, generation string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	entry := cachedEntry{Generation: generation, Value: raw}
	if err := cache.SetJSON(ctx, s.cache, key, entry, s.cacheTTL); err != nil {
		s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *TeacherService) generation(ctx context.Context, key string) (string, error) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}

// invalidate bumps the generations first so that a read already in flight
// stores its result under a stale generation, then drops the cached keys.
func (s *TeacherService) invalidate(ctx context.Context, teacherID uint) {
	if s.cache == nil {
		return
	}

	window := generationTTL
	if s.cacheTTL*2 > window {
		window = s.cacheTTL * 2
	}
	bumped := true
	for _, key := range []string{teacherGenerationKey(teacherID), listGenerationKey} {
		if _, _, err := s.cache.IncrementWithTTL(ctx, key, window); err != nil {
			bumped = false
			s.log.Warn("cache generation bump failed", zap.String("key", key), zap.Error(err))
		}
	}

	keys := []string{
		listCacheKey(repository.SortByName),
		listCacheKey(repository.SortByRating),
		teacherCacheKey(teacherID),
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		if bumped {
			s.log.Warn("cache invalidation failed", zap.Uint("teacher_id", teacherID), zap.Error(err))
		} else {
			s.log.Error("cache invalidation failed, entries may be stale until expiry",
				zap.Uint("teacher_id", teacherID),
				zap.Duration("ttl", s.cacheTTL),
				zap.Error(err),
			)
		}
	}
}

func listCacheKey(sort repository.TeacherSort) string {
	return teacherCachePrefix + "list:" + string(sort)
}

func teacherCacheKey(id uint) string {
	return teacherCachePrefix + strconv.FormatUint(uint64(id), 10)
}

func teacherGenerationKey(id uint) string {
	return teacherCachePrefix + "gen:" + strconv.FormatUint(uint64(id), 10)
}

func applyLine(dst *string, value *string, clean func(string) string) {
	if value != nil {
		*dst = clean(*value)
	}
}

// teacherProfile mirrors the writable teacher columns with their limits.
type teacherProfile struct {
	Name    string `json:"name" validate:"notblank,max=100"`
	Role    string `json:"role" validate:"notblank,max=100"`
	Unit    string `json:"unit" validate:"notblank,max=100"`
	Address string `json:"address" validate:"max=500"`
	Room    string `json:"room" validate:"max=50"`
	Email   string `json:"email" validate:"omitempty,max=100,email"`
	Phone   string `json:"phone" validate:"max=50"`
	Image   string `json:"image" validate:"max=255"`
}

// validateTeacher reports the first failing field of t.
func validateTeacher(t *models.Teacher) error {
	err := validator.ValidateStruct(teacherProfile{
		Name:    t.Name,
		Role:    t.Role,
		Unit:    t.Unit,
		Address: t.Address,
		Room:    t.Room,
		Email:   t.Email,
		Phone:   t.Phone,
		Image:   t.Image,
	})
	if err == nil {
		return nil
	}
	var failures validator.ValidationErrors
	if errors.As(err, &failures) {
		if first, ok := failures.First(); ok {
			return validationError(first.Field, first.Message)
		}
	}
	return fmt.Errorf("teacher service: validate: %w", err)
}
