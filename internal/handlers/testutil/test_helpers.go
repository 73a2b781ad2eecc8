package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/teacherrate/internal/api"
	"github.com/charlesng35/teacherrate/internal/app"
	iauth "github.com/charlesng35/teacherrate/internal/auth"
	"github.com/charlesng35/teacherrate/internal/cache"
	sharedtestutil "github.com/charlesng35/teacherrate/internal/database/testutil"
	"github.com/charlesng35/teacherrate/internal/middleware"
	"github.com/charlesng35/teacherrate/internal/models"
	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/internal/services"
	"github.com/charlesng35/teacherrate/pkg/crypto"
	"github.com/charlesng35/teacherrate/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Outbox *Outbox
}

// EnvOption customises the environment before the router is built.
type EnvOption func(*app.Config)

// WithRateLimit enables the limiter on auth and rating writes.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.RateLimit = app.RateLimitConfig{Enabled: true, Requests: requests, Window: window}
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	gateway, err := repository.NewGormGateway(db)
	require.NoError(t, err)

	teachers, err := services.NewTeacherService(gateway,
		services.WithTeacherCache(cache.NewDatabaseStore(db), time.Minute),
	)
	require.NoError(t, err)

	aggregate, err := services.NewAggregateService(gateway)
	require.NoError(t, err)

	ratings, err := services.NewRatingService(gateway, aggregate, services.WithTeacherObserver(teachers))
	require.NoError(t, err)

	outbox := &Outbox{}
	accounts, err := services.NewAccountService(gateway, services.WithVerificationNotifier(outbox))
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:        db,
		JWT:       jwtSvc,
		Config:    cfg,
		Teachers:  teachers,
		Ratings:   ratings,
		Accounts:  accounts,
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Outbox: outbox,
	}
}

// Outbox records verification emails instead of sending them.
type Outbox struct {
	mu     sync.Mutex
	tokens map[string]string
}

// SendVerificationEmail stores the raw token for the recipient.
func (o *Outbox) SendVerificationEmail(_ context.Context, email, _ string, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tokens == nil {
		o.tokens = make(map[string]string)
	}
	o.tokens[strings.ToLower(email)] = token
	return nil
}

// Token returns the last verification token sent to email.
func (o *Outbox) Token(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tokens[strings.ToLower(email)]
}

// CreateUser inserts a verified account with a random email and returns the record.
func (e *Env) CreateUser(password string, admin bool) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Name:       "User " + uuid.NewString()[:8],
		Email:      "user-" + uuid.NewString() + "@example.com",
		Password:   hashed,
		IsVerified: true,
		IsAdmin:    admin,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// CreateTeacher inserts a teacher directly and returns the record.
func (e *Env) CreateTeacher(name string) *models.Teacher {
	e.T.Helper()

	teacher := &models.Teacher{Name: name, Role: "Lecturer", Unit: "Mathematics"}
	require.NoError(e.T, e.DB.Create(teacher).Error)
	return teacher
}

// Token issues an access token for user without going through login.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()

	token, _, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, IsAdmin: user.IsAdmin})
	require.NoError(e.T, err)
	return token
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// Login authenticates with email and password and returns the issued token.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"email":    email,
		"password": password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Token)
	require.Equal(e.T, strings.ToLower(email), result.User.Email)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
