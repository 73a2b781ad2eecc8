package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/teacherrate/internal/models"
	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/pkg/crypto"
)

type capturingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func (n *capturingNotifier) SendVerificationEmail(_ context.Context, email, _ string, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = make(map[string]string)
	}
	n.tokens[email] = token
	return n.err
}

func (n *capturingNotifier) token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

func TestNewAccountServiceRequiresGateway(t *testing.T) {
	_, err := NewAccountService(nil)
	require.Error(t, err)
}

func TestAccountRegisterVerifyLoginRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, gw := openServiceTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	notifier := &capturingNotifier{}

	svc, err := NewAccountService(gw,
		WithAccountClock(func() time.Time { return now }),
		WithVerificationNotifier(notifier),
	)
	require.NoError(t, err)

	user, err := svc.Register(ctx, RegisterInput{Name: " Mari ", Email: "Mari@Example.com", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "Mari", user.Name)
	require.Equal(t, "mari@example.com", user.Email)
	require.False(t, user.IsVerified)
	require.NotEqual(t, "secret1", user.Password)
	require.NotNil(t, user.VerificationExpires)
	require.True(t, user.VerificationExpires.Equal(now.Add(24*time.Hour)))

	token := notifier.token("mari@example.com")
	require.NotEmpty(t, token)
	require.Equal(t, crypto.HashToken(token), *user.VerificationToken)

	_, err = svc.Login(ctx, "mari@example.com", "secret1")
	require.ErrorIs(t, err, ErrNotVerified)

	verified, err := svc.VerifyEmail(ctx, token)
	require.NoError(t, err)
	require.True(t, verified.IsVerified)
	require.Nil(t, verified.VerificationToken)
	require.Nil(t, verified.VerificationExpires)

	// The token is consumed.
	_, err = svc.VerifyEmail(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)

	loggedIn, err := svc.Login(ctx, " MARI@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, user.ID, loggedIn.ID)

	me, err := svc.Me(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "mari@example.com", me.Email)
}

func TestAccountRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	db, gw := openServiceTestDB(t)
	svc, err := NewAccountService(gw)
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "First", Email: "dup@example.com", Password: "secret1"})
	require.NoError(t, err)

	// The same address in a different case is rejected.
	_, err = svc.Register(ctx, RegisterInput{Name: "Second", Email: "DUP@example.com", Password: "secret2"})
	require.ErrorIs(t, err, ErrDuplicateEmail)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestAccountRegisterValidation(t *testing.T) {
	_, gw := openServiceTestDB(t)
	svc, err := NewAccountService(gw)
	require.NoError(t, err)

	cases := []struct {
		name  string
		input RegisterInput
		field string
	}{
		{name: "missing name", input: RegisterInput{Email: "a@b.co", Password: "secret1"}, field: "name"},
		{name: "long name", input: RegisterInput{Name: strings.Repeat("n", 101), Email: "a@b.co", Password: "secret1"}, field: "name"},
		{name: "missing email", input: RegisterInput{Name: "A", Password: "secret1"}, field: "email"},
		{name: "bad email", input: RegisterInput{Name: "A", Email: "not-an-email", Password: "secret1"}, field: "email"},
		{name: "long email", input: RegisterInput{Name: "A", Email: strings.Repeat("e", 95) + "@b.com", Password: "secret1"}, field: "email"},
		{name: "short password", input: RegisterInput{Name: "A", Email: "a@b.co", Password: "12345"}, field: "password"},
		{name: "long password", input: RegisterInput{Name: "A", Email: "a@b.co", Password: strings.Repeat("p", 73)}, field: "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.input)
			require.ErrorIs(t, err, ErrValidation)
			require.Equal(t, tc.field, asAppError(t, err).Details["field"])
		})
	}
}

func TestAccountRegisterSwallowsNotifierFailure(t *testing.T) {
	_, gw := openServiceTestDB(t)
	notifier := &capturingNotifier{err: errors.New("smtp down")}
	svc, err := NewAccountService(gw, WithVerificationNotifier(notifier))
	require.NoError(t, err)

	user, err := svc.Register(context.Background(), RegisterInput{Name: "Kai", Email: "kai@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotZero(t, user.ID)
}

func TestAccountVerifyExpiredToken(t *testing.T) {
	ctx := context.Background()
	_, gw := openServiceTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	notifier := &capturingNotifier{}
	svc, err := NewAccountService(gw,
		WithAccountClock(func() time.Time { return now }),
		WithVerificationTTL(time.Hour),
		WithVerificationNotifier(notifier),
	)
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "Lee", Email: "lee@example.com", Password: "secret1"})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = svc.VerifyEmail(ctx, notifier.token("lee@example.com"))
	require.ErrorIs(t, err, ErrTokenExpired)

	_, err = svc.VerifyEmail(ctx, "")
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.VerifyEmail(ctx, "unknown-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

// tokenHookGateway runs hook once, after the next token lookup returns.
type tokenHookGateway struct {
	repository.Gateway
	hook *func()
}

func (g tokenHookGateway) Users() repository.UserRepository {
	return tokenHookUsers{UserRepository: g.Gateway.Users(), hook: g.hook}
}

type tokenHookUsers struct {
	repository.UserRepository
	hook *func()
}

func (r tokenHookUsers) FindByToken(ctx context.Context, digest string) (*models.User, error) {
	user, err := r.UserRepository.FindByToken(ctx, digest)
	if fn := *r.hook; fn != nil {
		*r.hook = nil
		fn()
	}
	return user, err
}

func TestAccountVerifyTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	_, gw := openServiceTestDB(t)
	notifier := &capturingNotifier{}
	var hook func()
	svc, err := NewAccountService(tokenHookGateway{Gateway: gw, hook: &hook}, WithVerificationNotifier(notifier))
	require.NoError(t, err)
	other, err := NewAccountService(gw)
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "Kai", Email: "kai@example.com", Password: "secret1"})
	require.NoError(t, err)
	token := notifier.token("kai@example.com")

	// A second request consumes the token between lookup and update.
	var concurrent error
	hook = func() {
		_, concurrent = other.VerifyEmail(ctx, token)
	}
	_, err = svc.VerifyEmail(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.NoError(t, concurrent)

	user, err := gw.Users().FindByEmail(ctx, "kai@example.com")
	require.NoError(t, err)
	require.True(t, user.IsVerified)
}

func TestAccountLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	_, gw := openServiceTestDB(t)
	hash, err := crypto.HashPassword("secret1")
	require.NoError(t, err)
	require.NoError(t, gw.Users().Create(ctx, &models.User{Name: "Pat", Email: "pat@example.com", Password: hash, IsVerified: true}))

	svc, err := NewAccountService(gw)
	require.NoError(t, err)

	_, unknownErr := svc.Login(ctx, "nobody@example.com", "secret1")
	_, wrongErr := svc.Login(ctx, "pat@example.com", "wrong-password")
	require.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	require.Equal(t, unknownErr.Error(), wrongErr.Error())

	// An unverified account with a wrong password still reports bad credentials.
	require.NoError(t, gw.Users().Create(ctx, &models.User{Name: "New", Email: "new@example.com", Password: hash}))
	_, err = svc.Login(ctx, "new@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAccountMeUnknownUser(t *testing.T) {
	_, gw := openServiceTestDB(t)
	svc, err := NewAccountService(gw)
	require.NoError(t, err)

	_, err = svc.Me(context.Background(), 42)
	require.ErrorIs(t, err, ErrUserNotFound)
}
