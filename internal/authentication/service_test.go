package authentication

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mehmetcc/calibration-auth-service/internal/metrics"
	"github.com/mehmetcc/calibration-auth-service/internal/user"
	"github.com/mehmetcc/calibration-auth-service/internal/utils"
)

const testPassword = "Secret1!"

type serviceFixture struct {
	svc    *sessionService
	users  *memUsers
	store  *memStore
	issuer *TokenIssuer
	reg    *prometheus.Registry
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	users := newMemUsers()
	store := newMemStore()
	issuer := newTestIssuer(t)
	reg := prometheus.NewRegistry()
	svc := NewSessionService(users, utils.NewPasswordHasher(bcrypt.MinCost), issuer, store, metrics.New(reg), zap.NewNop())
	return &serviceFixture{
		svc:    svc.(*sessionService),
		users:  users,
		store:  store,
		issuer: issuer,
		reg:    reg,
	}
}

// counterValue reads a counter from reg; result selects the "result" label and
// is ignored for unlabelled counters.
func counterValue(t *testing.T, reg *prometheus.Registry, name, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if len(m.GetLabel()) == 0 {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func (f *serviceFixture) register(t *testing.T, email string) *user.Profile {
	t.Helper()
	profile, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: testPassword, Name: "A"})
	require.NoError(t, err)
	return profile
}

func (f *serviceFixture) login(t *testing.T, email string) *LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
	return res
}

func TestRegister_CreatesUserWithDefaults(t *testing.T) {
	f := newServiceFixture(t)

	profile := f.register(t, "  Alice@Example.com ")

	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, user.RoleUser, profile.Role)
	assert.True(t, profile.IsActive)
	assert.False(t, profile.EmailVerified)

	stored, err := f.users.ReadByID(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, stored.PasswordHash)
	assert.Equal(t, 1.0, counterValue(t, f.reg, "auth_registrations_total", metrics.ResultSuccess))
}

func TestRegister_DuplicateEmailAnyCasing(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "a@b.com")

	for _, email := range []string{"a@b.com", "A@B.COM", "a@B.com"} {
		_, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: testPassword, Name: "Other"})
		assert.ErrorIs(t, err, ErrConflict, email)
	}
	assert.Equal(t, 1, f.users.count())
}

func TestRegister_ValidationBeforeMutation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "not-an-email", Password: "short", Name: ""})
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, fe := range verr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"email", "password", "name"}, fields)
	assert.Zero(t, f.users.count())
}

func TestLogin_WrongPasswordAndUnknownEmailAreIndistinguishable(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "a@b.com")

	_, wrongPassword := f.svc.Login(context.Background(), "a@b.com", "Wrong1!pass")
	_, unknownEmail := f.svc.Login(context.Background(), "nobody@b.com", testPassword)

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)

	s1, m1 := StatusFor(wrongPassword)
	s2, m2 := StatusFor(unknownEmail)
	assert.Equal(t, s1, s2)
	assert.Equal(t, m1, m2)
	assert.Zero(t, f.store.count())
}

func TestLogin_CreatesExactlyOneSession(t *testing.T) {
	f := newServiceFixture(t)
	profile := f.register(t, "a@b.com")

	fixed := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	f.issuer.now = func() time.Time { return fixed }
	f.svc.now = func() time.Time { return fixed }

	res := f.login(t, "A@b.com")

	require.Equal(t, 1, f.store.count())
	rec := f.store.only()
	assert.Equal(t, profile.ID, rec.UserID)
	assert.Equal(t, fixed.Add(DefaultRefreshTokenTTL), rec.ExpiresAt)
	assert.Equal(t, HashToken(res.RefreshToken), rec.TokenHash)
	assert.Equal(t, rec.ExpiresAt, res.RefreshExpiresAt)

	require.NotNil(t, res.User.LastLoginAt)
	assert.Equal(t, fixed, *res.User.LastLoginAt)

	claims, err := f.issuer.VerifyAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, claims.UserID)
	assert.Equal(t, user.RoleUser, claims.Role)
}

func TestLogin_InactiveAccount(t *testing.T) {
	f := newServiceFixture(t)
	profile := f.register(t, "a@b.com")
	require.NoError(t, f.users.UpdateActive(context.Background(), profile.ID, false))

	_, err := f.svc.Login(context.Background(), "a@b.com", testPassword)
	assert.ErrorIs(t, err, ErrAccountInactive)

	_, err = f.svc.Login(context.Background(), "a@b.com", "Wrong1!pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Zero(t, f.store.count())
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "a@b.com")
	res := f.login(t, "a@b.com")

	pair, err := f.svc.Refresh(context.Background(), res.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.RefreshToken, pair.RefreshToken)
	assert.NotEmpty(t, pair.AccessToken)

	assert.False(t, f.store.has(res.RefreshToken))
	assert.True(t, f.store.has(pair.RefreshToken))
	assert.Equal(t, 1, f.store.count())

	_, err = f.svc.Refresh(context.Background(), res.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	next, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.True(t, f.store.has(next.RefreshToken))

	assert.Equal(t, 2.0, counterValue(t, f.reg, "auth_refreshes_total", metrics.ResultSuccess))
	assert.Equal(t, 2.0, counterValue(t, f.reg, "auth_refreshes_total", metrics.ResultRejected))
}

func TestRefresh_StoredExpiryPassed(t *testing.T) {
	f := newServiceFixture(t)
	profile := f.register(t, "a@b.com")

	token, _, err := f.issuer.IssueRefresh(profile.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), token, profile.ID, time.Now().Add(-time.Second)))

	_, err = f.svc.Refresh(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, f.store.has(token))
}

func TestRefresh_SignedExpiryPassed(t *testing.T) {
	f := newServiceFixture(t)
	profile := f.register(t, "a@b.com")

	f.issuer.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	token, expiresAt, err := f.issuer.IssueRefresh(profile.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), token, profile.ID, expiresAt))
	f.issuer.now = time.Now

	_, err = f.svc.Refresh(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, f.store.has(token))
	assert.Zero(t, f.store.count())
}

func TestRefresh_SignedExpiryPassedStoreDown(t *testing.T) {
	f := newServiceFixture(t)
	profile := f.register(t, "a@b.com")

	f.issuer.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	token, expiresAt, err := f.issuer.IssueRefresh(profile.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), token, profile.ID, expiresAt))
	f.issuer.now = time.Now

	f.store.failing = true
	_, err = f.svc.Refresh(context.Background(), token)
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestRefresh_RejectsGarbageAndUnknownTokens(t *testing.T) {
	f := newServiceFixture(t)
	profile := f.register(t, "a@b.com")

	_, err := f.svc.Refresh(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Correctly signed but never stored.
	token, _, err := f.issuer.IssueRefresh(profile.ID)
	require.NoError(t, err)
	_, err = f.svc.Refresh(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_SubjectMismatch(t *testing.T) {
	f := newServiceFixture(t)
	alice := f.register(t, "alice@b.com")
	bob := f.register(t, "bob@b.com")

	token, expiresAt, err := f.issuer.IssueRefresh(alice.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), token, bob.ID, expiresAt))

	_, err = f.svc.Refresh(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_OwnerDeactivatedOrDeleted(t *testing.T) {
	f := newServiceFixture(t)
	profile := f.register(t, "a@b.com")

	res := f.login(t, "a@b.com")
	require.NoError(t, f.users.UpdateActive(context.Background(), profile.ID, false))
	_, err := f.svc.Refresh(context.Background(), res.RefreshToken)
	assert.ErrorIs(t, err, ErrAccountInactive)

	require.NoError(t, f.users.UpdateActive(context.Background(), profile.ID, true))
	res = f.login(t, "a@b.com")
	require.NoError(t, f.users.Delete(context.Background(), profile.ID))
	_, err = f.svc.Refresh(context.Background(), res.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_StoreFailureIsInternal(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "a@b.com")
	res := f.login(t, "a@b.com")

	f.store.failing = true
	_, err := f.svc.Refresh(context.Background(), res.RefreshToken)
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotContains(t, err.Error(), errDatabaseDown.Error())
	assert.Equal(t, 1.0, counterValue(t, f.reg, "auth_refreshes_total", metrics.ResultError))
}

func TestRefresh_ConcurrentPresentationsOnlyOneWins(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "a@b.com")
	res := f.login(t, "a@b.com")

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		invalid   int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Refresh(context.Background(), res.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, ErrInvalidToken) {
				invalid++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, invalid)
	assert.Equal(t, 1, f.store.count())
}

func TestLogout(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "a@b.com")
	res := f.login(t, "a@b.com")

	require.NoError(t, f.svc.Logout(context.Background(), res.RefreshToken))
	assert.Zero(t, f.store.count())

	_, err := f.svc.Refresh(context.Background(), res.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.NoError(t, f.svc.Logout(context.Background(), res.RefreshToken))
	assert.NoError(t, f.svc.Logout(context.Background(), ""))
	assert.NoError(t, f.svc.Logout(context.Background(), "never-issued"))
}

func TestLogoutAll(t *testing.T) {
	f := newServiceFixture(t)
	alice := f.register(t, "alice@b.com")
	f.register(t, "bob@b.com")

	first := f.login(t, "alice@b.com")
	second := f.login(t, "alice@b.com")
	f.login(t, "bob@b.com")
	require.Equal(t, 3, f.store.count())

	require.NoError(t, f.svc.LogoutAll(context.Background(), alice.ID))
	assert.Equal(t, 1, f.store.count())

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		_, err := f.svc.Refresh(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestProfile(t *testing.T) {
	f := newServiceFixture(t)
	profile := f.register(t, "a@b.com")

	got, err := f.svc.Profile(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.Email, got.Email)

	_, err = f.svc.Profile(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
