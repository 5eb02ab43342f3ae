package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/voicecraft/speech-backend/internal/auth"
	"github.com/voicecraft/speech-backend/internal/auth/authfakes"
	"github.com/voicecraft/speech-backend/internal/model"
	"github.com/voicecraft/speech-backend/internal/token"
)

const (
	accessSecret  = "access-secret-1"
	refreshSecret = "refresh-secret-1"
)

type lifecycleFixture struct {
	users    *authfakes.FakeUserStore
	sessions *authfakes.FakeSessionStore
	service  *auth.Lifecycle
	user     *model.User
}

func setupLifecycle(t *testing.T) *lifecycleFixture {
	t.Helper()
	users := authfakes.NewFakeUserStore()
	sessions := authfakes.NewFakeSessionStore(users)
	codec := token.NewCodec(accessSecret, refreshSecret, "15m", "7d", zerolog.Nop())
	u := users.Add(&model.User{Email: "a@x.com", Role: model.RoleCustomer})
	return &lifecycleFixture{
		users:    users,
		sessions: sessions,
		service:  auth.NewLifecycle(codec, sessions, zerolog.Nop()),
		user:     u,
	}
}

func (f *lifecycleFixture) issue(t *testing.T) *auth.TokenPair {
	t.Helper()
	pair, err := f.service.Issue(context.Background(), f.user.ID, f.user.Email, f.user.Role)
	require.NoError(t, err)
	return pair
}

func requireKind(t *testing.T, err error, kind auth.Kind) {
	t.Helper()
	require.Error(t, err)
	require.True(t, auth.IsKind(err, kind), "got %v", err)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	f := setupLifecycle(t)
	pair := f.issue(t)

	claims, sess, err := f.service.Verify(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, claims.UserID)
	require.Equal(t, f.user.ID, sess.UserID)
	require.Equal(t, 1, f.sessions.Count())
}

func TestIssueTwiceSameSecond(t *testing.T) {
	f := setupLifecycle(t)

	// Back-to-back issues land in the same iat second; each must still get
	// its own session row, and revoking one device leaves the other alive.
	first := f.issue(t)
	second := f.issue(t)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.Equal(t, 2, f.sessions.Count())

	ok, err := f.service.Revoke(context.Background(), first.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, f.sessions.Count())

	_, _, err = f.service.Verify(context.Background(), second.AccessToken)
	require.NoError(t, err)
}

func TestExpiryOrderingInvariant(t *testing.T) {
	f := setupLifecycle(t)
	for i := 0; i < 3; i++ {
		pair := f.issue(t)
		require.False(t, pair.AccessExpiresAt.After(pair.RefreshExpiresAt))
	}
}

func TestRawTokensNeverStored(t *testing.T) {
	f := setupLifecycle(t)
	pair := f.issue(t)

	for _, sess := range f.sessions.All() {
		require.NotEqual(t, pair.AccessToken, sess.TokenHash)
		require.NotEqual(t, pair.RefreshToken, sess.RefreshTokenHash)
		require.Equal(t, token.Hash(pair.AccessToken), sess.TokenHash)
		require.Equal(t, token.Hash(pair.RefreshToken), sess.RefreshTokenHash)
	}
}

func TestRotateInvalidatesPredecessor(t *testing.T) {
	f := setupLifecycle(t)
	pair := f.issue(t)

	fresh, user, err := f.service.Rotate(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, user.ID)
	require.NotEqual(t, pair.RefreshToken, fresh.RefreshToken)
	require.Equal(t, 1, f.sessions.Count())

	// The old refresh token was consumed by the rotation.
	_, _, err = f.service.Rotate(context.Background(), pair.RefreshToken)
	requireKind(t, err, auth.KindTokenExpired)

	// The old access token lost its session too.
	_, _, err = f.service.Verify(context.Background(), pair.AccessToken)
	requireKind(t, err, auth.KindSessionExpired)

	// The fresh pair works.
	_, _, err = f.service.Verify(context.Background(), fresh.AccessToken)
	require.NoError(t, err)
}

func TestRotateRejectsAccessToken(t *testing.T) {
	f := setupLifecycle(t)
	pair := f.issue(t)

	// An access token is signed with the other secret, so it fails the
	// signature check outright.
	_, _, err := f.service.Rotate(context.Background(), pair.AccessToken)
	requireKind(t, err, auth.KindTokenInvalid)

	// A token signed with the refresh secret but carrying the wrong type
	// claim is refused before any session work.
	wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "1",
		"type": token.TypeAccess,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(refreshSecret))
	require.NoError(t, err)
	_, _, err = f.service.Rotate(context.Background(), wrongType)
	requireKind(t, err, auth.KindUnauthorized)
}

func TestRotateDeadSessionPurged(t *testing.T) {
	f := setupLifecycle(t)
	pair := f.issue(t)
	for _, s := range f.sessions.All() {
		f.sessions.ExpireRefresh(s.ID)
	}

	_, _, err := f.service.Rotate(context.Background(), pair.RefreshToken)
	requireKind(t, err, auth.KindTokenExpired)
	require.Equal(t, 0, f.sessions.Count(), "dead session must be purged")
}

func TestVerifyExpiredSessionWindow(t *testing.T) {
	f := setupLifecycle(t)
	pair := f.issue(t)
	for _, s := range f.sessions.All() {
		f.sessions.ExpireAccess(s.ID)
	}

	_, _, err := f.service.Verify(context.Background(), pair.AccessToken)
	requireKind(t, err, auth.KindSessionExpired)
}

func TestRevokeIsIdempotent(t *testing.T) {
	f := setupLifecycle(t)
	pair := f.issue(t)

	ok, err := f.service.Revoke(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, f.sessions.Count())

	// Second revoke deletes nothing and still succeeds.
	ok, err = f.service.Revoke(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)

	// Garbage input is also fine — there is nothing to revoke.
	ok, err = f.service.Revoke(context.Background(), "garbage")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRevokeAll(t *testing.T) {
	f := setupLifecycle(t)
	f.issue(t)
	f.issue(t)

	n, err := f.service.RevokeAll(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.Equal(t, 0, f.sessions.Count())
}

func TestCrossUserHashGuard(t *testing.T) {
	f := setupLifecycle(t)
	other := f.users.Add(&model.User{Email: "b@x.com", Role: model.RoleCustomer})
	pair := f.issue(t)

	// Even handed user A's exact stored hash, a lookup scoped to user B
	// returns nothing.
	sess, err := f.sessions.FindByAccessHash(context.Background(), other.ID, token.Hash(pair.AccessToken))
	require.NoError(t, err)
	require.Nil(t, sess)

	sess, _, err = f.sessions.FindByRefreshHash(context.Background(), other.ID, token.Hash(pair.RefreshToken))
	require.NoError(t, err)
	require.Nil(t, sess)
}
