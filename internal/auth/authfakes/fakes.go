// Package authfakes provides in-memory implementations of the auth store
// contracts for tests.
package authfakes

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voicecraft/speech-backend/internal/auth"
	"github.com/voicecraft/speech-backend/internal/model"
)

// FakeSessionStore keeps session rows in a map guarded by a mutex.
type FakeSessionStore struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.Session
	Users  *FakeUserStore // consulted by FindByRefreshHash's user join
}

// NewFakeSessionStore builds an empty store backed by the given user store.
func NewFakeSessionStore(users *FakeUserStore) *FakeSessionStore {
	return &FakeSessionStore{rows: map[uint64]*model.Session{}, Users: users}
}

func (f *FakeSessionStore) Create(_ context.Context, userID uint64, accessHash, refreshHash string, expiresAt, refreshExpiresAt time.Time) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Mirror the schema's (user_id, hash) unique keys.
	for _, s := range f.rows {
		if s.UserID == userID && (s.TokenHash == accessHash || s.RefreshTokenHash == refreshHash) {
			return nil, auth.ErrDuplicate
		}
	}
	f.nextID++
	s := &model.Session{
		ID:               f.nextID,
		UserID:           userID,
		TokenHash:        accessHash,
		RefreshTokenHash: refreshHash,
		ExpiresAt:        expiresAt,
		RefreshExpiresAt: refreshExpiresAt,
		LastUsedAt:       time.Now(),
		CreatedAt:        time.Now(),
	}
	f.rows[s.ID] = s
	return copySession(s), nil
}

func (f *FakeSessionStore) FindByAccessHash(_ context.Context, userID uint64, accessHash string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.UserID == userID && s.TokenHash == accessHash {
			return copySession(s), nil
		}
	}
	return nil, nil
}

func (f *FakeSessionStore) FindByRefreshHash(ctx context.Context, userID uint64, refreshHash string) (*model.Session, *model.User, error) {
	f.mu.Lock()
	var found *model.Session
	for _, s := range f.rows {
		if s.UserID == userID && s.RefreshTokenHash == refreshHash {
			found = copySession(s)
			break
		}
	}
	f.mu.Unlock()
	if found == nil {
		return nil, nil, nil
	}
	user, err := f.Users.FindByID(ctx, found.UserID)
	if err != nil || user == nil {
		return nil, nil, err
	}
	return found, user, nil
}

func (f *FakeSessionStore) Touch(_ context.Context, sessionID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[sessionID]; ok {
		s.LastUsedAt = time.Now()
	}
	return nil
}

func (f *FakeSessionStore) Delete(_ context.Context, sessionID uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[sessionID]; !ok {
		return 0, nil
	}
	delete(f.rows, sessionID)
	return 1, nil
}

func (f *FakeSessionStore) DeleteByAccessHash(_ context.Context, userID uint64, accessHash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.rows {
		if s.UserID == userID && s.TokenHash == accessHash {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *FakeSessionStore) DeleteAllForUser(_ context.Context, userID uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.rows {
		if s.UserID == userID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored rows.
func (f *FakeSessionStore) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// All returns copies of every stored row.
func (f *FakeSessionStore) All() []*model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Session, 0, len(f.rows))
	for _, s := range f.rows {
		out = append(out, copySession(s))
	}
	return out
}

// ExpireAccess rewinds a session's access expiry so tests can simulate a
// lapsed access window.
func (f *FakeSessionStore) ExpireAccess(sessionID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[sessionID]; ok {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// ExpireRefresh rewinds a session's refresh expiry.
func (f *FakeSessionStore) ExpireRefresh(sessionID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[sessionID]; ok {
		s.ExpiresAt = time.Now().Add(-2 * time.Minute)
		s.RefreshExpiresAt = time.Now().Add(-time.Minute)
	}
}

func copySession(s *model.Session) *model.Session {
	c := *s
	return &c
}

// FakeUserStore keeps user rows in a map.
type FakeUserStore struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.User
}

// NewFakeUserStore builds an empty user store.
func NewFakeUserStore() *FakeUserStore {
	return &FakeUserStore{rows: map[uint64]*model.User{}}
}

// Add inserts a user, assigning an ID when unset, and returns it.
func (f *FakeUserStore) Add(u *model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == 0 {
		f.nextID++
		u.ID = f.nextID
	} else if u.ID > f.nextID {
		f.nextID = u.ID
	}
	f.rows[u.ID] = u
	return u
}

func (f *FakeUserStore) FindByID(_ context.Context, id uint64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.rows[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (f *FakeUserStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range f.rows {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (f *FakeUserStore) UpdateProfile(_ context.Context, id uint64, name, avatarURL, language *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.rows[id]
	if !ok {
		return nil
	}
	if name != nil {
		u.Name = *name
	}
	if avatarURL != nil {
		u.AvatarURL = *avatarURL
	}
	if language != nil {
		u.Language = *language
	}
	return nil
}

// FakeOAuthAccountStore keeps provider links in a map keyed by
// provider+providerID.
type FakeOAuthAccountStore struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[string]*model.OAuthAccount
	Users  *FakeUserStore
}

// NewFakeOAuthAccountStore builds an empty account store backed by the
// given user store.
func NewFakeOAuthAccountStore(users *FakeUserStore) *FakeOAuthAccountStore {
	return &FakeOAuthAccountStore{rows: map[string]*model.OAuthAccount{}, Users: users}
}

func key(provider, providerID string) string { return provider + "|" + providerID }

func (f *FakeOAuthAccountStore) FindByProvider(_ context.Context, provider, providerID string) (*model.OAuthAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.rows[key(provider, providerID)]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (f *FakeOAuthAccountStore) Create(_ context.Context, account *model.OAuthAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.rows[key(account.Provider, account.ProviderID)]; exists {
		return auth.ErrDuplicate
	}
	f.nextID++
	account.ID = f.nextID
	f.rows[key(account.Provider, account.ProviderID)] = account
	return nil
}

func (f *FakeOAuthAccountStore) CreateWithUser(ctx context.Context, user *model.User, account *model.OAuthAccount) error {
	f.mu.Lock()
	if _, exists := f.rows[key(account.Provider, account.ProviderID)]; exists {
		f.mu.Unlock()
		return auth.ErrDuplicate
	}
	f.mu.Unlock()
	if existing, _ := f.Users.FindByEmail(ctx, user.Email); existing != nil {
		return auth.ErrDuplicate
	}

	f.Users.Add(user)
	account.UserID = user.ID
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	account.ID = f.nextID
	f.rows[key(account.Provider, account.ProviderID)] = account
	return nil
}

// Count returns the number of stored links.
func (f *FakeOAuthAccountStore) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}
