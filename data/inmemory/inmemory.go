package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/haydenwoodhead/autointern/data"
)

var _ data.Database = &InMemory{}

// InMemory implements an in memory database
type InMemory struct {
	users         map[string]data.User
	subscriptions map[string]data.Subscription
	accounts      map[string]data.MailAccount
	records       map[string]data.SendRecord
	enhancements  map[string]data.ResumeEnhancement
	m             sync.RWMutex
}

// GetInMemoryDB returns a new InMemoryDB to use
func GetInMemoryDB() *InMemory {
	return &InMemory{
		users:         make(map[string]data.User),
		subscriptions: make(map[string]data.Subscription),
		accounts:      make(map[string]data.MailAccount),
		records:       make(map[string]data.SendRecord),
		enhancements:  make(map[string]data.ResumeEnhancement),
	}
}

// Start implements Database Start()
func (im *InMemory) Start() error {
	return nil
}

// SaveNewUser saves a user
func (im *InMemory) SaveNewUser(_ context.Context, u data.User) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.users[u.ID] = u
	return nil
}

// GetUserByID gets a user by id
func (im *InMemory) GetUserByID(_ context.Context, id string) (data.User, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	u, ok := im.users[id]
	if !ok {
		return data.User{}, data.ErrNotFound
	}
	return u, nil
}

// UpdateOnboarding replaces the onboarding document of a user
func (im *InMemory) UpdateOnboarding(_ context.Context, userID string, doc string, updatedAt int64) error {
	im.m.Lock()
	defer im.m.Unlock()

	u, ok := im.users[userID]
	if !ok {
		return data.ErrNotFound
	}

	u.Onboarding = doc
	u.UpdatedAt = updatedAt
	im.users[userID] = u
	return nil
}

// SaveSubscription inserts or replaces a subscription
func (im *InMemory) SaveSubscription(_ context.Context, s data.Subscription) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.subscriptions[s.UserID] = s
	return nil
}

// GetSubscriptionByUserID gets the subscription of a user
func (im *InMemory) GetSubscriptionByUserID(_ context.Context, userID string) (data.Subscription, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	s, ok := im.subscriptions[userID]
	if !ok {
		return data.Subscription{}, data.ErrNotFound
	}
	return s, nil
}

// UpsertMailAccount links a mailbox, replacing the credentials of an existing link
func (im *InMemory) UpsertMailAccount(_ context.Context, a data.MailAccount) (data.MailAccount, error) {
	im.m.Lock()
	defer im.m.Unlock()

	for id, existing := range im.accounts {
		if existing.UserID != a.UserID || existing.Address != a.Address {
			continue
		}

		existing.AccessToken = a.AccessToken
		existing.RefreshToken = a.RefreshToken
		existing.TokenExpiry = a.TokenExpiry
		existing.Scopes = a.Scopes
		existing.NeedsReauth = false
		existing.UpdatedAt = a.UpdatedAt
		im.accounts[id] = existing
		return existing, nil
	}

	a.NeedsReauth = false
	im.accounts[a.ID] = a
	return a, nil
}

// GetMailAccountByID gets an account by id
func (im *InMemory) GetMailAccountByID(_ context.Context, id string) (data.MailAccount, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	a, ok := im.accounts[id]
	if !ok {
		return data.MailAccount{}, data.ErrNotFound
	}
	return a, nil
}

// GetMailAccountByUserID gets the most recently updated account of a user
func (im *InMemory) GetMailAccountByUserID(_ context.Context, userID string) (data.MailAccount, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	var found bool
	var latest data.MailAccount

	for _, a := range im.accounts {
		if a.UserID != userID {
			continue
		}
		if !found || a.NewerThan(latest) {
			latest = a
			found = true
		}
	}

	if !found {
		return data.MailAccount{}, data.ErrNotFound
	}
	return latest, nil
}

// UpdateMailAccountToken stores refreshed credentials
func (im *InMemory) UpdateMailAccountToken(_ context.Context, id string, accessToken string, refreshToken string, expiry int64) error {
	im.m.Lock()
	defer im.m.Unlock()

	a, ok := im.accounts[id]
	if !ok {
		return data.ErrNotFound
	}

	a.AccessToken = accessToken
	a.RefreshToken = refreshToken
	a.TokenExpiry = expiry
	im.accounts[id] = a
	return nil
}

// SetMailAccountNeedsReauth sets or clears the needs_reauth flag
func (im *InMemory) SetMailAccountNeedsReauth(_ context.Context, id string, needsReauth bool) error {
	im.m.Lock()
	defer im.m.Unlock()

	a, ok := im.accounts[id]
	if !ok {
		return data.ErrNotFound
	}

	a.NeedsReauth = needsReauth
	im.accounts[id] = a
	return nil
}

// DeleteMailAccount removes an account owned by userID
func (im *InMemory) DeleteMailAccount(_ context.Context, userID string, id string) error {
	im.m.Lock()
	defer im.m.Unlock()

	a, ok := im.accounts[id]
	if !ok || a.UserID != userID {
		return data.ErrNotFound
	}

	delete(im.accounts, id)
	return nil
}

// SaveSendRecord saves an audit record
func (im *InMemory) SaveSendRecord(_ context.Context, r data.SendRecord) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.records[r.ID] = r
	return nil
}

// GetSendRecord gets a record owned by userID
func (im *InMemory) GetSendRecord(_ context.Context, userID string, id string) (data.SendRecord, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	r, ok := im.records[id]
	if !ok || r.UserID != userID {
		return data.SendRecord{}, data.ErrNotFound
	}
	return r, nil
}

// GetSendRecordsByUserID returns all records of a user, newest first
func (im *InMemory) GetSendRecordsByUserID(_ context.Context, userID string) ([]data.SendRecord, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	recs := []data.SendRecord{}
	for _, r := range im.records {
		if r.UserID == userID {
			recs = append(recs, r)
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt > recs[j].CreatedAt
	})

	return recs, nil
}

// CountSentSince counts sent records of a user on channel created at or after since
func (im *InMemory) CountSentSince(_ context.Context, userID string, channel string, since int64) (int, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	var count int
	for _, r := range im.records {
		if r.UserID == userID && r.Channel == channel && r.Status == data.StatusSent && r.CreatedAt >= since {
			count++
		}
	}
	return count, nil
}

// SaveResumeEnhancement saves an enhancement
func (im *InMemory) SaveResumeEnhancement(_ context.Context, e data.ResumeEnhancement) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.enhancements[e.ID] = e
	return nil
}
