package renteasy

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenRecord is the current access/refresh token pair and its metadata.
// Owned exclusively by the TokenStore; replaced atomically, never mutated
// in place.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the access token expiry, zero when unknown.
	ExpiresAt time.Time
	SessionID string
}

// RefreshFunc exchanges a refresh token for a new token pair. Supplied at
// construction so the store has no dependency on the executor that uses it.
type RefreshFunc func(ctx context.Context, refreshToken string) (*TokenRecord, error)

// TokenChangeFunc observes token replacement. A nil record means the
// session ended.
type TokenChangeFunc func(record *TokenRecord)

const (
	// refreshLeeway is how long before expiry the proactive refresh fires.
	refreshLeeway = 2 * time.Minute
	// Proactive refresh is only scheduled when it would fire within this
	// window: sooner is not worth a timer, later is not worth trusting.
	minRefreshDelay = 30 * time.Second
	maxRefreshDelay = 24 * time.Hour
)

// TokenStore is the single source of truth for the auth token pair. It
// persists tokens to durable storage, mirrors them into a cookie channel for
// server-side validation, proactively refreshes before expiry and collapses
// concurrent refresh calls into one. Safe for concurrent use.
type TokenStore struct {
	mu      sync.Mutex
	record  *TokenRecord
	storage Storage
	cookies CookieJar

	refreshFn RefreshFunc
	timer     *time.Timer

	subscribers []*subscriber
	nextSubID   int

	sf     singleflight.Group
	logger Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

type subscriber struct {
	id int
	fn TokenChangeFunc
}

// TokenStoreOption configures a TokenStore.
type TokenStoreOption func(*TokenStore)

// WithTokenStorage sets the durable storage backend.
func WithTokenStorage(s Storage) TokenStoreOption {
	return func(ts *TokenStore) {
		ts.storage = s
	}
}

// WithTokenCookies sets the cookie mirror channel.
func WithTokenCookies(j CookieJar) TokenStoreOption {
	return func(ts *TokenStore) {
		ts.cookies = j
	}
}

// WithTokenLogger sets the logger for refresh lifecycle events.
func WithTokenLogger(l Logger) TokenStoreOption {
	return func(ts *TokenStore) {
		ts.logger = l
	}
}

// NewTokenStore creates a TokenStore. refreshFn may be nil when the caller
// never refreshes (e.g. API-key style auth); proactive refresh is then
// disabled.
func NewTokenStore(refreshFn RefreshFunc, opts ...TokenStoreOption) *TokenStore {
	ts := &TokenStore{
		refreshFn: refreshFn,
		storage:   NewMemoryStorage(),
		cookies:   NewMemoryCookieJar(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

// SetTokens replaces the current token pair: persists it, mirrors it into
// the cookie channel, reschedules the proactive refresh and notifies
// subscribers. Always succeeds.
func (ts *TokenStore) SetTokens(record TokenRecord) {
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = tokenExpiry(record.AccessToken)
	}

	ts.mu.Lock()
	ts.record = &record

	ts.storage.Set(StorageKeyAccessToken, record.AccessToken)
	ts.cookies.SetCookie(CookieAccessToken, record.AccessToken)
	if record.RefreshToken != "" {
		ts.storage.Set(StorageKeyRefreshToken, record.RefreshToken)
		ts.cookies.SetCookie(CookieRefreshToken, record.RefreshToken)
	}

	ts.scheduleRefreshLocked(record.ExpiresAt)
	subs := ts.subscribersLocked()
	ts.mu.Unlock()

	notify(subs, &record)
}

// Clear wipes the token pair from memory, durable storage and the cookie
// mirror, cancels any scheduled refresh and notifies subscribers with nil.
func (ts *TokenStore) Clear() {
	ts.mu.Lock()
	ts.record = nil

	ts.storage.Delete(StorageKeyAccessToken)
	ts.storage.Delete(StorageKeyRefreshToken)
	ts.storage.Delete(StorageKeyUserProfile)
	ts.cookies.ClearCookie(CookieAccessToken)
	ts.cookies.ClearCookie(CookieRefreshToken)

	if ts.timer != nil {
		ts.timer.Stop()
		ts.timer = nil
	}
	subs := ts.subscribersLocked()
	ts.mu.Unlock()

	notify(subs, nil)
}

// AccessToken returns the current access token, falling back to durable
// storage after a fresh process start. The cookie mirror is re-synchronized
// when it disagrees with the durable value.
func (ts *TokenStore) AccessToken() string {
	return ts.token(StorageKeyAccessToken, CookieAccessToken, func(r *TokenRecord) string {
		return r.AccessToken
	})
}

// RefreshToken returns the current refresh token with the same fallback
// semantics as AccessToken.
func (ts *TokenStore) RefreshToken() string {
	return ts.token(StorageKeyRefreshToken, CookieRefreshToken, func(r *TokenRecord) string {
		return r.RefreshToken
	})
}

func (ts *TokenStore) token(storageKey, cookieName string, field func(*TokenRecord) string) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.record != nil {
		if v := field(ts.record); v != "" {
			return v
		}
	}

	stored, ok := ts.storage.Get(storageKey)
	if !ok || stored == "" {
		return ""
	}

	// Memory was empty (fresh process); hydrate it from durable storage.
	if ts.record == nil {
		access, _ := ts.storage.Get(StorageKeyAccessToken)
		refresh, _ := ts.storage.Get(StorageKeyRefreshToken)
		ts.record = &TokenRecord{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    tokenExpiry(access),
		}
	}

	if mirrored, _ := ts.cookies.Cookie(cookieName); mirrored != stored {
		ts.cookies.SetCookie(cookieName, stored)
	}

	return stored
}

// Expired reports whether the access token is past its expiry. Tokens with
// no known expiry report false; the proactive refresh policy is the safety
// net for those.
func (ts *TokenStore) Expired() bool {
	return ts.NeedsRefresh(0)
}

// NeedsRefresh reports whether the access token expires within buffer.
func (ts *TokenStore) NeedsRefresh(buffer time.Duration) bool {
	ts.mu.Lock()
	record := ts.record
	ts.mu.Unlock()

	expiry := time.Time{}
	if record != nil {
		expiry = record.ExpiresAt
		if expiry.IsZero() {
			expiry = tokenExpiry(record.AccessToken)
		}
	} else if access, ok := ts.storage.Get(StorageKeyAccessToken); ok {
		expiry = tokenExpiry(access)
	}

	if expiry.IsZero() {
		return false
	}
	return ts.now().Add(buffer).After(expiry)
}

// OnChange registers a callback invoked synchronously, in registration
// order, whenever the token pair is replaced or cleared. The returned
// function unsubscribes it.
func (ts *TokenStore) OnChange(fn TokenChangeFunc) func() {
	ts.mu.Lock()
	ts.nextSubID++
	sub := &subscriber{id: ts.nextSubID, fn: fn}
	ts.subscribers = append(ts.subscribers, sub)
	ts.mu.Unlock()

	return func() {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		for i, s := range ts.subscribers {
			if s.id == sub.id {
				ts.subscribers = append(ts.subscribers[:i], ts.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Refresh exchanges the refresh token for a new pair. Concurrent callers
// collapse into a single refresh call and share its outcome. On success the
// new pair is installed via SetTokens; on failure tokens are cleared so the
// caller is forced to re-authenticate.
func (ts *TokenStore) Refresh(ctx context.Context) (*TokenRecord, error) {
	result, err, _ := ts.sf.Do("refresh", func() (any, error) {
		if ts.refreshFn == nil {
			return nil, ErrNotAuthenticated
		}
		refreshToken := ts.RefreshToken()
		if refreshToken == "" {
			return nil, ErrNotAuthenticated
		}

		record, err := ts.refreshFn(ctx, refreshToken)
		if err != nil {
			if ts.logger != nil {
				ts.logger.Warn("token refresh failed", "error", err.Error())
			}
			ts.Clear()
			return nil, err
		}

		ts.SetTokens(*record)
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*TokenRecord), nil
}

// Current returns a copy of the current record, or nil when signed out.
func (ts *TokenStore) Current() *TokenRecord {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.record == nil {
		return nil
	}
	record := *ts.record
	return &record
}

// scheduleRefreshLocked replaces the proactive refresh timer. Caller holds
// ts.mu. The timer fires refreshLeeway before expiry, and only when that
// delay lands inside [minRefreshDelay, maxRefreshDelay].
func (ts *TokenStore) scheduleRefreshLocked(expiresAt time.Time) {
	if ts.timer != nil {
		ts.timer.Stop()
		ts.timer = nil
	}
	if ts.refreshFn == nil || expiresAt.IsZero() {
		return
	}

	delay := expiresAt.Add(-refreshLeeway).Sub(ts.now())
	if delay < minRefreshDelay || delay > maxRefreshDelay {
		return
	}

	ts.timer = time.AfterFunc(delay, func() {
		// Refresh clears tokens on failure; no background retry loop.
		if _, err := ts.Refresh(context.Background()); err != nil && ts.logger != nil {
			ts.logger.Warn("proactive refresh failed, session cleared", "error", err.Error())
		}
	})
}

func (ts *TokenStore) subscribersLocked() []*subscriber {
	subs := make([]*subscriber, len(ts.subscribers))
	copy(subs, ts.subscribers)
	return subs
}

// notify invokes callbacks in registration order. A panicking callback does
// not prevent the rest from running.
func notify(subs []*subscriber, record *TokenRecord) {
	for _, sub := range subs {
		func() {
			defer func() {
				_ = recover()
			}()
			sub.fn(record)
		}()
	}
}
