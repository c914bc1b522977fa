package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"companion-api/internal/models"
	"companion-api/internal/repository"
	"companion-api/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeQuotes struct {
	mu     sync.Mutex
	quotes map[int64]*models.Quote
	finds  int
	seq    int64
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{quotes: make(map[int64]*models.Quote)}
}

func (f *fakeQuotes) Create(_ context.Context, q *models.Quote) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.quotes {
		if existing.Content == q.Content {
			return nil, fmt.Errorf("quote: %w", repository.ErrDuplicate)
		}
	}
	f.seq++
	q.ID = f.seq
	f.quotes[q.ID] = q
	return q, nil
}

func (f *fakeQuotes) FindByID(_ context.Context, id int64) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	q, ok := f.quotes[id]
	if !ok {
		return nil, fmt.Errorf("quote %d: %w", id, repository.ErrNotFound)
	}
	return q, nil
}

type dispatched struct {
	subscription string
	data         any
}

type fakeDispatcher struct {
	events []dispatched
}

func (f *fakeDispatcher) Dispatch(subscription string, data any) int {
	f.events = append(f.events, dispatched{subscription, data})
	return 1
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]*models.User
	finds int
	next  int64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[int64]*models.User), next: 100}
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	u.ID = f.next
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, _ := strconv.ParseInt(id, 10, 64)
	if u, ok := f.users[uid]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
}

func (f *fakeUsers) FindByTwitchID(_ context.Context, twitchID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	for _, u := range f.users {
		if u.TwitchID == twitchID {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
}

func (f *fakeUsers) UpsertTwitch(_ context.Context, twitchID, points int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.TwitchID == twitchID {
			u.Points = max(0, u.Points+points)
			return u, nil
		}
	}
	f.next++
	u := &models.User{ID: f.next, TwitchID: twitchID, Points: max(0, points)}
	f.users[u.ID] = u
	return u, nil
}

type fakeTokens struct{}

func (fakeTokens) GenerateToken(userID string, scopes ...string) (string, error) {
	return fmt.Sprintf("token-%s-%d", userID, len(scopes)), nil
}

func setupTestCache(t *testing.T) *cache.RedisCache {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return cache.NewRedisCache(client, cache.DefaultCacheConfig())
}
