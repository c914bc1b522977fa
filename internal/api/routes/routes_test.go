package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"companion-api/internal/api/handlers"
	"companion-api/internal/api/middleware"
	"companion-api/internal/config"
	"companion-api/internal/models"
	"companion-api/internal/repository"
	"companion-api/internal/services"
	"companion-api/internal/websocket"
	"companion-api/pkg/jwt"
	"companion-api/pkg/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryUsers struct {
	users map[int64]*models.User
}

func (m *memoryUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	u.ID = int64(len(m.users) + 100)
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	uid, _ := strconv.ParseInt(id, 10, 64)
	if u, ok := m.users[uid]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
}

func (m *memoryUsers) FindByTwitchID(_ context.Context, twitchID int64) (*models.User, error) {
	for _, u := range m.users {
		if u.TwitchID == twitchID {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
}

func (m *memoryUsers) UpsertTwitch(ctx context.Context, twitchID, points int64) (*models.User, error) {
	if u, err := m.FindByTwitchID(ctx, twitchID); err == nil {
		u.Points = max(0, u.Points+points)
		return u, nil
	}
	return m.Create(ctx, &models.User{TwitchID: twitchID, Points: max(0, points)})
}

type memoryQuotes struct {
	quotes map[int64]*models.Quote
}

func (m *memoryQuotes) Create(_ context.Context, q *models.Quote) (*models.Quote, error) {
	q.ID = int64(len(m.quotes) + 1)
	m.quotes[q.ID] = q
	return q, nil
}

func (m *memoryQuotes) FindByID(_ context.Context, id int64) (*models.Quote, error) {
	if q, ok := m.quotes[id]; ok {
		return q, nil
	}
	return nil, fmt.Errorf("quote %d: %w", id, repository.ErrNotFound)
}

type apiFixture struct {
	engine    *gin.Engine
	store     *ratelimit.Store
	modToken  string
	userToken string
}

func setupAPI(t *testing.T, limits *ratelimit.Config) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := jwt.NewJWTUtil("0123456789abcdef0123", time.Hour)
	users := &memoryUsers{users: map[int64]*models.User{
		1: {ID: 1, Moderator: true},
		2: {ID: 2, TwitchID: 77, Points: 40},
	}}
	hub := websocket.NewHub()
	t.Cleanup(hub.Stop)

	store := ratelimit.NewStore()
	stats := ratelimit.NewMemoryRecorder()
	prom := ratelimit.NewPrometheusRecorder("companion", store)
	gate := middleware.NewGate(store, middleware.WithRecorder(ratelimit.MultiRecorder{stats, prom}))

	userService := services.NewUserService(users, tokens)
	h := &Handlers{
		Quotes:    handlers.NewQuoteHandler(services.NewQuoteService(&memoryQuotes{quotes: map[int64]*models.Quote{}}, hub)),
		Points:    handlers.NewPointsHandler(userService),
		Users:     handlers.NewUserHandler(userService),
		WebSocket: handlers.NewWebSocketHandler(hub),
		Limits:    handlers.NewLimitsHandler(store, stats, limits),
		Health: handlers.NewHealthHandler(map[string]handlers.Check{
			"fake": func(context.Context) map[string]any { return map[string]any{"healthy": true} },
		}),
		Metrics: prom.Handler(),
	}

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	sessions := middleware.NewSessionStore(rdb, "test:session")
	sessionConfig := config.SessionConfig{CookieName: "sid", MaxAge: time.Hour}

	engine := gin.New()
	engine.Use(middleware.SessionMiddleware(sessions, tokens, sessionConfig))
	engine.Use(middleware.AuthMiddleware(tokens, users))
	require.NoError(t, SetupRoutes(NewApplication(engine, gate, ""), h, limits))

	modToken, err := tokens.GenerateToken("1")
	require.NoError(t, err)
	userToken, err := tokens.GenerateToken("2")
	require.NoError(t, err)

	return &apiFixture{engine: engine, store: store, modToken: modToken, userToken: userToken}
}

func (f *apiFixture) do(method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	return f.doWithCookie(nil, method, path, token, body, headers...)
}

func (f *apiFixture) doWithCookie(cookie *http.Cookie, method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAPI_Quotes(t *testing.T) {
	f := setupAPI(t, ratelimit.DefaultConfig())

	w := f.do(http.MethodGet, "/quotes/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Bad quote ID.", decode(t, w)["message"])

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/quotes/9", "", "").Code)

	body := `{"content":"it works on my machine","source":"twitch"}`
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/quotes", "", body).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/quotes", f.userToken, body).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/quotes", f.modToken, `{"content":"x","source":"fax"}`).Code)

	w = f.do(http.MethodPost, "/quotes", f.modToken, body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/quotes/1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	quote := decode(t, w)
	assert.NotContains(t, quote, "data")
	assert.Equal(t, float64(1), quote["id"])
	assert.Equal(t, "it works on my machine", quote["content"])
	assert.Equal(t, float64(1), quote["added_by"])
}

func TestAPI_QuotesRateLimited(t *testing.T) {
	limits := ratelimit.DefaultConfig()
	limits.Limits["quotes"] = ratelimit.Limit{Rate: 2, Per: time.Minute}
	f := setupAPI(t, limits)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/quotes/1", "", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/quotes/2", "", "").Code)

	w := f.do(http.MethodGet, "/quotes/3", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, middleware.RateLimitMessage, decode(t, w)["error"])
}

func TestAPI_Points(t *testing.T) {
	f := setupAPI(t, ratelimit.DefaultConfig())

	w := f.do(http.MethodGet, "/points/nope", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Bad Twitch ID.", decode(t, w)["message"])

	w = f.do(http.MethodGet, "/points/77", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(40), decode(t, w)["data"].(map[string]any)["points"])

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/points/77", f.userToken, `{"amount":5}`).Code)

	w = f.do(http.MethodPost, "/points/77", f.modToken, `{"amount":5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(45), decode(t, w)["data"].(map[string]any)["points"])

	w = f.do(http.MethodPost, "/points/77", f.modToken, `{"amount":-100}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["data"].(map[string]any)["points"])
}

func TestAPI_Users(t *testing.T) {
	f := setupAPI(t, ratelimit.DefaultConfig())

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/users/me", "", "").Code)

	w := f.do(http.MethodGet, "/users/me", f.userToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["data"].(map[string]any)["uid"])

	w = f.do(http.MethodPost, "/users", f.modToken, `{"twitch_id":500}`)
	require.Equal(t, http.StatusCreated, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.NotEmpty(t, data["token"])

	w = f.do(http.MethodGet, "/users/me", data["token"].(string), "")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/users", f.modToken, `{"twitch_id":500}`).Code)
}

func TestAPI_HealthExemptForMonitors(t *testing.T) {
	limits := ratelimit.DefaultConfig()
	limits.Limits["player_json"] = ratelimit.Limit{Rate: 1, Per: time.Minute}
	f := setupAPI(t, limits)

	for i := 0; i < 5; i++ {
		w := f.do(http.MethodGet, "/health", "", "", "User-Agent", "kube-probe/1.29")
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 0, f.store.Len())

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/health", "", "").Code)
}

func TestAPI_LimitsDisabled(t *testing.T) {
	limits := ratelimit.DefaultConfig()
	limits.Limits["quotes"] = ratelimit.Limit{Rate: 1, Per: time.Minute}
	limits.Enabled = false
	f := setupAPI(t, limits)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/quotes/1", "", "").Code)
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestAPI_LimitsStatsAndMetrics(t *testing.T) {
	limits := ratelimit.DefaultConfig()
	limits.Limits["quotes"] = ratelimit.Limit{Rate: 1, Per: time.Minute}
	f := setupAPI(t, limits)

	f.do(http.MethodGet, "/quotes/1", "", "")
	f.do(http.MethodGet, "/quotes/1", "", "")

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/limits/stats", f.userToken, "").Code)

	w := f.do(http.MethodGet, "/limits/stats", f.modToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["blockedRequests"])
	assert.Equal(t, float64(2), data["trackedKeys"])
	byRoute := data["byRoute"].(map[string]any)
	assert.Contains(t, byRoute, "GET /quotes/:id")

	w = f.do(http.MethodGet, "/limits", f.modToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"websocket"`)

	w = f.do(http.MethodGet, "/metrics", "", "", "User-Agent", "Prometheus/2.53")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `companion_ratelimit_decisions_total{method="GET",outcome="denied",route="/quotes/:id"} 1`)
}

func TestAPI_SessionLogin(t *testing.T) {
	f := setupAPI(t, ratelimit.DefaultConfig())

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/users/session", "", "").Code)

	w := f.do(http.MethodPost, "/users/session", f.userToken, "")
	require.Equal(t, http.StatusOK, w.Code)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "sid" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	w = f.doWithCookie(cookie, http.MethodGet, "/users/me", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["data"].(map[string]any)["uid"])

	w = f.doWithCookie(cookie, http.MethodDelete, "/users/session", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusUnauthorized, f.doWithCookie(cookie, http.MethodGet, "/users/me", "", "").Code)
}
