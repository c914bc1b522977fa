package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"companion-api/internal/config"
	"companion-api/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionKey holds the *Session in the gin context
const SessionKey = "session"

// SessionStore keeps session payloads in Redis as JSON
type SessionStore struct {
	client *redis.Client
	prefix string
}

// NewSessionStore creates a store using keys "<prefix>:<id>"
func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "session"
	}
	return &SessionStore{client: client, prefix: prefix}
}

func (s *SessionStore) key(id string) string {
	return s.prefix + ":" + id
}

// Get loads a session payload. A missing key yields an empty map.
func (s *SessionStore) Get(ctx context.Context, id string) (map[string]any, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	values := map[string]any{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return values, nil
}

// Set stores a payload for ttl
func (s *SessionStore) Set(ctx context.Context, id string, values map[string]any, ttl time.Duration) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.client.Set(ctx, s.key(id), raw, ttl).Err()
}

// Delete removes a payload
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Session is the per-request view of a stored session
type Session struct {
	id        string
	values    map[string]any
	loaded    bool
	dirty     bool
	hadCookie bool
}

// Get returns a value
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetString returns a string value or ""
func (s *Session) GetString(key string) string {
	v, _ := s.values[key].(string)
	return v
}

// Set stores a value; the cookie is issued when the response starts
func (s *Session) Set(key string, value any) {
	s.values[key] = value
	s.dirty = true
}

// Delete removes a value
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Clear empties the session, which deletes it and its cookie
func (s *Session) Clear() {
	if len(s.values) > 0 {
		s.values = map[string]any{}
		s.dirty = true
	}
}

// Len returns the number of stored values
func (s *Session) Len() int {
	return len(s.values)
}

// CurrentSession returns the request's session, or nil when the session
// middleware is not installed.
func CurrentSession(c *gin.Context) *Session {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*Session)
	return sess
}

// SessionMiddleware loads the session named by the signed cookie and writes
// changes back before the response headers go out.
func SessionMiddleware(store *SessionStore, signer *jwt.JWTUtil, cfg config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := &Session{values: map[string]any{}}

		if cookie, err := c.Cookie(cfg.CookieName); err == nil && cookie != "" {
			sess.hadCookie = true
			if id, err := signer.ParseSession(cookie); err == nil {
				values, err := store.Get(c.Request.Context(), id)
				if err != nil {
					slog.Warn("session load failed", "error", err)
				} else if len(values) > 0 {
					sess.id = id
					sess.values = values
					sess.loaded = true
				}
			}
		}

		c.Set(SessionKey, sess)

		committed := false
		commit := func() {
			if committed {
				return
			}
			committed = true
			commitSession(c, store, signer, cfg, sess)
		}

		c.Writer = &sessionWriter{ResponseWriter: c.Writer, commit: commit}
		c.Next()

		if !c.Writer.Written() {
			commit()
		}
	}
}

func commitSession(c *gin.Context, store *SessionStore, signer *jwt.JWTUtil, cfg config.SessionConfig, sess *Session) {
	ctx := c.Request.Context()

	switch {
	case sess.dirty && len(sess.values) == 0:
		if sess.loaded {
			if err := store.Delete(ctx, sess.id); err != nil {
				slog.Warn("session delete failed", "error", err)
			}
		}
		if sess.hadCookie {
			setSessionCookie(c, cfg, "", -1)
		}

	case sess.dirty:
		if sess.id == "" {
			sess.id = uuid.NewString()
		}
		value, err := signer.SignSession(sess.id, cfg.MaxAge)
		if err != nil {
			slog.Error("session signing failed", "error", err)
			return
		}
		if err := store.Set(ctx, sess.id, sess.values, cfg.MaxAge); err != nil {
			slog.Warn("session save failed", "error", err)
			return
		}
		setSessionCookie(c, cfg, value, int(cfg.MaxAge/time.Second))

	case sess.hadCookie && !sess.loaded:
		// stale or forged cookie
		setSessionCookie(c, cfg, "", -1)
	}
}

func setSessionCookie(c *gin.Context, cfg config.SessionConfig, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionWriter commits the session right before the first byte is written
type sessionWriter struct {
	gin.ResponseWriter
	commit func()
}

func (w *sessionWriter) WriteHeaderNow() {
	if !w.Written() {
		w.commit()
	}
	w.ResponseWriter.WriteHeaderNow()
}

func (w *sessionWriter) Write(data []byte) (int, error) {
	if !w.Written() {
		w.commit()
	}
	return w.ResponseWriter.Write(data)
}

func (w *sessionWriter) WriteString(s string) (int, error) {
	if !w.Written() {
		w.commit()
	}
	return w.ResponseWriter.WriteString(s)
}
