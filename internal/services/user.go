package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"companion-api/internal/models"
	"companion-api/internal/repository"
	"companion-api/pkg/cache"
)

// UserStore is the persistence the user service needs
type UserStore interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByTwitchID(ctx context.Context, twitchID int64) (*models.User, error)
	UpsertTwitch(ctx context.Context, twitchID, points int64) (*models.User, error)
}

// TokenIssuer signs API tokens
type TokenIssuer interface {
	GenerateToken(userID string, scopes ...string) (string, error)
}

type UserService struct {
	users  UserStore
	tokens TokenIssuer
	cache  cache.Cache
	logger *slog.Logger
}

func NewUserService(users UserStore, tokens TokenIssuer) *UserService {
	return &UserService{
		users:  users,
		tokens: tokens,
		logger: slog.Default(),
	}
}

// SetCache enables short-lived caching of point balances
func (s *UserService) SetCache(c cache.Cache) {
	s.cache = c
}

type CreateUserResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// CreateUser stores a new user and issues an API token for it
func (s *UserService) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*CreateUserResponse, error) {
	if req.TwitchID != 0 {
		if existing, err := s.users.FindByTwitchID(ctx, req.TwitchID); err == nil && existing != nil {
			return nil, ErrUserExists
		}
	}

	user, err := s.users.Create(ctx, &models.User{
		DiscordID: req.DiscordID,
		TwitchID:  req.TwitchID,
		Moderator: req.Moderator,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	token, err := s.tokens.GenerateToken(strconv.FormatInt(user.ID, 10), user.Scopes()...)
	if err != nil {
		return nil, err
	}
	return &CreateUserResponse{User: user, Token: token}, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetPoints returns a viewer's balance. Unknown viewers have zero points.
func (s *UserService) GetPoints(ctx context.Context, twitchID int64) (*models.Points, error) {
	key := strconv.FormatInt(twitchID, 10)

	if s.cache != nil {
		var cached models.Points
		if found, err := s.cache.Get(ctx, "points", key, &cached); err != nil {
			s.logger.Warn("points cache read failed", "twitch_id", twitchID, "error", err)
		} else if found {
			return &cached, nil
		}
	}

	points := &models.Points{TwitchID: twitchID}
	user, err := s.users.FindByTwitchID(ctx, twitchID)
	switch {
	case err == nil:
		points.Points = user.Points
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, "points", key, points); err != nil {
			s.logger.Warn("points cache write failed", "twitch_id", twitchID, "error", err)
		}
	}
	return points, nil
}

// AddPoints credits a viewer, creating the user on first sight
func (s *UserService) AddPoints(ctx context.Context, twitchID, amount int64) (*models.Points, error) {
	user, err := s.users.UpsertTwitch(ctx, twitchID, amount)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, "points", strconv.FormatInt(twitchID, 10)); err != nil {
			s.logger.Warn("points cache invalidation failed", "twitch_id", twitchID, "error", err)
		}
	}
	return &models.Points{TwitchID: twitchID, Points: user.Points}, nil
}
