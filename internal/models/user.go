package models

import (
	"time"
)

// Epoch is the reference point for generated user ids (2023-11-19T11:50:33Z)
const Epoch int64 = 1700394633000

const (
	ScopeUser      = "user"
	ScopeModerator = "moderator"
)

type User struct {
	ID        int64     `bson:"_id" json:"uid"`
	DiscordID int64     `bson:"discord_id,omitempty" json:"discord_id,omitempty"`
	TwitchID  int64     `bson:"twitch_id,omitempty" json:"twitch_id,omitempty"`
	Moderator bool      `bson:"moderator" json:"moderator"`
	Points    int64     `bson:"points" json:"points"`
	CreatedAt time.Time `bson:"created" json:"created"`
}

// Scopes returns the permissions granted to u
func (u *User) Scopes() []string {
	scopes := []string{ScopeUser}
	if u.Moderator {
		scopes = append(scopes, ScopeModerator)
	}
	return scopes
}

// GenerateUserID derives a user id from the milliseconds elapsed since Epoch
func GenerateUserID(now time.Time) int64 {
	return now.UnixMilli() - Epoch
}

type CreateUserRequest struct {
	DiscordID int64 `json:"discord_id" validate:"omitempty,gt=0"`
	TwitchID  int64 `json:"twitch_id" validate:"omitempty,gt=0"`
	Moderator bool  `json:"moderator"`
}

// AuthUser is the identity attached to an authenticated request
type AuthUser struct {
	ID     string   `json:"id"`
	Scopes []string `json:"scopes"`
}

// HasScope reports whether the user holds scope
func (a *AuthUser) HasScope(scope string) bool {
	if a == nil {
		return false
	}
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
