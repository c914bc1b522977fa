package models

import (
	"time"
)

type Quote struct {
	ID        int64     `bson:"_id" json:"id"`
	Content   string    `bson:"content" json:"content"`
	AddedBy   int64     `bson:"added_by" json:"added_by"`
	Speaker   *int64    `bson:"speaker,omitempty" json:"speaker"`
	Source    string    `bson:"source" json:"source"`
	CreatedAt time.Time `bson:"created" json:"created"`
}

type CreateQuoteRequest struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
	Speaker *int64 `json:"speaker" validate:"omitempty,gt=0"`
	Source  string `json:"source" validate:"required,oneof=discord twitch api"`
}

// Points is the public view of a viewer's balance
type Points struct {
	TwitchID int64 `json:"twitch_id"`
	Points   int64 `json:"points"`
}

type AddPointsRequest struct {
	Amount int64 `json:"amount" validate:"required,ne=0"`
}
