package model

import "time"

type WatchlistItem struct {
	UserID    string    `db:"user_id"`
	Symbol    string    `db:"symbol"`
	CreatedAt time.Time `db:"created_at"`
}
