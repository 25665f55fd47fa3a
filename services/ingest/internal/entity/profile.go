package entity

import "time"

type Profile struct {
	ID            string    `json:"id"`
	Handle        string    `json:"handle"`
	Nickname      string    `json:"nickname"`
	Bio           string    `json:"bio"`
	Verified      bool      `json:"verified"`
	AvatarID      *string   `json:"avatar_id,omitempty"`
	TotalPosts    int64     `json:"total_posts"`
	TotalViews    int64     `json:"total_views"`
	TotalLikes    int64     `json:"total_likes"`
	TotalShares   int64     `json:"total_shares"`
	TotalComments int64     `json:"total_comments"`
	TotalSaves    int64     `json:"total_saves"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProfileAggregates is the result of summing every stored post of a profile.
type ProfileAggregates struct {
	TotalPosts    int64
	TotalViews    int64
	TotalLikes    int64
	TotalShares   int64
	TotalComments int64
	TotalSaves    int64
}
