package entity

type UpsertOptions struct {
	ForceRecache bool
}

type UpsertStats struct {
	PostsCreated int `json:"posts_created"`
	PostsUpdated int `json:"posts_updated"`
	TotalPosts   int `json:"total_posts"`
	MediaErrors  int `json:"media_errors"`
}

type UpsertResult struct {
	Stats     UpsertStats `json:"stats"`
	ProfileID string      `json:"profile_id"`
}

type SyncOptions struct {
	ForceRecache bool `json:"force_recache"`
	MaxPages     int  `json:"max_pages"`
}

// SyncResult sums the per-page upsert stats of one profile sync.
type SyncResult struct {
	ProfileID    string   `json:"profile_id"`
	Handle       string   `json:"handle"`
	Pages        int      `json:"pages"`
	PostsCreated int      `json:"posts_created"`
	PostsUpdated int      `json:"posts_updated"`
	TotalPosts   int      `json:"total_posts"`
	MediaErrors  int      `json:"media_errors"`
	LastCursor   string   `json:"last_cursor,omitempty"`
	Profile      *Profile `json:"profile,omitempty"`
}
