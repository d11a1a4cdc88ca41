package models

import "time"

type Comment struct {
	CommentID  string    `json:"id" db:"comment_id"`
	ResourceID string    `json:"model_id" db:"resource_id"`
	Identity   string    `json:"-" db:"identity"`
	AuthorHash string    `json:"author_hash" db:"-"`
	Text       string    `json:"text" db:"comment_text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// AuthorHashOf returns the short anonymous author label shown with comments.
func AuthorHashOf(identity string) string {
	if len(identity) > 8 {
		return identity[:8]
	}
	return identity
}
