package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"rating-service/internal/metrics"
	"rating-service/internal/models"
	"rating-service/internal/util"
)

const (
	insertComment = `INSERT INTO comments (resource_id, created_at, comment_id, identity, comment_text)
        VALUES (?, ?, ?, ?, ?)`

	selectComments = `SELECT created_at, comment_id, identity, comment_text
        FROM comments WHERE resource_id = ? LIMIT ?`
)

type CommentRepository struct {
	client *ScyllaClient
}

func NewCommentRepository(client *ScyllaClient) *CommentRepository {
	return &CommentRepository{client: client}
}

func (r *CommentRepository) CreateComment(ctx context.Context, c *models.Comment) error {
	id, err := gocql.ParseUUID(c.CommentID)
	if err != nil {
		return fmt.Errorf("failed to create comment: invalid id: %w", err)
	}

	start := time.Now()
	err = r.client.Query(ctx, insertComment, c.ResourceID, c.CreatedAt, id, c.Identity, c.Text).Exec()
	metrics.RecordStoreOperation("create_comment", time.Since(start), err)
	if err != nil {
		util.Error("Failed to create comment",
			zap.String("model_id", c.ResourceID),
			zap.String("comment_id", c.CommentID),
			zap.Error(err))
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (r *CommentRepository) ListComments(ctx context.Context, resourceID string, limit int) ([]models.Comment, error) {
	start := time.Now()
	iter := r.client.Query(ctx, selectComments, resourceID, limit).Iter()

	var out []models.Comment
	var id gocql.UUID
	for {
		c := models.Comment{ResourceID: resourceID}
		if !iter.Scan(&c.CreatedAt, &id, &c.Identity, &c.Text) {
			break
		}
		c.CommentID = id.String()
		c.AuthorHash = models.AuthorHashOf(c.Identity)
		out = append(out, c)
	}

	err := iter.Close()
	metrics.RecordStoreOperation("list_comments", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return out, nil
}
