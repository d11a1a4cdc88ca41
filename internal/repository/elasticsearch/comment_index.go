// Package elasticsearch implements full-text comment search.
package elasticsearch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rating-service/internal/client"
	"rating-service/internal/models"
	"rating-service/internal/util"
)

var commentMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"comment_id":  map[string]interface{}{"type": "keyword"},
			"model_id":    map[string]interface{}{"type": "keyword"},
			"author_hash": map[string]interface{}{"type": "keyword"},
			"text":        map[string]interface{}{"type": "text"},
			"created_at":  map[string]interface{}{"type": "date"},
		},
	},
}

// commentDocument never carries the full identity token.
type commentDocument struct {
	CommentID  string    `json:"comment_id"`
	ResourceID string    `json:"model_id"`
	AuthorHash string    `json:"author_hash"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source commentDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type CommentIndex struct {
	client *client.ESClient
	index  string
}

func NewCommentIndex(client *client.ESClient, index string) *CommentIndex {
	return &CommentIndex{client: client, index: index}
}

func (i *CommentIndex) EnsureIndex(ctx context.Context) error {
	return i.client.EnsureIndex(ctx, i.index, commentMapping)
}

func (i *CommentIndex) IndexComment(ctx context.Context, c *models.Comment) error {
	doc := commentDocument{
		CommentID:  c.CommentID,
		ResourceID: c.ResourceID,
		AuthorHash: models.AuthorHashOf(c.Identity),
		Text:       c.Text,
		CreatedAt:  c.CreatedAt,
	}

	res, err := i.client.IndexDocument(ctx, i.index, c.CommentID, doc)
	if err != nil {
		return fmt.Errorf("failed to index comment: %w", err)
	}
	if err := i.client.ParseResponse(res, nil); err != nil {
		return fmt.Errorf("failed to index comment: %w", err)
	}

	util.Debug("Comment indexed", zap.String("comment_id", c.CommentID))
	return nil
}

// SearchComments runs a match query on the comment text, restricted to
// resourceID when it is not empty. Results are ordered by relevance.
func (i *CommentIndex) SearchComments(ctx context.Context, resourceID, query string, limit int) ([]models.Comment, error) {
	boolQuery := map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{"match": map[string]interface{}{"text": query}},
		},
	}
	if resourceID != "" {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"model_id": resourceID}},
		}
	}

	body := map[string]interface{}{
		"size":  limit,
		"query": map[string]interface{}{"bool": boolQuery},
	}

	res, err := i.client.Search(ctx, i.index, body)
	if err != nil {
		return nil, fmt.Errorf("failed to search comments: %w", err)
	}

	var parsed searchResponse
	if err := i.client.ParseResponse(res, &parsed); err != nil {
		return nil, fmt.Errorf("failed to search comments: %w", err)
	}

	out := make([]models.Comment, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		out = append(out, models.Comment{
			CommentID:  hit.Source.CommentID,
			ResourceID: hit.Source.ResourceID,
			AuthorHash: hit.Source.AuthorHash,
			Text:       hit.Source.Text,
			CreatedAt:  hit.Source.CreatedAt,
		})
	}
	return out, nil
}
