package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/extract-label/internal/models"
)

// SearchParams narrow the label search query.
type SearchParams struct {
	Query     string
	Source    string
	MinLabels int
	From      int
	Size      int
	Sort      string
	Start     *time.Time
	End       *time.Time
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64                  `json:"total"`
	Items []models.LabelDocument `json:"items"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.LabelDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// IndexLabel writes a labelled record under its record ID, replacing an earlier version.
func (c *Client) IndexLabel(ctx context.Context, doc models.LabelDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal label: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(payload),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(doc.ID),
	)
	if err != nil {
		return fmt.Errorf("index label: %w", err)
	}
	defer res.Body.Close()

	if err := checkResponse(res, "index label"); err != nil {
		return err
	}

	c.log.Debug("indexed label", slog.String("id", doc.ID), slog.Int("labels", doc.LabelCount))
	return nil
}

// SearchLabels runs BuildSearchBody against the label index.
func (c *Client) SearchLabels(ctx context.Context, params SearchParams) (*SearchResult, error) {
	payload, err := json.Marshal(BuildSearchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search labels: %w", err)
	}
	defer res.Body.Close()

	if err := checkResponse(res, "search labels"); err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.LabelDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return &SearchResult{Total: parsed.Hits.Total.Value, Items: items}, nil
}
