// Package elasticsearch stores labelled records and serves searches over them.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Client wraps go-elasticsearch with helpers for labelled records.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// labelMapping keeps ids and sources exact-match and the sentence lists full-text.
var labelMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":            map[string]any{"type": "keyword"},
			"source":        map[string]any{"type": "keyword"},
			"timestamp":     map[string]any{"type": "date"},
			"label_count":   map[string]any{"type": "integer"},
			"extract_label": map[string]any{"type": "integer"},
			"summ":          map[string]any{"type": "text"},
			"sentence":      map[string]any{"type": "text"},
			"document":      map[string]any{"type": "text"},
		},
	},
}

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	return checkResponse(res, "ping")
}

// Health checks the cluster health endpoint.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()

	return checkResponse(res, "cluster health")
}

// EnsureIndex creates the label index with its mapping when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index: %s", res.Status())
	}

	payload, err := json.Marshal(labelMapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	// Another service may have won the race.
	if res.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(res.Body)
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}
	if err := checkResponse(res, "create index"); err != nil {
		return err
	}

	c.log.Info("created label index", slog.String("index", c.index))
	return nil
}

// checkResponse turns an error response into an error carrying the body.
func checkResponse(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("%s failed: %s: %s", op, res.Status(), msg)
	}
	return fmt.Errorf("%s failed: %s", op, res.Status())
}
