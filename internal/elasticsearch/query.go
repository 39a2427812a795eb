package elasticsearch

import (
	"strings"
	"time"
)

const (
	defaultSearchSize = 20
	maxSearchSize     = 200
)

// sortFields maps accepted sort keys to index fields.
var sortFields = map[string]string{
	"timestamp":   "timestamp",
	"time":        "timestamp",
	"label_count": "label_count",
	"labels":      "label_count",
}

// searchFields are matched by free-text queries; matched summary sentences weigh double.
var searchFields = []string{"summ^2", "sentence", "document"}

// BuildSearchBody turns params into an Elasticsearch query body.
func BuildSearchBody(params SearchParams) map[string]any {
	size := params.Size
	switch {
	case size <= 0:
		size = defaultSearchSize
	case size > maxSearchSize:
		size = maxSearchSize
	}
	from := max(params.From, 0)

	var must, filters []map[string]any
	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{"query": params.Query, "fields": searchFields},
		})
	}
	if params.Source != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"source": params.Source}})
	}
	if params.MinLabels > 0 {
		filters = append(filters, rangeFilter("label_count", map[string]any{"gte": params.MinLabels}))
	}
	if window := timeWindow(params.Start, params.End); window != nil {
		filters = append(filters, rangeFilter("timestamp", window))
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(boolQuery) == 0 {
		boolQuery["must"] = []map[string]any{{"match_all": map[string]any{}}}
	}

	field, order := parseSort(params.Sort)
	return map[string]any{
		"from":             from,
		"size":             size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort":             []map[string]any{{field: map[string]any{"order": order}}},
	}
}

func rangeFilter(field string, bounds map[string]any) map[string]any {
	return map[string]any{"range": map[string]any{field: bounds}}
}

func timeWindow(start, end *time.Time) map[string]any {
	if start == nil && end == nil {
		return nil
	}
	window := map[string]any{}
	if start != nil {
		window["gte"] = start.UTC().Format(time.RFC3339)
	}
	if end != nil {
		window["lte"] = end.UTC().Format(time.RFC3339)
	}
	return window
}

// parseSort reads "field[:order]". Unknown fields fall back to newest first.
func parseSort(raw string) (string, string) {
	key, order, _ := strings.Cut(strings.ToLower(strings.TrimSpace(raw)), ":")
	field, ok := sortFields[key]
	if !ok {
		return "timestamp", "desc"
	}
	if order != "asc" {
		order = "desc"
	}
	return field, order
}
