package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"askdata/internal/schema"
)

type permissionsRequest struct {
	DataMode      string   `json:"dataMode"`
	DatabaseNames []string `json:"databaseNames,omitempty"`
	TagNames      []string `json:"tagNames,omitempty"`
}

// AllowedViewIDs returns the union of view ids the credentials may access
// across the given databases and tags, deduplicated. One lookup runs per
// name, concurrently. A failed lookup is logged and skipped so one broken
// database does not block the rest.
func (c *Client) AllowedViewIDs(ctx context.Context, creds Credentials, databases, tags []string) []schema.ID {
	type lookup struct {
		name string
		mode string
	}
	lookups := make([]lookup, 0, len(databases)+len(tags))
	for _, db := range databases {
		lookups = append(lookups, lookup{name: db, mode: "DATABASE"})
	}
	for _, tag := range tags {
		lookups = append(lookups, lookup{name: tag, mode: "TAG"})
	}

	var mu sync.Mutex
	seen := make(map[schema.ID]bool)

	var wg sync.WaitGroup
	for _, l := range lookups {
		wg.Add(1)
		go func(l lookup) {
			defer wg.Done()
			ids, err := c.fetchViewIDs(ctx, creds, l.name, l.mode)
			if err != nil {
				c.logger.Error("failed to retrieve allowed view ids",
					zap.String("name", l.name), zap.String("mode", l.mode), zap.Error(err))
				return
			}
			mu.Lock()
			for _, id := range ids {
				seen[id] = true
			}
			mu.Unlock()
		}(l)
	}
	wg.Wait()

	out := make([]schema.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Client) fetchViewIDs(ctx context.Context, creds Credentials, name, mode string) ([]schema.ID, error) {
	req := permissionsRequest{DataMode: mode}
	if mode == "DATABASE" {
		req.DatabaseNames = []string{name}
	} else {
		req.TagNames = []string{name}
	}

	status, body, err := c.postJSON(ctx, "/public/api/views/allowed-identifiers", req, creds)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("status %d: %s", status, errorMessage(body))
	}

	var raw []int64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unexpected response format for %s: not a list of integers", name)
	}

	ids := make([]schema.ID, len(raw))
	for i, id := range raw {
		ids[i] = schema.ID(strconv.FormatInt(id, 10))
	}
	return ids, nil
}
