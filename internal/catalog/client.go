// Package catalog is the HTTP client for the Denodo Data Catalog REST API:
// view metadata retrieval, permission lookups and VQL execution.
package catalog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"askdata/internal/config"
)

// Credentials carries either basic auth or an OAuth bearer token. Token
// takes precedence when both are set.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// Header renders the Authorization header value.
func (c Credentials) Header() string {
	if c.Token != "" {
		return "Bearer " + c.Token
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}

// Empty reports whether no credentials were provided.
func (c Credentials) Empty() bool {
	return c.Token == "" && c.Username == ""
}

// Client talks to one Data Catalog instance.
type Client struct {
	baseURL  string
	serverID int
	http     *http.Client
	logger   *zap.Logger
}

// NewClient builds a client from configuration. The configured URL may or
// may not carry a trailing slash.
func NewClient(cfg config.CatalogConfig, logger *zap.Logger) *Client {
	transport := http.DefaultTransport
	if !cfg.VerifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.URL, "/"),
		serverID: cfg.ServerID,
		http: &http.Client{
			Timeout:   cfg.CatalogTimeout(),
			Transport: transport,
		},
		logger: logger,
	}
}

// postJSON sends a request and returns the raw body along with the HTTP
// status. Non-2xx statuses are not treated as transport errors here, callers
// decide what they mean.
func (c *Client) postJSON(ctx context.Context, path string, payload any, creds Credentials) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s%s?serverId=%d", c.baseURL, path, c.serverID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", creds.Header())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// errorMessage extracts the first line of the error detail from a Data
// Catalog error body. Stack traces follow on later lines.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Message == "" {
		return "Data Catalog did not return further details"
	}
	if idx := strings.IndexByte(payload.Message, '\n'); idx >= 0 {
		return payload.Message[:idx]
	}
	return payload.Message
}
