// Package sapclient provides the main entry point for creating commissions API clients
package sapclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/sapcommissions/internal/client"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

// New creates a new commissions API client.
func New(ctx context.Context, config *commissions.Config) (commissions.Client, error) {
	if config == nil {
		return nil, commissions.ErrConfigRequired
	}

	if config.BaseURL == "" {
		return nil, commissions.ErrBaseURLRequired
	}

	config.BaseURL = NormalizeBaseURL(config.BaseURL)

	c, err := client.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return c, nil
}

// NormalizeBaseURL trims trailing slashes and defaults the scheme to https.
func NormalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}

	return baseURL
}

// NewWithPassword creates a new client using basic authentication.
func NewWithPassword(ctx context.Context, baseURL, username, password string) (commissions.Client, error) {
	return New(ctx, &commissions.Config{
		BaseURL:  baseURL,
		Username: username,
		Password: password,
	})
}
