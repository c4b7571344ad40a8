package indexer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/logger"
	"github.com/jonesrussell/re-search/internal/retry"
)

const (
	defaultPingTimeout   = 5 * time.Second
	defaultPingAttempts  = 5
	defaultPingBackoff   = time.Second
	defaultClientRetries = 3
)

// NewClient creates an Elasticsearch client and verifies the connection,
// retrying the ping with exponential backoff.
func NewClient(ctx context.Context, cfg *config.ElasticsearchConfig, log logger.Logger) (*es.Client, error) {
	url := normalizeURL(cfg.URL)

	clientConfig := es.Config{
		Addresses:  []string{url},
		MaxRetries: defaultClientRetries,
	}
	if cfg.Username != "" && cfg.Password != "" {
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	esClient, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	log.Info("Verifying Elasticsearch connection", logger.String("url", url))

	policy := retry.Policy{
		MaxAttempts:  defaultPingAttempts,
		InitialDelay: defaultPingBackoff,
		IsRetryable:  func(error) bool { return true },
	}
	if err = retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		return ping(ctx, esClient, defaultPingTimeout, log)
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch after retries: %w", err)
	}

	log.Info("Elasticsearch connection established", logger.String("url", url))
	return esClient, nil
}

// normalizeURL adds an http:// prefix if missing.
func normalizeURL(url string) string {
	if url == "" {
		return config.DefaultESURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "http://" + url
	}
	return url
}

func ping(ctx context.Context, client *es.Client, timeout time.Duration, log logger.Logger) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		log.Debug("Elasticsearch ping failed", logger.Error(err))
		return fmt.Errorf("ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("ping returned error [%s]: %s", res.Status(), string(body))
	}
	return nil
}
