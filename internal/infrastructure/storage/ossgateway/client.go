package ossgateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/resilience"
)

// Client downloads document blobs from the OA object-storage gateway by
// storage token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) Fetch(ctx context.Context, token string) ([]byte, error) {
	var data []byte
	call := func(ctx context.Context) error {
		var err error
		data, err = c.fetchOnce(ctx, token)
		return err
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ossgateway.fetch", call, classifyFetchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) fetchOnce(ctx context.Context, token string) ([]byte, error) {
	endpoint := c.baseURL + "/files/" + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway fetch request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.WrapError(domain.ErrObjectNotFound, "gateway fetch",
			fmt.Errorf("token %s", token))
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.WrapError(domain.ErrPermissionDenied, "gateway fetch",
			fmt.Errorf("token %s: %s", token, resp.Status))
	case resp.StatusCode >= 300:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &HTTPStatusError{
			Operation:  "fetch",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	return data, nil
}
