package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/infrastructure/resilience"
)

// Client publishes documents into Dify knowledge-base datasets. Credentials
// travel with each target, so one client serves every configured dataset.
type Client struct {
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type createByTextRequest struct {
	Name              string         `json:"name"`
	Text              string         `json:"text"`
	IndexingTechnique string         `json:"indexing_technique"`
	ProcessRule       processRule    `json:"process_rule"`
	DocMetadata       map[string]any `json:"doc_metadata,omitempty"`
}

type processRule struct {
	Mode string `json:"mode"`
}

type createByTextResponse struct {
	Document struct {
		ID string `json:"id"`
	} `json:"document"`
}

func (c *Client) PublishText(ctx context.Context, target domain.KnowledgeBaseTarget, content, filename string, metadata map[string]any) (string, error) {
	request := createByTextRequest{
		Name:              filename,
		Text:              content,
		IndexingTechnique: "high_quality",
		ProcessRule:       processRule{Mode: "automatic"},
		DocMetadata:       metadata,
	}
	endpoint := fmt.Sprintf("%s/v1/datasets/%s/documents/document/create_by_text",
		strings.TrimRight(target.BaseURL, "/"), target.DatasetID)

	var response createByTextResponse
	call := func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, endpoint, target.APIKey, request, &response, "publish")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "dify.publish", call, classifyDifyError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	if response.Document.ID == "" {
		return "", fmt.Errorf("dify publish reply has no document id")
	}
	return response.Document.ID, nil
}

func (c *Client) Delete(ctx context.Context, target domain.KnowledgeBaseTarget, documentID string) error {
	endpoint := fmt.Sprintf("%s/v1/datasets/%s/documents/%s",
		strings.TrimRight(target.BaseURL, "/"), target.DatasetID, documentID)

	call := func(ctx context.Context) error {
		err := c.doJSON(ctx, http.MethodDelete, endpoint, target.APIKey, nil, nil, "delete")
		// Deleting an already-gone document is success for the sweeps.
		var statusErr *HTTPStatusError
		if asStatusError(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return err
	}

	if c.executor != nil {
		return c.executor.Execute(ctx, "dify.delete", call, classifyDifyError)
	}
	return call(ctx)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint, apiKey string, payload, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dify %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return nil
}
