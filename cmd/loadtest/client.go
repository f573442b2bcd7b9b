package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orders-api/internal/version"
)

const idempotencyHeader = "Idempotency-Key"

// apiEnvelope - общий формат ответов orders-api.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type entityRef struct {
	ID string `json:"id"`
}

// apiClient - тонкий HTTP-клиент к /api/v{N}.
type apiClient struct {
	base      string
	http      *http.Client
	userAgent string
}

func newAPIClient(baseURL string, apiVersion int, timeout time.Duration) *apiClient {
	return &apiClient{
		base:      fmt.Sprintf("%s/api/v%d", strings.TrimRight(baseURL, "/"), apiVersion),
		http:      &http.Client{Timeout: timeout},
		userAgent: version.UserAgent("loadtest"),
	}
}

// do выполняет запрос и возвращает HTTP-код ответа. Код 0 означает, что
// ответ не получен.
func (c *apiClient) do(ctx context.Context, method, path string, body any, idemKey string) (int, apiEnvelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, apiEnvelope{}, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, apiEnvelope{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		req.Header.Set(idempotencyHeader, idemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, apiEnvelope{}, err
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, apiEnvelope{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, env, fmt.Errorf("%s %s: %s", method, path, env.Message)
	}
	return resp.StatusCode, env, nil
}

// timed выполняет вызов и записывает его результат в collector.
func (c *apiClient) timed(
	ctx context.Context,
	col *collector,
	name, method, path string,
	body any,
	idemKey string,
) (apiEnvelope, error) {
	start := time.Now()
	code, env, err := c.do(ctx, method, path, body, idemKey)
	col.record(name, time.Since(start), outcomeCode(code), err == nil)
	return env, err
}

func (c *apiClient) createProduct(ctx context.Context, name, unitPrice string) (string, error) {
	_, env, err := c.do(ctx, http.MethodPost, "/products", map[string]any{
		"name":      name,
		"unitPrice": json.Number(unitPrice),
	}, "")
	if err != nil {
		return "", err
	}
	return decodeID(env)
}

func decodeID(env apiEnvelope) (string, error) {
	var ref entityRef
	if err := json.Unmarshal(env.Data, &ref); err != nil {
		return "", fmt.Errorf("decode entity: %w", err)
	}
	if ref.ID == "" {
		return "", fmt.Errorf("response returned empty id")
	}
	return ref.ID, nil
}

func outcomeCode(code int) string {
	if code == 0 {
		return outcomeTransport
	}
	return strconv.Itoa(code)
}
