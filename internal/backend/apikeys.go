package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// The credential endpoints are passed through untouched; the gateway never
// interprets or stores the keys.

// ListAPIKeys returns the backend's credential listing as raw JSON
func (c *Client) ListAPIKeys(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api-keys", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}
	return readRaw(resp.Body)
}

// SetAPIKey stores a credential for a service
func (c *Client) SetAPIKey(ctx context.Context, service, key string) (json.RawMessage, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api-keys", map[string]string{
		"service": service,
		"api_key": key,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp)
	}
	return readRaw(resp.Body)
}

// DeleteAPIKey removes the credential for a service
func (c *Client) DeleteAPIKey(ctx context.Context, service string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/api-keys/"+escapeSegment(service), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}
	return nil
}

func readRaw(r io.Reader) (json.RawMessage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(data) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("response is not valid json")
	}
	return json.RawMessage(data), nil
}
