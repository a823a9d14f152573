//go:build integration && linux

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type testClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newTestClient(baseURL, apiKey string) *testClient {
	return &testClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

func (c *testClient) doRequest(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (c *testClient) createSession(t *testing.T, sessionID string) map[string]any {
	t.Helper()
	resp := c.doRequest(t, "POST", "/sessions", map[string]any{
		"session_id": sessionID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "failed to create session")
	return decodeResponse(t, resp)
}

func (c *testClient) execute(t *testing.T, sessionID, command string, timeout int) map[string]any {
	t.Helper()
	body := map[string]any{
		"command":    command,
		"session_id": sessionID,
	}
	if timeout > 0 {
		body["timeout"] = timeout
	}
	resp := c.doRequest(t, "POST", "/execute", body)
	return decodeResponse(t, resp)
}

func (c *testClient) writeFile(t *testing.T, sessionID, path, text string) {
	t.Helper()
	target := fmt.Sprintf("%s/sessions/%s/workspace/content?path=%s", c.baseURL, sessionID, url.QueryEscape(path))
	req, err := http.NewRequest("PUT", target, strings.NewReader(text))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func (c *testClient) readFile(t *testing.T, sessionID, path string) *http.Response {
	t.Helper()
	return c.doRequest(t, "GET", fmt.Sprintf("/sessions/%s/workspace/content?path=%s", sessionID, url.QueryEscape(path)), nil)
}

func (c *testClient) listDir(t *testing.T, sessionID, path string) *http.Response {
	t.Helper()
	target := fmt.Sprintf("/sessions/%s/workspace", sessionID)
	if path != "" {
		target += "?path=" + url.QueryEscape(path)
	}
	return c.doRequest(t, "GET", target, nil)
}

func (c *testClient) deleteSession(t *testing.T, sessionID string) *http.Response {
	t.Helper()
	return c.doRequest(t, "DELETE", "/sessions/"+sessionID, nil)
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}
