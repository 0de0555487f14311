//go:build integration
// +build integration

package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	baseURL string
	apiKey  string
)

func init() {
	baseURL = os.Getenv("TEST_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	apiKey = os.Getenv("TEST_API_KEY")
}

// testUserID returns a fresh user identity for one test. The API-key auth
// path trusts the X-User-ID header, so each test gets an isolated tenant.
func testUserID() string {
	return uuid.New().String()
}

func authHeaders(userID string) map[string]string {
	return map[string]string{
		"X-API-Key": apiKey,
		"X-User-ID": userID,
	}
}

func makeRequest(t *testing.T, method, path string, body interface{}, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	return resp, respBody
}

func parseJSONResponse(t *testing.T, body []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("Failed to parse JSON response: %v\nBody: %s", err, string(body))
	}
}

func assertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("Expected status %d, got %d", expected, resp.StatusCode)
	}
}

func futureTimestamp(d time.Duration) string {
	return time.Now().Add(d).UTC().Format(time.RFC3339)
}

func campaignPath(campaignID string, suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("/api/protected/campaigns/%s", campaignID)
	}
	return fmt.Sprintf("/api/protected/campaigns/%s/%s", campaignID, suffix)
}
