package spinner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrSessionExpired = errors.New("spinner: session expired")
	ErrStreamTimeout  = errors.New("spinner: stream timed out")
)

// Client talks to the coordination server's HTTP API and implements
// Coordinator. The stream request carries no client timeout; the server
// closes it at its own ceiling and the caller's context bounds it locally.
type Client struct {
	baseURL    string
	httpClient *http.Client
	streamer   *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		streamer:   &http.Client{},
	}
}

func (c *Client) SubscriberCount(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/telegram/subscribe", nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("subscriber count request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("subscriber count returned status %d", resp.StatusCode)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode subscriber count: %w", err)
	}
	return body.Count, nil
}

func (c *Client) CreateSession(ctx context.Context, items []string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{"items": items})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/spin", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create session returned status %d", resp.StatusCode)
	}

	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode create session response: %w", err)
	}
	if body.SessionID == "" {
		return "", errors.New("create session response missing sessionId")
	}
	return body.SessionID, nil
}

// AwaitResolution follows the session's event stream until a terminal event
// arrives. Heartbeats are consumed silently.
func (c *Client) AwaitResolution(ctx context.Context, sessionID string) (int, string, error) {
	url := fmt.Sprintf("%s/api/spin/%s/stream", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamer.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	var event, data string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" {
				index, item, done, err := handleStreamEvent(event, data)
				if done {
					return index, item, err
				}
			}
			event, data = "", ""
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, "", fmt.Errorf("stream read failed: %w", err)
	}
	return 0, "", errors.New("stream closed without a terminal event")
}

func handleStreamEvent(event, data string) (int, string, bool, error) {
	switch event {
	case "chosen":
		var body struct {
			ChosenIndex int    `json:"chosenIndex"`
			ChosenItem  string `json:"chosenItem"`
		}
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			return 0, "", true, fmt.Errorf("failed to decode chosen event: %w", err)
		}
		return body.ChosenIndex, body.ChosenItem, true, nil
	case "expired":
		return 0, "", true, ErrSessionExpired
	case "timeout":
		return 0, "", true, ErrStreamTimeout
	case "error":
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal([]byte(data), &body)
		if body.Message == "" {
			body.Message = "unknown stream error"
		}
		return 0, "", true, errors.New("stream error: " + body.Message)
	default:
		// heartbeat and anything unrecognized
		return 0, "", false, nil
	}
}
