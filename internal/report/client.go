// Package report is the HTTP client for the Solas classification server:
// observation reporting, daily/weekly visualisations, and user feedback.
//
// Unlike the environment gateway there is no retry or breaker here. A
// failed report is simply dropped; the next scheduled cycle or a manual
// refresh produces a fresh one.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNetwork covers transport failures and non-2xx responses.
	ErrNetwork = errors.New("reporting server unreachable")

	// ErrMalformedResponse covers 2xx responses missing expected fields.
	ErrMalformedResponse = errors.New("malformed server response")
)

// Observation is the envelope posted to /check-location. Field names and
// formats are fixed by the server schema.
type Observation struct {
	GPSAccuracy       *float64 `json:"gps_accuracy"`
	UserID            string   `json:"user_id"`
	IsConnectedToWifi bool     `json:"is_connected_to_wifi"`
	Weather           string   `json:"weather"`
	Temperature       float64  `json:"temperature"`
	UV                float64  `json:"uv"`
	Sunrise           string   `json:"sunrise"`
	Sunset            string   `json:"sunset"`
	DeviceTime        string   `json:"device_time"`
}

// Visualisation is a server-rendered image plus the optional per-day
// breakdown the weekly graph carries.
type Visualisation struct {
	Image   string    `json:"image"`
	Days    []string  `json:"days,omitempty"`
	Seconds []float64 `json:"seconds,omitempty"`
}

// Client talks to the classification server at a fixed base URL.
type Client struct {
	baseURL string
	client  *http.Client
	log     *logrus.Logger
}

// NewClient creates a Client using the shared HTTP client.
func NewClient(client *http.Client, baseURL string, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

// Report posts an observation and returns the server's inside/outside
// verdict.
func (c *Client) Report(ctx context.Context, obs Observation) (bool, error) {
	var resp struct {
		IsOutside *bool `json:"is_outside"`
	}
	if err := c.post(ctx, "/check-location", obs, &resp); err != nil {
		return false, err
	}
	if resp.IsOutside == nil {
		return false, fmt.Errorf("%w: missing is_outside", ErrMalformedResponse)
	}
	return *resp.IsOutside, nil
}

// DailyVisualisation fetches today's rendered arc image.
func (c *Client) DailyVisualisation(ctx context.Context, userID, sunrise, sunset, deviceTime string) (Visualisation, error) {
	return c.visualisation(ctx, "/daily-visualisation", userID, sunrise, sunset, deviceTime)
}

// WeeklyGraph fetches the rendered week graph with its per-day breakdown.
func (c *Client) WeeklyGraph(ctx context.Context, userID, sunrise, sunset, deviceTime string) (Visualisation, error) {
	return c.visualisation(ctx, "/weekly-time-outside-graph", userID, sunrise, sunset, deviceTime)
}

func (c *Client) visualisation(ctx context.Context, path, userID, sunrise, sunset, deviceTime string) (Visualisation, error) {
	req := struct {
		UserID     string `json:"user_id"`
		Sunrise    string `json:"sunrise"`
		Sunset     string `json:"sunset"`
		DeviceTime string `json:"device_time"`
	}{userID, sunrise, sunset, deviceTime}

	var vis Visualisation
	if err := c.post(ctx, path, req, &vis); err != nil {
		return Visualisation{}, err
	}
	if vis.Image == "" {
		return Visualisation{}, fmt.Errorf("%w: missing image", ErrMalformedResponse)
	}
	return vis, nil
}

// SubmitFeedback reports whether the last verdict matched reality.
func (c *Client) SubmitFeedback(ctx context.Context, userID string, correct bool, accuracy *float64, deviceTime string) error {
	req := struct {
		UserID        string   `json:"user_id"`
		CorrectResult bool     `json:"correct_result"`
		GPSAccuracy   *float64 `json:"gps_accuracy"`
		DeviceTime    string   `json:"device_time"`
	}{userID, correct, accuracy, deviceTime}

	var resp struct {
		Error string `json:"error"`
	}
	if err := c.post(ctx, "/submit-feedback", req, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrNetwork, resp.Error)
	}
	return nil
}

// post sends one JSON request and decodes the response into out. Non-2xx
// statuses map to ErrNetwork; undecodable 2xx bodies map to
// ErrMalformedResponse and are logged raw for diagnosis.
func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %d", ErrNetwork, path, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.log.WithFields(logrus.Fields{
			"path": path,
			"body": string(raw),
		}).Warn("undecodable response body")
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
