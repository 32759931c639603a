package api

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/wayfinder/internal/httputil"
	"github.com/banshee-data/wayfinder/internal/route"
)

// Client talks to a running server.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a client for the server at base, e.g.
// "http://localhost:8080". A nil c uses http.DefaultClient.
func NewClient(base string, c httputil.HTTPClient) *Client {
	if c == nil {
		c = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(base, "/"), http: c}
}

// Progress returns the server's latest progress.
func (c *Client) Progress() (ProgressView, error) {
	var v ProgressView
	err := httputil.GetJSON(c.http, c.base+"/api/progress", &v)
	return v, err
}

// Session returns the telemetry state of the running session.
func (c *Client) Session() (SessionView, error) {
	var v SessionView
	err := httputil.GetJSON(c.http, c.base+"/api/session", &v)
	return v, err
}

// Sessions lists the stored sessions.
func (c *Client) Sessions() ([]SessionSummaryView, error) {
	var v []SessionSummaryView
	err := httputil.GetJSON(c.http, c.base+"/api/sessions", &v)
	return v, err
}

// Events lists the stored events of session, or every event when session
// is empty.
func (c *Client) Events(session string) ([]EventView, error) {
	u := c.base + "/api/events"
	if session != "" {
		u += "?session_id=" + url.QueryEscape(session)
	}
	var v []EventView
	err := httputil.GetJSON(c.http, u, &v)
	return v, err
}

// SendFix submits a location.
func (c *Client) SendFix(fix route.Fix) error {
	return httputil.PostJSON(c.http, c.base+"/api/location", fix, nil)
}

// SendRoute uploads a directions document.
func (c *Client) SendRoute(doc []byte) error {
	resp, err := c.http.Post(c.base+"/api/route", "application/json", bytes.NewReader(doc))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &httputil.StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// RecordFeedback files a feedback event and returns its id.
func (c *Client) RecordFeedback(req FeedbackRequest) (string, error) {
	var v FeedbackResponse
	err := httputil.PostJSON(c.http, c.base+"/api/feedback", req, &v)
	return v.ID, err
}
