package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const (
	// UserAgent is sent with every request.
	UserAgent = "ClueBot NG Trainer"

	defaultTimeout = 60 * time.Second
	// errorBodyLimit caps how much of an error response is
	// kept for the returned error.
	errorBodyLimit = 512
)

// Client makes plain HTTP calls to the review interface,
// GitHub and the trainer's own file API.
type Client struct {
	http *http.Client
}

// New returns a Client. A nil httpClient gets a default
// one with a timeout.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{http: httpClient}
}

// GetJSON fetches url and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "failed to decode response from %v", url)
	}
	return nil
}

// Post sends body to url with an optional bearer token and
// returns the status code. Transport failures are errors,
// unexpected codes are for the caller to judge.
func (c *Client) Post(ctx context.Context, url, token string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrap(err, "failed to build request")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to %v %v", req.Method, req.URL)
	}
	return resp, nil
}

func responseError(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return fmt.Errorf(
		"unexpected response from %v: [%v] %v",
		resp.Request.URL, resp.StatusCode, string(bytes.TrimSpace(buf)),
	)
}
