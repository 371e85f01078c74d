package toolforge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/cluebotng/trainer/pkg/log"
	perrors "github.com/pkg/errors"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	userAgent = "ClueBot NG Trainer"
	// harborHost is implicit on the jobs API.
	harborHost = "tools-harbor.wmcloud.org/"
	maxLogLine = 1024 * 1024
)

// Config describes how to reach the jobs API.
type Config struct {
	// APIURL is the jobs API gateway.
	APIURL string
	// Tool is the tool account jobs run as.
	Tool string
	// KubeConfig is a path to a kubeconfig holding the
	// tool's client certificate. When empty, Server,
	// ClientCert and ClientKey are used instead.
	KubeConfig string
	Server     string
	ClientCert string
	ClientKey  string
	Timeout    time.Duration
}

// Client talks to the Toolforge jobs API.
type Client struct {
	baseURL    *url.URL
	tool       string
	httpClient *http.Client
}

// New constructs a jobs API client authenticated with
// the tool's kubernetes client certificate.
func New(cfg Config) (*Client, error) {
	restConfig, err := restConfig(cfg)
	if err != nil {
		return nil, err
	}

	httpClient, err := rest.HTTPClientFor(restConfig)
	if err != nil {
		return nil, perrors.Wrap(err, "failed to build jobs api transport")
	}

	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	return NewWithHTTPClient(cfg.APIURL, cfg.Tool, httpClient)
}

// NewWithHTTPClient constructs a client using the provided
// http.Client as is.
func NewWithHTTPClient(apiURL, tool string, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(apiURL)
	if err != nil {
		return nil, perrors.Wrap(err, "invalid jobs api url")
	}

	if tool == "" {
		return nil, errors.New("tool name is required")
	}

	return &Client{
		baseURL:    base,
		tool:       tool,
		httpClient: httpClient,
	}, nil
}

func restConfig(cfg Config) (*rest.Config, error) {
	if cfg.KubeConfig != "" {
		c, err := clientcmd.BuildConfigFromFlags("", cfg.KubeConfig)
		if err != nil {
			return nil, perrors.Wrap(err, "failed to load kubeconfig")
		}
		c.UserAgent = userAgent
		return c, nil
	}

	if cfg.ClientCert == "" || cfg.ClientKey == "" {
		return nil, errors.New("either a kubeconfig or a client certificate and key are required")
	}

	return &rest.Config{
		Host:      cfg.Server,
		UserAgent: userAgent,
		TLSClientConfig: rest.TLSClientConfig{
			CertData: []byte(cfg.ClientCert),
			KeyData:  []byte(cfg.ClientKey),
		},
	}, nil
}

type jobResponse struct {
	Name        string `json:"name"`
	StatusShort string `json:"status_short"`
	StatusLong  string `json:"status_long"`
}

type getResponse struct {
	Job jobResponse `json:"job"`
}

type listResponse struct {
	Jobs []jobResponse `json:"jobs"`
}

type createRequest struct {
	Name      string `json:"name"`
	ImageName string `json:"imagename"`
	Cmd       string `json:"cmd"`
	Mount     string `json:"mount"`
}

type logLine struct {
	Datetime  string `json:"datetime"`
	Pod       string `json:"pod"`
	Container string `json:"container"`
	Message   string `json:"message"`
}

// Create submits a one-off job.
func (c *Client) Create(ctx context.Context, req *jobs.CreateRequest) error {
	body := createRequest{
		Name:      req.Name,
		ImageName: strings.TrimPrefix(req.Image, harborHost),
		Cmd:       req.Command,
		Mount:     "none",
	}

	resp, err := c.do(ctx, http.MethodPost, c.jobsPath(), body)
	if err != nil {
		return fmt.Errorf("failed to create %v: %w", req.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError("create "+req.Name, resp)
	}

	return nil
}

// Get returns the typed status of a job.
func (c *Client) Get(ctx context.Context, req *jobs.GetRequest) (*jobs.Status, error) {
	resp, err := c.do(ctx, http.MethodGet, c.jobPath(req.Name), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get %v: %w", req.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, jobs.ErrNotFound
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError("get "+req.Name, resp)
	}

	var payload getResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode %v: %w", req.Name, err)
	}

	status := ParseStatus(payload.Job.StatusShort, payload.Job.StatusLong)
	status.Name = req.Name
	return &status, nil
}

// List returns the status of every job of the tool whose
// name starts with the requested prefix.
func (c *Client) List(ctx context.Context, req *jobs.ListRequest) ([]jobs.Status, error) {
	resp, err := c.do(ctx, http.MethodGet, c.jobsPath(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError("list jobs", resp)
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode jobs: %w", err)
	}

	statuses := make([]jobs.Status, 0, len(payload.Jobs))
	for _, j := range payload.Jobs {
		if !strings.HasPrefix(j.Name, req.Prefix) {
			continue
		}
		status := ParseStatus(j.StatusShort, j.StatusLong)
		status.Name = j.Name
		statuses = append(statuses, status)
	}

	return statuses, nil
}

// Logs returns the job's log records at or after Since.
// A job without logs, or one that no longer exists,
// yields no records.
func (c *Client) Logs(ctx context.Context, req *jobs.LogsRequest) ([]jobs.LogRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, c.jobPath(req.Name)+"logs/?follow=false", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read logs for %v: %w", req.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError("read logs for "+req.Name, resp)
	}

	return decodeLogs(resp.Body, req.Since)
}

// Delete removes the job. Deleting a job that does not
// exist is not an error.
func (c *Client) Delete(ctx context.Context, req *jobs.DeleteRequest) error {
	resp, err := c.do(ctx, http.MethodDelete, c.jobPath(req.Name), nil)
	if err != nil {
		return fmt.Errorf("failed to delete %v: %w", req.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError("delete "+req.Name, resp)
	}

	return nil
}

func decodeLogs(body io.Reader, since time.Time) ([]jobs.LogRecord, error) {
	var records []jobs.LogRecord

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var line logLine
		if err := json.Unmarshal(raw, &line); err != nil {
			log.Debug("skipping undecodable log line", "error", err)
			continue
		}

		ts := parseStart(line.Datetime)
		if ts.IsZero() {
			log.Debug("skipping log line with invalid datetime", "datetime", line.Datetime)
			continue
		}

		if ts.Before(since) {
			continue
		}

		records = append(records, jobs.LogRecord{
			Timestamp: ts,
			Pod:       line.Pod,
			Container: line.Container,
			Message:   line.Message,
		})
	}

	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read logs: %w", err)
	}
	return records, nil
}

func (c *Client) jobsPath() string {
	return c.resolve(fmt.Sprintf("/jobs/v1/tool/%v/jobs/", url.PathEscape(c.tool)))
}

func (c *Client) jobPath(name string) string {
	return c.resolve(fmt.Sprintf("/jobs/v1/tool/%v/jobs/%v/", url.PathEscape(c.tool), url.PathEscape(name)))
}

func (c *Client) resolve(path string) string {
	return strings.TrimSuffix(c.baseURL.String(), "/") + path
}

func (c *Client) do(ctx context.Context, method, path string, v any) (*http.Response, error) {
	var body io.Reader
	if v != nil {
		buf, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	if v != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func statusError(action string, resp *http.Response) error {
	text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("failed to %v: [%d] %s", action, resp.StatusCode, strings.TrimSpace(string(text)))
}
