package toolforge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ToolforgeTestSuite struct {
	suite.Suite
	server  *httptest.Server
	mux     *http.ServeMux
	client  *Client
	created map[string]any
	deleted []string
}

func (s *ToolforgeTestSuite) SetupTest() {
	s.created = nil
	s.deleted = nil
	s.mux = http.NewServeMux()
	s.server = httptest.NewServer(s.mux)

	client, err := NewWithHTTPClient(s.server.URL, "cluebotng-trainer", s.server.Client())
	require.NoError(s.T(), err)
	s.client = client
}

func (s *ToolforgeTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *ToolforgeTestSuite) TestCreate() {
	s.mux.HandleFunc("/jobs/v1/tool/cluebotng-trainer/jobs/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(s.T(), http.MethodPost, r.Method)
		assert.Equal(s.T(), userAgent, r.Header.Get("User-Agent"))
		require.NoError(s.T(), json.NewDecoder(r.Body).Decode(&s.created))
		w.WriteHeader(http.StatusCreated)
	})

	err := s.client.Create(context.Background(), &jobs.CreateRequest{
		Name:    "bayes-train-w1",
		Image:   "tools-harbor.wmcloud.org/tool-cluebotng-trainer/backend-service:latest",
		Command: "echo hi",
	})
	require.NoError(s.T(), err)

	assert.Equal(s.T(), map[string]any{
		"name":      "bayes-train-w1",
		"imagename": "tool-cluebotng-trainer/backend-service:latest",
		"cmd":       "echo hi",
		"mount":     "none",
	}, s.created)
}

func (s *ToolforgeTestSuite) TestCreateRejected() {
	s.mux.HandleFunc("/jobs/v1/tool/cluebotng-trainer/jobs/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusConflict)
	})

	err := s.client.Create(context.Background(), &jobs.CreateRequest{Name: "x", Image: "img", Command: "true"})
	require.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "409")
	assert.Contains(s.T(), err.Error(), "quota exceeded")
}

func (s *ToolforgeTestSuite) TestGet() {
	s.mux.HandleFunc("/jobs/v1/tool/cluebotng-trainer/jobs/bayes-train-w1/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job":{"name":"bayes-train-w1","status_short":"Completed","status_long":"Exit code '0'."}}`))
	})

	status, err := s.client.Get(context.Background(), &jobs.GetRequest{Name: "bayes-train-w1"})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "bayes-train-w1", status.Name)
	assert.True(s.T(), status.Succeeded())
}

func (s *ToolforgeTestSuite) TestGetNotFound() {
	_, err := s.client.Get(context.Background(), &jobs.GetRequest{Name: "missing"})
	assert.ErrorIs(s.T(), err, jobs.ErrNotFound)
}

func (s *ToolforgeTestSuite) TestGetServerError() {
	s.mux.HandleFunc("/jobs/v1/tool/cluebotng-trainer/jobs/broken/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := s.client.Get(context.Background(), &jobs.GetRequest{Name: "broken"})
	require.Error(s.T(), err)
	assert.NotErrorIs(s.T(), err, jobs.ErrNotFound)
}

func (s *ToolforgeTestSuite) TestList() {
	s.mux.HandleFunc("/jobs/v1/tool/cluebotng-trainer/jobs/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jobs":[
			{"name":"coord-a","status_short":"Running for 2m","status_long":""},
			{"name":"coord-b","status_short":"Completed","status_long":"Exit code '0'."},
			{"name":"bayes-train-w1","status_short":"Running for 1m","status_long":""}
		]}`))
	})

	statuses, err := s.client.List(context.Background(), &jobs.ListRequest{Prefix: "coord-"})
	require.NoError(s.T(), err)
	require.Len(s.T(), statuses, 2)
	assert.Equal(s.T(), "coord-a", statuses[0].Name)
	assert.Equal(s.T(), jobs.Running, statuses[0].State)
	assert.Equal(s.T(), jobs.Completed, statuses[1].State)
}

func (s *ToolforgeTestSuite) TestLogs() {
	s.mux.HandleFunc("/jobs/v1/tool/cluebotng-trainer/jobs/bayes-train-w1/logs/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(s.T(), "false", r.URL.Query().Get("follow"))
		_, _ = w.Write([]byte(
			`{"datetime":"2024-05-01T09:59:59Z","pod":"p","container":"job","message":"old"}` + "\n" +
				`{"datetime":"2024-05-01T10:00:00Z","pod":"p","container":"job","message":"a"}` + "\n" +
				`{"datetime":"not a time","pod":"p","container":"job","message":"bad"}` + "\n" +
				`{"datetime":"2024-05-01T10:00:01.5Z","pod":"p","container":"job","message":"b"}` + "\n",
		))
	})

	since := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	records, err := s.client.Logs(context.Background(), &jobs.LogsRequest{Name: "bayes-train-w1", Since: since})
	require.NoError(s.T(), err)
	require.Len(s.T(), records, 2)
	assert.Equal(s.T(), "a", records[0].Message)
	assert.Equal(s.T(), "p", records[0].Pod)
	assert.Equal(s.T(), "job", records[0].Container)
	assert.Equal(s.T(), "b", records[1].Message)
}

func (s *ToolforgeTestSuite) TestLogsNaiveDatetimes() {
	s.mux.HandleFunc("/jobs/v1/tool/cluebotng-trainer/jobs/bayes-train-w1/logs/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(
			`{"datetime":"2023-12-31T23:59:59","pod":"p","container":"job","message":"old"}` + "\n" +
				`{"datetime":"2024-01-01T00:00:01","pod":"p","container":"job","message":"a"}` + "\n" +
				`{"datetime":"2024-01-01T00:00:02.250000","pod":"p","container":"job","message":"## JOB FINISHED MARKER ##"}` + "\n",
		))
	})

	status := ParseStatus("Running", "Last run at 2024-01-01T00:00:00. Pod in 'Running' phase.")
	require.False(s.T(), status.Since.IsZero())

	records, err := s.client.Logs(context.Background(), &jobs.LogsRequest{Name: "bayes-train-w1", Since: status.Since})
	require.NoError(s.T(), err)
	require.Len(s.T(), records, 2)
	assert.Equal(s.T(), "a", records[0].Message)
	assert.Equal(s.T(), time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), records[0].Timestamp)
	assert.Equal(s.T(), "## JOB FINISHED MARKER ##", records[1].Message)
}

func (s *ToolforgeTestSuite) TestLogsSkipsMalformedLines() {
	s.mux.HandleFunc("/jobs/v1/tool/cluebotng-trainer/jobs/bayes-train-w1/logs/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(
			`{"datetime":"2024-05-01T10:00:00Z","pod":"p","container":"job","message":"a"}` + "\n" +
				`{"datetime":"2024-05-01T10:00:00Z","pod":` + "\n" +
				"\n" +
				`{"datetime":"2024-05-01T10:00:01Z","pod":"p","container":"job","message":"b"}` + "\n",
		))
	})

	records, err := s.client.Logs(context.Background(), &jobs.LogsRequest{Name: "bayes-train-w1"})
	require.NoError(s.T(), err)
	require.Len(s.T(), records, 2)
	assert.Equal(s.T(), "a", records[0].Message)
	assert.Equal(s.T(), "b", records[1].Message)
}

func (s *ToolforgeTestSuite) TestLogsNotFound() {
	records, err := s.client.Logs(context.Background(), &jobs.LogsRequest{Name: "missing"})
	require.NoError(s.T(), err)
	assert.Empty(s.T(), records)
}

func (s *ToolforgeTestSuite) TestDelete() {
	s.mux.HandleFunc("/jobs/v1/tool/cluebotng-trainer/jobs/bayes-train-w1/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(s.T(), http.MethodDelete, r.Method)
		s.deleted = append(s.deleted, "bayes-train-w1")
	})

	require.NoError(s.T(), s.client.Delete(context.Background(), &jobs.DeleteRequest{Name: "bayes-train-w1"}))
	assert.Equal(s.T(), []string{"bayes-train-w1"}, s.deleted)

	assert.NoError(s.T(), s.client.Delete(context.Background(), &jobs.DeleteRequest{Name: "missing"}))
}

func (s *ToolforgeTestSuite) TestDeleteFailure() {
	s.mux.HandleFunc("/jobs/v1/tool/cluebotng-trainer/jobs/stuck/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	assert.Error(s.T(), s.client.Delete(context.Background(), &jobs.DeleteRequest{Name: "stuck"}))
}

func TestToolforgeTestSuite(t *testing.T) {
	suite.Run(t, new(ToolforgeTestSuite))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{APIURL: "https://api.example", Tool: "tool"})
	assert.Error(t, err)
}

func TestNewWithHTTPClientRequiresTool(t *testing.T) {
	_, err := NewWithHTTPClient("https://api.example", "", http.DefaultClient)
	assert.Error(t, err)
}
