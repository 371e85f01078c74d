package metrics

import (
	"testing"

	metrictestutil "github.com/cluebotng/trainer/internal/metrics/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
)

type MetricsSuite struct {
	suite.Suite
	registry *prometheus.Registry
}

func TestMetricsSuite(t *testing.T) {
	suite.Run(t, new(MetricsSuite))
}

func (s *MetricsSuite) SetupTest() {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		JobRunsTotal,
		JobRunDurationSeconds,
		JobsActive,
		JobLogLinesTotal,
		JobDeleteFailuresTotal,
		QuotaChecksTotal,
		PipelineStepsTotal,
		ScheduleFiresTotal,
		FileUploadsTotal,
	)
}

func (s *MetricsSuite) TestJobRunsTotalIncrements() {
	JobRunsTotal.WithLabelValues("bayes-train", "succeeded").Inc()
	JobRunsTotal.WithLabelValues("bayes-train", "start_timeout").Inc()
	JobRunsTotal.WithLabelValues("bayes-train", "start_timeout").Inc()

	val := metrictestutil.CounterValue(s.T(), JobRunsTotal, "bayes-train", "succeeded")
	s.GreaterOrEqual(val, float64(1))

	val = metrictestutil.CounterValue(s.T(), JobRunsTotal, "bayes-train", "start_timeout")
	s.GreaterOrEqual(val, float64(2))
}

func (s *MetricsSuite) TestJobRunDurationObserves() {
	JobRunDurationSeconds.WithLabelValues("ann-train", "succeeded").Observe(42.5)

	count, sum := metrictestutil.HistogramSamples(s.T(), JobRunDurationSeconds, "ann-train", "succeeded")
	s.Equal(uint64(1), count)
	s.Equal(42.5, sum)

	families, err := s.registry.Gather()
	s.Require().NoError(err)
	names := map[string]bool{}
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	s.True(names["cbng_trainer_job_run_duration_seconds"])
}

func (s *MetricsSuite) TestJobsActiveGauge() {
	JobsActive.WithLabelValues("coord").Inc()
	JobsActive.WithLabelValues("coord").Inc()
	JobsActive.WithLabelValues("coord").Dec()

	val := metrictestutil.GaugeValue(s.T(), JobsActive, "coord")
	s.GreaterOrEqual(val, float64(1))
}

func (s *MetricsSuite) TestJobLogLinesTotalAdds() {
	JobLogLinesTotal.WithLabelValues("create-ann").Add(3)

	val := metrictestutil.CounterValue(s.T(), JobLogLinesTotal, "create-ann")
	s.GreaterOrEqual(val, float64(3))
}

func (s *MetricsSuite) TestJobDeleteFailuresTotalIncrements() {
	JobDeleteFailuresTotal.WithLabelValues("trial-report").Inc()

	val := metrictestutil.CounterValue(s.T(), JobDeleteFailuresTotal, "trial-report")
	s.GreaterOrEqual(val, float64(1))
}

func (s *MetricsSuite) TestQuotaChecksTotalIncrements() {
	QuotaChecksTotal.WithLabelValues("coord-", "exhausted").Inc()
	QuotaChecksTotal.WithLabelValues("coord-", "available").Inc()

	val := metrictestutil.CounterValue(s.T(), QuotaChecksTotal, "coord-", "exhausted")
	s.GreaterOrEqual(val, float64(1))
}

func (s *MetricsSuite) TestPipelineStepsTotalIncrements() {
	PipelineStepsTotal.WithLabelValues("bayes-train", "failed").Inc()

	val := metrictestutil.CounterValue(s.T(), PipelineStepsTotal, "bayes-train", "failed")
	s.GreaterOrEqual(val, float64(1))
}

func (s *MetricsSuite) TestScheduleFiresTotalIncrements() {
	ScheduleFiresTotal.WithLabelValues("@daily").Inc()

	val := metrictestutil.CounterValue(s.T(), ScheduleFiresTotal, "@daily")
	s.GreaterOrEqual(val, float64(1))
}

func (s *MetricsSuite) TestFileUploadsTotalIncrements() {
	FileUploadsTotal.WithLabelValues("201").Inc()

	val := metrictestutil.CounterValue(s.T(), FileUploadsTotal, "201")
	s.GreaterOrEqual(val, float64(1))
}
