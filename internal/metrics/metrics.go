// Package metrics counts what a migration run translated, skipped and
// pushed. The counters live on a private registry and are written out in the
// node_exporter textfile format at the end of a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ACL line outcomes.
const (
	OutcomeEntry        = "entry"
	OutcomeRemark       = "remark"
	OutcomeInactive     = "inactive"
	OutcomeUnprocessed  = "unprocessed"
	OutcomeSkippedChild = "skipped_child"
)

type Recorder struct {
	registry *prometheus.Registry

	aclLines       *prometheus.CounterVec
	objects        *prometheus.CounterVec
	rules          *prometheus.CounterVec
	remoteFailures *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		aclLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asa2mx_acl_lines_total",
			Help: "ACL lines read, by outcome.",
		}, []string{"outcome"}),
		objects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asa2mx_objects_total",
			Help: "Configuration objects considered, by category and outcome.",
		}, []string{"category", "outcome"}),
		rules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asa2mx_rules_total",
			Help: "Target rules generated, by stream.",
		}, []string{"stream"}),
		remoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asa2mx_remote_failures_total",
			Help: "Failed calls to the target platform, by operation.",
		}, []string{"operation"}),
	}
	r.registry.MustRegister(r.aclLines, r.objects, r.rules, r.remoteFailures)
	return r
}

func (r *Recorder) ACLLines(outcome string, n int) {
	r.aclLines.WithLabelValues(outcome).Add(float64(n))
}

func (r *Recorder) Objects(category string, built, skipped int) {
	r.objects.WithLabelValues(category, "built").Add(float64(built))
	r.objects.WithLabelValues(category, "skipped").Add(float64(skipped))
}

func (r *Recorder) Rules(stream string, n int) {
	r.rules.WithLabelValues(stream).Add(float64(n))
}

func (r *Recorder) RemoteFailure(operation string) {
	r.remoteFailures.WithLabelValues(operation).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every counter to path, replacing the file atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
