package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"

	"insights-gateway/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "insights_gateway"

// rejectionKinds are the failure kinds a request can end with.
var rejectionKinds = []model.Kind{
	model.KindMissingPayload,
	model.KindPayloadTooLarge,
	model.KindEmptyPayload,
	model.KindUnsupportedArchiveType,
	model.KindInvalidArchive,
	model.KindMissingResults,
	model.KindUnhandledEngine,
	model.KindEvaluationTimeout,
	model.KindUnknown,
}

// Metrics is the set of operational counters.
//
// ProcessStats (/status) answers "what was processed"; these answer "how did
// requests fail". Every field is accessed atomically.
type Metrics struct {
	// ======================
	// HTTP level
	// ======================

	// UploadRequestsTotal
	// - every request that reached an upload route, whatever the outcome.
	UploadRequestsTotal int64

	// UploadRequestsAcceptedTotal
	// - requests answered with 201.
	UploadRequestsAcceptedTotal int64

	// rejected: failures per kind, indexed by model.Kind.
	rejected [model.KindStoragePersistence + 1]int64

	// ======================
	// S3 level
	// ======================

	// S3PutsTotal
	// - successful PutObject calls, primary and secondary.
	S3PutsTotal int64

	// S3PutErrorsTotal
	// - failed PutObject calls. There are no retries, so one per failed write.
	S3PutErrorsTotal int64

	// S3BytesStoredTotal
	// - archive bytes successfully stored.
	S3BytesStoredTotal int64
}

func New() *Metrics {
	return &Metrics{}
}

// Reject counts one request that failed with err's kind.
func (m *Metrics) Reject(err error) {
	k := model.AsError(err).Kind
	if int(k) < 0 || int(k) >= len(m.rejected) {
		k = model.KindUnknown
	}
	atomic.AddInt64(&m.rejected[k], 1)
}

// Rejected returns the failure count for kind.
func (m *Metrics) Rejected(k model.Kind) int64 {
	if int(k) < 0 || int(k) >= len(m.rejected) {
		return 0
	}
	return atomic.LoadInt64(&m.rejected[k])
}

// Register exposes the counters to Prometheus. Values are read from the
// atomics at scrape time.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	counter := func(name, help string, v *int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(atomic.LoadInt64(v)) })
	}

	cs := []prometheus.Collector{
		counter("upload_requests_total", "Upload requests received.", &m.UploadRequestsTotal),
		counter("upload_requests_accepted_total", "Upload requests answered with 201.", &m.UploadRequestsAcceptedTotal),
		counter("s3_puts_total", "Successful PutObject calls.", &m.S3PutsTotal),
		counter("s3_put_errors_total", "Failed PutObject calls.", &m.S3PutErrorsTotal),
		counter("s3_bytes_stored_total", "Archive bytes written to object storage.", &m.S3BytesStoredTotal),
	}
	for _, k := range rejectionKinds {
		cs = append(cs, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "upload_requests_rejected_total",
			Help:        "Upload requests that failed, by error kind.",
			ConstLabels: prometheus.Labels{"kind": k.String()},
		}, func() float64 { return float64(m.Rejected(k)) }))
	}

	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(256)

	fmt.Fprintf(&sb, "upload_requests_total=%d\n", atomic.LoadInt64(&m.UploadRequestsTotal))
	fmt.Fprintf(&sb, "upload_requests_accepted_total=%d\n", atomic.LoadInt64(&m.UploadRequestsAcceptedTotal))
	for _, k := range rejectionKinds {
		fmt.Fprintf(&sb, "upload_requests_rejected_total{kind=%q}=%d\n", k.String(), m.Rejected(k))
	}

	fmt.Fprintf(&sb, "s3_puts_total=%d\n", atomic.LoadInt64(&m.S3PutsTotal))
	fmt.Fprintf(&sb, "s3_put_errors_total=%d\n", atomic.LoadInt64(&m.S3PutErrorsTotal))
	fmt.Fprintf(&sb, "s3_bytes_stored_total=%d\n", atomic.LoadInt64(&m.S3BytesStoredTotal))

	return sb.String()
}
