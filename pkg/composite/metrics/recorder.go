// Package metrics exports object lifecycle counters to Prometheus.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-composite/pkg/composite"
)

// Recorder is a composite.EventSink that counts lifecycle events.
type Recorder struct {
	submitted    *prometheus.CounterVec
	sealed       *prometheus.CounterVec
	sealFailures *prometheus.CounterVec
	deleted      prometheus.Counter
	persisted    prometheus.Counter
	members      prometheus.Histogram
}

var _ composite.EventSink = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "composite",
			Name:      "documents_submitted_total",
			Help:      "Documents stored as pending, by type tag.",
		}, []string{"type_tag"}),
		sealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "composite",
			Name:      "objects_sealed_total",
			Help:      "Objects that became visible, by type tag.",
		}, []string{"type_tag"}),
		sealFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "composite",
			Name:      "seal_failures_total",
			Help:      "Rejected seal requests, by reason.",
		}, []string{"reason"}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "composite",
			Name:      "objects_deleted_total",
			Help:      "Objects turned into tombstones.",
		}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "composite",
			Name:      "objects_persisted_total",
			Help:      "Objects whose snapshot was written.",
		}),
		members: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "composite",
			Name:      "members_per_object",
			Help:      "Member count of sealed objects.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	for _, c := range []prometheus.Collector{r.submitted, r.sealed, r.sealFailures, r.deleted, r.persisted, r.members} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SealFailureReason classifies a seal error for the reason label.
func SealFailureReason(err error) string {
	switch {
	case errors.Is(err, composite.ErrDanglingReference):
		return "dangling_reference"
	case errors.Is(err, composite.ErrObjectNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

func (r *Recorder) MetadataSubmitted(ctx context.Context, doc *composite.Document) error {
	r.submitted.WithLabelValues(doc.TypeTag).Inc()
	return nil
}

func (r *Recorder) ObjectSealed(ctx context.Context, doc *composite.Document) error {
	r.sealed.WithLabelValues(doc.TypeTag).Inc()
	r.members.Observe(float64(len(doc.Members)))
	return nil
}

func (r *Recorder) SealFailed(ctx context.Context, id composite.ObjectID, err error) error {
	r.sealFailures.WithLabelValues(SealFailureReason(err)).Inc()
	return nil
}

func (r *Recorder) ObjectDeleted(ctx context.Context, id composite.ObjectID) error {
	r.deleted.Inc()
	return nil
}

func (r *Recorder) ObjectPersisted(ctx context.Context, id composite.ObjectID) error {
	r.persisted.Inc()
	return nil
}
