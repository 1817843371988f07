// Package metrics exports engine activity as Prometheus metrics.
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/fluxgear/internal/engine"
)

const namespace = "fluxgear"

// OutcomeOK labels transactions that returned no error.
const OutcomeOK = "ok"

// Collector counts transactions and reduced messages. It implements
// engine.Observer; add it to Config.Observers.
type Collector struct {
	dispatches *prometheus.CounterVec
	messages   *prometheus.CounterVec
	changes    prometheus.Counter
	duration   prometheus.Histogram
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Transactions by outcome (ok or the lower-cased error code)",
			},
			[]string{"outcome"},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Messages consumed and reduced, by type name",
			},
			[]string{"type"},
		),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Transactions that changed the state",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Transaction duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, m := range []prometheus.Collector{c.dispatches, c.messages, c.changes, c.duration} {
		if err := reg.Register(m); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return nil, fmt.Errorf("metrics already registered: %w", err)
			}
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// OnDispatch is a no-op; transactions are counted when they complete.
func (c *Collector) OnDispatch(engine.Transaction) {}

// OnStep counts the reduced message by type.
func (c *Collector) OnStep(step engine.Step) {
	c.messages.WithLabelValues(step.Message.Type.Name()).Inc()
}

// OnComplete records the outcome, any state change and the duration.
func (c *Collector) OnComplete(_ engine.Transaction, out engine.Outcome) {
	c.dispatches.WithLabelValues(Outcome(out.Err)).Inc()
	if out.Changed {
		c.changes.Inc()
	}
	c.duration.Observe(out.Duration.Seconds())
}

// Outcome maps a transaction error to its label value.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := engine.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

// Sample is one counter value from Snapshot.
type Sample struct {
	Name  string  `json:"name"`
	Label string  `json:"label,omitempty"` // "key=value", empty for unlabeled metrics
	Value float64 `json:"value"`
}

// Snapshot gathers the fluxgear counters from g, sorted by name then label.
// Histograms report their sample count.
func Snapshot(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var out []Sample
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			s := Sample{Name: mf.GetName()}
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			s.Label = strings.Join(labels, ",")
			switch {
			case m.GetCounter() != nil:
				s.Value = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				s.Value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			out = append(out, s)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}
