// Package metrics holds the Prometheus collectors for strata replicas.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Prefix starts the name of every strata metric.
const Prefix = "strata_"

var registry = prometheus.NewRegistry()

// Registry returns the registry holding the strata collectors.
func Registry() *prometheus.Registry {
	return registry
}

// MustRegister adds collectors to the strata registry.
func MustRegister(cs ...prometheus.Collector) {
	registry.MustRegister(cs...)
}

// Snapshot flattens the strata metric families into name{labels} keys.
// Histograms report their sample count under name_count.
func Snapshot() (map[string]float64, error) {
	families, err := registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), Prefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			if len(m.GetLabel()) > 0 {
				labels := make([]string, 0, len(m.GetLabel()))
				for _, lp := range m.GetLabel() {
					labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
				}
				key += "{" + strings.Join(labels, ",") + "}"
			}

			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key+"_count"] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
