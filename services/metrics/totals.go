package metricsvc

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Totals reads the ledger counters gathered by g, keyed by name without the namespace and by
// label values, e.g. "assignment_rows_total{result=created}".
func Totals(g prometheus.Gatherer) (map[string]float64, error) {
	mfs, err := g.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gathering metrics")
	}

	prefix := namespace + "_"
	totals := make(map[string]float64)
	for _, mf := range mfs {
		if mf.GetType() != dto.MetricType_COUNTER || !strings.HasPrefix(mf.GetName(), prefix) {
			continue
		}
		name := strings.TrimPrefix(mf.GetName(), prefix)
		for _, m := range mf.GetMetric() {
			key := name
			if lbls := m.GetLabel(); len(lbls) > 0 {
				pairs := make([]string, 0, len(lbls))
				for _, l := range lbls {
					pairs = append(pairs, l.GetName()+"="+l.GetValue())
				}
				key += "{" + strings.Join(pairs, ",") + "}"
			}
			totals[key] += m.GetCounter().GetValue()
		}
	}
	return totals, nil
}
