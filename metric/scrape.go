package metric

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/c360/formflow/errors"
)

// Family names read back by Summarize
const (
	familyDecisions          = namespace + "_navigation_decisions_total"
	familyValidationFailures = namespace + "_navigation_validation_failures_total"
	familySubmitted          = namespace + "_navigation_submissions_finalized_total"
	familyRedirects          = namespace + "_navigation_policy_redirects_total"
)

// FlowSummary totals the navigation counters of one flow
type FlowSummary struct {
	Flow               string            `json:"flow"`
	Decisions          map[string]uint64 `json:"decisions"`
	ValidationFailures map[string]uint64 `json:"validation_failures"`
	Submitted          uint64            `json:"submitted"`
	PolicyRedirects    map[string]uint64 `json:"policy_redirects"`
}

// Scrape fetches a metrics endpoint and parses the text exposition format
func Scrape(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "metric", "Scrape", "create http request")
	}
	req.Header.Set("Accept", "text/plain; version=0.0.4")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "metric", "Scrape", "fetch metrics")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapTransient(fmt.Errorf("unexpected status code: %d", resp.StatusCode),
			"metric", "Scrape", "check http status")
	}
	return ParseText(resp.Body)
}

// ParseText parses Prometheus text format into metric families
func ParseText(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, errors.WrapInvalid(err, "metric", "ParseText", "parse prometheus text format")
	}
	return families, nil
}

// Summarize groups the navigation counters by flow, sorted by flow name
func Summarize(families map[string]*dto.MetricFamily) []FlowSummary {
	byFlow := make(map[string]*FlowSummary)
	flow := func(name string) *FlowSummary {
		s, ok := byFlow[name]
		if !ok {
			s = &FlowSummary{
				Flow:               name,
				Decisions:          map[string]uint64{},
				ValidationFailures: map[string]uint64{},
				PolicyRedirects:    map[string]uint64{},
			}
			byFlow[name] = s
		}
		return s
	}

	eachCounter(families[familyDecisions], func(labels map[string]string, v uint64) {
		flow(labels["flow"]).Decisions[labels["outcome"]] += v
	})
	eachCounter(families[familyValidationFailures], func(labels map[string]string, v uint64) {
		flow(labels["flow"]).ValidationFailures[labels["screen"]] += v
	})
	eachCounter(families[familySubmitted], func(labels map[string]string, v uint64) {
		flow(labels["flow"]).Submitted += v
	})
	eachCounter(families[familyRedirects], func(labels map[string]string, v uint64) {
		flow(labels["flow"]).PolicyRedirects[labels["reason"]] += v
	})

	out := make([]FlowSummary, 0, len(byFlow))
	for _, s := range byFlow {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Flow < out[j].Flow })
	return out
}

func eachCounter(family *dto.MetricFamily, fn func(labels map[string]string, value uint64)) {
	if family == nil || family.GetType() != dto.MetricType_COUNTER {
		return
	}
	for _, m := range family.GetMetric() {
		labels := make(map[string]string, len(m.GetLabel()))
		for _, l := range m.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		if c := m.GetCounter(); c != nil {
			fn(labels, uint64(c.GetValue()))
		}
	}
}
