package httpserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yardstick/benchalign/internal/results"
)

// reportCollector exposes the latest per-cell statistics and offsets.
type reportCollector struct {
	results *results.Manager

	cellMean    *prometheus.Desc
	cellStdDev  *prometheus.Desc
	cellSamples *prometheus.Desc
	offset      *prometheus.Desc
	age         *prometheus.Desc
	sequence    *prometheus.Desc
	runs        *prometheus.Desc
}

func newReportCollector(resultsManager *results.Manager) prometheus.Collector {
	if resultsManager == nil {
		return nil
	}

	cellLabels := []string{"column", "version", "scale"}
	desc := func(name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("benchalign", "", name), help, labels, nil)
	}

	return &reportCollector{
		results:     resultsManager,
		cellMean:    desc("cell_mean", "Mean of an aligned metric per version and scale.", cellLabels),
		cellStdDev:  desc("cell_stddev", "Sample standard deviation of an aligned metric per version and scale.", cellLabels),
		cellSamples: desc("cell_samples", "Number of aligned samples per version and scale.", cellLabels),
		offset:      desc("offset_seconds", "Warmup offset applied per version and scale.", []string{"version", "scale", "source"}),
		age:         desc("report_age_seconds", "Seconds elapsed since the latest report was produced.", nil),
		sequence:    desc("report_sequence", "Sequence number of the latest published report.", nil),
		runs:        desc("analysis_runs_total", "Analysis attempts since start, including failures.", nil),
	}
}

func (c *reportCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.cellMean, c.cellStdDev, c.cellSamples, c.offset, c.age, c.sequence, c.runs} {
		ch <- d
	}
}

func (c *reportCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.runs, prometheus.CounterValue, float64(c.results.Runs()))

	snapshot, ok := c.results.Latest()
	if !ok {
		return
	}
	rep := snapshot.Report

	ch <- prometheus.MustNewConstMetric(c.sequence, prometheus.GaugeValue, float64(snapshot.Sequence))
	if !rep.GeneratedAt.IsZero() {
		age := time.Since(rep.GeneratedAt).Seconds()
		if age < 0 {
			age = 0
		}
		ch <- prometheus.MustNewConstMetric(c.age, prometheus.GaugeValue, age)
	}

	for _, entry := range rep.Offsets {
		ch <- prometheus.MustNewConstMetric(c.offset, prometheus.GaugeValue, entry.Seconds,
			entry.Cell.Version.String(), entry.Cell.Scale.String(), string(entry.Source))
	}

	for _, section := range rep.Sections {
		for _, cell := range section.ByCell {
			labels := []string{section.Column, cell.Version.String(), cell.Scale.String()}
			ch <- prometheus.MustNewConstMetric(c.cellMean, prometheus.GaugeValue, cell.Mean, labels...)
			ch <- prometheus.MustNewConstMetric(c.cellStdDev, prometheus.GaugeValue, cell.StdDev, labels...)
			ch <- prometheus.MustNewConstMetric(c.cellSamples, prometheus.GaugeValue, float64(cell.Count), labels...)
		}
	}
}
