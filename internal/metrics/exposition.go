package metrics

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"google.golang.org/protobuf/proto"
)

var _ prometheus.Gatherer = (*Registry)(nil)

// Gather copies the registry into client_model families, sorted by name.
// Label pairs are sorted by label name, every series carries the time of its
// last update and gauge values are rounded to 4 decimals. The read lock is
// held only while copying.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	r.mu.RLock()
	out := make([]*dto.MetricFamily, 0, len(r.families))
	for _, f := range r.families {
		if len(f.series) == 0 {
			continue
		}
		out = append(out, f.toDTO())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out, nil
}

func (f *family) toDTO() *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name:   proto.String(f.desc.Name),
		Help:   proto.String(f.desc.Help),
		Type:   dtoType(f.desc.Kind),
		Metric: make([]*dto.Metric, 0, len(f.series)),
	}

	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s := f.series[k]
		m := &dto.Metric{
			Label:       labelPairs(f.desc.Labels, s.values),
			TimestampMs: proto.Int64(s.updated.UnixMilli()),
		}
		switch f.desc.Kind {
		case Counter:
			m.Counter = &dto.Counter{Value: proto.Float64(s.value)}
		case Gauge:
			m.Gauge = &dto.Gauge{Value: proto.Float64(round4(s.value))}
		case Histogram:
			m.Histogram = histogramDTO(f.desc.Buckets, s)
		}
		mf.Metric = append(mf.Metric, m)
	}
	return mf
}

func histogramDTO(bounds []float64, s *series) *dto.Histogram {
	h := &dto.Histogram{
		SampleCount: proto.Uint64(s.count),
		SampleSum:   proto.Float64(s.sum),
		Bucket:      make([]*dto.Bucket, len(bounds)),
	}
	var cumulative uint64
	for i, ub := range bounds {
		cumulative += s.counts[i]
		h.Bucket[i] = &dto.Bucket{
			UpperBound:      proto.Float64(ub),
			CumulativeCount: proto.Uint64(cumulative),
		}
	}
	return h
}

func labelPairs(names, values []string) []*dto.LabelPair {
	pairs := make([]*dto.LabelPair, len(names))
	for i := range names {
		pairs[i] = &dto.LabelPair{Name: proto.String(names[i]), Value: proto.String(values[i])}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].GetName() < pairs[j].GetName() })
	return pairs
}

func dtoType(k Kind) *dto.MetricType {
	switch k {
	case Counter:
		return dto.MetricType_COUNTER.Enum()
	case Gauge:
		return dto.MetricType_GAUGE.Enum()
	default:
		return dto.MetricType_HISTOGRAM.Enum()
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// WriteText renders every family in the Prometheus text exposition format.
// Histograms end with a +Inf bucket equal to their count.
func (r *Registry) WriteText(w io.Writer) error {
	families, err := r.Gather()
	if err != nil {
		return err
	}
	return WriteFamilies(w, families)
}

// WriteFamilies renders families in the text exposition format. Counter
// families holding only non-negative integers are written in plain integer
// form; expfmt would switch to exponent notation from 1e6 on.
func WriteFamilies(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		var err error
		if integerCounter(mf) {
			err = writeIntegerCounter(w, mf)
		} else {
			_, err = expfmt.MetricFamilyToText(w, mf)
		}
		if err != nil {
			return fmt.Errorf("metrics: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// maxExactCounter is 2^53, the largest float64 below which every integer is
// representable.
const maxExactCounter = 1 << 53

func integerCounter(mf *dto.MetricFamily) bool {
	if mf.GetType() != dto.MetricType_COUNTER || !model.IsValidLegacyMetricName(mf.GetName()) {
		return false
	}
	for _, m := range mf.GetMetric() {
		v := m.GetCounter().GetValue()
		if v < 0 || v > maxExactCounter || v != math.Trunc(v) {
			return false
		}
		for _, lp := range m.GetLabel() {
			if !model.LabelName(lp.GetName()).IsValidLegacy() {
				return false
			}
		}
	}
	return true
}

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
)

func writeIntegerCounter(w io.Writer, mf *dto.MetricFamily) error {
	var b strings.Builder
	name := mf.GetName()
	if mf.Help != nil {
		b.WriteString("# HELP ")
		b.WriteString(name)
		b.WriteByte(' ')
		b.WriteString(helpEscaper.Replace(mf.GetHelp()))
		b.WriteByte('\n')
	}
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")

	for _, m := range mf.GetMetric() {
		b.WriteString(name)
		if labels := m.GetLabel(); len(labels) > 0 {
			b.WriteByte('{')
			for i, lp := range labels {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString(lp.GetName())
				b.WriteString(`="`)
				b.WriteString(labelEscaper.Replace(lp.GetValue()))
				b.WriteByte('"')
			}
			b.WriteByte('}')
		}
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(uint64(m.GetCounter().GetValue()), 10))
		if m.TimestampMs != nil {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatInt(m.GetTimestampMs(), 10))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
