package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// FormatText writes the summary in human-readable form.
func FormatText(w io.Writer, s *Summary) {
	if s.TotalSessions == 0 {
		fmt.Fprintln(w, "No sessions simulated")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "telesim - Run Summary")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Run Duration:   %v\n", s.RunDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Sessions:       %s (%.1f/min)\n", formatNumber(s.TotalSessions), s.SessionsPerMin)
	fmt.Fprintf(w, "Success Rate:   %.1f%% (%s / %s)\n",
		s.SuccessRate, formatNumber(s.Completed), formatNumber(s.TotalSessions))
	fmt.Fprintf(w, "Tokens:         %s\n", formatNumber(int(s.TotalTokens)))
	fmt.Fprintf(w, "Cost:           $%.2f\n", s.TotalCost)
	fmt.Fprintf(w, "Tool Calls:     %s\n", formatNumber(s.ToolCalls))
	fmt.Fprintf(w, "Errors:         %s\n", formatNumber(s.Errors))
	fmt.Fprintf(w, "Commits:        %s\n", formatNumber(s.Commits))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Session Durations:")
	fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(s.Duration.Min))
	fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(s.Duration.Avg))
	fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(s.Duration.P50))
	fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(s.Duration.P90))
	fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(s.Duration.P95))
	fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(s.Duration.P99))
	fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(s.Duration.Max))

	writeGroups(w, "By User Type:", s.ByUserType)
	writeGroups(w, "By Model:", s.ByModel)
}

func writeGroups(w io.Writer, title string, groups map[string]*GroupMetrics) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, title)
	for _, key := range sortedKeys(groups) {
		g := groups[key]
		fmt.Fprintf(w, "  %-18s %s sessions   cost=$%.2f  avg=%s  p95=%s\n",
			key, formatNumber(g.Sessions), g.Cost,
			FormatDuration(g.Duration.Avg),
			FormatDuration(g.Duration.P95))
	}
}

func sortedKeys(groups map[string]*GroupMetrics) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatJSON writes the summary as indented JSON.
func FormatJSON(w io.Writer, s *Summary) error {
	output := struct {
		RunDuration    string                     `json:"runDuration"`
		TotalSessions  int                        `json:"totalSessions"`
		Completed      int                        `json:"completed"`
		Failed         int                        `json:"failed"`
		SuccessRate    float64                    `json:"successRate"`
		SessionsPerMin float64                    `json:"sessionsPerMin"`
		TotalTokens    int64                      `json:"totalTokens"`
		TotalCost      float64                    `json:"totalCost"`
		ToolCalls      int                        `json:"toolCalls"`
		Errors         int                        `json:"errors"`
		Commits        int                        `json:"commits"`
		Durations      jsonDurationMetrics        `json:"durations"`
		ByUserType     map[string]jsonGroupMetric `json:"byUserType"`
		ByModel        map[string]jsonGroupMetric `json:"byModel"`
	}{
		RunDuration:    s.RunDuration.Round(time.Millisecond).String(),
		TotalSessions:  s.TotalSessions,
		Completed:      s.Completed,
		Failed:         s.Failed,
		SuccessRate:    s.SuccessRate,
		SessionsPerMin: s.SessionsPerMin,
		TotalTokens:    s.TotalTokens,
		TotalCost:      s.TotalCost,
		ToolCalls:      s.ToolCalls,
		Errors:         s.Errors,
		Commits:        s.Commits,
		Durations:      toJSONDurationMetrics(s.Duration),
		ByUserType:     toJSONGroups(s.ByUserType),
		ByModel:        toJSONGroups(s.ByModel),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

type jsonGroupMetric struct {
	Sessions  int                 `json:"sessions"`
	Failed    int                 `json:"failed"`
	Tokens    int64               `json:"tokens"`
	Cost      float64             `json:"cost"`
	Durations jsonDurationMetrics `json:"durations"`
}

func toJSONGroups(groups map[string]*GroupMetrics) map[string]jsonGroupMetric {
	out := make(map[string]jsonGroupMetric, len(groups))
	for k, g := range groups {
		out[k] = jsonGroupMetric{
			Sessions:  g.Sessions,
			Failed:    g.Failed,
			Tokens:    g.Tokens,
			Cost:      g.Cost,
			Durations: toJSONDurationMetrics(g.Duration),
		}
	}
	return out
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

// FormatDuration formats a session duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
