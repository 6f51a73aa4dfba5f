package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Entry is one script's line in the digest.
type Entry struct {
	// Name is the sub key of the script run.
	Name string
	// Attachment is the file name the rendered report is attached under.
	Attachment string
	// Summary is nil when the raw report was missing or unreadable.
	Summary *Summary
}

// Digest is the content of one session's email.
type Digest struct {
	SessionKey string
	StartedAt  time.Time
	Entries    []Entry
}

// TotalRequests sums the requests of every summarized entry.
func (d *Digest) TotalRequests() int64 {
	var n int64
	for _, e := range d.Entries {
		if e.Summary != nil {
			n += e.Summary.Requests
		}
	}
	return n
}

// TotalErrors sums the errors of every summarized entry.
func (d *Digest) TotalErrors() int64 {
	var n int64
	for _, e := range d.Entries {
		if e.Summary != nil {
			n += e.Summary.ErrorCount()
		}
	}
	return n
}

// RenderHTML renders the digest as an HTML email body.
func RenderHTML(d *Digest) (string, error) {
	if d == nil {
		return "", fmt.Errorf("digest cannot be nil")
	}

	tmpl, err := template.New("digest").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// RenderText renders the plain-text alternative of the digest.
func RenderText(d *Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Load test session %s\n", d.SessionKey)
	if !d.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started: %s\n", d.StartedAt.Format(time.RFC1123))
	}
	fmt.Fprintf(&b, "Reports: %d, requests: %s, errors: %s\n\n",
		len(d.Entries), formatNumber(d.TotalRequests()), formatNumber(d.TotalErrors()))

	for _, e := range d.Entries {
		fmt.Fprintf(&b, "%s (%s)\n", e.Name, e.Attachment)
		if e.Summary == nil {
			b.WriteString("  no summary available\n")
			continue
		}
		s := e.Summary
		fmt.Fprintf(&b, "  requests %s, rps %.1f, errors %s\n",
			formatNumber(s.Requests), s.RPS, formatNumber(s.ErrorCount()))
		fmt.Fprintf(&b, "  latency median %s, p95 %s, p99 %s\n",
			formatLatency(s.Latency.Median), formatLatency(s.Latency.P95), formatLatency(s.Latency.P99))
	}
	return b.String()
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatLatency":  formatLatency,
		"formatTime":     func(t time.Time) string { return t.Format(time.RFC1123) },
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}

// formatNumber adds thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if n < 1000 {
		return str
	}

	var b strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func formatLatency(d time.Duration) string {
	if d == 0 {
		return "0"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		ms := float64(d.Microseconds()) / 1000.0
		if ms < 10 {
			return fmt.Sprintf("%.2fms", ms)
		}
		if ms < 100 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(ms))
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
