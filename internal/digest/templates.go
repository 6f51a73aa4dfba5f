package digest

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Load test session {{.SessionKey}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #1f2937; }
table { border-collapse: collapse; width: 100%; }
th, td { border-bottom: 1px solid #e5e7eb; padding: 6px 10px; text-align: left; }
th { background: #f3f4f6; }
.num { text-align: right; font-variant-numeric: tabular-nums; }
.bad { color: #b91c1c; }
.muted { color: #6b7280; }
</style>
</head>
<body>
<h2>Load test session {{.SessionKey}}</h2>
{{if not .StartedAt.IsZero}}<p class="muted">Started {{formatTime .StartedAt}}</p>{{end}}
<p>{{len .Entries}} report(s), {{formatNumber .TotalRequests}} requests, {{formatNumber .TotalErrors}} errors.</p>
<table>
<thead>
<tr><th>Script</th><th class="num">Requests</th><th class="num">RPS</th><th class="num">Median</th><th class="num">p95</th><th class="num">p99</th><th class="num">Errors</th><th class="num">Duration</th><th>Report</th></tr>
</thead>
<tbody>
{{range .Entries}}
{{if .Summary}}
<tr>
<td>{{.Name}}</td>
<td class="num">{{formatNumber .Summary.Requests}}</td>
<td class="num">{{printf "%.1f" .Summary.RPS}}</td>
<td class="num">{{formatLatency .Summary.Latency.Median}}</td>
<td class="num">{{formatLatency .Summary.Latency.P95}}</td>
<td class="num">{{formatLatency .Summary.Latency.P99}}</td>
<td class="num{{if .Summary.ErrorCount}} bad{{end}}">{{formatNumber .Summary.ErrorCount}}</td>
<td class="num">{{formatDuration .Summary.Duration}}</td>
<td>{{.Attachment}}</td>
</tr>
{{else}}
<tr><td>{{.Name}}</td><td colspan="7" class="muted">no summary available</td><td>{{.Attachment}}</td></tr>
{{end}}
{{end}}
</tbody>
</table>
</body>
</html>
`
