package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats a snapshot in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	gauge(&sb, "docchat_uptime_seconds", "Time since docchatd started", snap.Uptime)

	labelled(&sb, "docchat_requests_total", "Total number of requests by route", "counter", "route", snap.TotalRequests, false)
	labelled(&sb, "docchat_request_errors_total", "Total number of error responses by route", "counter", "route", snap.RequestErrors, false)
	labelled(&sb, "docchat_requests_in_progress", "Current number of requests being processed", "gauge", "route", snap.RequestsInProgress, true)
	labelled(&sb, "docchat_request_duration_ms_total", "Total request duration in milliseconds", "counter", "route", snap.TotalRequestsDur, false)

	labelled(&sb, "docchat_model_calls_total", "Model streams by operation", "counter", "operation", snap.ModelCalls, false)
	labelled(&sb, "docchat_model_errors_total", "Failed model streams by operation", "counter", "operation", snap.ModelErrors, false)
	labelled(&sb, "docchat_model_latency_ms_total", "Total model stream latency in milliseconds", "counter", "operation", snap.ModelLatency, false)

	counter(&sb, "docchat_stream_fragments_total", "Content fragments forwarded from the model", snap.Fragments)
	counter(&sb, "docchat_stream_bytes_total", "Content bytes forwarded from the model", snap.FragmentBytes)
	counter(&sb, "docchat_stream_malformed_lines_total", "Stream lines skipped because they were not valid JSON", snap.MalformedLines)
	counter(&sb, "docchat_stream_no_body_total", "Model responses without a readable body", snap.NoBody)
	counter(&sb, "docchat_stream_incomplete_total", "Streams that ended without a done frame", snap.Incomplete)
	counter(&sb, "docchat_prompt_tokens_total", "Prompt tokens reported by the model server", snap.PromptTokens)
	counter(&sb, "docchat_eval_tokens_total", "Generated tokens reported by the model server", snap.EvalTokens)

	sb.WriteString("# HELP docchat_extractions_total Extractor results by kind and recognised format\n")
	sb.WriteString("# TYPE docchat_extractions_total counter\n")
	for _, key := range sortedKeys(snap.Extractions) {
		kind, format, _ := strings.Cut(key, ":")
		sb.WriteString(fmt.Sprintf("docchat_extractions_total{kind=%q,format=%q} %d\n", kind, format, snap.Extractions[key]))
	}
	sb.WriteString("\n")

	counter(&sb, "docchat_uploads_total", "Accepted document uploads", snap.Uploads)
	counter(&sb, "docchat_upload_bytes_total", "Bytes of accepted document uploads", snap.UploadBytes)

	return sb.String()
}

func gauge(sb *strings.Builder, name, help string, v int64) {
	single(sb, name, help, "gauge", v)
}

func counter(sb *strings.Builder, name, help string, v int64) {
	single(sb, name, help, "counter", v)
}

func single(sb *strings.Builder, name, help, typ string, v int64) {
	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	sb.WriteString(fmt.Sprintf("# TYPE %s %s\n", name, typ))
	sb.WriteString(fmt.Sprintf("%s %d\n\n", name, v))
}

func labelled(sb *strings.Builder, name, help, typ, label string, values map[string]int64, skipZero bool) {
	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	sb.WriteString(fmt.Sprintf("# TYPE %s %s\n", name, typ))
	for _, key := range sortedKeys(values) {
		v := values[key]
		if skipZero && v <= 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s{%s=%q} %d\n", name, label, key, v))
	}
	sb.WriteString("\n")
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
