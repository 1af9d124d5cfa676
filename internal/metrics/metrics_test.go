package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()
	c.RecordRequestStart("/ask")
	c.RecordRequest("/ask", 120*time.Millisecond)
	c.RecordRequestEnd("/ask")
	c.RecordError("/ask")
	c.RecordModelCall("ask", 100*time.Millisecond, StreamStats{Fragments: 4, Bytes: 20, Malformed: 1, Done: true, EvalCount: 4}, nil)
	c.RecordModelCall("ask", time.Millisecond, StreamStats{NoBody: true, Fragments: 1}, nil)
	c.RecordModelCall("challenge", time.Millisecond, StreamStats{Fragments: 2}, nil)
	c.RecordModelCall("evaluate", time.Millisecond, StreamStats{}, errors.New("boom"))
	c.RecordExtraction("qa", "labelled")
	c.RecordExtraction("evaluation", "")
	c.RecordUpload(2048)

	snap := c.GetSnapshot()
	if snap.TotalRequests["/ask"] != 1 || snap.RequestErrors["/ask"] != 1 {
		t.Fatalf("unexpected request counters %+v", snap)
	}
	if snap.RequestsInProgress["/ask"] != 0 {
		t.Fatalf("expected no in-flight requests, got %d", snap.RequestsInProgress["/ask"])
	}
	if snap.ModelCalls["ask"] != 2 || snap.ModelErrors["evaluate"] != 1 {
		t.Fatalf("unexpected model counters %+v", snap.ModelCalls)
	}
	if snap.Fragments != 7 || snap.FragmentBytes != 20 || snap.MalformedLines != 1 {
		t.Fatalf("unexpected stream counters %+v", snap)
	}
	if snap.NoBody != 1 || snap.Incomplete != 1 {
		t.Fatalf("expected one no-body and one incomplete stream, got %d/%d", snap.NoBody, snap.Incomplete)
	}
	if snap.Extractions["qa:labelled"] != 1 || snap.Extractions["evaluation:none"] != 1 {
		t.Fatalf("unexpected extraction counters %v", snap.Extractions)
	}
	if snap.Uploads != 1 || snap.UploadBytes != 2048 {
		t.Fatalf("unexpected upload counters %d/%d", snap.Uploads, snap.UploadBytes)
	}

	// snapshots are copies
	snap.TotalRequests["/ask"] = 99
	if c.GetSnapshot().TotalRequests["/ask"] != 1 {
		t.Fatalf("snapshot shares state with collector")
	}
}

func TestFormatPrometheus(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("/api/v1/documents", time.Second)
	c.RecordRequestStart("/upload")
	c.RecordExtraction("qa", "json")
	out := FormatPrometheus(c.GetSnapshot())

	for _, want := range []string{
		`docchat_requests_total{route="/api/v1/documents"} 1`,
		`docchat_requests_in_progress{route="/upload"} 1`,
		`docchat_extractions_total{kind="qa",format="json"} 1`,
		"# TYPE docchat_stream_fragments_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}
