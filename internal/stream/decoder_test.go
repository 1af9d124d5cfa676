package stream

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
)

func decodeAll(chunks ...string) []string {
	var dec Decoder
	var out []string
	for _, c := range chunks {
		out = append(out, dec.Feed([]byte(c))...)
	}
	return out
}

func TestDecoderHoldsPartialLine(t *testing.T) {
	var dec Decoder
	if got := dec.Feed([]byte(`{"a":1}` + "\n" + `{"b":`)); !reflect.DeepEqual(got, []string{`{"a":1}`}) {
		t.Fatalf("unexpected first lines %q", got)
	}
	if dec.Pending() != len(`{"b":`) {
		t.Fatalf("expected partial line to stay pending, got %d bytes", dec.Pending())
	}
	if got := dec.Feed([]byte("2}\n")); !reflect.DeepEqual(got, []string{`{"b":2}`}) {
		t.Fatalf("unexpected second lines %q", got)
	}
	if dec.Pending() != 0 {
		t.Fatalf("expected empty buffer, got %d", dec.Pending())
	}
}

func TestDecoderDropsUnterminatedTail(t *testing.T) {
	var dec Decoder
	lines := dec.Feed([]byte("one\ntwo"))
	if !reflect.DeepEqual(lines, []string{"one"}) {
		t.Fatalf("unexpected lines %q", lines)
	}
	if rest := dec.Close(); rest != "two" {
		t.Fatalf("expected discarded tail %q, got %q", "two", rest)
	}
	if dec.Pending() != 0 {
		t.Fatalf("expected buffer cleared after Close")
	}
}

func TestDecoderKeepsEmptyLines(t *testing.T) {
	got := decodeAll("a\n\nb\n")
	if !reflect.DeepEqual(got, []string{"a", "", "b"}) {
		t.Fatalf("unexpected lines %q", got)
	}
}

func TestDecoderSplitMultiByteRune(t *testing.T) {
	payload := []byte("héllo wörld ✓\n")
	// split inside the three-byte check mark
	cut := len(payload) - 3
	var dec Decoder
	if got := dec.Feed(payload[:cut]); len(got) != 0 {
		t.Fatalf("expected no lines yet, got %q", got)
	}
	got := dec.Feed(payload[cut:])
	if len(got) != 1 || got[0] != "héllo wörld ✓" {
		t.Fatalf("rune was not reassembled: %q", got)
	}
}

func TestDecoderAnySplitMatchesOneShot(t *testing.T) {
	payload := `{"message":{"content":"Hél"},"done":false}` + "\n" +
		`{"message":{"content":"lo ✓"},"done":false}` + "\n" +
		"not json\n" +
		`{"done":true}` + "\n" +
		`{"trailing":`
	want := decodeAll(payload)
	if len(want) != 4 {
		t.Fatalf("expected 4 lines from one-shot decode, got %d", len(want))
	}
	for i := 0; i <= len(payload); i++ {
		for j := i; j <= len(payload); j++ {
			got := decodeAll(payload[:i], payload[i:j], payload[j:])
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("split (%d,%d): got %q want %q", i, j, got, want)
			}
		}
	}
}

func TestReadLinesOneByteReader(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader("alpha\nbeta\ngam"))
	var got []string
	err := ReadLines(context.Background(), r, func(line string) bool {
		got = append(got, line)
		return true
	})
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"alpha", "beta"}) {
		t.Fatalf("unexpected lines %q", got)
	}
}

func TestReadLinesStopsWhenCallbackDeclines(t *testing.T) {
	var got []string
	err := ReadLines(context.Background(), strings.NewReader("a\nb\nc\n"), func(line string) bool {
		got = append(got, line)
		return line != "b"
	})
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected lines %q", got)
	}
}

func TestReadLinesPropagatesReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("a\n"), iotest.ErrReader(boom))
	var got []string
	err := ReadLines(context.Background(), r, func(line string) bool {
		got = append(got, line)
		return true
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected lines before the error to be delivered, got %q", got)
	}
}

func TestReadLinesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ReadLines(ctx, strings.NewReader("a\n"), func(string) bool { return true })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
