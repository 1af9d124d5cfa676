package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	fragments []string
	done      int
	// fragments seen when completion fired
	atDone int
}

func (r *recorder) content(s string) { r.fragments = append(r.fragments, s) }
func (r *recorder) complete() {
	r.done++
	r.atDone = len(r.fragments)
}

func TestRunForwardsFragmentsInOrder(t *testing.T) {
	body := strings.Join([]string{
		`{"message":{"content":"Hel"},"done":false}`,
		`{"message":{"content":"lo"},"done":false}`,
		`{"done":true}`,
	}, "\n") + "\n"

	var rec recorder
	res, err := Run(context.Background(), strings.NewReader(body), rec.content, rec.complete)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, rec.fragments)
	assert.Equal(t, 1, rec.done)
	assert.Equal(t, 2, rec.atDone)
	assert.True(t, res.Done)
	assert.Equal(t, 2, res.Fragments)
	assert.Equal(t, 5, res.Bytes)
}

func TestRunSkipsMalformedLines(t *testing.T) {
	body := `{"message":{"content":"a"},"done":false}` + "\n" +
		`{"message":{"content":` + "\n" +
		`{"message":{"content":"b"},"done":false}` + "\n" +
		`{"done":true}` + "\n"

	var rec recorder
	res, err := Run(context.Background(), strings.NewReader(body), rec.content, rec.complete)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rec.fragments)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, 1, rec.done)
}

func TestRunStopsAtDone(t *testing.T) {
	body := `{"message":{"content":"x"},"done":false}` + "\n" +
		`{"message":{"content":"y"},"done":true,"done_reason":"stop","eval_count":12}` + "\n" +
		`{"message":{"content":"late"},"done":false}` + "\n"

	var rec recorder
	res, err := Run(context.Background(), strings.NewReader(body), rec.content, rec.complete)
	require.NoError(t, err)
	// content on the terminal frame is delivered before completion
	assert.Equal(t, []string{"x", "y"}, rec.fragments)
	assert.Equal(t, 2, rec.atDone)
	assert.Equal(t, 1, rec.done)
	assert.Equal(t, "stop", res.DoneReason)
	assert.Equal(t, 12, res.EvalCount)
}

func TestRunCompletesAtEOFWithoutDone(t *testing.T) {
	body := `{"message":{"content":"x"},"done":false}` + "\n" + `{"message":{"content":"lost"}}`

	var rec recorder
	res, err := Run(context.Background(), iotest.HalfReader(strings.NewReader(body)), rec.content, rec.complete)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, rec.fragments, "unterminated trailing frame must be dropped")
	assert.Equal(t, 1, rec.done)
	assert.False(t, res.Done)
}

func TestRunWithoutBody(t *testing.T) {
	for name, body := range map[string]io.Reader{"nil": nil, "http.NoBody": http.NoBody} {
		t.Run(name, func(t *testing.T) {
			var rec recorder
			res, err := Run(context.Background(), body, rec.content, rec.complete)
			require.NoError(t, err)
			assert.Equal(t, []string{NoBodyMessage}, rec.fragments)
			assert.Equal(t, 1, rec.done)
			assert.True(t, res.NoBody)
		})
	}
}

func TestRunReadErrorStillCompletes(t *testing.T) {
	boom := errors.New("broken pipe")
	body := io.MultiReader(strings.NewReader(`{"message":{"content":"a"},"done":false}`+"\n"), iotest.ErrReader(boom))

	var rec recorder
	_, err := Run(context.Background(), body, rec.content, rec.complete)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, rec.fragments)
	assert.Equal(t, 1, rec.done)
}

func TestRunRecordsUpstreamError(t *testing.T) {
	body := `{"error":"model 'nope' not found"}` + "\n"
	res, err := Run(context.Background(), strings.NewReader(body), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "model 'nope' not found", res.UpstreamError)
}

func TestParserEmptyContentNotForwarded(t *testing.T) {
	var rec recorder
	p := &Parser{OnContent: rec.content, OnDone: rec.complete}
	assert.False(t, p.HandleLine(`{"message":{"role":"assistant","content":""},"done":false}`))
	assert.False(t, p.HandleLine(""))
	assert.True(t, p.HandleLine(`{"done":true}`))
	assert.True(t, p.HandleLine(`{"message":{"content":"ignored"},"done":true}`))
	p.Finish()
	assert.Empty(t, rec.fragments)
	assert.Equal(t, 1, rec.done)
	assert.Equal(t, 0, p.Result().Malformed)
}

func TestAccumulatorAndTee(t *testing.T) {
	var acc Accumulator
	var seen []string
	sink := Tee(acc.Append, nil, func(s string) { seen = append(seen, s) })
	sink("Hel")
	sink("lo")
	assert.Equal(t, "Hello", acc.String())
	assert.Equal(t, 5, acc.Len())
	assert.Equal(t, []string{"Hel", "lo"}, seen)
}
