package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(b *LineBuffer) []string {
	var lines []string
	for {
		line, ok := b.Next()
		if !ok {
			return lines
		}
		lines = append(lines, string(line))
	}
}

func TestLineBufferSplitsAcrossWrites(t *testing.T) {
	var b LineBuffer

	_, _ = b.Write([]byte("data: {\"a\""))
	assert.Empty(t, drain(&b))

	_, _ = b.Write([]byte(":1}\r\n\ndata: [DO"))
	assert.Equal(t, []string{`data: {"a":1}`, ""}, drain(&b))
	assert.Equal(t, "data: [DO", string(b.Remainder()))

	_, _ = b.Write([]byte("NE]\n"))
	assert.Equal(t, []string{"data: [DONE]"}, drain(&b))
	assert.Zero(t, b.Len())
}

func TestLineBufferManyLinesInOneWrite(t *testing.T) {
	var b LineBuffer

	_, _ = b.Write([]byte("one\ntwo\nthree\nfour"))
	assert.Equal(t, []string{"one", "two", "three"}, drain(&b))
	assert.Equal(t, "four", string(b.Remainder()))

	b.Reset()
	assert.Zero(t, b.Len())
}

func TestLineBufferReturnedLineIsStable(t *testing.T) {
	var b LineBuffer

	_, _ = b.Write([]byte("first\nsecond\n"))
	first, ok := b.Next()
	require.True(t, ok)

	_, _ = b.Write([]byte("overwrite-overwrite\n"))
	assert.Equal(t, "first", string(first))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		kind     Kind
		content  string
		finished bool
	}{
		{name: "blank", line: "   ", kind: KindSkip},
		{name: "comment", line: ": keep-alive", kind: KindSkip},
		{name: "garbage", line: "data: {not json", kind: KindSkip},
		{name: "done", line: "data: [DONE]", kind: KindDone},
		{name: "done without space", line: "data:[DONE]", kind: KindDone},
		{name: "content", line: `data: {"choices":[{"delta":{"content":"hello"}}]}`, kind: KindChunk, content: "hello"},
		{name: "bare json", line: `{"choices":[{"delta":{"content":"x"}}]}`, kind: KindChunk, content: "x"},
		{name: "null finish", line: `data: {"choices":[{"delta":{"content":"a"},"finish_reason":null}]}`, kind: KindChunk, content: "a"},
		{name: "finish", line: `data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`, kind: KindChunk, finished: true},
		{name: "no choices", line: `data: {"id":"x"}`, kind: KindChunk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, chunk := Decode([]byte(tt.line))
			assert.Equal(t, tt.kind, kind)
			if kind != KindChunk {
				assert.Nil(t, chunk)
				return
			}
			require.NotNil(t, chunk)
			assert.Equal(t, tt.content, chunk.Content())
			assert.Equal(t, tt.finished, chunk.Finished())
		})
	}
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, ApproxTokens(""))
	assert.Equal(t, 0, ApproxTokens("  \n\t"))
	assert.Equal(t, 1, ApproxTokens("hello"))
	assert.Equal(t, 1, ApproxTokens(" hello "))
	assert.Equal(t, 3, ApproxTokens("the quick fox"))
	assert.False(t, HasContent(" \n"))
	assert.True(t, HasContent(" a"))
}
