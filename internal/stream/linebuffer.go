// Package stream decodes server-sent completion events.
//
// Network reads do not respect event framing: one read may carry several
// events, half an event, or a line split anywhere. LineBuffer reassembles
// complete lines from arbitrary chunks and Decode interprets one line as an
// event.
package stream

import "bytes"

// LineBuffer accumulates raw bytes and hands out complete newline
// terminated lines. The zero value is ready to use.
type LineBuffer struct {
	buf []byte
}

// Write appends a raw chunk. It never fails.
func (b *LineBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Next extracts the next complete line without its terminator. A trailing
// carriage return is removed as well. ok is false when no complete line is
// buffered; the partial remainder is kept for the next Write.
func (b *LineBuffer) Next() (line []byte, ok bool) {
	i := bytes.IndexByte(b.buf, '\n')
	if i < 0 {
		return nil, false
	}

	line = bytes.TrimSuffix(b.buf[:i], []byte{'\r'})
	line = append([]byte(nil), line...)

	n := copy(b.buf, b.buf[i+1:])
	b.buf = b.buf[:n]

	return line, true
}

// Remainder returns the bytes of an unterminated trailing line
func (b *LineBuffer) Remainder() []byte {
	return b.buf
}

// Len reports the number of buffered bytes
func (b *LineBuffer) Len() int {
	return len(b.buf)
}

// Reset discards buffered data
func (b *LineBuffer) Reset() {
	b.buf = b.buf[:0]
}
