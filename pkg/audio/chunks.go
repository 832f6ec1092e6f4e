// Package audio provides small helpers for moving encoded audio through the
// service in bounded chunks. Synthesis backends and the gateway both cap
// frames at the same size so a clip can be relayed end to end without
// re-buffering.
package audio

import (
	"errors"
	"io"
)

// DefaultChunkBytes is the standard cap on one audio chunk. It matches the
// gateway's voice frame limit.
const DefaultChunkBytes = 16 * 1024

// ChunkReader reads r to EOF and emits its content as consecutive chunks of
// at most max bytes on the returned channel. The channel is closed when r is
// exhausted or an error occurs; a read error simply ends the stream early.
// If max <= 0, [DefaultChunkBytes] is used.
//
// The reader is closed after the final chunk when it implements io.Closer.
func ChunkReader(r io.Reader, max int) <-chan []byte {
	if max <= 0 {
		max = DefaultChunkBytes
	}
	ch := make(chan []byte, 4)
	go func() {
		defer close(ch)
		if c, ok := r.(io.Closer); ok {
			defer c.Close()
		}
		for {
			buf := make([]byte, max)
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				ch <- buf[:n]
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					// Read error: end the stream early; the consumer sees a
					// short clip rather than a hang.
					return
				}
				return
			}
		}
	}()
	return ch
}

// Split cuts data into consecutive chunks of at most max bytes. The returned
// slices alias data; callers that retain chunks past the lifetime of data
// must copy them. If max <= 0, [DefaultChunkBytes] is used. A nil or empty
// input yields no chunks.
func Split(data []byte, max int) [][]byte {
	if max <= 0 {
		max = DefaultChunkBytes
	}
	if len(data) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(data)+max-1)/max)
	for len(data) > 0 {
		n := max
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}
