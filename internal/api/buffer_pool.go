package api

import (
	"bytes"
	"sync"
)

// bufferPool reuses byte buffers for request bodies (JSON outlines and
// multipart uploads)
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// getBuffer retrieves a reset buffer from the pool.
// Caller must call putBuffer() once the request using it has completed.
func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns a buffer to the pool. Uploaded documents can be large, so
// anything over the limit is left to the GC.
func putBuffer(buf *bytes.Buffer) {
	const maxBufferSize = 64 * 1024
	if buf.Cap() <= maxBufferSize {
		bufferPool.Put(buf)
	}
}
