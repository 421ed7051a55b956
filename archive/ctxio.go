package archive

import (
	"context"
	"io"
)

// ctxReader fails reads once ctx is done, so an abandoned store stops
// copying at the next chunk boundary.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// readAllContext buffers r fully, honouring ctx between reads.
func readAllContext(ctx context.Context, r io.Reader) ([]byte, error) {
	return io.ReadAll(&ctxReader{ctx: ctx, r: r})
}
