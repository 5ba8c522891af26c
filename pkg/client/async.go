package client

import (
	"context"

	"github.com/sourcegraph/conc"
)

// Future resolves to the outcome of an asynchronously started transfer.
type Future struct {
	wg  conc.WaitGroup
	err error
}

// Wait blocks until the underlying transfer completes and returns its
// error, if any. Safe to call once; a second call returns the same result.
func (f *Future) Wait() error {
	f.wg.Wait()
	return f.err
}

// Async is the cooperative front-end over the same blocking engine (spec
// Design Note "Coroutine/async control flow": "the client ships both a
// blocking and a cooperative front-end but a single engine"). Every method
// starts the identical Client method on a goroutine and returns immediately
// with a Future; correctness contracts — resume, retry, progress — are
// unchanged because the underlying call is the same code path.
type Async struct {
	Client *Client
}

// NewAsync wraps c for cooperative (non-blocking) use.
func NewAsync(c *Client) *Async { return &Async{Client: c} }

// Upload starts c.Upload without blocking the caller.
func (a *Async) Upload(ctx context.Context, opts UploadOptions) *Future {
	f := &Future{}
	f.wg.Go(func() { f.err = a.Client.Upload(ctx, opts) })
	return f
}

// Download starts c.Download without blocking the caller.
func (a *Async) Download(ctx context.Context, opts DownloadOptions) *Future {
	f := &Future{}
	f.wg.Go(func() { f.err = a.Client.Download(ctx, opts) })
	return f
}
