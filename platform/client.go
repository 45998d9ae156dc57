package platform

import (
	"context"
	"errors"
	"sync"

	"github.com/bluesky-social/indigo/xrpc"
)

// Handful of account operations the agent performs. Implemented by [Client], and by [RecordingClient] for tests.
type API interface {
	DID() string
	Handle() string
	SendPost(ctx context.Context, post Post) (*StrongRef, error)
	Like(ctx context.Context, subject StrongRef) (*StrongRef, error)
	Repost(ctx context.Context, subject StrongRef) (*StrongRef, error)
	FetchTimeline(ctx context.Context, limit int) ([]Item, error)
}

// Authenticated client for a single account. Safe for concurrent use.
type Client struct {
	// template for per-call clients; Auth is only read or replaced under lk
	xrpcc *xrpc.Client
	lk    sync.RWMutex

	did    string
	handle string
}

var _ API = (*Client)(nil)

func (c *Client) DID() string {
	return c.did
}

func (c *Client) Handle() string {
	return c.handle
}

// Shallow copy of the inner client with a snapshot of the current session tokens.
func (c *Client) session() *xrpc.Client {
	c.lk.RLock()
	defer c.lk.RUnlock()
	xc := *c.xrpcc
	if c.xrpcc.Auth != nil {
		auth := *c.xrpcc.Auth
		xc.Auth = &auth
	}
	return &xc
}

// Runs fn with an authenticated client. If the access token has expired, the session is refreshed and fn is run once more.
func (c *Client) call(ctx context.Context, fn func(xc *xrpc.Client) error) error {
	xc := c.session()
	err := fn(xc)
	if err == nil {
		return nil
	}
	if !isExpiredToken(err) {
		return apiError(err)
	}

	if err := c.refresh(ctx, xc.Auth.RefreshJwt); err != nil {
		return err
	}
	return apiError(fn(c.session()))
}

func isExpiredToken(err error) bool {
	var xe *xrpc.Error
	if !errors.As(err, &xe) || xe.StatusCode != 400 {
		return false
	}
	var body *xrpc.XRPCError
	return errors.As(err, &body) && body.ErrStr == "ExpiredToken"
}
