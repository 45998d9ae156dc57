package platform

import (
	"context"
	"fmt"
	"sync"
)

// A call made against a [RecordingClient].
type Call struct {
	// "post", "like", "repost", or "timeline"
	Kind    string
	Post    Post
	Subject StrongRef
}

// In-memory implementation of [API] which records every call, for tests and dry runs.
type RecordingClient struct {
	lk       sync.Mutex
	did      string
	handle   string
	Calls    []Call
	Timeline []Item
	// if set, consulted before each write; a non-nil error fails the call
	FailFn func(call Call) error
	seq    int
}

var _ API = (*RecordingClient)(nil)

func NewRecordingClient(did, handle string) *RecordingClient {
	return &RecordingClient{did: did, handle: handle}
}

func (c *RecordingClient) DID() string {
	return c.did
}

func (c *RecordingClient) Handle() string {
	return c.handle
}

func (c *RecordingClient) record(call Call, collection string) (*StrongRef, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.Calls = append(c.Calls, call)
	if c.FailFn != nil {
		if err := c.FailFn(call); err != nil {
			return nil, err
		}
	}
	c.seq++
	return &StrongRef{
		URI: fmt.Sprintf("at://%s/%s/%d", c.did, collection, c.seq),
		CID: fmt.Sprintf("bafyrecording%d", c.seq),
	}, nil
}

func (c *RecordingClient) SendPost(ctx context.Context, post Post) (*StrongRef, error) {
	return c.record(Call{Kind: "post", Post: post}, "app.bsky.feed.post")
}

func (c *RecordingClient) Like(ctx context.Context, subject StrongRef) (*StrongRef, error) {
	return c.record(Call{Kind: "like", Subject: subject}, "app.bsky.feed.like")
}

func (c *RecordingClient) Repost(ctx context.Context, subject StrongRef) (*StrongRef, error) {
	return c.record(Call{Kind: "repost", Subject: subject}, "app.bsky.feed.repost")
}

func (c *RecordingClient) FetchTimeline(ctx context.Context, limit int) ([]Item, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.Calls = append(c.Calls, Call{Kind: "timeline"})
	if len(c.Timeline) > limit {
		return c.Timeline[:limit], nil
	}
	return c.Timeline, nil
}

// Copy of the recorded calls.
func (c *RecordingClient) Recorded() []Call {
	c.lk.Lock()
	defer c.lk.Unlock()
	return append([]Call(nil), c.Calls...)
}

// Number of recorded calls of the given kind.
func (c *RecordingClient) Count(kind string) int {
	c.lk.Lock()
	defer c.lk.Unlock()
	n := 0
	for _, call := range c.Calls {
		if call.Kind == kind {
			n++
		}
	}
	return n
}
