package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bluesky-social/indigo/xrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDID = "did:plc:heraldtest"

// Just enough of a PDS to exercise the client.
type fakePDS struct {
	lk        sync.Mutex
	access    string
	refreshes int
	records   []map[string]any
	// if set, createRecord responds with this body instead
	createBody string
	// access tokens which have "expired"
	expired   map[string]bool
	lastLimit string
}

func (f *fakePDS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lk.Lock()
	defer f.lk.Unlock()
	w.Header().Set("Content-Type", "application/json")

	writeErr := func(status int, name string) {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":%q,"message":"test"}`, name)
	}

	switch r.URL.Path {
	case "/xrpc/com.atproto.server.createSession":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter2" {
			writeErr(http.StatusUnauthorized, "AuthenticationRequired")
			return
		}
		f.access = "access-0"
		fmt.Fprintf(w, `{"accessJwt":%q,"refreshJwt":"refresh-0","did":%q,"handle":"herald.example.com","active":true}`, f.access, testDID)
		return
	case "/xrpc/com.atproto.server.refreshSession":
		if r.Header.Get("Authorization") != fmt.Sprintf("Bearer refresh-%d", f.refreshes) {
			writeErr(http.StatusBadRequest, "InvalidToken")
			return
		}
		f.refreshes++
		f.access = fmt.Sprintf("access-%d", f.refreshes)
		fmt.Fprintf(w, `{"accessJwt":%q,"refreshJwt":"refresh-%d","did":%q}`, f.access, f.refreshes, testDID)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if f.expired[token] {
		writeErr(http.StatusBadRequest, "ExpiredToken")
		return
	}
	if token != f.access {
		writeErr(http.StatusUnauthorized, "InvalidToken")
		return
	}

	switch r.URL.Path {
	case "/xrpc/com.atproto.repo.createRecord":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.records = append(f.records, body)
		if f.createBody != "" {
			_, _ = w.Write([]byte(f.createBody))
			return
		}
		fmt.Fprintf(w, `{"uri":"at://%s/%s/%d","cid":"bafytest%d"}`, testDID, body["collection"], len(f.records), len(f.records))
	case "/xrpc/app.bsky.feed.getTimeline":
		f.lastLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`{"feed": [
			{"post": {"uri": "at://did:plc:alice/app.bsky.feed.post/1", "cid": "bafyalice1",
				"author": {"did": "did:plc:alice", "handle": "alice.test"},
				"record": {"$type": "app.bsky.feed.post", "text": "hello world", "createdAt": "2025-03-01T12:00:00.000Z"},
				"likeCount": 12, "repostCount": 3, "replyCount": 1, "viewer": {"like": "at://x/like/1"}}},
			{"post": {"uri": "at://did:plc:heraldtest/app.bsky.feed.post/9", "cid": "bafyself",
				"author": {"did": "did:plc:heraldtest", "handle": "herald.example.com"},
				"record": {"$type": "app.bsky.feed.post", "text": "my own post"}}},
			{"post": {"uri": "at://did:plc:bob/app.bsky.feed.post/2", "cid": "bafybob2",
				"author": {"did": "did:plc:bob", "handle": "bob.test"},
				"record": {"$type": "app.bsky.feed.post", "text": "replying", "reply": {
					"root": {"uri": "at://did:plc:carol/app.bsky.feed.post/0", "cid": "bafycarol0"},
					"parent": {"uri": "at://did:plc:carol/app.bsky.feed.post/0", "cid": "bafycarol0"}}}}},
			{"post": {"uri": "at://did:plc:alice/app.bsky.feed.post/1", "cid": "bafyalice1",
				"author": {"did": "did:plc:alice", "handle": "alice.test"},
				"record": {"$type": "app.bsky.feed.post", "text": "hello world"}}}
		]}`))
	default:
		writeErr(http.StatusNotImplemented, "MethodNotImplemented")
	}
}

func testLogin(t *testing.T, pds *fakePDS) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(pds)
	t.Cleanup(srv.Close)
	c, err := Login(context.Background(), LoginConfig{
		Host:       srv.URL + "/",
		Identifier: "herald.example.com",
		Password:   "hunter2",
		HTTP:       srv.Client(),
	})
	require.NoError(t, err)
	return c, srv
}

func TestLogin(t *testing.T) {
	assert := assert.New(t)

	c, srv := testLogin(t, &fakePDS{})
	assert.Equal(testDID, c.DID())
	assert.Equal("herald.example.com", c.Handle())

	_, err := Login(context.Background(), LoginConfig{Host: srv.URL, Identifier: "herald.example.com", Password: "wrong", HTTP: srv.Client()})
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(http.StatusUnauthorized, ae.StatusCode)
	assert.Equal("AuthenticationRequired", ae.Name)

	_, err = Login(context.Background(), LoginConfig{Host: srv.URL})
	assert.Error(err)
}

func TestSendPost(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	pds := &fakePDS{}
	c, _ := testLogin(t, pds)

	ref, err := c.SendPost(ctx, Post{Text: "gm"})
	require.NoError(t, err)
	assert.Equal("at://did:plc:heraldtest/app.bsky.feed.post/1", ref.URI)
	assert.Equal("bafytest1", ref.CID)

	reply := &ReplyRef{Root: *ref, Parent: *ref}
	_, err = c.SendPost(ctx, Post{Text: "and another thing", Reply: reply})
	require.NoError(t, err)

	quoted := StrongRef{URI: "at://did:plc:alice/app.bsky.feed.post/1", CID: "bafyalice1"}
	_, err = c.SendPost(ctx, Post{Text: "this", Quote: &quoted})
	require.NoError(t, err)

	require.Len(t, pds.records, 3)
	assert.Equal(testDID, pds.records[0]["repo"])
	rec := pds.records[0]["record"].(map[string]any)
	assert.Equal("app.bsky.feed.post", rec["$type"])
	assert.Equal("gm", rec["text"])
	assert.NotEmpty(rec["createdAt"])
	assert.Nil(rec["reply"])
	assert.Nil(rec["embed"])

	rec = pds.records[1]["record"].(map[string]any)
	assert.Equal(ref.URI, rec["reply"].(map[string]any)["root"].(map[string]any)["uri"])

	rec = pds.records[2]["record"].(map[string]any)
	embed := rec["embed"].(map[string]any)
	assert.Equal("app.bsky.embed.record", embed["$type"])
	assert.Equal(quoted.URI, embed["record"].(map[string]any)["uri"])
}

func TestLikeRepost(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	pds := &fakePDS{}
	c, _ := testLogin(t, pds)

	subject := StrongRef{URI: "at://did:plc:alice/app.bsky.feed.post/1", CID: "bafyalice1"}
	_, err := c.Like(ctx, subject)
	assert.NoError(err)
	ref, err := c.Repost(ctx, subject)
	assert.NoError(err)
	assert.Contains(ref.URI, "app.bsky.feed.repost")

	require.Len(t, pds.records, 2)
	assert.Equal("app.bsky.feed.like", pds.records[0]["collection"])
	rec := pds.records[1]["record"].(map[string]any)
	assert.Equal("app.bsky.feed.repost", rec["$type"])
	assert.Equal(subject.CID, rec["subject"].(map[string]any)["cid"])
}

func TestMissingResult(t *testing.T) {
	ctx := context.Background()
	pds := &fakePDS{createBody: `{"commit": {"rev": "abc"}}`}
	c, _ := testLogin(t, pds)

	_, err := c.SendPost(ctx, Post{Text: "gm"})
	assert.ErrorIs(t, err, ErrMissingResult)
	assert.False(t, IsTransient(err))
}

func TestExpiredTokenRefresh(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	pds := &fakePDS{expired: map[string]bool{"access-0": true}}
	c, _ := testLogin(t, pds)

	ref, err := c.SendPost(ctx, Post{Text: "gm"})
	require.NoError(t, err)
	assert.NotEmpty(ref.URI)
	assert.Equal(1, pds.refreshes)
	// the retried request carried its body
	require.Len(t, pds.records, 1)
	assert.Equal("gm", pds.records[0]["record"].(map[string]any)["text"])

	// subsequent calls use the new token directly
	_, err = c.SendPost(ctx, Post{Text: "gm again"})
	assert.NoError(err)
	assert.Equal(1, pds.refreshes)
}

func TestFetchTimeline(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	pds := &fakePDS{}
	c, _ := testLogin(t, pds)
	items, err := c.FetchTimeline(ctx, 2)
	require.NoError(t, err)
	assert.Equal("2", pds.lastLimit)
	// self post and duplicate are dropped
	require.Len(t, items, 2)

	alice := items[0]
	assert.Equal("did:plc:alice", alice.AuthorDID)
	assert.Equal("alice.test", alice.AuthorHandle)
	assert.Equal("hello world", alice.Text)
	assert.Equal(int64(12), alice.LikeCount)
	assert.Equal(int64(3), alice.RepostCount)
	assert.True(alice.ViewerLiked)
	assert.False(alice.ViewerReposted)
	assert.Nil(alice.ReplyRoot)
	assert.Equal(alice.Ref(), alice.ReplyRef().Root)

	bob := items[1]
	require.NotNil(t, bob.ReplyRoot)
	rr := bob.ReplyRef()
	assert.Equal("at://did:plc:carol/app.bsky.feed.post/0", rr.Root.URI)
	assert.Equal(bob.URI, rr.Parent.URI)

	_, err = c.FetchTimeline(ctx, 0)
	assert.Error(err)
}

func TestIsTransient(t *testing.T) {
	assert := assert.New(t)

	assert.False(IsTransient(nil))
	assert.True(IsTransient(errors.New("connection reset")))
	assert.True(IsTransient(&APIError{StatusCode: 429, Name: "RateLimitExceeded"}))
	assert.True(IsTransient(fmt.Errorf("wrapped: %w", &APIError{StatusCode: 502})))
	assert.False(IsTransient(&APIError{StatusCode: 400, Name: "InvalidRequest"}))
	assert.False(IsTransient(fmt.Errorf("wrapped: %w", ErrMissingResult)))
}

func TestAPIErrorFromXRPC(t *testing.T) {
	assert := assert.New(t)

	err := apiError(&xrpc.Error{StatusCode: 429, Wrapped: &xrpc.XRPCError{ErrStr: "RateLimitExceeded", Message: "slow down"}})
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(429, ae.StatusCode)
	assert.Equal("RateLimitExceeded", ae.Name)
	assert.Equal("slow down", ae.Message)
	assert.True(IsTransient(err))

	err = apiError(&xrpc.Error{StatusCode: 400, Wrapped: &xrpc.XRPCError{ErrStr: "ExpiredToken"}})
	assert.False(IsTransient(err))
	assert.True(isExpiredToken(&xrpc.Error{StatusCode: 400, Wrapped: &xrpc.XRPCError{ErrStr: "ExpiredToken"}}))
	assert.False(isExpiredToken(&xrpc.Error{StatusCode: 401, Wrapped: &xrpc.XRPCError{ErrStr: "ExpiredToken"}}))

	// transport failures pass through untouched
	plain := errors.New("connection reset")
	assert.Equal(plain, apiError(plain))
	assert.Nil(apiError(nil))
}
