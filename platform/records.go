package platform

import (
	"context"
	"fmt"

	"github.com/bluesky-social/herald/util"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

func (r StrongRef) lex() *comatproto.RepoStrongRef {
	return &comatproto.RepoStrongRef{Uri: r.URI, Cid: r.CID}
}

type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

type Post struct {
	Text string
	// optional; makes this post a reply
	Reply *ReplyRef
	// optional; embeds the referenced post
	Quote *StrongRef
}

func (c *Client) createRecord(ctx context.Context, collection string, record *lexutil.LexiconTypeDecoder) (*StrongRef, error) {
	var out *comatproto.RepoCreateRecord_Output
	err := c.call(ctx, func(xc *xrpc.Client) error {
		var err error
		out, err = comatproto.RepoCreateRecord(ctx, xc, &comatproto.RepoCreateRecord_Input{
			Collection: collection,
			Repo:       c.did,
			Record:     record,
		})
		return err
	})
	if err != nil {
		recordCount.WithLabelValues(collection, "error").Inc()
		return nil, err
	}
	if out == nil || out.Uri == "" {
		recordCount.WithLabelValues(collection, "missing-result").Inc()
		return nil, fmt.Errorf("%w: %s", ErrMissingResult, collection)
	}
	recordCount.WithLabelValues(collection, "ok").Inc()
	return &StrongRef{URI: out.Uri, CID: out.Cid}, nil
}

func (c *Client) SendPost(ctx context.Context, post Post) (*StrongRef, error) {
	rec := &appbsky.FeedPost{
		Text:      post.Text,
		CreatedAt: util.NowTimestamp(),
	}
	if post.Reply != nil {
		rec.Reply = &appbsky.FeedPost_ReplyRef{
			Root:   post.Reply.Root.lex(),
			Parent: post.Reply.Parent.lex(),
		}
	}
	if post.Quote != nil {
		rec.Embed = &appbsky.FeedPost_Embed{
			EmbedRecord: &appbsky.EmbedRecord{Record: post.Quote.lex()},
		}
	}
	return c.createRecord(ctx, "app.bsky.feed.post", &lexutil.LexiconTypeDecoder{Val: rec})
}

func (c *Client) Like(ctx context.Context, subject StrongRef) (*StrongRef, error) {
	return c.createRecord(ctx, "app.bsky.feed.like", &lexutil.LexiconTypeDecoder{Val: &appbsky.FeedLike{
		Subject:   subject.lex(),
		CreatedAt: util.NowTimestamp(),
	}})
}

func (c *Client) Repost(ctx context.Context, subject StrongRef) (*StrongRef, error) {
	return c.createRecord(ctx, "app.bsky.feed.repost", &lexutil.LexiconTypeDecoder{Val: &appbsky.FeedRepost{
		Subject:   subject.lex(),
		CreatedAt: util.NowTimestamp(),
	}})
}
