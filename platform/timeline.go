package platform

import (
	"context"
	"fmt"

	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
)

// A third-party post, as seen in the agent's timeline.
type Item struct {
	URI          string
	CID          string
	AuthorDID    string
	AuthorHandle string
	Text         string
	CreatedAt    string
	LikeCount    int64
	RepostCount  int64
	ReplyCount   int64
	// set if this post is itself a reply
	ReplyRoot      *StrongRef
	ViewerLiked    bool
	ViewerReposted bool
}

func (i *Item) Ref() StrongRef {
	return StrongRef{URI: i.URI, CID: i.CID}
}

// Reply reference for a direct reply to this item.
func (i *Item) ReplyRef() *ReplyRef {
	root := i.Ref()
	if i.ReplyRoot != nil {
		root = *i.ReplyRoot
	}
	return &ReplyRef{Root: root, Parent: i.Ref()}
}

func derefCount(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}

func parsePostView(post *appbsky.FeedDefs_PostView) Item {
	item := Item{
		URI:         post.Uri,
		CID:         post.Cid,
		LikeCount:   derefCount(post.LikeCount),
		RepostCount: derefCount(post.RepostCount),
		ReplyCount:  derefCount(post.ReplyCount),
	}
	if post.Author != nil {
		item.AuthorDID = post.Author.Did
		item.AuthorHandle = post.Author.Handle
	}
	if post.Viewer != nil {
		item.ViewerLiked = post.Viewer.Like != nil && *post.Viewer.Like != ""
		item.ViewerReposted = post.Viewer.Repost != nil && *post.Viewer.Repost != ""
	}
	if post.Record == nil {
		return item
	}
	rec, ok := post.Record.Val.(*appbsky.FeedPost)
	if !ok {
		return item
	}
	item.Text = rec.Text
	item.CreatedAt = rec.CreatedAt
	if rec.Reply != nil && rec.Reply.Root != nil {
		item.ReplyRoot = &StrongRef{
			URI: rec.Reply.Root.Uri,
			CID: rec.Reply.Root.Cid,
		}
	}
	return item
}

// Fetches the most recent items from the account's home timeline. Reposts are returned as the underlying post; items by the account itself are skipped.
func (c *Client) FetchTimeline(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 || limit > 100 {
		return nil, fmt.Errorf("timeline limit out of range: %d", limit)
	}

	var tl *appbsky.FeedGetTimeline_Output
	err := c.call(ctx, func(xc *xrpc.Client) error {
		var err error
		tl, err = appbsky.FeedGetTimeline(ctx, xc, "", "", int64(limit))
		return err
	})
	if err != nil {
		return nil, err
	}
	if tl == nil {
		return nil, fmt.Errorf("timeline response missing feed")
	}

	var out []Item
	seen := make(map[string]bool)
	for _, ent := range tl.Feed {
		if ent == nil || ent.Post == nil {
			continue
		}
		item := parsePostView(ent.Post)
		if item.URI == "" || item.CID == "" || seen[item.URI] {
			continue
		}
		if item.AuthorDID == c.did {
			continue
		}
		seen[item.URI] = true
		out = append(out, item)
	}
	return out, nil
}
