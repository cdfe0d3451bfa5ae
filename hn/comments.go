package hn

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// MaxCommentsPerLevel bounds how many kids of a single item are expanded.
// IDs past the cap are dropped without being fetched.
const MaxCommentsPerLevel = 200

// GetItemWithComments fetches an item and its comment tree down to maxDepth levels.
// A maxDepth of 1 returns the direct replies with no children of their own.
// A missing root is returned as nil.
func (c *Client) GetItemWithComments(ctx context.Context, id, maxDepth int) (*ItemWithComments, error) {
	item, err := c.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	comments, err := c.commentTree(ctx, item.Kids, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("comment tree of item %d: %w", id, err)
	}
	return &ItemWithComments{Item: item, Comments: comments}, nil
}

// commentTree fetches one level of siblings as a single batch, then expands each
// surviving sibling's replies with one level less to go.
func (c *Client) commentTree(ctx context.Context, kids []int, depth int) ([]*CommentNode, error) {
	nodes := []*CommentNode{}
	if depth < 1 || len(kids) == 0 {
		return nodes, nil
	}
	if len(kids) > MaxCommentsPerLevel {
		kids = kids[:MaxCommentsPerLevel]
	}

	items, err := c.GetItems(ctx, kids)
	if err != nil {
		return nil, err
	}

	var present []*Item
	for _, item := range items {
		if item == nil {
			continue
		}
		present = append(present, item)
		nodes = append(nodes, commentNode(item))
	}
	if depth == 1 {
		return nodes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range present {
		if len(item.Kids) == 0 {
			continue
		}
		g.Go(func() error {
			children, err := c.commentTree(gctx, item.Kids, depth-1)
			if err != nil {
				return err
			}
			nodes[i].Children = children
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func commentNode(item *Item) *CommentNode {
	return &CommentNode{
		ID:       item.ID,
		By:       item.By,
		Time:     item.Time,
		Text:     item.Text,
		Dead:     item.Dead,
		Deleted:  item.Deleted,
		Children: []*CommentNode{},
	}
}
