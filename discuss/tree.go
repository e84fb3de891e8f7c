package discuss

import (
	"slices"
	"strings"
)

// ThreadedComment is a read-only view of a comment with its nested replies.
type ThreadedComment struct {
	Comment

	Depth   int                `json:"depth"`
	Replies []*ThreadedComment `json:"replies"`
}

// BuildThreaded turns a flat, order-independent collection into a forest of
// root comments with nested replies, ascending by creation time (ties broken
// by id).
//
// Roots have depth 0 and no node is deeper than maxDepth. A descendant that
// would sit deeper does not become a child of the node at depth maxDepth;
// it becomes a sibling at depth maxDepth, under the depth maxDepth-1
// ancestor, in creation order, so nothing is lost. maxDepth below 1 is
// treated as 1.
//
// Replies whose parent is missing are excluded together with their subtrees.
// Parent chains that loop are cut and excluded too; those are also reported
// through a *ConsistencyError, which never invalidates the returned forest.
func BuildThreaded(entities []*Comment, maxDepth int) ([]*ThreadedComment, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}

	byID := make(map[string]*Comment, len(entities))

	for _, comment := range entities {
		if comment != nil {
			byID[comment.ID] = comment
		}
	}

	roots := make([]*Comment, 0)
	children := make(map[string][]*Comment)

	for _, comment := range byID {
		if comment.ParentCommentID == nil {
			roots = append(roots, comment)

			continue
		}

		parentID := *comment.ParentCommentID
		children[parentID] = append(children[parentID], comment)
	}

	slices.SortFunc(roots, compareComments)

	for _, bucket := range children {
		slices.SortFunc(bucket, compareComments)
	}

	b := &treeBuilder{
		children: children,
		visited:  make(map[string]struct{}, len(byID)),
		maxDepth: maxDepth,
	}

	forest := make([]*ThreadedComment, 0, len(roots))

	for _, root := range roots {
		b.visited[root.ID] = struct{}{}

		node := newThreadedComment(root, 0)
		node.Replies = b.replies(root.ID, 1)

		forest = append(forest, node)
	}

	cyclic := make([]string, 0)

	for id, comment := range byID {
		if _, ok := b.visited[id]; ok {
			continue
		}

		if reachesCycle(comment, byID) {
			cyclic = append(cyclic, id)
		}
	}

	if len(cyclic) > 0 {
		slices.Sort(cyclic)

		return forest, &ConsistencyError{
			Scope:      scopeOf(entities),
			Reason:     "reply chain forms a cycle",
			CommentIDs: cyclic,
		}
	}

	return forest, nil
}

// Flatten returns copies of the comments of forest in pre-order.
func Flatten(forest []*ThreadedComment) []*Comment {
	comments := make([]*Comment, 0)

	var walk func(nodes []*ThreadedComment)

	walk = func(nodes []*ThreadedComment) {
		for _, node := range nodes {
			comments = append(comments, node.Comment.Clone())
			walk(node.Replies)
		}
	}

	walk(forest)

	return comments
}

type treeBuilder struct {
	children map[string][]*Comment
	visited  map[string]struct{}
	maxDepth int
}

// replies builds the reply list of parentID whose members sit at depth.
func (b *treeBuilder) replies(parentID string, depth int) []*ThreadedComment {
	if depth >= b.maxDepth {
		return b.flattened(parentID, depth)
	}

	bucket := b.children[parentID]
	nodes := make([]*ThreadedComment, 0, len(bucket))

	for _, child := range bucket {
		if _, ok := b.visited[child.ID]; ok {
			continue
		}

		b.visited[child.ID] = struct{}{}

		node := newThreadedComment(child, depth)
		node.Replies = b.replies(child.ID, depth+1)

		nodes = append(nodes, node)
	}

	return nodes
}

// flattened collects every descendant of parentID into one list at depth.
func (b *treeBuilder) flattened(parentID string, depth int) []*ThreadedComment {
	collected := make([]*Comment, 0)
	stack := []string{parentID}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range b.children[id] {
			if _, ok := b.visited[child.ID]; ok {
				continue
			}

			b.visited[child.ID] = struct{}{}

			collected = append(collected, child)
			stack = append(stack, child.ID)
		}
	}

	slices.SortFunc(collected, compareComments)

	nodes := make([]*ThreadedComment, 0, len(collected))

	for _, comment := range collected {
		nodes = append(nodes, newThreadedComment(comment, depth))
	}

	return nodes
}

func newThreadedComment(comment *Comment, depth int) *ThreadedComment {
	return &ThreadedComment{
		Comment: *comment.Clone(),
		Depth:   depth,
		Replies: []*ThreadedComment{},
	}
}

func compareComments(a, b *Comment) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}

	return strings.Compare(a.ID, b.ID)
}

// reachesCycle walks the parent chain of comment and reports whether it loops
// before reaching a root or a missing parent.
func reachesCycle(comment *Comment, byID map[string]*Comment) bool {
	seen := make(map[string]struct{})

	for current := comment; current != nil && current.ParentCommentID != nil; {
		if _, ok := seen[current.ID]; ok {
			return true
		}

		seen[current.ID] = struct{}{}

		current = byID[*current.ParentCommentID]
	}

	return false
}

func scopeOf(entities []*Comment) Scope {
	for _, comment := range entities {
		if comment != nil {
			return Scope{ContentID: comment.ContentID, ContentType: comment.ContentType}
		}
	}

	return Scope{}
}
