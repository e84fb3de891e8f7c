package discuss

import (
	"strings"
	"time"

	"github.com/nasermirzaei89/threads/random"
	"github.com/nasermirzaei89/threads/reactions"
)

// TempIDPrefix marks ids of speculative comments. Server ids never start with it.
const TempIDPrefix = "temp-"

func NewTemporaryID() string {
	return TempIDPrefix + random.String(8)
}

func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

type Comment struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	AuthorID        string    `json:"authorId"`
	ContentID       string    `json:"contentId"`
	ContentType     string    `json:"contentType"`
	ParentCommentID *string   `json:"parentCommentId,omitempty"`
	ReplyCount      int       `json:"replyCount"`
	LikeCount       int       `json:"likeCount"`
	DislikeCount    int       `json:"dislikeCount"`
	IsEdited        bool      `json:"isEdited"`
	IsDeleted       bool      `json:"isDeleted"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (c *Comment) IsReply() bool {
	return c.ParentCommentID != nil
}

// Clone returns a deep copy of c.
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}

	clone := *c

	if c.ParentCommentID != nil {
		parentID := *c.ParentCommentID
		clone.ParentCommentID = &parentID
	}

	return &clone
}

// CommentPatch lists the fields Patch may change. Nil fields are left as is.
type CommentPatch struct {
	Content      *string
	IsEdited     *bool
	IsDeleted    *bool
	ReplyCount   *int
	LikeCount    *int
	DislikeCount *int
	UpdatedAt    *time.Time
}

func (p CommentPatch) apply(c *Comment) {
	if p.Content != nil {
		c.Content = *p.Content
	}

	if p.IsEdited != nil {
		c.IsEdited = *p.IsEdited
	}

	if p.IsDeleted != nil {
		c.IsDeleted = *p.IsDeleted
	}

	if p.ReplyCount != nil {
		c.ReplyCount = *p.ReplyCount
	}

	if p.LikeCount != nil {
		c.LikeCount = *p.LikeCount
	}

	if p.DislikeCount != nil {
		c.DislikeCount = *p.DislikeCount
	}

	if p.UpdatedAt != nil {
		c.UpdatedAt = *p.UpdatedAt
	}
}

// Scope identifies one independent cache domain.
type Scope struct {
	ContentID   string
	ContentType string
}

func (s Scope) String() string {
	return s.ContentType + ":" + s.ContentID
}

type CommentStats struct {
	Total        int `json:"total"`
	TopLevel     int `json:"topLevel"`
	Replies      int `json:"replies"`
	Participants int `json:"participants"`
}

type CreateCommentInput struct {
	ContentID       string  `json:"contentId"`
	ContentType     string  `json:"contentType"`
	Content         string  `json:"content"`
	ParentCommentID *string `json:"parentCommentId,omitempty"`
}

type UpdateCommentInput struct {
	Content string `json:"content"`
}

type ReactInput struct {
	Type reactions.Reaction `json:"type"`
}

type ReactResult struct {
	Comment      *Comment           `json:"comment"`
	UserReaction reactions.Reaction `json:"userReaction"`
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

type CommentPage struct {
	Comments   []*Comment `json:"comments"`
	Pagination Pagination `json:"pagination"`

	// UserReactions carries the requesting user's reactions on Comments, keyed by comment id.
	UserReactions map[string]reactions.Reaction `json:"userReactions,omitempty"`
}
