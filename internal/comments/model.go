package comments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mallforge/backend/internal/pagination"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidTopicID indicates an empty or oversized topic identifier.
	ErrInvalidTopicID = errors.New("comments: invalid topic id")
	// ErrInvalidAuthorID indicates an empty or oversized author identifier.
	ErrInvalidAuthorID = errors.New("comments: invalid author id")
	// ErrEmptyContent indicates a comment body with no visible content.
	ErrEmptyContent = errors.New("comments: empty content")
)

// SortFieldCreatedAt and friends enumerate the sortable comment attributes.
const (
	SortFieldCreatedAt  pagination.SortField = "created_at"
	SortFieldLikeCount  pagination.SortField = "like_count"
	SortFieldReplyCount pagination.SortField = "reply_count"
)

// Comment is the persisted comment row. ParentID is nil for a root comment
// and references the root for a reply; the tree is exactly two levels deep
// and CreateComment refuses anything deeper. LikeCount and ReplyCount are
// caches over comment_likes rows and child rows respectively, adjusted only
// inside the transaction that mutates their source of truth.
type Comment struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TopicID          string `gorm:"column:topic_id;size:190;not null;index:idx_comments_topic_parent,priority:1"`
	ParentID         *int64 `gorm:"column:parent_id;index:idx_comments_topic_parent,priority:2"`
	AuthorID         string `gorm:"column:author_id;size:190;not null;index"`
	Content          string `gorm:"column:content;type:text;not null"`
	LikeCount        int64  `gorm:"column:like_count;not null;default:0"`
	ReplyCount       int64  `gorm:"column:reply_count;not null;default:0"`
	IsDeleted        bool   `gorm:"column:is_deleted;not null;default:false"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// IsReply reports whether the comment sits on the second level of the tree.
func (c Comment) IsReply() bool {
	return c.ParentID != nil
}

// TieBreak exposes the strictly increasing identifier used to break sort
// ties during keyset pagination.
func (c Comment) TieBreak() int64 {
	return c.ID
}

// SortValue returns the current value of an allow-listed sort field.
func (c Comment) SortValue(field pagination.SortField) (any, bool) {
	switch field {
	case SortFieldCreatedAt:
		return c.CreatedAtSeconds, true
	case SortFieldLikeCount:
		return c.LikeCount, true
	case SortFieldReplyCount:
		return c.ReplyCount, true
	default:
		return nil, false
	}
}

// CommentLike is the (comment, user) like edge. The composite unique index
// is the sole arbiter of "liked" state; LikeCount on the comment row is a
// cache over these rows.
type CommentLike struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	CommentID        int64  `gorm:"column:comment_id;not null;uniqueIndex:ux_comment_likes_comment_user,priority:1"`
	UserID           string `gorm:"column:user_id;size:190;not null;uniqueIndex:ux_comment_likes_comment_user,priority:2"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CommentLike) TableName() string {
	return "comment_likes"
}

// Placement states where a new comment attaches: at the root of a topic or
// under an existing root comment. Depth is derived from the variant, never
// stored independently, so a third level is unrepresentable at this layer.
type Placement struct {
	parentID *int64
}

// RootPlacement attaches the comment at the top level of its topic.
func RootPlacement() Placement {
	return Placement{}
}

// ReplyPlacement attaches the comment under the given root comment.
func ReplyPlacement(parentID int64) Placement {
	return Placement{parentID: &parentID}
}

// ParentID returns the parent reference, nil for a root placement.
func (p Placement) ParentID() *int64 {
	return p.parentID
}

// TopicID represents a validated topic identifier.
type TopicID string

// NewTopicID validates raw input and returns a TopicID.
func NewTopicID(rawInput string) (TopicID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTopicID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTopicID, maxIdentifierLength)
	}
	return TopicID(trimmed), nil
}

// String returns the underlying string identifier.
func (id TopicID) String() string {
	return string(id)
}

// AuthorID represents a validated author identifier.
type AuthorID string

// NewAuthorID validates raw input and returns an AuthorID.
func NewAuthorID(rawInput string) (AuthorID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAuthorID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidAuthorID, maxIdentifierLength)
	}
	return AuthorID(trimmed), nil
}

// String returns the underlying string identifier.
func (id AuthorID) String() string {
	return string(id)
}

// Node is a comment augmented with per-request viewer projections. IsMine
// and IsLiked are computed for the requesting user and never stored.
type Node struct {
	Comment
	IsMine  bool
	IsLiked bool
}
