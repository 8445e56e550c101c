package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mallforge/backend/internal/listing"
	"github.com/mallforge/backend/internal/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	// ErrCommentNotFound indicates the referenced comment does not exist or
	// has been removed.
	ErrCommentNotFound = errors.New("comments: comment not found")
	// ErrReplyDepthExceeded indicates an attempt to reply to a reply. The
	// tree is exactly two levels deep; the attempt is rejected rather than
	// silently reattached to the root.
	ErrReplyDepthExceeded = errors.New("comments: reply depth exceeded")
	// ErrNotCommentAuthor indicates a mutation by someone other than the
	// comment's author.
	ErrNotCommentAuthor = errors.New("comments: not comment author")
)

const (
	opServiceNew    = "comments.service.new"
	opListRoots     = "comments.list_roots"
	opListReplies   = "comments.list_replies"
	opGetComment    = "comments.get_comment"
	opCreateComment = "comments.create_comment"
	opDeleteComment = "comments.delete_comment"
)

// ServiceError carries an operation-scoped failure code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Schema is the comment listing allow-list shared by both views.
var Schema = pagination.Schema{
	Entity:   "comments",
	TieBreak: "id",
	Sortable: map[pagination.SortField]string{
		SortFieldCreatedAt:  "created_at_s",
		SortFieldLikeCount:  "like_count",
		SortFieldReplyCount: "reply_count",
	},
	Filterable: map[string]string{
		"author":     "author_id",
		"content":    "content",
		"created_at": "created_at_s",
		"like_count": "like_count",
	},
	DefaultSort: SortFieldCreatedAt,
	DefaultDir:  pagination.DirectionDesc,
}

// ServiceConfig describes the dependencies of the comment tree service.
type ServiceConfig struct {
	Database *gorm.DB
	Lister   *listing.Service
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the two-level comment tree: the root and reply listing views,
// parent/child linkage, and the denormalized like and reply counters.
type Service struct {
	db     *gorm.DB
	lister *listing.Service
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the comment tree service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	lister := cfg.Lister
	if lister == nil {
		var err error
		lister, err = listing.NewService(listing.ServiceConfig{Database: cfg.Database, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, lister: lister, clock: clock, logger: logger}, nil
}

// ListOptions carries the caller's pagination preferences for either view.
// Zero values fall back to the view's defaults.
type ListOptions struct {
	Filters []pagination.Filter
	Sort    pagination.SortField
	Dir     pagination.Direction
	Limit   int
	Cursor  string
}

// Page is one slice of either comment view, annotated for the viewer.
type Page struct {
	Items         []Node
	NextCursor    string
	TotalAll      int64
	TotalFiltered int64
}

var baselineCondition = pagination.Condition{Expr: "is_deleted = ?", Args: []any{false}}

// ListRoots returns one page of a topic's root comments, newest first by
// default.
func (s *Service) ListRoots(ctx context.Context, topicID TopicID, opts ListOptions, viewerID string) (Page, error) {
	scope := []pagination.Condition{
		baselineCondition,
		{Expr: "topic_id = ?", Args: []any{topicID.String()}},
		{Expr: "parent_id IS NULL"},
	}
	return s.listView(ctx, opListRoots, scope, opts, Schema.DefaultDir, viewerID)
}

// ListReplies returns one page of replies under a root comment. Replies read
// chronologically by default, independent of the root view's ordering.
func (s *Service) ListReplies(ctx context.Context, parentID int64, opts ListOptions, viewerID string) (Page, error) {
	if _, err := s.loadComment(ctx, s.db, parentID); err != nil {
		if errors.Is(err, ErrCommentNotFound) {
			return Page{}, newServiceError(opListReplies, "parent_not_found", err)
		}
		s.logError(opListReplies, "parent_lookup_failed", err, zap.Int64("parent_id", parentID))
		return Page{}, newServiceError(opListReplies, "parent_lookup_failed", err)
	}
	scope := []pagination.Condition{
		baselineCondition,
		{Expr: "parent_id = ?", Args: []any{parentID}},
	}
	return s.listView(ctx, opListReplies, scope, opts, pagination.DirectionAsc, viewerID)
}

func (s *Service) listView(ctx context.Context, operation string, scope []pagination.Condition, opts ListOptions, defaultDir pagination.Direction, viewerID string) (Page, error) {
	schema := Schema
	schema.DefaultDir = defaultDir

	page, err := listing.List[Comment](ctx, s.lister, listing.Query{
		Schema:  schema,
		Scope:   scope,
		Filters: opts.Filters,
		Sort:    opts.Sort,
		Dir:     opts.Dir,
		Limit:   opts.Limit,
		Cursor:  opts.Cursor,
	})
	if err != nil {
		return Page{}, err
	}

	nodes, err := s.annotate(ctx, page.Items, viewerID)
	if err != nil {
		s.logError(operation, "annotate_failed", err)
		return Page{}, newServiceError(operation, "annotate_failed", err)
	}
	return Page{
		Items:         nodes,
		NextCursor:    page.NextCursor,
		TotalAll:      page.TotalAll,
		TotalFiltered: page.TotalFiltered,
	}, nil
}

// annotate computes the viewer projections for one page. A single IN query
// resolves the viewer's like edges for the whole page.
func (s *Service) annotate(ctx context.Context, items []Comment, viewerID string) ([]Node, error) {
	nodes := make([]Node, 0, len(items))
	if viewerID == "" || len(items) == 0 {
		for _, item := range items {
			nodes = append(nodes, Node{Comment: item})
		}
		return nodes, nil
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	var likes []CommentLike
	if err := s.db.WithContext(ctx).
		Where("comment_id IN ? AND user_id = ?", ids, viewerID).
		Find(&likes).Error; err != nil {
		return nil, err
	}
	liked := make(map[int64]bool, len(likes))
	for _, like := range likes {
		liked[like.CommentID] = true
	}

	for _, item := range items {
		nodes = append(nodes, Node{
			Comment: item,
			IsMine:  item.AuthorID == viewerID,
			IsLiked: liked[item.ID],
		})
	}
	return nodes, nil
}

// GetComment loads one live comment by identifier.
func (s *Service) GetComment(ctx context.Context, id int64) (Comment, error) {
	comment, err := s.loadComment(ctx, s.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, ErrCommentNotFound) {
			return Comment{}, newServiceError(opGetComment, "not_found", err)
		}
		s.logError(opGetComment, "lookup_failed", err, zap.Int64("comment_id", id))
		return Comment{}, newServiceError(opGetComment, "lookup_failed", err)
	}
	return comment, nil
}

// CreateCommentInput describes a new root comment or reply.
type CreateCommentInput struct {
	Topic     TopicID
	Placement Placement
	Author    AuthorID
	Content   string
}

// CreateComment inserts a comment. For a reply, the parent row is locked and
// its reply counter is incremented inside the same transaction as the
// insert, so ReplyCount never drifts from the count of child rows. A parent
// that is itself a reply is rejected with ErrReplyDepthExceeded.
func (s *Service) CreateComment(ctx context.Context, input CreateCommentInput) (Comment, error) {
	content := input.Content
	if strings.TrimSpace(content) == "" {
		return Comment{}, newServiceError(opCreateComment, "empty_content", ErrEmptyContent)
	}

	comment := Comment{
		TopicID:          input.Topic.String(),
		ParentID:         input.Placement.ParentID(),
		AuthorID:         input.Author.String(),
		Content:          content,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parentID := input.Placement.ParentID(); parentID != nil {
			var parent Comment
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ? AND is_deleted = ?", *parentID, false).
				Take(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opCreateComment, "parent_not_found", ErrCommentNotFound)
			}
			if err != nil {
				s.logError(opCreateComment, "parent_lookup_failed", err, zap.Int64("parent_id", *parentID))
				return newServiceError(opCreateComment, "parent_lookup_failed", err)
			}
			if parent.IsReply() {
				return newServiceError(opCreateComment, "reply_depth_exceeded", ErrReplyDepthExceeded)
			}
			comment.TopicID = parent.TopicID

			if err := tx.Create(&comment).Error; err != nil {
				s.logError(opCreateComment, "insert_failed", err)
				return newServiceError(opCreateComment, "insert_failed", err)
			}
			if err := tx.Model(&Comment{}).
				Where("id = ?", parent.ID).
				UpdateColumn("reply_count", gorm.Expr("reply_count + 1")).Error; err != nil {
				s.logError(opCreateComment, "reply_count_update_failed", err, zap.Int64("parent_id", parent.ID))
				return newServiceError(opCreateComment, "reply_count_update_failed", err)
			}
			return nil
		}

		if err := tx.Create(&comment).Error; err != nil {
			s.logError(opCreateComment, "insert_failed", err)
			return newServiceError(opCreateComment, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Comment{}, txErr
	}
	return comment, nil
}

// DeleteComment soft-flags a comment owned by the caller. Deleting a reply
// decrements its parent's reply counter in the same transaction, keeping the
// cache equal to the count of live child rows.
func (s *Service) DeleteComment(ctx context.Context, id int64, callerID AuthorID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		comment, err := s.loadCommentLocked(tx, id)
		if err != nil {
			if errors.Is(err, ErrCommentNotFound) {
				return newServiceError(opDeleteComment, "not_found", err)
			}
			s.logError(opDeleteComment, "lookup_failed", err, zap.Int64("comment_id", id))
			return newServiceError(opDeleteComment, "lookup_failed", err)
		}
		if comment.AuthorID != callerID.String() {
			return newServiceError(opDeleteComment, "not_author", ErrNotCommentAuthor)
		}

		if err := tx.Model(&Comment{}).
			Where("id = ?", comment.ID).
			UpdateColumn("is_deleted", true).Error; err != nil {
			s.logError(opDeleteComment, "flag_failed", err, zap.Int64("comment_id", id))
			return newServiceError(opDeleteComment, "flag_failed", err)
		}
		if comment.ParentID != nil {
			if err := tx.Model(&Comment{}).
				Where("id = ?", *comment.ParentID).
				UpdateColumn("reply_count", gorm.Expr("reply_count - 1")).Error; err != nil {
				s.logError(opDeleteComment, "reply_count_update_failed", err, zap.Int64("parent_id", *comment.ParentID))
				return newServiceError(opDeleteComment, "reply_count_update_failed", err)
			}
		}
		return nil
	})
}

func (s *Service) loadComment(ctx context.Context, db *gorm.DB, id int64) (Comment, error) {
	var comment Comment
	err := db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, ErrCommentNotFound
	}
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *Service) loadCommentLocked(tx *gorm.DB, id int64) (Comment, error) {
	var comment Comment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND is_deleted = ?", id, false).
		Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, ErrCommentNotFound
	}
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("comments service error", attrs...)
}
