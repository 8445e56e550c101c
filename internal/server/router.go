package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mallforge/backend/internal/boards"
	"github.com/mallforge/backend/internal/comments"
	"github.com/mallforge/backend/internal/listing"
	"github.com/mallforge/backend/internal/orders"
	"github.com/mallforge/backend/internal/pagination"
	"go.uber.org/zap"
)

const (
	userIDContextKey    = "mallforge_user_id"
	requestIDContextKey = "mallforge_request_id"
	requestIDHeader     = "X-Request-ID"
)

var (
	errMissingVerifier        = errors.New("session verifier dependency required")
	errMissingCommentsService = errors.New("comments service dependency required")
	errMissingBoardsService   = errors.New("boards service dependency required")
	errMissingOrdersService   = errors.New("orders service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// SessionVerifier resolves a gateway-issued session token to a user id.
type SessionVerifier interface {
	ResolveUserID(token string) (string, error)
}

// Dependencies wires the HTTP surface to the service layer.
type Dependencies struct {
	Verifier SessionVerifier
	Comments *comments.Service
	Boards   *boards.Service
	Orders   *orders.Service
	Logger   *zap.Logger
}

// NewHTTPHandler builds the admin API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Comments == nil {
		return nil, errMissingCommentsService
	}
	if deps.Boards == nil {
		return nil, errMissingBoardsService
	}
	if deps.Orders == nil {
		return nil, errMissingOrdersService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier: deps.Verifier,
		comments: deps.Comments,
		boards:   deps.Boards,
		orders:   deps.Orders,
		logger:   logger,
	}

	api := router.Group("/api")
	api.Use(handler.authorizeRequest)
	api.GET("/comments", handler.handleListComments)
	api.GET("/comments/:id/replies", handler.handleListReplies)
	api.POST("/comments", handler.handleCreateComment)
	api.POST("/comments/:id/like", handler.handleToggleLike)
	api.DELETE("/comments/:id", handler.handleDeleteComment)
	api.GET("/posts", handler.handleListPosts)
	api.POST("/orders/number", handler.handleNextOrderNumber)

	return router, nil
}

type httpHandler struct {
	verifier SessionVerifier
	comments *comments.Service
	boards   *boards.Service
	orders   *orders.Service
	logger   *zap.Logger
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			if generated, err := uuid.NewV7(); err == nil {
				requestID = generated.String()
			} else {
				requestID = uuid.NewString()
			}
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.verifier.ResolveUserID(token)
	if err != nil {
		h.logger.Warn("session token validation failed",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

type commentPayload struct {
	ID         int64  `json:"id"`
	TopicID    string `json:"topic_id"`
	ParentID   *int64 `json:"parent_id,omitempty"`
	AuthorID   string `json:"author_id"`
	Content    string `json:"content"`
	LikeCount  int64  `json:"like_count"`
	ReplyCount int64  `json:"reply_count"`
	CreatedAtS int64  `json:"created_at_s"`
	IsMine     bool   `json:"is_mine"`
	IsLiked    bool   `json:"is_liked"`
}

type commentPagePayload struct {
	Items         []commentPayload `json:"items"`
	NextCursor    string           `json:"next_cursor,omitempty"`
	TotalAll      int64            `json:"total_all"`
	TotalFiltered int64            `json:"total_filtered"`
}

func commentPageResponse(page comments.Page) commentPagePayload {
	payload := commentPagePayload{
		Items:         make([]commentPayload, 0, len(page.Items)),
		NextCursor:    page.NextCursor,
		TotalAll:      page.TotalAll,
		TotalFiltered: page.TotalFiltered,
	}
	for _, node := range page.Items {
		payload.Items = append(payload.Items, commentPayload{
			ID:         node.ID,
			TopicID:    node.TopicID,
			ParentID:   node.ParentID,
			AuthorID:   node.AuthorID,
			Content:    node.Content,
			LikeCount:  node.LikeCount,
			ReplyCount: node.ReplyCount,
			CreatedAtS: node.CreatedAtSeconds,
			IsMine:     node.IsMine,
			IsLiked:    node.IsLiked,
		})
	}
	return payload
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	topicID, err := comments.NewTopicID(c.Query("topic"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_topic"})
		return
	}

	opts := comments.ListOptions{
		Filters: commentFiltersFromQuery(c),
		Sort:    pagination.SortField(c.Query("sort")),
		Dir:     pagination.Direction(c.Query("dir")),
		Limit:   queryInt(c, "limit"),
		Cursor:  c.Query("cursor"),
	}

	page, err := h.comments.ListRoots(c.Request.Context(), topicID, opts, c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commentPageResponse(page))
}

func (h *httpHandler) handleListReplies(c *gin.Context) {
	parentID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_comment_id"})
		return
	}

	opts := comments.ListOptions{
		Filters: commentFiltersFromQuery(c),
		Sort:    pagination.SortField(c.Query("sort")),
		Dir:     pagination.Direction(c.Query("dir")),
		Limit:   queryInt(c, "limit"),
		Cursor:  c.Query("cursor"),
	}

	page, err := h.comments.ListReplies(c.Request.Context(), parentID, opts, c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commentPageResponse(page))
}

type createCommentPayload struct {
	Topic    string `json:"topic"`
	ParentID *int64 `json:"parent_id"`
	Content  string `json:"content"`
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	var request createCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	author, err := comments.NewAuthorID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	placement := comments.RootPlacement()
	topic := comments.TopicID("")
	if request.ParentID != nil {
		placement = comments.ReplyPlacement(*request.ParentID)
	} else {
		topic, err = comments.NewTopicID(request.Topic)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_topic"})
			return
		}
	}

	created, err := h.comments.CreateComment(c.Request.Context(), comments.CreateCommentInput{
		Topic:     topic,
		Placement: placement,
		Author:    author,
		Content:   request.Content,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, commentPayload{
		ID:         created.ID,
		TopicID:    created.TopicID,
		ParentID:   created.ParentID,
		AuthorID:   created.AuthorID,
		Content:    created.Content,
		LikeCount:  created.LikeCount,
		ReplyCount: created.ReplyCount,
		CreatedAtS: created.CreatedAtSeconds,
		IsMine:     true,
	})
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	commentID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_comment_id"})
		return
	}

	result, err := h.comments.ToggleLike(c.Request.Context(), commentID, c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": result.Liked, "like_count": result.LikeCount})
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	commentID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_comment_id"})
		return
	}
	caller, err := comments.NewAuthorID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.comments.DeleteComment(c.Request.Context(), commentID, caller); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type postPayload struct {
	ID         int64  `json:"id"`
	BoardID    string `json:"board_id"`
	Title      string `json:"title"`
	AuthorID   string `json:"author_id"`
	Content    string `json:"content"`
	ViewCount  int64  `json:"view_count"`
	CreatedAtS int64  `json:"created_at_s"`
}

type postPagePayload struct {
	Items         []postPayload `json:"items"`
	NextCursor    string        `json:"next_cursor,omitempty"`
	TotalAll      int64         `json:"total_all"`
	TotalFiltered int64         `json:"total_filtered"`
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	opts := boards.ListOptions{
		Filters: postFiltersFromQuery(c),
		Sort:    pagination.SortField(c.Query("sort")),
		Dir:     pagination.Direction(c.Query("dir")),
		Limit:   queryInt(c, "limit"),
		Cursor:  c.Query("cursor"),
	}

	page, err := h.boards.ListPosts(c.Request.Context(), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := postPagePayload{
		Items:         make([]postPayload, 0, len(page.Items)),
		NextCursor:    page.NextCursor,
		TotalAll:      page.TotalAll,
		TotalFiltered: page.TotalFiltered,
	}
	for _, post := range page.Items {
		payload.Items = append(payload.Items, postPayload{
			ID:         post.ID,
			BoardID:    post.BoardID,
			Title:      post.Title,
			AuthorID:   post.AuthorID,
			Content:    post.Content,
			ViewCount:  post.ViewCount,
			CreatedAtS: post.CreatedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleNextOrderNumber(c *gin.Context) {
	number, err := h.orders.NextOrderNumber(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_number": number})
}

func commentFiltersFromQuery(c *gin.Context) []pagination.Filter {
	var filters []pagination.Filter
	if author := c.Query("author"); author != "" {
		filters = append(filters, pagination.Eq("author", author))
	}
	if q := c.Query("q"); q != "" {
		filters = append(filters, pagination.Contains("content", q))
	}
	if from, to, ok := rangeFromQuery(c); ok {
		filters = append(filters, pagination.Range("created_at", from, to))
	}
	return filters
}

func postFiltersFromQuery(c *gin.Context) []pagination.Filter {
	var filters []pagination.Filter
	if board := c.Query("board"); board != "" {
		filters = append(filters, pagination.Eq("board", board))
	}
	if author := c.Query("author"); author != "" {
		filters = append(filters, pagination.Eq("author", author))
	}
	if q := c.Query("q"); q != "" {
		filters = append(filters, pagination.Contains("title", q))
	}
	if from, to, ok := rangeFromQuery(c); ok {
		filters = append(filters, pagination.Range("created_at", from, to))
	}
	return filters
}

func rangeFromQuery(c *gin.Context) (any, any, bool) {
	var from, to any
	if raw := c.Query("created_from"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
			from = value
		}
	}
	if raw := c.Query("created_to"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
			to = value
		}
	}
	return from, to, from != nil || to != nil
}

func queryInt(c *gin.Context, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

func pathID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

// respondError maps service failures onto the HTTP error envelope. List
// endpoints never fail for an empty page; everything reaching here is a real
// policy violation or storage failure.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pagination.ErrInvalidSortField):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sort_field"})
	case errors.Is(err, pagination.ErrInvalidFilterField):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter_field"})
	case errors.Is(err, comments.ErrReplyDepthExceeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": "reply_depth_exceeded"})
	case errors.Is(err, comments.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_content"})
	case errors.Is(err, comments.ErrCommentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, comments.ErrNotCommentAuthor):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, orders.ErrSequenceExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sequence_exhausted"})
	case errors.Is(err, listing.ErrStorage):
		h.logger.Error("storage failure",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error"})
	default:
		h.logger.Error("request failed",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
