package comments

import (
	"context"
	"errors"
	"testing"

	"github.com/mallforge/backend/internal/pagination"
)

func TestCreateRootComment(t *testing.T) {
	service, db, _ := newTestService(t)

	created := mustCreateRoot(t, service, "notice-42", "user-1", "first!")
	if created.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if created.IsReply() {
		t.Fatalf("expected root comment")
	}
	if created.CreatedAtSeconds == 0 {
		t.Fatalf("expected created timestamp")
	}

	var stored Comment
	if err := db.First(&stored, created.ID).Error; err != nil {
		t.Fatalf("failed to load stored comment: %v", err)
	}
	if stored.TopicID != "notice-42" {
		t.Fatalf("unexpected topic: %q", stored.TopicID)
	}
}

func TestCreateReplyIncrementsParentCounter(t *testing.T) {
	service, db, _ := newTestService(t)

	root := mustCreateRoot(t, service, "notice-42", "user-1", "root")
	reply := mustCreateReply(t, service, root.ID, "user-2", "reply")

	if !reply.IsReply() {
		t.Fatalf("expected reply")
	}
	if reply.TopicID != root.TopicID {
		t.Fatalf("expected reply to inherit topic, got %q", reply.TopicID)
	}

	var storedRoot Comment
	if err := db.First(&storedRoot, root.ID).Error; err != nil {
		t.Fatalf("failed to load root: %v", err)
	}
	if storedRoot.ReplyCount != 1 {
		t.Fatalf("expected reply count 1, got %d", storedRoot.ReplyCount)
	}
}

func TestCreateReplyToReplyIsRejected(t *testing.T) {
	service, db, _ := newTestService(t)

	root := mustCreateRoot(t, service, "notice-42", "user-1", "root")
	reply := mustCreateReply(t, service, root.ID, "user-2", "reply")

	_, err := service.CreateComment(context.Background(), CreateCommentInput{
		Placement: ReplyPlacement(reply.ID),
		Author:    mustAuthorID(t, "user-3"),
		Content:   "reply to reply",
	})
	if !errors.Is(err, ErrReplyDepthExceeded) {
		t.Fatalf("expected ErrReplyDepthExceeded, got %v", err)
	}

	// The rejected attempt must leave no partial state behind.
	var count int64
	if err := db.Model(&Comment{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count comments: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 comments, got %d", count)
	}
	var storedReply Comment
	if err := db.First(&storedReply, reply.ID).Error; err != nil {
		t.Fatalf("failed to load reply: %v", err)
	}
	if storedReply.ReplyCount != 0 {
		t.Fatalf("expected reply count untouched, got %d", storedReply.ReplyCount)
	}
}

func TestCreateReplyToMissingParent(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.CreateComment(context.Background(), CreateCommentInput{
		Placement: ReplyPlacement(9999),
		Author:    mustAuthorID(t, "user-1"),
		Content:   "orphan",
	})
	if !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}
}

func TestCreateCommentRejectsEmptyContent(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.CreateComment(context.Background(), CreateCommentInput{
		Topic:     mustTopicID(t, "notice-42"),
		Placement: RootPlacement(),
		Author:    mustAuthorID(t, "user-1"),
	})
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestListRootsNewestFirstByDefault(t *testing.T) {
	service, _, _ := newTestService(t)

	first := mustCreateRoot(t, service, "notice-42", "user-1", "oldest")
	second := mustCreateRoot(t, service, "notice-42", "user-1", "middle")
	third := mustCreateRoot(t, service, "notice-42", "user-1", "newest")
	mustCreateRoot(t, service, "other-topic", "user-1", "elsewhere")
	mustCreateReply(t, service, first.ID, "user-2", "reply hidden from root view")

	page, err := service.ListRoots(context.Background(), mustTopicID(t, "notice-42"), ListOptions{Limit: 10}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 roots, got %d", len(page.Items))
	}
	if page.Items[0].ID != third.ID || page.Items[1].ID != second.ID || page.Items[2].ID != first.ID {
		t.Fatalf("expected newest-first ordering, got %d,%d,%d", page.Items[0].ID, page.Items[1].ID, page.Items[2].ID)
	}
}

func TestListRepliesChronologicalByDefault(t *testing.T) {
	service, _, _ := newTestService(t)

	root := mustCreateRoot(t, service, "notice-42", "user-1", "root")
	early := mustCreateReply(t, service, root.ID, "user-2", "early")
	late := mustCreateReply(t, service, root.ID, "user-3", "late")

	page, err := service.ListReplies(context.Background(), root.ID, ListOptions{Limit: 10}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(page.Items))
	}
	if page.Items[0].ID != early.ID || page.Items[1].ID != late.ID {
		t.Fatalf("expected chronological ordering, got %d,%d", page.Items[0].ID, page.Items[1].ID)
	}
}

func TestListRepliesMissingParent(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.ListReplies(context.Background(), 12345, ListOptions{}, "")
	if !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}
}

func TestViewerAnnotation(t *testing.T) {
	service, _, _ := newTestService(t)

	mine := mustCreateRoot(t, service, "notice-42", "viewer", "mine")
	other := mustCreateRoot(t, service, "notice-42", "someone-else", "not mine")

	if _, err := service.ToggleLike(context.Background(), other.ID, "viewer"); err != nil {
		t.Fatalf("unexpected toggle error: %v", err)
	}

	page, err := service.ListRoots(context.Background(), mustTopicID(t, "notice-42"), ListOptions{Limit: 10}, "viewer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byID := map[int64]Node{}
	for _, node := range page.Items {
		byID[node.ID] = node
	}
	if !byID[mine.ID].IsMine || byID[mine.ID].IsLiked {
		t.Fatalf("expected own unliked comment, got %+v", byID[mine.ID])
	}
	if byID[other.ID].IsMine || !byID[other.ID].IsLiked {
		t.Fatalf("expected liked foreign comment, got %+v", byID[other.ID])
	}

	// Without a viewer the projections stay zero.
	anonymous, err := service.ListRoots(context.Background(), mustTopicID(t, "notice-42"), ListOptions{Limit: 10}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, node := range anonymous.Items {
		if node.IsMine || node.IsLiked {
			t.Fatalf("expected no viewer projections, got %+v", node)
		}
	}
}

func TestListRootsHonorsFilters(t *testing.T) {
	service, _, _ := newTestService(t)

	mustCreateRoot(t, service, "notice-42", "user-1", "free shipping on everything")
	mustCreateRoot(t, service, "notice-42", "user-2", "unrelated")

	page, err := service.ListRoots(context.Background(), mustTopicID(t, "notice-42"), ListOptions{
		Filters: []pagination.Filter{pagination.Contains("content", "shipping")},
		Limit:   10,
	}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TotalAll != 2 {
		t.Fatalf("expected totalAll 2, got %d", page.TotalAll)
	}
	if page.TotalFiltered != 1 {
		t.Fatalf("expected totalFiltered 1, got %d", page.TotalFiltered)
	}
	if len(page.Items) != 1 || page.Items[0].Content != "free shipping on everything" {
		t.Fatalf("unexpected filtered page: %+v", page.Items)
	}
}

func TestDeleteReplyDecrementsParentCounter(t *testing.T) {
	service, db, _ := newTestService(t)

	root := mustCreateRoot(t, service, "notice-42", "user-1", "root")
	reply := mustCreateReply(t, service, root.ID, "user-2", "reply")

	if err := service.DeleteComment(context.Background(), reply.ID, mustAuthorID(t, "user-2")); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	var storedRoot Comment
	if err := db.First(&storedRoot, root.ID).Error; err != nil {
		t.Fatalf("failed to load root: %v", err)
	}
	if storedRoot.ReplyCount != 0 {
		t.Fatalf("expected reply count back to 0, got %d", storedRoot.ReplyCount)
	}

	var storedReply Comment
	if err := db.First(&storedReply, reply.ID).Error; err != nil {
		t.Fatalf("failed to load reply: %v", err)
	}
	if !storedReply.IsDeleted {
		t.Fatalf("expected soft-deleted reply")
	}

	page, err := service.ListReplies(context.Background(), root.ID, ListOptions{Limit: 10}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected deleted reply hidden from view, got %d items", len(page.Items))
	}
}

func TestDeleteCommentRequiresAuthor(t *testing.T) {
	service, _, _ := newTestService(t)

	root := mustCreateRoot(t, service, "notice-42", "user-1", "root")

	err := service.DeleteComment(context.Background(), root.ID, mustAuthorID(t, "user-2"))
	if !errors.Is(err, ErrNotCommentAuthor) {
		t.Fatalf("expected ErrNotCommentAuthor, got %v", err)
	}
}

func TestGetCommentHidesDeleted(t *testing.T) {
	service, _, _ := newTestService(t)

	root := mustCreateRoot(t, service, "notice-42", "user-1", "root")
	if _, err := service.GetComment(context.Background(), root.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.DeleteComment(context.Background(), root.ID, mustAuthorID(t, "user-1")); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := service.GetComment(context.Background(), root.ID); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}
}
