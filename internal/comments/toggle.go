package comments

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const opToggleLike = "comments.toggle_like"

// toggleMaxAttempts bounds retries when a concurrent toggle by the same user
// loses the race on the (comment_id, user_id) unique index.
const toggleMaxAttempts = 3

// ToggleResult reports the state after a toggle. LikeCount is re-read from
// the comment row inside the transaction, never computed client-side.
type ToggleResult struct {
	Liked     bool
	LikeCount int64
}

// ToggleLike flips the caller's like on a comment.
//
// The edge check, the edge insert or delete, and the counter adjustment all
// run in one transaction, so LikeCount always equals the number of live
// comment_likes rows. The unique index on (comment_id, user_id) is the
// arbiter under concurrency: a lost race surfaces as a duplicate-key error
// and the whole transaction is retried against the new state.
func (s *Service) ToggleLike(ctx context.Context, commentID int64, userID string) (ToggleResult, error) {
	var result ToggleResult

	for attempt := 0; attempt < toggleMaxAttempts; attempt++ {
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			comment, err := s.loadCommentLocked(tx, commentID)
			if err != nil {
				if errors.Is(err, ErrCommentNotFound) {
					return newServiceError(opToggleLike, "not_found", err)
				}
				s.logError(opToggleLike, "lookup_failed", err, zap.Int64("comment_id", commentID))
				return newServiceError(opToggleLike, "lookup_failed", err)
			}

			var edge CommentLike
			err = tx.Where("comment_id = ? AND user_id = ?", comment.ID, userID).Take(&edge).Error
			switch {
			case err == nil:
				if err := tx.Delete(&CommentLike{}, edge.ID).Error; err != nil {
					s.logError(opToggleLike, "edge_delete_failed", err, zap.Int64("comment_id", commentID))
					return newServiceError(opToggleLike, "edge_delete_failed", err)
				}
				if err := tx.Model(&Comment{}).
					Where("id = ?", comment.ID).
					UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error; err != nil {
					s.logError(opToggleLike, "like_count_update_failed", err, zap.Int64("comment_id", commentID))
					return newServiceError(opToggleLike, "like_count_update_failed", err)
				}
				result.Liked = false
			case errors.Is(err, gorm.ErrRecordNotFound):
				edge = CommentLike{
					CommentID:        comment.ID,
					UserID:           userID,
					CreatedAtSeconds: s.clock().UTC().Unix(),
				}
				if err := tx.Create(&edge).Error; err != nil {
					if errors.Is(err, gorm.ErrDuplicatedKey) {
						return err
					}
					s.logError(opToggleLike, "edge_insert_failed", err, zap.Int64("comment_id", commentID))
					return newServiceError(opToggleLike, "edge_insert_failed", err)
				}
				if err := tx.Model(&Comment{}).
					Where("id = ?", comment.ID).
					UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error; err != nil {
					s.logError(opToggleLike, "like_count_update_failed", err, zap.Int64("comment_id", commentID))
					return newServiceError(opToggleLike, "like_count_update_failed", err)
				}
				result.Liked = true
			default:
				s.logError(opToggleLike, "edge_lookup_failed", err, zap.Int64("comment_id", commentID))
				return newServiceError(opToggleLike, "edge_lookup_failed", err)
			}

			var current Comment
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", comment.ID).
				Take(&current).Error; err != nil {
				s.logError(opToggleLike, "count_reread_failed", err, zap.Int64("comment_id", commentID))
				return newServiceError(opToggleLike, "count_reread_failed", err)
			}
			result.LikeCount = current.LikeCount
			return nil
		})
		if txErr == nil {
			return result, nil
		}
		if errors.Is(txErr, gorm.ErrDuplicatedKey) {
			continue
		}
		return ToggleResult{}, txErr
	}

	s.logError(opToggleLike, "retries_exhausted", gorm.ErrDuplicatedKey,
		zap.Int64("comment_id", commentID), zap.Int("attempts", toggleMaxAttempts))
	return ToggleResult{}, newServiceError(opToggleLike, "retries_exhausted", gorm.ErrDuplicatedKey)
}
