package boards

import (
	"github.com/mallforge/backend/internal/pagination"
)

// Sortable board post attributes.
const (
	SortFieldCreatedAt pagination.SortField = "created_at"
	SortFieldViewCount pagination.SortField = "view_count"
	SortFieldTitle     pagination.SortField = "title"
)

// Post is one board entry. The admin backend carries many near-identical
// listable modules; board posts are the representative one here and share
// the same keyset listing machinery as comments.
type Post struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	BoardID          string `gorm:"column:board_id;size:190;not null;index"`
	Title            string `gorm:"column:title;size:500;not null"`
	AuthorID         string `gorm:"column:author_id;size:190;not null;index"`
	Content          string `gorm:"column:content;type:text;not null"`
	ViewCount        int64  `gorm:"column:view_count;not null;default:0"`
	IsDeleted        bool   `gorm:"column:is_deleted;not null;default:false"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "board_posts"
}

// TieBreak exposes the strictly increasing identifier used to break sort
// ties during keyset pagination.
func (p Post) TieBreak() int64 {
	return p.ID
}

// SortValue returns the current value of an allow-listed sort field.
func (p Post) SortValue(field pagination.SortField) (any, bool) {
	switch field {
	case SortFieldCreatedAt:
		return p.CreatedAtSeconds, true
	case SortFieldViewCount:
		return p.ViewCount, true
	case SortFieldTitle:
		return p.Title, true
	default:
		return nil, false
	}
}

// Schema is the board post listing allow-list.
var Schema = pagination.Schema{
	Entity:   "board_posts",
	TieBreak: "id",
	Sortable: map[pagination.SortField]string{
		SortFieldCreatedAt: "created_at_s",
		SortFieldViewCount: "view_count",
		SortFieldTitle:     "title",
	},
	Filterable: map[string]string{
		"board":      "board_id",
		"author":     "author_id",
		"title":      "title",
		"created_at": "created_at_s",
	},
	DefaultSort: SortFieldCreatedAt,
	DefaultDir:  pagination.DirectionDesc,
}
