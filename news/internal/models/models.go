package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// News lifecycle. A reporter upload lands as a draft; verification moves it
// to published or rejected.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusRejected  = "rejected"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusPublished, StatusRejected:
		return true
	}
	return false
}

type News struct {
	ID                bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title             string         `bson:"title" json:"title"`
	Content           string         `bson:"content" json:"content"`
	SummarizedContent string         `bson:"summarizedContent,omitempty" json:"summarizedContent,omitempty"`
	CategoryID        bson.ObjectID  `bson:"category" json:"categoryId"`
	Status            string         `bson:"status" json:"status"`
	ReportedBy        *bson.ObjectID `bson:"reportedBy,omitempty" json:"reportedBy,omitempty"`
	IsSystemGenerated bool           `bson:"isSystemGenerated" json:"isSystemGenerated"`
	IsFake            bool           `bson:"isFake" json:"isFake"`
	CreatedAt         time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time      `bson:"updatedAt" json:"updatedAt"`
	PublishedAt       *time.Time     `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	Source            string         `bson:"source,omitempty" json:"source,omitempty"`
	OriginalURL       string         `bson:"originalURL,omitempty" json:"originalURL,omitempty"`
	Language          string         `bson:"language" json:"language"`
	EditedBy          *bson.ObjectID `bson:"editedBy,omitempty" json:"editedBy,omitempty"`
	PublishedBy       *bson.ObjectID `bson:"publishedBy,omitempty" json:"publishedBy,omitempty"`
	ImageURLs         []string       `bson:"imageURL,omitempty" json:"imageUrls,omitempty"`
	Tags              []string       `bson:"tags,omitempty" json:"tags,omitempty"`
	Location          string         `bson:"location,omitempty" json:"location,omitempty"`
}

type Category struct {
	ID        bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name      string         `bson:"name" json:"name"`
	Parent    *bson.ObjectID `bson:"parent,omitempty" json:"parent,omitempty"`
	CreatedAt time.Time      `bson:"createdAt" json:"createdAt"`
}

// CategoryTree is one node of a graph-lookup result: a category together
// with every descendant reachable through the parent field.
type CategoryTree struct {
	ID       bson.ObjectID `bson:"_id" json:"id"`
	Name     string        `bson:"name" json:"name"`
	Children []Category    `bson:"children" json:"children"`
}
