// Package content defines the ContentRecord data model and the
// deduplicated bulk-upsert content store backed by MongoDB.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Category enumerates the closed set of content categories of §3.
type Category string

const (
	CategoryNews          Category = "news"
	CategoryJob           Category = "job"
	CategoryBlog          Category = "blog"
	CategoryArticle       Category = "article"
	CategoryDocumentation Category = "documentation"
	CategoryTutorial      Category = "tutorial"
	CategoryVideo         Category = "video"
	CategoryOther         Category = "other"
)

// ValidCategories lists every category accepted by the store.
var ValidCategories = map[Category]bool{
	CategoryNews: true, CategoryJob: true, CategoryBlog: true,
	CategoryArticle: true, CategoryDocumentation: true,
	CategoryTutorial: true, CategoryVideo: true, CategoryOther: true,
}

// Status enumerates the lifecycle states a record may be in.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
	StatusFlagged  Status = "flagged"
)

// ValidStatuses lists every status accepted by the store's transition
// endpoint.
var ValidStatuses = map[Status]bool{
	StatusActive: true, StatusArchived: true, StatusDeleted: true, StatusFlagged: true,
}

// Author is the optional byline attached to a ContentRecord.
type Author struct {
	Name string `bson:"name" json:"name"`
	URL  string `bson:"url,omitempty" json:"url,omitempty"`
}

// JobDetail is the sub-record attached to records whose category is "job".
type JobDetail struct {
	Company        string `bson:"company" json:"company"`
	Location       string `bson:"location" json:"location"`
	SalaryRange    string `bson:"salaryRange,omitempty" json:"salaryRange,omitempty"`
	EmploymentType string `bson:"employmentType,omitempty" json:"employmentType,omitempty"`
	Remote         bool   `bson:"remote" json:"remote"`
}

// ContentRecord is a single scraped item, identity is its ContentHash.
type ContentRecord struct {
	ContentHash   string     `bson:"contentHash" json:"contentHash"`
	Category      Category   `bson:"category" json:"category"`
	Title         string     `bson:"title" json:"title"`
	Description   string     `bson:"description,omitempty" json:"description,omitempty"`
	Body          string     `bson:"body,omitempty" json:"body,omitempty"`
	URL           string     `bson:"url" json:"url"`
	ImageURL      string     `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	Author        *Author    `bson:"author,omitempty" json:"author,omitempty"`
	PublishedAt   *time.Time `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	SourceHost    string     `bson:"sourceHost" json:"sourceHost"`
	SourceName    string     `bson:"sourceName" json:"sourceName"`
	Tags          []string   `bson:"tags,omitempty" json:"tags,omitempty"`
	KeywordHits   []string   `bson:"keywordHits,omitempty" json:"keywordHits,omitempty"`
	RelevanceScore float64   `bson:"relevanceScore" json:"relevanceScore"`
	JobDetail     *JobDetail `bson:"jobDetail,omitempty" json:"jobDetail,omitempty"`
	ScrapedBy     string     `bson:"scrapedBy" json:"scrapedBy"`
	ScrapedAt     time.Time  `bson:"scrapedAt" json:"scrapedAt"`
	ExpiresAt     *time.Time `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	Status        Status     `bson:"status" json:"status"`
	Views         int64      `bson:"views" json:"views"`
	Clicks        int64      `bson:"clicks" json:"clicks"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

const (
	maxTitleLen       = 500
	maxDescriptionLen = 5000
)

// Validate checks the invariants of §3 that aren't enforced by the store
// index (required title, length bounds, closed category set).
func (r *ContentRecord) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errTitleRequired
	}
	if len(r.Title) > maxTitleLen {
		return errTitleTooLong
	}
	if len(r.Description) > maxDescriptionLen {
		return errDescriptionTooLong
	}
	if !ValidCategories[r.Category] {
		return errInvalidCategory
	}
	return nil
}

// Hash computes the content hash identity of §3:
// SHA-256(lowercased-trimmed-URL || "|" || lowercased-trimmed-title).
func Hash(url, title string) string {
	norm := strings.ToLower(strings.TrimSpace(url)) + "|" + strings.ToLower(strings.TrimSpace(title))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// ApplyHash sets r.ContentHash from its URL and Title.
func (r *ContentRecord) ApplyHash() {
	r.ContentHash = Hash(r.URL, r.Title)
}
