package cachex

import "strings"

// Cache keys are grouped into families sharing a prefix so a writer can
// clear a whole family with one DeleteFamily call. Patterns deliberately
// over-match; an evicted entry just rebuilds on the next read.

const (
	FamilyCategories       = "categories*"
	FamilyParentCategories = "parent-categories*"
	FamilyCategoryNews     = "category-news*"
	FamilyUserInterest     = "user-interest*"
	FamilyApplications     = "application*"
	FamilyUserApplications = "user:*:applications"
)

const (
	KeyCategories          = "categories"
	KeyParentCategories    = "parent-categories"
	KeyAllNews             = "all-news"
	KeyApplicationsAll     = "applications:all"
	KeyApplicationsPending = "applications:pending"
)

func KeyCategory(nameOrID string) string { return "categories:" + nameOrID }

func KeyCategoryNews(categoryID string) string { return "category-news/" + categoryID }

func KeyUserInterestNews(userID string) string { return "user-interest/" + userID }

func KeyApplication(id string) string { return "application:" + id }

func KeyUserApplications(userID string) string { return "user:" + userID + ":applications" }

func KeyApplicationsByStatus(status string) string {
	if status == "pending" {
		return KeyApplicationsPending
	}
	return "applications:status:" + status
}

// KeyFamily maps a concrete key to the label used by the cache hit/miss
// counters: the segment before the first separator, except per-user
// application lists which would otherwise all collapse into "user".
func KeyFamily(key string) string {
	if strings.HasPrefix(key, "user:") && strings.HasSuffix(key, ":applications") {
		return "user-applications"
	}
	if i := strings.IndexAny(key, ":/"); i > 0 {
		return key[:i]
	}
	return key
}
