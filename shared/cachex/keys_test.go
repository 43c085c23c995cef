package cachex

import (
	"regexp"
	"strings"
	"testing"
)

// matchGlob mirrors redis glob semantics for the patterns we use: '*'
// matches any run of characters, '/' included.
func matchGlob(t *testing.T, pattern string, key string) bool {
	t.Helper()
	re := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	ok, err := regexp.MatchString(re, key)
	if err != nil {
		t.Fatalf("bad pattern %q: %v", pattern, err)
	}
	return ok
}

func TestKeysBelongToTheirFamily(t *testing.T) {
	cases := []struct {
		key    string
		family string
	}{
		{KeyCategories, FamilyCategories},
		{KeyCategory("Sports"), FamilyCategories},
		{KeyCategory("64f1a2b3c4d5e6f7a8b9c0d1"), FamilyCategories},
		{KeyParentCategories, FamilyParentCategories},
		{KeyCategoryNews("64f1a2b3c4d5e6f7a8b9c0d1"), FamilyCategoryNews},
		{KeyUserInterestNews("64f1a2b3c4d5e6f7a8b9c0d2"), FamilyUserInterest},
		{KeyApplication("64f1a2b3c4d5e6f7a8b9c0d3"), FamilyApplications},
		{KeyApplicationsAll, FamilyApplications},
		{KeyApplicationsPending, FamilyApplications},
		{KeyApplicationsByStatus("rejected"), FamilyApplications},
		{KeyUserApplications("64f1a2b3c4d5e6f7a8b9c0d2"), FamilyUserApplications},
	}
	for _, tc := range cases {
		if !matchGlob(t, tc.family, tc.key) {
			t.Fatalf("key %q does not match family %q", tc.key, tc.family)
		}
	}
}

func TestPendingStatusUsesNamedKey(t *testing.T) {
	if got := KeyApplicationsByStatus("pending"); got != KeyApplicationsPending {
		t.Fatalf("pending list should live under %q, got %q", KeyApplicationsPending, got)
	}
	if got := KeyApplicationsByStatus("accepted"); got != "applications:status:accepted" {
		t.Fatalf("got %q", got)
	}
}

func TestKeyFamilyLabels(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{KeyCategories, "categories"},
		{KeyCategory("Sports"), "categories"},
		{KeyParentCategories, "parent-categories"},
		{KeyAllNews, "all-news"},
		{KeyCategoryNews("64f1a2b3c4d5e6f7a8b9c0d1"), "category-news"},
		{KeyUserInterestNews("64f1a2b3c4d5e6f7a8b9c0d2"), "user-interest"},
		{KeyApplication("64f1a2b3c4d5e6f7a8b9c0d3"), "application"},
		{KeyApplicationsAll, "applications"},
		{KeyApplicationsPending, "applications"},
		{KeyUserApplications("64f1a2b3c4d5e6f7a8b9c0d2"), "user-applications"},
	}
	for _, tc := range cases {
		if got := KeyFamily(tc.key); got != tc.want {
			t.Fatalf("KeyFamily(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestCategoryFamilyDoesNotSwallowNewsKeys(t *testing.T) {
	if matchGlob(t, FamilyCategories, KeyCategoryNews("64f1a2b3c4d5e6f7a8b9c0d1")) {
		t.Fatalf("category-news keys must not be cleared by the categories family")
	}
	if matchGlob(t, FamilyCategories, KeyAllNews) {
		t.Fatalf("all-news must not be cleared by the categories family")
	}
}
