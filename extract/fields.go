package extract

// Paths below mirror the storefront's positional layout. When the site
// changes, these tables are the only place that needs editing.

// Detail holds the fields of an application details page.
var Detail = NewRegistry(
	Entry{"title", FieldSpec{Dataset: 5, Path: []int{0, 0, 0}}},
	Entry{"description", FieldSpec{Dataset: 5, Path: []int{0, 10, 0, 1}, Transform: Unescape}},
	Entry{"descriptionHTML", FieldSpec{Dataset: 5, Path: []int{0, 10, 0, 1}}},
	Entry{"summary", FieldSpec{Dataset: 5, Path: []int{0, 10, 1, 1}, Transform: Unescape}},
	Entry{"summaryHTML", FieldSpec{Dataset: 5, Path: []int{0, 10, 1, 1}}},
	Entry{"installs", FieldSpec{Dataset: 5, Path: []int{0, 12, 9, 0}}},
	Entry{"numInstalls", FieldSpec{Dataset: 5, Path: []int{0, 12, 9, 2}}},
	Entry{"minInstalls", FieldSpec{Dataset: 5, Path: []int{0, 12, 9, 0}, Transform: Digits}},
	Entry{"score", FieldSpec{Dataset: 6, Path: []int{0, 6, 0, 1}}},
	Entry{"ratings", FieldSpec{Dataset: 6, Path: []int{0, 6, 2, 1}}},
	Entry{"reviews", FieldSpec{Dataset: 6, Path: []int{0, 6, 3, 1}}},
	Entry{"histogram", FieldSpec{Dataset: 6, Path: []int{0, 6, 1}, Transform: Histogram, Fallback: []any{0.0, 0.0, 0.0, 0.0, 0.0}}},
	Entry{"price", FieldSpec{Dataset: 3, Path: []int{0, 2, 0, 0, 0, 1, 0, 0}, Transform: Micros, Fallback: 0.0}},
	Entry{"free", FieldSpec{Dataset: 3, Path: []int{0, 2, 0, 0, 0, 1, 0, 0}, Transform: IsZero}},
	Entry{"currency", FieldSpec{Dataset: 3, Path: []int{0, 2, 0, 0, 0, 1, 0, 1}}},
	Entry{"offersIAP", FieldSpec{Dataset: 5, Path: []int{0, 12, 12, 0}, Transform: Truthy}},
	Entry{"size", FieldSpec{Dataset: 8, Path: []int{0}}},
	Entry{"androidVersion", FieldSpec{Dataset: 8, Path: []int{2}, Transform: FirstWord}},
	Entry{"androidVersionText", FieldSpec{Dataset: 8, Path: []int{2}}},
	Entry{"developer", FieldSpec{Dataset: 5, Path: []int{0, 12, 5, 1}}},
	Entry{"developerId", FieldSpec{Dataset: 5, Path: []int{0, 12, 5, 5, 4, 2}, Transform: AfterID}},
	Entry{"developerEmail", FieldSpec{Dataset: 5, Path: []int{0, 12, 5, 2, 0}}},
	Entry{"developerWebsite", FieldSpec{Dataset: 5, Path: []int{0, 12, 5, 3, 5, 2}}},
	Entry{"developerAddress", FieldSpec{Dataset: 5, Path: []int{0, 12, 5, 4, 0}}},
	Entry{"privacyPolicy", FieldSpec{Dataset: 5, Path: []int{0, 12, 7, 2}}},
	Entry{"developerInternalID", FieldSpec{Dataset: 5, Path: []int{0, 12, 5, 0, 0}}},
	Entry{"genre", FieldSpec{Dataset: 5, Path: []int{0, 12, 13, 0, 0}}},
	Entry{"genreId", FieldSpec{Dataset: 5, Path: []int{0, 12, 13, 0, 2}}},
	Entry{"icon", FieldSpec{Dataset: 5, Path: []int{0, 12, 1, 3, 2}}},
	Entry{"headerImage", FieldSpec{Dataset: 5, Path: []int{0, 12, 2, 3, 2}}},
	Entry{"screenshots", FieldSpec{Dataset: 5, Path: []int{0, 12, 0}, Transform: Pluck(3, 2), Fallback: []any{}}},
	Entry{"video", FieldSpec{Dataset: 5, Path: []int{0, 12, 3, 0, 3, 2}}},
	Entry{"videoImage", FieldSpec{Dataset: 5, Path: []int{0, 12, 3, 1, 3, 2}}},
	Entry{"contentRating", FieldSpec{Dataset: 5, Path: []int{0, 12, 4, 0}}},
	Entry{"contentRatingDescription", FieldSpec{Dataset: 5, Path: []int{0, 12, 4, 2, 1}}},
	Entry{"adSupported", FieldSpec{Dataset: 5, Path: []int{0, 12, 14, 0}, Transform: Truthy}},
	Entry{"containsAds", FieldSpec{Dataset: 5, Path: []int{0, 12, 14, 0}, Transform: Truthy, Fallback: false}},
	Entry{"released", FieldSpec{Dataset: 5, Path: []int{0, 12, 36}}},
	Entry{"updated", FieldSpec{Dataset: 5, Path: []int{0, 12, 8, 0}}},
	Entry{"version", FieldSpec{Dataset: 8, Path: []int{1}}},
	Entry{"recentChanges", FieldSpec{Dataset: 5, Path: []int{0, 12, 6, 1}, Transform: Unescape}},
	Entry{"recentChangesHTML", FieldSpec{Dataset: 5, Path: []int{0, 12, 6, 1}}},
	Entry{"comments", FieldSpec{Dataset: 17, Path: []int{0}, Transform: Pluck(4), Fallback: []any{}}},
	Entry{"similarURL", FieldSpec{Dataset: 7, Path: []int{1, 1, 0, 0, 3, 4, 2}}},
)

// Cluster holds the fields of a list page: search results, collections,
// categories and developer pages.
var Cluster = NewRegistry(
	Entry{"cluster", FieldSpec{Dataset: 3, Path: []int{0, 1, 0, 0, 3, 4, 2}}},
	Entry{"apps", FieldSpec{Dataset: 3, Path: []int{0, 1, 0, 0, 0}}},
	Entry{"token", FieldSpec{Dataset: 3, Path: []int{0, 1, 0, 0, 7, 1}}},
)

// Batch continuation responses carry the next slice and token at fixed
// positions of the decoded payload.
var (
	BatchAppsPath  = []int{0, 0, 0}
	BatchTokenPath = []int{0, 0, 7, 1}
)

// LargeFields are dropped from full metadata output.
var LargeFields = []string{
	"descriptionHTML",
	"summaryHTML",
	"recentChangesHTML",
	"screenshots",
	"icon",
	"headerImage",
	"video",
	"videoImage",
}
