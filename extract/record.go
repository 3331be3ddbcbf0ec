package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-play/models"
	"github.com/aluiziolira/go-scrape-play/parser"
)

// Details builds the full application record from a details page. Fields
// that do not resolve are kept with a nil value so every record has the
// same shape.
func Details(appID, pageURL string, m parser.DatasetMap, link parser.DownloadLink) models.Record {
	rec := make(models.Record, 0, len(Detail.entries)+6)
	rec = append(rec,
		models.Field{Name: "appId", Value: appID},
		models.Field{Name: "url", Value: pageURL},
	)

	location, language, ok := parser.SiteLocation(m)
	if ok {
		rec = append(rec,
			models.Field{Name: "siteLocation", Value: location},
			models.Field{Name: "siteLanguage", Value: language},
		)
	} else {
		rec = append(rec,
			models.Field{Name: "siteLocation"},
			models.Field{Name: "siteLanguage"},
		)
	}

	for _, e := range Detail.entries {
		v, _ := e.Spec.Extract(m)
		rec = append(rec, models.Field{Name: e.Name, Value: v})
	}

	if link.Found {
		var linkURL any
		if link.URL != "" {
			linkURL = link.URL
		}
		rec = append(rec,
			models.Field{Name: "downloadLink", Value: linkURL},
			models.Field{Name: "downloadLinkEnabled", Value: link.Enabled},
		)
	} else {
		rec = append(rec,
			models.Field{Name: "downloadLink"},
			models.Field{Name: "downloadLinkEnabled"},
		)
	}
	return rec
}

// Full drops the large fields that are not written to metadata output.
func Full(rec models.Record) models.Record {
	return rec.Without(LargeFields...)
}

// Reduce projects a details record onto the reduced output shape.
func Reduce(rec models.Record) models.ReducedRecord {
	link, _ := rec.Get("downloadLink")
	enabled, _ := rec.Get("downloadLinkEnabled")
	isEnabled, _ := enabled.(bool)
	return models.ReducedRecord{
		AppID:               rec.String("appId"),
		Version:             scalarText(rec, "version"),
		Updated:             scalarText(rec, "updated"),
		Released:            scalarText(rec, "released"),
		DownloadLink:        link != nil && link != "",
		DownloadLinkEnabled: isEnabled,
	}
}

func scalarText(rec models.Record, name string) string {
	v, _ := rec.Get(name)
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// AppID returns the application identifier of a list entry.
func AppID(entry any) (string, bool) {
	return parser.LookupString(entry, 12, 0)
}

// AppIDs maps list entries to identifiers, skipping entries without one.
func AppIDs(entries []any) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if id, ok := AppID(e); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// ListItem builds the summary record of one list entry.
func ListItem(baseURL string, entry any) models.Record {
	field := func(name string, path ...int) models.Field {
		v, _ := parser.Lookup(entry, path...)
		return models.Field{Name: name, Value: v}
	}

	var pageURL any
	if p, ok := parser.LookupString(entry, 9, 4, 2); ok {
		pageURL = strings.TrimSuffix(baseURL, "/") + p
	}
	var developerID any
	if dev, ok := parser.LookupString(entry, 4, 0, 0, 1, 4, 2); ok {
		if _, id, found := strings.Cut(dev, "?id="); found {
			developerID = id
		}
	}

	price, hasPrice := parser.Lookup(entry, 7, 0, 3, 2, 1, 0, 2)
	priceText := any("Free")
	if hasPrice {
		priceText = price
	}

	return models.Record{
		{Name: "url", Value: pageURL},
		field("appId", 12, 0),
		field("title", 2),
		field("summary", 4, 1, 1, 1, 1),
		field("developer", 4, 0, 0, 0),
		{Name: "developerId", Value: developerID},
		field("icon", 1, 1, 0, 3, 2),
		field("score", 6, 0, 2, 1, 1),
		field("scoreText", 6, 0, 2, 1, 0),
		{Name: "priceText", Value: priceText},
		{Name: "free", Value: !hasPrice},
	}
}
