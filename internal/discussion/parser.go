// Package discussion extracts SPC mesoscale discussions from the SPC RSS
// feed, or from the MD index and detail pages when the feed is unusable.
package discussion

import (
	"bytes"
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

var (
	reTitleNumber = regexp.MustCompile(`(?i)\b(?:md|discussion)\s*#?\s*(\d{1,4})\b`)
	reAnyNumber   = regexp.MustCompile(`\b(\d{1,4})\b`)
	reDetailHref  = regexp.MustCompile(`(?i)(?:^|/)md(\d{4})\.html$`)
	reIssued      = regexp.MustCompile(`\b(\d{3,4}) (AM|PM) ([A-Z]{3}) [A-Z][a-z]{2} ([A-Z][a-z]{2}) (\d{1,2}) (\d{4})\b`)
	reAreas       = regexp.MustCompile(`(?i)areas affected\.\.\.(.+)`)
)

var zoneOffsets = map[string]int{
	"UTC": 0, "GMT": 0,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
}

// Number pulls the discussion number out of a title and pads it to four
// digits. The second result is false when the title has no number.
func Number(title string) (string, bool) {
	m := reTitleNumber.FindStringSubmatch(title)
	if m == nil {
		m = reAnyNumber.FindStringSubmatch(title)
	}
	if m == nil {
		return "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%04d", n), true
}

// Link builds the canonical detail page URL for a padded number.
func Link(spcBaseURL, number string) string {
	return strings.TrimRight(spcBaseURL, "/") + "/products/md/md" + number + ".html"
}

// ParseFeed parses the RSS document. Entries without a number in the title
// are dropped and only the first entry per number is kept.
func ParseFeed(doc []byte, spcBaseURL string) ([]models.DiscussionRecord, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("error parsing discussion feed: %w", err)
	}

	records := make([]models.DiscussionRecord, 0, len(feed.Items))
	seen := make(map[string]bool, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		number, ok := Number(item.Title)
		if !ok || seen[number] {
			continue
		}
		seen[number] = true

		r := models.DiscussionRecord{
			Number:   number,
			Title:    strings.TrimSpace(item.Title),
			Link:     Link(spcBaseURL, number),
			BodyText: cleanText(item.Description),
		}
		if item.PublishedParsed != nil {
			r.IssuedAt = item.PublishedParsed.UTC()
		}
		records = append(records, r)
	}

	Sort(records)
	return records, nil
}

// ParseIndex returns the padded numbers linked from the MD index page, in
// page order without repeats.
func ParseIndex(page []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil
	}

	var numbers []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if i := strings.IndexAny(href, "?#"); i >= 0 {
			href = href[:i]
		}
		m := reDetailHref.FindStringSubmatch(strings.TrimSpace(href))
		if m == nil || seen[m[1]] {
			return
		}
		seen[m[1]] = true
		numbers = append(numbers, m[1])
	})
	return numbers
}

// ParseDetail builds a record from an MD detail page. The bulletin lives in
// the page's <pre> block.
func ParseDetail(page []byte, number, spcBaseURL string) (models.DiscussionRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return models.DiscussionRecord{}, fmt.Errorf("md %s: %w", number, err)
	}
	pre := doc.Find("pre").First()
	if pre.Length() == 0 {
		return models.DiscussionRecord{}, fmt.Errorf("md %s: no preformatted block", number)
	}
	body := selectionText(pre)
	if body == "" {
		return models.DiscussionRecord{}, fmt.Errorf("md %s: empty bulletin", number)
	}

	title := "Mesoscale Discussion " + number
	if a := reAreas.FindStringSubmatch(body); a != nil {
		title += " - " + strings.TrimSpace(a[1])
	} else if t := selectionText(doc.Find("title").First()); t != "" {
		title = t
	}

	r := models.DiscussionRecord{
		Number:   number,
		Title:    title,
		Link:     Link(spcBaseURL, number),
		BodyText: body,
	}
	if issued, ok := ParseIssued(body); ok {
		r.IssuedAt = issued
	}
	return r, nil
}

// ParseIssued reads the product time line, e.g. "0215 PM CDT Tue May 06 2025".
func ParseIssued(text string) (time.Time, bool) {
	m := reIssued.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	offset, ok := zoneOffsets[m[3]]
	if !ok {
		return time.Time{}, false
	}

	hhmm, _ := strconv.Atoi(m[1])
	hour, minute := hhmm/100, hhmm%100
	if hour < 1 || hour > 12 || minute > 59 {
		return time.Time{}, false
	}
	if m[2] == "PM" && hour != 12 {
		hour += 12
	} else if m[2] == "AM" && hour == 12 {
		hour = 0
	}

	month, err := time.Parse("Jan", m[4])
	if err != nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[5])
	year, _ := strconv.Atoi(m[6])

	loc := time.FixedZone(m[3], offset*3600)
	return time.Date(year, month.Month(), day, hour, minute, 0, 0, loc).UTC(), true
}

// Sort orders records newest first. Records without an issue time go last.
func Sort(records []models.DiscussionRecord) {
	slices.SortStableFunc(records, func(a, b models.DiscussionRecord) int {
		if c := b.IssuedAt.Compare(a.IssuedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Number, a.Number)
	})
}

// cleanText reduces an HTML fragment, such as a feed item description, to
// its text.
func cleanText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return selectionText(doc.Selection)
}

// selectionText is the text of sel with line breaks kept.
func selectionText(sel *goquery.Selection) string {
	sel.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(strings.ReplaceAll(sel.Text(), "\u00a0", " "))
}
