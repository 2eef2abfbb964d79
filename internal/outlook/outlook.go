// Package outlook maps an SPC convective outlook day and product to the
// image URL that shows it.
package outlook

import (
	"strconv"
	"strings"
	"time"
)

type Day string

const (
	Day1    Day = "1"
	Day2    Day = "2"
	Day3    Day = "3"
	Day4To8 Day = "4-8"
)

type Product string

const (
	Categorical Product = "categorical"
	Tornado     Product = "tornado"
	Wind        Product = "wind"
	Hail        Product = "hail"

	// Probabilistic is the day 3 combined image.
	Probabilistic Product = "probabilistic"
)

var Days = []Day{Day1, Day2, Day3, Day4To8}

var Products = []Product{Categorical, Tornado, Wind, Hail}

// Selection is a normalized (day, product) pair.
type Selection struct {
	Day     Day     `json:"day"`
	Product Product `json:"product"`
}

var probSuffix = map[Product]string{
	Tornado: "torn",
	Wind:    "wind",
	Hail:    "hail",
}

// ParseDay falls back to day 1 for unknown input.
func ParseDay(s string) Day {
	switch d := Day(strings.TrimSpace(s)); d {
	case Day1, Day2, Day3, Day4To8:
		return d
	case "4", "5", "6", "7", "8", "48", "4_8":
		return Day4To8
	}
	return Day1
}

// ParseProduct falls back to categorical for unknown input.
func ParseProduct(s string) Product {
	switch p := Product(strings.ToLower(strings.TrimSpace(s))); p {
	case Categorical, Tornado, Wind, Hail, Probabilistic:
		return p
	case "torn":
		return Tornado
	case "prob":
		return Probabilistic
	}
	return Categorical
}

// Normalize applies the per-day availability rules. Day 4-8 only has the
// categorical product. Day 3 has a single combined probabilistic image so
// every probabilistic product collapses to the same selection.
func Normalize(day Day, product Product) Selection {
	day = ParseDay(string(day))
	product = ParseProduct(string(product))

	switch day {
	case Day4To8:
		return Selection{Day: day, Product: Categorical}
	case Day3:
		if product != Categorical {
			return Selection{Day: day, Product: Probabilistic}
		}
	default:
		if product == Probabilistic {
			return Selection{Day: day, Product: Categorical}
		}
	}
	return Selection{Day: day, Product: product}
}

// Available reports whether day publishes product as its own image. Day 3
// tornado, wind and hail are not: they resolve to the combined probabilistic
// image, so they report false even though Resolve still returns a URL.
func Available(day Day, product Product) bool {
	switch day {
	case Day1, Day2:
		return product == Categorical || probSuffix[product] != ""
	case Day3:
		return product == Categorical || product == Probabilistic
	case Day4To8:
		return product == Categorical
	}
	return false
}

type Selector struct {
	baseURL string
}

func NewSelector(spcBaseURL string) *Selector {
	return &Selector{baseURL: strings.TrimRight(spcBaseURL, "/")}
}

// Resolve returns the image URL for day and product. Invalid combinations
// resolve to the nearest valid one rather than failing.
func (s *Selector) Resolve(day Day, product Product) string {
	sel := Normalize(day, product)

	switch sel.Day {
	case Day4To8:
		return s.baseURL + "/products/exper/day4-8/day4-8prob.gif"
	case Day3:
		if sel.Product == Probabilistic {
			return s.baseURL + "/products/outlook/day3prob.gif"
		}
		return s.baseURL + "/products/outlook/day3otlk.gif"
	}

	if sel.Product == Categorical {
		return s.baseURL + "/products/outlook/day" + string(sel.Day) + "otlk.gif"
	}
	return s.baseURL + "/products/outlook/day" + string(sel.Day) + "probotlk_" + probSuffix[sel.Product] + ".gif"
}

// Selections lists every distinct image the selector can resolve to.
func Selections() []Selection {
	seen := make(map[Selection]bool)
	var out []Selection
	for _, d := range Days {
		for _, p := range Products {
			sel := Normalize(d, p)
			if !seen[sel] {
				seen[sel] = true
				out = append(out, sel)
			}
		}
	}
	return out
}

// WithCacheBuster appends the timestamp query the SPC image server needs to
// skip intermediate caches.
func WithCacheBuster(url string, now time.Time) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + strconv.FormatInt(now.UnixMilli(), 10)
}
