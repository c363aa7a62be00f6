package netkeiba

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pagecrawl/internal/sites"
)

func parseTableLinks(baseURL, html string, column int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search result: %w", err)
	}
	var out []string
	doc.Find("table.race_table_01 tr").Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return
		}
		href, ok := tr.Find("td").Eq(column).Find("a").First().Attr("href")
		if !ok {
			return
		}
		if abs, err := sites.Resolve(baseURL, href); err == nil {
			out = append(out, abs)
		}
	})
	return out, nil
}

// ParseRaceURLs returns the race links of a race search result page.
func ParseRaceURLs(baseURL, html string) ([]string, error) {
	return parseTableLinks(baseURL, html, 4)
}

// ParseHorseURLs returns the horse links of a horse search result page.
func ParseHorseURLs(baseURL, html string) ([]string, error) {
	return parseTableLinks(baseURL, html, 1)
}

// ParseNextPageForm returns the hidden inputs of the sort form, which carry
// the search state needed to request later result pages.
func ParseNextPageForm(html string) (url.Values, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search form: %w", err)
	}
	form := url.Values{}
	doc.Find("form[name=sort] > input").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok {
			return
		}
		value, _ := s.Attr("value")
		form.Add(name, value)
	})
	return form, nil
}
