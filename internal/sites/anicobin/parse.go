package anicobin

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pagecrawl/internal/sites"
)

// ParsePostURLs returns the post links on a list page.
func ParsePostURLs(pageURL, html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse list page: %w", err)
	}
	var out []string
	doc.Find(".hentry").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find("a").First().Attr("href")
		if !ok {
			return
		}
		if abs, err := sites.Resolve(pageURL, href); err == nil {
			out = append(out, abs)
		}
	})
	return out, nil
}

// ParsePictureURLs returns the full-size picture links in a post.
func ParsePictureURLs(pageURL, html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse post page: %w", err)
	}
	var out []string
	doc.Find("div.tw_matome > a > img").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Parent().Attr("href")
		if !ok {
			return
		}
		if abs, err := sites.Resolve(pageURL, href); err == nil {
			out = append(out, abs)
		}
	})
	return out, nil
}
