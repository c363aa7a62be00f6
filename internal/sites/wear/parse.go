package wear

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pagecrawl/internal/sites"
)

// User is the profile summary shown on a user list page.
type User struct {
	UserID   string   `json:"userid"`
	Name     string   `json:"name"`
	Info     []string `json:"info"`
	Meta     []string `json:"meta"`
	Brands   []string `json:"brands"`
	UserType string   `json:"user_type"`
	ShopName string   `json:"shopname"`
}

// Snap is one outfit from a user's gallery. It is written next to the
// downloaded image as JSON.
type Snap struct {
	SnapID    string `json:"snapid"`
	Saves     int    `json:"saves"`
	Likes     int    `json:"likes"`
	Link      string `json:"link"`
	User      *User  `json:"user,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Height    string `json:"height,omitempty"`
	URL       string `json:"url"`
}

// UserLink pairs a gallery URL with the user it belongs to.
type UserLink struct {
	URL  string
	User User
}

func texts(s *goquery.Selection) []string {
	out := make([]string, 0, s.Length())
	s.Each(func(_ int, li *goquery.Selection) {
		out = append(out, strings.TrimSpace(li.Text()))
	})
	return out
}

func userType(e *goquery.Selection) string {
	span := e.Find("h3.name span").First()
	switch {
	case span.Length() == 0:
		return "normal"
	case span.HasClass("wearista"):
		return "wearista"
	case span.HasClass("shopstaff"):
		return "shopstaff"
	default:
		return ""
	}
}

// ParseUsers extracts the users listed on a user list page.
func ParseUsers(pageURL, html string) ([]UserLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse user list: %w", err)
	}
	var (
		out      []UserLink
		parseErr error
	)
	doc.Find("#list_1column li.list").EachWithBreak(func(_ int, e *goquery.Selection) bool {
		href, ok := e.Find(".over").First().Attr("href")
		if !ok {
			parseErr = fmt.Errorf("user entry without link")
			return false
		}
		link, err := sites.Resolve(pageURL, href)
		if err != nil {
			parseErr = err
			return false
		}
		out = append(out, UserLink{
			URL: link,
			User: User{
				UserID:   strings.ReplaceAll(href, "/", ""),
				Name:     strings.TrimSpace(e.Find("h3.name").First().Text()),
				Info:     texts(e.Find("ul.info li")),
				Meta:     texts(e.Find("ul.meta li")),
				Brands:   texts(e.Find(".fav_brand ul li")),
				UserType: userType(e),
				ShopName: strings.TrimSpace(e.Find(".shopname").First().Text()),
			},
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func count(e *goquery.Selection, selector string) (int, error) {
	raw := strings.TrimSpace(e.Find(selector).First().Text())
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", selector, err)
	}
	return n, nil
}

// ParseGallery extracts the snaps of a gallery page. user, when non-nil, is
// attached to every snap.
func ParseGallery(pageURL, html string, user *User) ([]Snap, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse gallery: %w", err)
	}
	var (
		out      []Snap
		parseErr error
	)
	doc.Find(".like_mark").EachWithBreak(func(_ int, e *goquery.Selection) bool {
		src, ok := e.Find(".img img").First().Attr("data-originalretina")
		if !ok {
			parseErr = fmt.Errorf("snap without image")
			return false
		}
		img, err := sites.Resolve(pageURL, src)
		if err != nil {
			parseErr = err
			return false
		}
		snap := Snap{User: user, URL: img}
		snap.SnapID, _ = e.Attr("data-snapid")
		snap.Link, _ = e.Find(".over").First().Attr("href")
		if snap.Saves, err = count(e, ".btn_save span"); err != nil {
			parseErr = err
			return false
		}
		if snap.Likes, err = count(e, ".btn_like span"); err != nil {
			parseErr = err
			return false
		}
		if first := e.Find(".namefirst").First(); first.Length() > 0 {
			snap.FirstName = strings.TrimSpace(first.Text())
		}
		if height := e.Find(".height").First(); height.Length() > 0 {
			snap.Height = strings.TrimSpace(height.Text())
		}
		out = append(out, snap)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}
