package websession

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BadgeGame is one badge row with card drops still to earn.
type BadgeGame struct {
	AppID uint32
	Hours float64 // playtime on record
	Drops int     // card drops remaining
}

// BadgePage is one page of the badges listing.
type BadgePage struct {
	Pages int // total page count reported by the pagination
	Games []BadgeGame
}

var (
	dropsRe = regexp.MustCompile(`(\d+) card drops? remaining`)
	hoursRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?) hrs on record`)
)

// BadgePage fetches and parses one page of the account's badges.
func (s *Session) BadgePage(ctx context.Context, page int) (*BadgePage, error) {
	doc, err := s.GetHTML(ctx, "/my/badges", url.Values{
		"p": {strconv.Itoa(page)},
		"l": {"english"},
	})
	if err != nil {
		return nil, err
	}
	return parseBadgePage(doc), nil
}

func parseBadgePage(doc *goquery.Document) *BadgePage {
	bp := &BadgePage{Pages: 1}

	doc.Find("a.pagelink").Each(func(_ int, sel *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(sel.Text())); err == nil && n > bp.Pages {
			bp.Pages = n
		}
	})

	doc.Find("div.badge_row").Each(func(_ int, row *goquery.Selection) {
		href, ok := row.Find("a.badge_row_overlay").Attr("href")
		if !ok {
			return
		}
		appID := appIDFromGameCardsURL(href)
		if appID == 0 {
			return
		}

		// Rows without a drops counter are not card badges.
		drops := parseDrops(row.Find(".progress_info_bold").First().Text())
		if drops == 0 {
			return
		}

		bp.Games = append(bp.Games, BadgeGame{
			AppID: appID,
			Hours: parseHours(row.Find(".badge_title_stats_playtime").First().Text()),
			Drops: drops,
		})
	})

	return bp
}

// CardsRemaining reads the drop counter off a game's cards page.
func (s *Session) CardsRemaining(ctx context.Context, appID uint32) (int, error) {
	doc, err := s.GetHTML(ctx, fmt.Sprintf("/my/gamecards/%d/", appID), url.Values{"l": {"english"}})
	if err != nil {
		return 0, err
	}

	text := strings.TrimSpace(doc.Find(".progress_info_bold").First().Text())
	if text == "" {
		return 0, fmt.Errorf("cards page for %d has no progress info", appID)
	}
	return parseDrops(text), nil
}

func parseDrops(text string) int {
	m := dropsRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func parseHours(text string) float64 {
	m := hoursRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	h, _ := strconv.ParseFloat(m[1], 64)
	return h
}

func appIDFromGameCardsURL(href string) uint32 {
	_, rest, found := strings.Cut(href, "/gamecards/")
	if !found {
		return 0
	}
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseUint(rest[:end], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}
