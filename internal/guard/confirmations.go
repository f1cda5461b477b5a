package guard

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"cardfarm/internal/websession"
)

// ConfirmationType classifies a pending mobile confirmation.
type ConfirmationType int

const (
	ConfirmationUnknown ConfirmationType = 0
	ConfirmationGeneric ConfirmationType = 1
	ConfirmationTrade   ConfirmationType = 2
	ConfirmationMarket  ConfirmationType = 3
)

// Confirmation is one pending entry of the mobile confirmation list.
type Confirmation struct {
	ID        uint64
	Nonce     string
	Type      ConfirmationType
	CreatorID uint64 // trade-offer id or market-listing id
}

// Filter narrows a confirmation batch. Zero fields match everything.
type Filter struct {
	Types        []ConfirmationType
	OtherSteamID uint64          // requires a details fetch per confirmation
	CreatorIDs   map[uint64]bool // match by trade-offer / listing id
}

func (f Filter) matchesType(t ConfirmationType) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, want := range f.Types {
		if t == want {
			return true
		}
	}
	return false
}

// Confirmations drives the mobile confirmation flow for one account.
// Resolve calls are serialized; the platform rejects parallel ones.
type Confirmations struct {
	log  *slog.Logger
	auth *Authenticator
	web  *websession.Session

	resolveMu sync.Mutex
}

// NewConfirmations wires the authenticator to the account's web session.
func NewConfirmations(auth *Authenticator, web *websession.Session, log *slog.Logger) *Confirmations {
	return &Confirmations{log: log, auth: auth, web: web}
}

func (c *Confirmations) signedQuery(tag string) url.Values {
	now := time.Now()
	return url.Values{
		"p":   {c.auth.DeviceID()},
		"a":   {strconv.FormatUint(c.web.SteamID(), 10)},
		"k":   {c.auth.confirmationHash(now, tag)},
		"t":   {strconv.FormatInt(now.Unix(), 10)},
		"m":   {"android"},
		"tag": {tag},
	}
}

// Fetch lists the pending confirmations.
func (c *Confirmations) Fetch(ctx context.Context) ([]Confirmation, error) {
	doc, err := c.web.GetHTML(ctx, "/mobileconf/conf", c.signedQuery("conf"))
	if err != nil {
		return nil, err
	}
	return parseConfirmationList(doc)
}

func parseConfirmationList(doc *goquery.Document) ([]Confirmation, error) {
	var confirmations []Confirmation
	doc.Find("[data-confid]").Each(func(_ int, sel *goquery.Selection) {
		id, err := strconv.ParseUint(sel.AttrOr("data-confid", ""), 10, 64)
		if err != nil {
			return
		}
		typ, _ := strconv.Atoi(sel.AttrOr("data-type", ""))
		creator, _ := strconv.ParseUint(sel.AttrOr("data-creator", ""), 10, 64)
		confirmations = append(confirmations, Confirmation{
			ID:        id,
			Nonce:     sel.AttrOr("data-key", ""),
			Type:      ConfirmationType(typ),
			CreatorID: creator,
		})
	})

	if len(confirmations) == 0 && doc.Find(".mobileconf_empty").Length() == 0 {
		// Neither entries nor the empty marker: the page is a token
		// rejection, not a confirmation list.
		return nil, websession.ErrSessionExpired
	}
	return confirmations, nil
}

// Details resolves the other party of a confirmation.
type Details struct {
	OtherSteamID uint64
}

// FetchDetails loads the detail page of one confirmation.
func (c *Confirmations) FetchDetails(ctx context.Context, conf Confirmation) (*Details, error) {
	res, err := c.web.GetJSON(ctx, fmt.Sprintf("/mobileconf/details/%d", conf.ID), c.signedQuery("details"))
	if err != nil {
		return nil, err
	}
	if !res.Get("success").Bool() {
		if res.Get("needauth").Bool() {
			return nil, websession.ErrSessionExpired
		}
		return nil, fmt.Errorf("details for confirmation %d unavailable", conf.ID)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Get("html").String()))
	if err != nil {
		return nil, fmt.Errorf("parsing details for confirmation %d: %w", conf.ID, err)
	}
	other, _ := strconv.ParseUint(doc.Find("[data-steamid]").First().AttrOr("data-steamid", ""), 10, 64)
	return &Details{OtherSteamID: other}, nil
}

// Resolve accepts or denies one confirmation.
func (c *Confirmations) Resolve(ctx context.Context, conf Confirmation, accept bool) error {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()

	op := "cancel"
	if accept {
		op = "allow"
	}
	q := c.signedQuery(op)
	q.Set("op", op)
	q.Set("cid", strconv.FormatUint(conf.ID, 10))
	q.Set("ck", conf.Nonce)

	res, err := c.web.GetJSON(ctx, "/mobileconf/ajaxop", q)
	if err != nil {
		return err
	}
	if !res.Get("success").Bool() {
		if res.Get("needauth").Bool() {
			return websession.ErrSessionExpired
		}
		return fmt.Errorf("confirmation %d not resolved", conf.ID)
	}
	return nil
}

// HandleAll fetches the pending batch and resolves every confirmation
// the filter matches; non-matching ones stay pending. Returns how many
// were resolved.
func (c *Confirmations) HandleAll(ctx context.Context, accept bool, filter Filter) (int, error) {
	confirmations, err := c.Fetch(ctx)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, conf := range confirmations {
		if !filter.matchesType(conf.Type) {
			continue
		}
		if filter.CreatorIDs != nil && !filter.CreatorIDs[conf.CreatorID] {
			continue
		}
		if filter.OtherSteamID != 0 {
			details, err := c.FetchDetails(ctx, conf)
			if err != nil {
				return handled, err
			}
			if details.OtherSteamID != filter.OtherSteamID {
				continue
			}
		}
		if err := c.Resolve(ctx, conf, accept); err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}
