package websession

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
)

// steamID64Base converts 32-bit account ids to 64-bit ids.
const steamID64Base uint64 = 76561197960265728

// TradeOfferState mirrors the platform's offer lifecycle.
type TradeOfferState int

const (
	TradeOfferInvalid   TradeOfferState = 1
	TradeOfferActive    TradeOfferState = 2
	TradeOfferAccepted  TradeOfferState = 3
	TradeOfferCountered TradeOfferState = 4
	TradeOfferExpired   TradeOfferState = 5
	TradeOfferCanceled  TradeOfferState = 6
	TradeOfferDeclined  TradeOfferState = 7
)

// TradeOffer is one incoming offer with its items resolved against the
// response descriptions.
type TradeOffer struct {
	ID             uint64
	OtherSteamID   uint64
	State          TradeOfferState
	ItemsToGive    []Asset
	ItemsToReceive []Asset
}

// ActiveTradeOffers fetches the incoming offers still awaiting a
// decision.
func (s *Session) ActiveTradeOffers(ctx context.Context) ([]TradeOffer, error) {
	res, err := s.GetJSON(ctx, "/econ/tradeoffers", url.Values{
		"get_descriptions": {"1"},
		"active_only":      {"1"},
	})
	if err != nil {
		return nil, err
	}

	response := res.Get("response")
	descs := descriptionIndex(response.Get("descriptions"))

	var offers []TradeOffer
	response.Get("trade_offers_received").ForEach(func(_, o gjson.Result) bool {
		offer := TradeOffer{
			ID:           o.Get("tradeofferid").Uint(),
			OtherSteamID: steamID64Base + o.Get("accountid_other").Uint(),
			State:        TradeOfferState(o.Get("trade_offer_state").Int()),
		}
		if offer.State != TradeOfferActive {
			return true
		}
		offer.ItemsToGive = offerAssets(o.Get("items_to_give"), descs)
		offer.ItemsToReceive = offerAssets(o.Get("items_to_receive"), descs)
		offers = append(offers, offer)
		return true
	})

	return offers, nil
}

func offerAssets(list gjson.Result, descs map[string]description) []Asset {
	var assets []Asset
	list.ForEach(func(_, a gjson.Result) bool {
		asset := Asset{
			AppID:      uint32(a.Get("appid").Uint()),
			ContextID:  a.Get("contextid").Uint(),
			AssetID:    a.Get("assetid").Uint(),
			ClassID:    a.Get("classid").Uint(),
			InstanceID: a.Get("instanceid").Uint(),
			Amount:     uint32(a.Get("amount").Uint()),
		}
		if asset.Amount == 0 {
			asset.Amount = 1
		}
		if d, ok := descs[descKey(asset.ClassID, asset.InstanceID)]; ok {
			asset.Tradable = d.tradable
			asset.Type = d.itemType
			asset.RealAppID = d.realAppID
		}
		assets = append(assets, asset)
		return true
	})
	return assets
}

// AcceptTradeOffer accepts an incoming offer. The returned flag reports
// whether a mobile confirmation is still required.
func (s *Session) AcceptTradeOffer(ctx context.Context, id uint64) (bool, error) {
	res, err := s.PostJSON(ctx, fmt.Sprintf("/tradeoffer/%d/accept", id), url.Values{
		"sessionid":    {s.Cookie(cookieSessionID)},
		"tradeofferid": {strconv.FormatUint(id, 10)},
		"serverid":     {"1"},
	})
	if err != nil {
		return false, err
	}
	return res.Get("needs_mobile_confirmation").Bool(), nil
}

// DeclineTradeOffer declines an incoming offer.
func (s *Session) DeclineTradeOffer(ctx context.Context, id uint64) error {
	_, err := s.PostJSON(ctx, fmt.Sprintf("/tradeoffer/%d/decline", id), url.Values{
		"sessionid": {s.Cookie(cookieSessionID)},
	})
	return err
}

type offerPayloadAsset struct {
	AppID     uint32 `json:"appid"`
	ContextID string `json:"contextid"`
	Amount    uint32 `json:"amount"`
	AssetID   string `json:"assetid"`
}

type offerPayloadSide struct {
	Assets   []offerPayloadAsset `json:"assets"`
	Currency []struct{}          `json:"currency"`
	Ready    bool                `json:"ready"`
}

type offerPayload struct {
	NewVersion bool             `json:"newversion"`
	Version    int              `json:"version"`
	Me         offerPayloadSide `json:"me"`
	Them       offerPayloadSide `json:"them"`
}

// SendTradeOffer sends a one-sided offer of the given items to partner.
// The returned flag reports whether a mobile confirmation is required.
func (s *Session) SendTradeOffer(ctx context.Context, partner uint64, token string, give []Asset) (bool, error) {
	payload := offerPayload{NewVersion: true, Version: 2}
	payload.Me.Assets = make([]offerPayloadAsset, 0, len(give))
	for _, a := range give {
		payload.Me.Assets = append(payload.Me.Assets, offerPayloadAsset{
			AppID:     a.AppID,
			ContextID: strconv.FormatUint(a.ContextID, 10),
			Amount:    a.Amount,
			AssetID:   strconv.FormatUint(a.AssetID, 10),
		})
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encoding trade offer: %w", err)
	}

	params := "{}"
	if token != "" {
		params = fmt.Sprintf(`{"trade_offer_access_token":%q}`, token)
	}

	res, err := s.PostJSON(ctx, "/tradeoffer/new/send", url.Values{
		"sessionid":                 {s.Cookie(cookieSessionID)},
		"serverid":                  {"1"},
		"partner":                   {strconv.FormatUint(partner, 10)},
		"tradeoffermessage":         {""},
		"json_tradeoffer":           {string(payloadJSON)},
		"trade_offer_create_params": {params},
	})
	if err != nil {
		return false, err
	}
	if res.Get("tradeofferid").String() == "" {
		return false, fmt.Errorf("trade offer not created")
	}
	return res.Get("needs_mobile_confirmation").Bool(), nil
}

// AcceptGift unpacks a pending gift onto this account.
func (s *Session) AcceptGift(ctx context.Context, giftID uint64) error {
	res, err := s.PostJSON(ctx, fmt.Sprintf("/gifts/%d/validateunpack", giftID), url.Values{
		"sessionid": {s.Cookie(cookieSessionID)},
	})
	if err != nil {
		return err
	}
	if !successValue(res) {
		return fmt.Errorf("gift %d not accepted", giftID)
	}
	return nil
}

// MarkInventoryRead clears the new-items notification by viewing the
// inventory page.
func (s *Session) MarkInventoryRead(ctx context.Context) error {
	return s.Head(ctx, "/my/inventory", nil)
}

// JoinGroup joins the given community group.
func (s *Session) JoinGroup(ctx context.Context, groupID uint64) error {
	_, err := s.PostJSON(ctx, fmt.Sprintf("/gid/%d", groupID), url.Values{
		"sessionid": {s.Cookie(cookieSessionID)},
		"action":    {"join"},
	})
	return err
}

// OwnedGames lists the account's library as app id to title.
func (s *Session) OwnedGames(ctx context.Context) (map[uint32]string, error) {
	res, err := s.GetJSON(ctx, fmt.Sprintf("/profiles/%d/games", s.SteamID()), url.Values{"json": {"1"}})
	if err != nil {
		return nil, err
	}

	games := make(map[uint32]string)
	res.Get("games").ForEach(func(_, g gjson.Result) bool {
		games[uint32(g.Get("appid").Uint())] = g.Get("name").String()
		return true
	})
	if len(games) == 0 && !res.Get("games").Exists() {
		return nil, fmt.Errorf("games list missing from response")
	}
	return games, nil
}

// AddFreeLicense claims a free license through the storefront, used as
// the fallback when the logon-session request fails.
func (s *Session) AddFreeLicense(ctx context.Context, appID uint32) error {
	res, err := s.PostJSON(ctx, "/checkout/addfreelicense", url.Values{
		"sessionid": {s.Cookie(cookieSessionID)},
		"appid":     {strconv.FormatUint(uint64(appID), 10)},
	})
	if err != nil {
		return err
	}
	if !successValue(res) {
		return fmt.Errorf("free license for %d not granted", appID)
	}
	return nil
}
