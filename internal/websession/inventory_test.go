package websession

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const inventoryFixture = `{
  "success": 1,
  "assets": [
    {"appid": 753, "contextid": "6", "assetid": "100", "classid": "10", "instanceid": "0", "amount": "1"},
    {"appid": 753, "contextid": "6", "assetid": "101", "classid": "11", "instanceid": "0", "amount": "1"},
    {"appid": 753, "contextid": "6", "assetid": "102", "classid": "12", "instanceid": "0", "amount": "2"},
    {"appid": 753, "contextid": "6", "assetid": "103", "classid": "13", "instanceid": "0", "amount": "1"}
  ],
  "descriptions": [
    {"classid": "10", "instanceid": "0", "tradable": 1, "market_fee_app": 440,
     "tags": [{"category": "item_class", "internal_name": "item_class_2"},
              {"category": "cardborder", "internal_name": "cardborder_0"}]},
    {"classid": "11", "instanceid": "0", "tradable": 1, "market_fee_app": 440,
     "tags": [{"category": "item_class", "internal_name": "item_class_2"},
              {"category": "cardborder", "internal_name": "cardborder_1"}]},
    {"classid": "12", "instanceid": "0", "tradable": 1, "market_fee_app": 570,
     "tags": [{"category": "steamTradingType", "internal_name": "BoosterPack"}]},
    {"classid": "13", "instanceid": "0", "tradable": 0, "market_fee_app": 0,
     "tags": [{"category": "item_class", "internal_name": "item_class_4"}]}
  ]
}`

func initializedSession(t *testing.T, mux *http.ServeMux) *Session {
	t.Helper()
	var calls atomic.Int32
	mux.HandleFunc("/auth/init", authInitHandler(t, &calls, testToken(t, time.Hour)))
	s := newTestSession(t, mux, nil)
	require.NoError(t, s.Init(context.Background(), 76561198000000001, "nonce-1", ""))
	return s
}

func TestMyInventoryClassifiesItems(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/inventory/76561198000000001/753/6", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, inventoryFixture)
	})
	s := initializedSession(t, mux)

	assets, err := s.MyInventory(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, assets, 4)

	assert.Equal(t, ItemTradingCard, assets[0].Type)
	assert.Equal(t, uint32(440), assets[0].RealAppID)
	assert.True(t, assets[0].Tradable)

	assert.Equal(t, ItemFoilTradingCard, assets[1].Type)
	assert.Equal(t, ItemBoosterPack, assets[2].Type)
	assert.Equal(t, uint32(2), assets[2].Amount)

	assert.Equal(t, ItemEmoticon, assets[3].Type)
	assert.False(t, assets[3].Tradable)
}

func TestMyInventoryTradableOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/inventory/76561198000000001/753/6", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, inventoryFixture)
	})
	s := initializedSession(t, mux)

	assets, err := s.MyInventory(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, assets, 3)
	for _, a := range assets {
		assert.True(t, a.Tradable)
	}
}

func TestItemTypeFromTags(t *testing.T) {
	tests := []struct {
		name string
		tags string
		want ItemType
	}{
		{"trading_type_card", `[{"category":"steamTradingType","internal_name":"TradingCard"}]`, ItemTradingCard},
		{"trading_type_card_foil_border", `[{"category":"steamTradingType","internal_name":"TradingCard"},{"category":"cardborder","internal_name":"cardborder_1"}]`, ItemFoilTradingCard},
		{"trading_type_foil", `[{"category":"steamTradingType","internal_name":"FoilTradingCard"}]`, ItemFoilTradingCard},
		{"trading_type_emoticon", `[{"category":"steamTradingType","internal_name":"Emoticon"}]`, ItemEmoticon},
		{"item_class_fallback", `[{"category":"item_class","internal_name":"item_class_3"}]`, ItemProfileBackground},
		{"no_tags", `[]`, ItemUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, itemTypeFromTags(gjson.Parse(tt.tags)))
		})
	}
}

func TestLootableTypes(t *testing.T) {
	assert.True(t, ItemTradingCard.Lootable())
	assert.True(t, ItemFoilTradingCard.Lootable())
	assert.True(t, ItemBoosterPack.Lootable())
	assert.False(t, ItemEmoticon.Lootable())
	assert.False(t, ItemProfileBackground.Lootable())
	assert.False(t, ItemUnknown.Lootable())
}

const tradeOffersFixture = `{
  "response": {
    "trade_offers_received": [
      {"tradeofferid": "5001", "accountid_other": 1000, "trade_offer_state": 2,
       "items_to_give": [],
       "items_to_receive": [
         {"appid": 753, "contextid": "6", "assetid": "200", "classid": "10", "instanceid": "0", "amount": "1"}
       ]},
      {"tradeofferid": "5002", "accountid_other": 2000, "trade_offer_state": 3,
       "items_to_give": [], "items_to_receive": []}
    ],
    "descriptions": [
      {"classid": "10", "instanceid": "0", "tradable": 1, "market_fee_app": 440,
       "tags": [{"category": "item_class", "internal_name": "item_class_2"}]}
    ]
  }
}`

func TestActiveTradeOffersFiltersAndResolves(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/econ/tradeoffers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tradeOffersFixture)
	})
	s := initializedSession(t, mux)

	offers, err := s.ActiveTradeOffers(context.Background())
	require.NoError(t, err)
	require.Len(t, offers, 1)

	offer := offers[0]
	assert.Equal(t, uint64(5001), offer.ID)
	assert.Equal(t, steamID64Base+1000, offer.OtherSteamID)
	assert.Empty(t, offer.ItemsToGive)
	require.Len(t, offer.ItemsToReceive, 1)
	assert.Equal(t, ItemTradingCard, offer.ItemsToReceive[0].Type)
	assert.Equal(t, uint32(440), offer.ItemsToReceive[0].RealAppID)
}

func TestAcceptTradeOffer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tradeoffer/5001/accept", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5001", r.FormValue("tradeofferid"))
		assert.NotEmpty(t, r.FormValue("sessionid"))
		fmt.Fprint(w, `{"tradeid": "900", "needs_mobile_confirmation": true}`)
	})
	s := initializedSession(t, mux)

	needsConfirmation, err := s.AcceptTradeOffer(context.Background(), 5001)
	require.NoError(t, err)
	assert.True(t, needsConfirmation)
}

func TestSendTradeOfferPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tradeoffer/new/send", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "76561198000000999", r.FormValue("partner"))
		assert.JSONEq(t, `{"trade_offer_access_token":"tok123"}`, r.FormValue("trade_offer_create_params"))

		var payload struct {
			NewVersion bool `json:"newversion"`
			Me         struct {
				Assets []struct {
					AppID   uint32 `json:"appid"`
					AssetID string `json:"assetid"`
					Amount  uint32 `json:"amount"`
				} `json:"assets"`
			} `json:"me"`
		}
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("json_tradeoffer")), &payload))
		assert.True(t, payload.NewVersion)
		require.Len(t, payload.Me.Assets, 2)
		assert.Equal(t, "100", payload.Me.Assets[0].AssetID)

		fmt.Fprint(w, `{"tradeofferid": "7001", "needs_mobile_confirmation": true}`)
	})
	s := initializedSession(t, mux)

	give := []Asset{
		{AppID: 753, ContextID: 6, AssetID: 100, Amount: 1},
		{AppID: 753, ContextID: 6, AssetID: 101, Amount: 1},
	}
	needsConfirmation, err := s.SendTradeOffer(context.Background(), 76561198000000999, "tok123", give)
	require.NoError(t, err)
	assert.True(t, needsConfirmation)
}

func TestOwnedGames(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/profiles/76561198000000001/games", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"games": [{"appid": 440, "name": "Team Fortress 2"}, {"appid": 730, "name": "Counter-Strike 2"}]}`)
	})
	s := initializedSession(t, mux)

	games, err := s.OwnedGames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[uint32]string{440: "Team Fortress 2", 730: "Counter-Strike 2"}, games)
}

func TestAcceptGiftAndFreeLicense(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gifts/31337/validateunpack", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.FormValue("sessionid"))
		fmt.Fprint(w, `{"success": 1}`)
	})
	mux.HandleFunc("/checkout/addfreelicense", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "730", r.FormValue("appid"))
		fmt.Fprint(w, `{"success": true}`)
	})
	s := initializedSession(t, mux)

	assert.NoError(t, s.AcceptGift(context.Background(), 31337))
	assert.NoError(t, s.AddFreeLicense(context.Background(), 730))
}
