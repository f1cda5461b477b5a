package websession

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Community inventory coordinates.
const (
	CommunityAppID     = 753
	CommunityContextID = 6
)

// ItemType classifies a community inventory item.
type ItemType int

const (
	ItemUnknown ItemType = iota
	ItemTradingCard
	ItemFoilTradingCard
	ItemBoosterPack
	ItemEmoticon
	ItemProfileBackground
)

// Lootable reports whether loot offers include this item kind.
func (t ItemType) Lootable() bool {
	switch t {
	case ItemTradingCard, ItemFoilTradingCard, ItemBoosterPack:
		return true
	default:
		return false
	}
}

// Asset is one inventory item or one item of a trade offer.
type Asset struct {
	AppID      uint32
	ContextID  uint64
	AssetID    uint64
	ClassID    uint64
	InstanceID uint64
	Amount     uint32
	Tradable   bool
	Type       ItemType
	RealAppID  uint32 // the game whose card set the item belongs to
}

// MyInventory fetches the account's community inventory. With
// tradableOnly set, untradable items are dropped.
func (s *Session) MyInventory(ctx context.Context, tradableOnly bool) ([]Asset, error) {
	path := fmt.Sprintf("/inventory/%d/%d/%d", s.SteamID(), CommunityAppID, CommunityContextID)
	res, err := s.GetJSON(ctx, path, url.Values{
		"l":     {"english"},
		"count": {"5000"},
	})
	if err != nil {
		return nil, err
	}
	if !successValue(res) {
		return nil, fmt.Errorf("inventory fetch unsuccessful")
	}

	descs := descriptionIndex(res.Get("descriptions"))

	var assets []Asset
	res.Get("assets").ForEach(func(_, a gjson.Result) bool {
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
		if tradableOnly && !asset.Tradable {
			return true
		}
		assets = append(assets, asset)
		return true
	})

	return assets, nil
}

type description struct {
	tradable  bool
	itemType  ItemType
	realAppID uint32
}

func descKey(classID, instanceID uint64) string {
	return strconv.FormatUint(classID, 10) + "_" + strconv.FormatUint(instanceID, 10)
}

func descriptionIndex(list gjson.Result) map[string]description {
	index := make(map[string]description)
	list.ForEach(func(_, d gjson.Result) bool {
		key := descKey(d.Get("classid").Uint(), d.Get("instanceid").Uint())
		index[key] = description{
			tradable:  d.Get("tradable").Int() == 1,
			itemType:  itemTypeFromTags(d.Get("tags")),
			realAppID: uint32(d.Get("market_fee_app").Uint()),
		}
		return true
	})
	return index
}

// Item kind follows the steamTradingType tag when the description
// carries one; older payloads only have item_class plus cardborder.
func itemTypeFromTags(tags gjson.Result) ItemType {
	var tradingType, class string
	var foil bool
	tags.ForEach(func(_, tag gjson.Result) bool {
		switch tag.Get("category").String() {
		case "steamTradingType":
			tradingType = strings.ToLower(tag.Get("internal_name").String())
		case "item_class":
			class = tag.Get("internal_name").String()
		case "cardborder":
			foil = tag.Get("internal_name").String() == "cardborder_1"
		}
		return true
	})

	switch tradingType {
	case "tradingcard":
		if foil {
			return ItemFoilTradingCard
		}
		return ItemTradingCard
	case "foiltradingcard":
		return ItemFoilTradingCard
	case "boosterpack":
		return ItemBoosterPack
	case "emoticon":
		return ItemEmoticon
	case "profilebackground":
		return ItemProfileBackground
	}

	switch class {
	case "item_class_2":
		if foil {
			return ItemFoilTradingCard
		}
		return ItemTradingCard
	case "item_class_3":
		return ItemProfileBackground
	case "item_class_4":
		return ItemEmoticon
	case "item_class_5":
		return ItemBoosterPack
	default:
		return ItemUnknown
	}
}
