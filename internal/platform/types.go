// Package platform implements the session link to the platform network:
// a websocket connection carrying varint-tagged frames, request/response
// jobs, and the event stream each bot consumes.
package platform

import "fmt"

// MsgType identifies a frame on the session link.
type MsgType uint32

const (
	MsgInvalid MsgType = iota
	MsgLogOn
	MsgLogOff
	MsgLoggedOn
	MsgLoggedOff
	MsgLoginKey
	MsgAcceptLoginKey
	MsgMachineAuth
	MsgMachineAuthResponse
	MsgPlayGames
	MsgPersonaState
	MsgRedeemKey
	MsgPurchaseResponse
	MsgFreeLicense
	MsgFreeLicenseResponse
	MsgWebAPINonce
	MsgWebAPINonceResponse
	MsgOfflineMessages
	MsgNotifications
	MsgPlayingSession
	MsgFriendMessage
	MsgChatMessage
	MsgJoinChat
	MsgLeaveChat
	MsgFriendRequest
	MsgAddFriend
	MsgRemoveFriend
	MsgClanInviteResponse
	MsgGuestPassList
)

func (t MsgType) String() string {
	switch t {
	case MsgLogOn:
		return "LogOn"
	case MsgLogOff:
		return "LogOff"
	case MsgLoggedOn:
		return "LoggedOn"
	case MsgLoggedOff:
		return "LoggedOff"
	case MsgLoginKey:
		return "LoginKey"
	case MsgAcceptLoginKey:
		return "AcceptLoginKey"
	case MsgMachineAuth:
		return "MachineAuth"
	case MsgMachineAuthResponse:
		return "MachineAuthResponse"
	case MsgPlayGames:
		return "PlayGames"
	case MsgPersonaState:
		return "PersonaState"
	case MsgRedeemKey:
		return "RedeemKey"
	case MsgPurchaseResponse:
		return "PurchaseResponse"
	case MsgFreeLicense:
		return "FreeLicense"
	case MsgFreeLicenseResponse:
		return "FreeLicenseResponse"
	case MsgWebAPINonce:
		return "WebAPINonce"
	case MsgWebAPINonceResponse:
		return "WebAPINonceResponse"
	case MsgOfflineMessages:
		return "OfflineMessages"
	case MsgNotifications:
		return "Notifications"
	case MsgPlayingSession:
		return "PlayingSession"
	case MsgFriendMessage:
		return "FriendMessage"
	case MsgChatMessage:
		return "ChatMessage"
	case MsgJoinChat:
		return "JoinChat"
	case MsgLeaveChat:
		return "LeaveChat"
	case MsgFriendRequest:
		return "FriendRequest"
	case MsgAddFriend:
		return "AddFriend"
	case MsgRemoveFriend:
		return "RemoveFriend"
	case MsgClanInviteResponse:
		return "ClanInviteResponse"
	case MsgGuestPassList:
		return "GuestPassList"
	default:
		return fmt.Sprintf("MsgType(%d)", uint32(t))
	}
}

// Result is the platform's generic operation result code.
type Result uint32

const (
	ResultInvalid               Result = 0
	ResultOK                    Result = 1
	ResultFail                  Result = 2
	ResultNoConnection          Result = 3
	ResultInvalidPassword       Result = 5
	ResultLoggedInElsewhere     Result = 6
	ResultBusy                  Result = 10
	ResultTimeout               Result = 16
	ResultServiceUnavailable    Result = 20
	ResultTryAnotherCM          Result = 48
	ResultAccountLogonDenied    Result = 63
	ResultInvalidLoginAuthCode  Result = 65
	ResultExpiredLoginAuthCode  Result = 71
	ResultRateLimitExceeded     Result = 84
	ResultNeedTwoFactorCode     Result = 85
	ResultTwoFactorCodeMismatch Result = 88
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultFail:
		return "Fail"
	case ResultNoConnection:
		return "NoConnection"
	case ResultInvalidPassword:
		return "InvalidPassword"
	case ResultLoggedInElsewhere:
		return "LoggedInElsewhere"
	case ResultBusy:
		return "Busy"
	case ResultTimeout:
		return "Timeout"
	case ResultServiceUnavailable:
		return "ServiceUnavailable"
	case ResultTryAnotherCM:
		return "TryAnotherCM"
	case ResultAccountLogonDenied:
		return "AccountLogonDenied"
	case ResultInvalidLoginAuthCode:
		return "InvalidLoginAuthCode"
	case ResultExpiredLoginAuthCode:
		return "ExpiredLoginAuthCode"
	case ResultRateLimitExceeded:
		return "RateLimitExceeded"
	case ResultNeedTwoFactorCode:
		return "NeedTwoFactorCode"
	case ResultTwoFactorCodeMismatch:
		return "TwoFactorCodeMismatch"
	default:
		return fmt.Sprintf("Result(%d)", uint32(r))
	}
}

// PurchaseResult details the outcome of a key activation.
type PurchaseResult uint32

const (
	PurchaseOK               PurchaseResult = 0
	PurchaseAVSFailure       PurchaseResult = 1
	PurchaseContactSupport   PurchaseResult = 3
	PurchaseTimeout          PurchaseResult = 4
	PurchaseInvalidPackage   PurchaseResult = 5
	PurchaseAlreadyOwned     PurchaseResult = 9
	PurchaseRegionLocked     PurchaseResult = 13
	PurchaseInvalidKey       PurchaseResult = 14
	PurchaseDuplicatedKey    PurchaseResult = 15
	PurchaseBaseGameRequired PurchaseResult = 24
	PurchaseOnCooldown       PurchaseResult = 53
)

func (r PurchaseResult) String() string {
	switch r {
	case PurchaseOK:
		return "OK"
	case PurchaseAVSFailure:
		return "AVSFailure"
	case PurchaseContactSupport:
		return "ContactSupport"
	case PurchaseTimeout:
		return "Timeout"
	case PurchaseInvalidPackage:
		return "InvalidPackage"
	case PurchaseAlreadyOwned:
		return "AlreadyOwned"
	case PurchaseRegionLocked:
		return "RegionLocked"
	case PurchaseInvalidKey:
		return "InvalidKey"
	case PurchaseDuplicatedKey:
		return "DuplicatedKey"
	case PurchaseBaseGameRequired:
		return "BaseGameRequired"
	case PurchaseOnCooldown:
		return "OnCooldown"
	default:
		return fmt.Sprintf("PurchaseResult(%d)", uint32(r))
	}
}

// NotificationType classifies the counters in a notifications push.
type NotificationType uint32

const (
	NotificationUnknown NotificationType = iota
	NotificationTrading                  // pending incoming trade offers
	NotificationItems                    // new inventory items
)

// PersonaState is the visible presence of the account.
type PersonaState uint32

const (
	PersonaOffline PersonaState = 0
	PersonaOnline  PersonaState = 1
)
