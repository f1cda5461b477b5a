package platform

// LogOnDetails carries everything a logon attempt may need. Zero fields
// are omitted from the wire body.
type LogOnDetails struct {
	Username       string `json:"account_name"`
	Password       string `json:"password,omitempty"`
	LoginKey       string `json:"login_key,omitempty"`
	AuthCode       string `json:"auth_code,omitempty"`        // emailed guard code
	TwoFactorCode  string `json:"two_factor_code,omitempty"`  // authenticator token
	SentryHash     []byte `json:"sha_sentryfile,omitempty"`
	CellID         uint32 `json:"cell_id,omitempty"`
	ShouldRemember bool   `json:"should_remember_password,omitempty"`
}

type loggedOnBody struct {
	Result      Result `json:"eresult"`
	SteamID     uint64 `json:"steam_id"`
	CellID      uint32 `json:"cell_id"`
	WebAPINonce string `json:"webapi_nonce"`
}

type loggedOffBody struct {
	Result Result `json:"eresult"`
}

type loginKeyBody struct {
	UniqueID uint64 `json:"unique_id"`
	LoginKey string `json:"login_key"`
}

type acceptLoginKeyBody struct {
	UniqueID uint64 `json:"unique_id"`
}

type machineAuthBody struct {
	FileName string `json:"filename"`
	Offset   int64  `json:"offset"`
	Data     []byte `json:"bytes"`
}

// MachineAuthResponse acknowledges a sentry update with the resulting
// whole-file state. LastError and OneTimePassword stay zero on the
// write-a-chunk path; the platform still expects them on the wire.
type MachineAuthResponse struct {
	JobID           uint64 `json:"-"`
	Result          Result `json:"eresult"`
	FileName        string `json:"filename"`
	FileSize        int64  `json:"filesize"`
	FileHash        []byte `json:"sha_file"`
	Offset          int64  `json:"offset"`
	BytesWritten    int    `json:"cubwrote"`
	LastError       uint32 `json:"getlasterror"`
	OneTimePassword uint32 `json:"otp_value"`
}

type playGamesBody struct {
	AppIDs   []uint32 `json:"app_ids,omitempty"`
	GameName string   `json:"game_extra_info,omitempty"`
}

type personaStateBody struct {
	State PersonaState `json:"persona_state"`
}

type redeemKeyBody struct {
	Key string `json:"key"`
}

type purchaseResponseBody struct {
	Result Result            `json:"eresult"`
	Detail PurchaseResult    `json:"purchase_result_details"`
	Items  map[uint32]string `json:"line_items,omitempty"`
}

// Purchase is the outcome of a key activation.
type Purchase struct {
	Result Result
	Detail PurchaseResult
	Items  map[uint32]string // app id to display name
}

type freeLicenseBody struct {
	AppIDs []uint32 `json:"app_ids"`
}

type freeLicenseResponseBody struct {
	Result          Result   `json:"eresult"`
	GrantedApps     []uint32 `json:"granted_apps,omitempty"`
	GrantedPackages []uint32 `json:"granted_packages,omitempty"`
}

// FreeLicenseResult reports what a free-license request granted.
type FreeLicenseResult struct {
	Result          Result
	GrantedApps     []uint32
	GrantedPackages []uint32
}

type webAPINonceResponseBody struct {
	Result Result `json:"eresult"`
	Nonce  string `json:"webapi_nonce"`
}

type notificationCount struct {
	Type  NotificationType `json:"type"`
	Count uint32           `json:"count"`
}

type notificationsBody struct {
	Notifications []notificationCount `json:"notifications"`
}

type playingSessionBody struct {
	Blocked bool   `json:"playing_blocked"`
	AppID   uint32 `json:"playing_app,omitempty"`
}

type friendMessageBody struct {
	SteamID uint64 `json:"steam_id"`
	Message string `json:"message"`
	Offline bool   `json:"offline,omitempty"`
}

type chatMessageBody struct {
	ChatID  uint64 `json:"chat_id"`
	SteamID uint64 `json:"steam_id"`
	Message string `json:"message"`
}

type joinChatBody struct {
	ChatID uint64 `json:"chat_id"`
}

type friendRequestBody struct {
	SteamID uint64 `json:"steam_id"`
	Clan    bool   `json:"clan,omitempty"`
}

type steamIDBody struct {
	SteamID uint64 `json:"steam_id"`
}

type clanInviteResponseBody struct {
	ClanID uint64 `json:"clan_id"`
	Accept bool   `json:"accept"`
}

type guestPass struct {
	GiftID uint64 `json:"gid"`
}

type guestPassListBody struct {
	GuestPasses []guestPass `json:"guest_passes"`
}
