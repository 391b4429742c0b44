package domain

// Outbound event names.
const (
	EventJoinQueue   = "join_queue"
	EventJoinRoom    = "join_room"
	EventSendMessage = "send_message"
	EventSendImage   = "send_image"
	EventTyping      = "typing"
	EventLeaveChat   = "leave_chat"
	EventReportUser  = "report_user"
	EventBlockUser   = "block_user"
)

// Inbound event names.
const (
	EventMatchFound     = "match_found"
	EventReceiveMessage = "receive_message"
	EventPartnerTyping  = "partner_typing"
	EventPartnerLeft    = "partner_left"
	EventRoomExpired    = "room_expired"
	EventError          = "error"
)

type JoinQueue struct {
	Nickname        string          `json:"nickname"`
	Gender          string          `json:"gender"`
	MatchPreference MatchPreference `json:"matchPreference"`
	DeviceID        string          `json:"deviceId"`
	Bio             string          `json:"bio"`
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type SendMessage struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type SendImage struct {
	RoomID string `json:"roomId"`
	Image  string `json:"image"`
}

type Typing struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type LeaveChat struct {
	RoomID string `json:"roomId"`
}

type ReportUser struct {
	ReporterDeviceID string `json:"reporterDeviceId"`
	TargetDeviceID   string `json:"targetDeviceId"`
	Reason           string `json:"reason"`
}

type BlockUser struct {
	MyDeviceID     string `json:"myDeviceId"`
	TargetDeviceID string `json:"targetDeviceId"`
}

type PartnerTyping struct {
	IsTyping bool `json:"isTyping"`
}

type ServerError struct {
	Message string `json:"message"`
}
