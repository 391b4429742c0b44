package domain

// MatchRoom is the server-assigned channel shared with the partner.
// It only ever lives in ephemeral storage.
type MatchRoom struct {
	RoomID  string  `json:"roomId"`
	Partner Partner `json:"partner"`
}
