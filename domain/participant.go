// Package domain contains core concepts of the chat client.
// This file defines the matched Partner as announced by the service.
// No runtime, network, or UI logic should be added here.
package domain

// Partner is what the service discloses about the other participant.
type Partner struct {
	Nickname string `json:"nickname"`
	DeviceID string `json:"deviceId"`
	Gender   string `json:"gender,omitempty"`
	Bio      string `json:"bio,omitempty"`
}
