package dto

type RoomResponse struct {
	ID         string `json:"id"`
	Access     string `json:"access"`
	Group      string `json:"group,omitempty"`
	Accessible bool   `json:"accessible"`
	Online     int    `json:"online"`
}
