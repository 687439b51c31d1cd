package models

import (
	"encoding/json"
	"fmt"
)

// ServiceList accepts either a single service name or an array of names.
type ServiceList []string

func (s *ServiceList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = ServiceList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("service must be a string or an array of strings")
	}
	*s = many
	return nil
}

// Envelope is an inbound client message. Action specific fields stay in Raw
// and are decoded by the service handling the action.
type Envelope struct {
	Service ServiceList `json:"service"`
	Action  string      `json:"action"`

	Raw json.RawMessage `json:"-"`
}

func ParseEnvelope(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, err
	}
	env.Raw = append(json.RawMessage(nil), data...)
	return env, nil
}

// Decode unmarshals the action specific fields into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Raw) == 0 {
		return nil
	}
	return json.Unmarshal(e.Raw, v)
}

// Outbound actions pushed to clients without a matching request.
const (
	ActionUpdateRoomUsers = "updateRoomUsers"
	ActionReceiveMessage  = "receiveMessage"
	ActionGetKicked       = "getKicked"
	ActionGetBanned       = "getBanned"
	ActionUserKicked      = "userKicked"
	ActionUserBanned      = "userBanned"
)

const (
	MessageTypePublic  = "public"
	MessageTypePrivate = "private"
)

// Response is the outbound envelope. Fields other than service, action,
// success and text are set by the action that produced it.
type Response struct {
	Service string `json:"service"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Text    string `json:"text"`

	RoomName   string          `json:"roomName,omitempty"`
	Pseudonym  string          `json:"pseudonym,omitempty"`
	Pseudonyms []string        `json:"pseudonyms,omitempty"`
	Recipient  string          `json:"recipient,omitempty"`
	Type       string          `json:"type,omitempty"`
	Time       string          `json:"time,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Admin      string          `json:"admin,omitempty"`
	Part       int             `json:"part,omitempty"`
	Historic   []HistoricEntry `json:"historic,omitempty"`
	Room       *RoomInfo       `json:"room,omitempty"`
	Rooms      []RoomInfo      `json:"rooms,omitempty"`
	Services   []string        `json:"services,omitempty"`
	Token      string          `json:"token,omitempty"`
	User       *User           `json:"user,omitempty"`
}

// HistoricEntry is a history message as seen by one client.
type HistoricEntry struct {
	Text      string `json:"text"`
	Time      string `json:"time"`
	Pseudonym string `json:"pseudonym"`
	Recipient string `json:"recipient,omitempty"`
	Type      string `json:"type"`
}
