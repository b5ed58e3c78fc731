package network

import (
	"encoding/json"
	"fmt"
)

// Requests from a player. Every request is answered with MsgTypeAck or
// MsgTypeError carrying the request's message ID.
const (
	MsgTypeLogin     = 1
	MsgTypeLogout    = 2
	MsgTypeHeartbeat = 3

	MsgTypeChallenge        = 101
	MsgTypeAcceptChallenge  = 102
	MsgTypeDeclineChallenge = 103

	MsgTypeChoice         = 201
	MsgTypeRematchRequest = 202
	MsgTypeRematchAccept  = 203
	MsgTypeRematchDecline = 204
	MsgTypeLeaveGame      = 205

	MsgTypeJoinWaitingList  = 301
	MsgTypeLeaveWaitingList = 302
)

// Pushes from the server.
const (
	MsgTypeAck         = 900
	MsgTypeError       = 901
	MsgTypeEvent       = 902
	MsgTypeRoster      = 903
	MsgTypeWaitingList = 904
)

type LoginRequest struct {
	Username string `json:"username"`
}

type ChallengeRequest struct {
	To string `json:"to"`
}

type ChoiceRequest struct {
	Choice string `json:"choice"`
}

type Ack struct {
	MsgID uint16 `json:"msgId"`
	Data  any    `json:"data,omitempty"`
}

type ErrorReply struct {
	MsgID   uint16 `json:"msgId"`
	Message string `json:"message"`
}

// EventPush wraps one typed client event; Type is the event name.
type EventPush struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Decode unmarshals a request body. An empty body leaves v untouched.
func Decode(p *Packet, v any) error {
	if len(p.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(p.Data, v); err != nil {
		return fmt.Errorf("decode message %d: %w", p.MsgID, err)
	}
	return nil
}
