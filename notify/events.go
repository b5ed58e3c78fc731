package notify

import "github.com/wfunc/rpsarena/models"

// Event is a typed message delivered to a player's front end.
type Event interface {
	EventName() string
}

type ChallengeDeclinedEvent struct {
	By      string `json:"by"`
	Message string `json:"message"`
}

type PlayerAvailableEvent struct {
	Player  string `json:"player"`
	Message string `json:"message"`
}

// PlayerLeftEvent means the opponent left; the receiver returns to the lobby.
type PlayerLeftEvent struct {
	Player  string `json:"player"`
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type RoundStartedEvent struct {
	From    string `json:"from"`
	RoomID  string `json:"roomId"`
	Round   int    `json:"round"`
	Message string `json:"message"`
}

// RematchRequestedEvent stays until the receiver accepts or declines.
type RematchRequestedEvent struct {
	From    string `json:"from"`
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type RematchAcceptedEvent struct {
	By      string `json:"by"`
	RoomID  string `json:"roomId"`
	Round   int    `json:"round"`
	Message string `json:"message"`
}

// RematchDeclinedEvent also means the room is gone.
type RematchDeclinedEvent struct {
	By      string `json:"by"`
	Message string `json:"message"`
}

// ExpiredEvent withdraws a previously shown notification of the given type.
type ExpiredEvent struct {
	Type models.NotificationType `json:"type"`
}

func (ChallengeDeclinedEvent) EventName() string { return string(models.ChallengeDeclined) }
func (PlayerAvailableEvent) EventName() string   { return string(models.PlayerAvailable) }
func (PlayerLeftEvent) EventName() string        { return string(models.PlayerLeftGame) }
func (RoundStartedEvent) EventName() string      { return string(models.RoundStarted) }
func (RematchRequestedEvent) EventName() string  { return string(models.RematchRequested) }
func (RematchAcceptedEvent) EventName() string   { return string(models.RematchAccepted) }
func (RematchDeclinedEvent) EventName() string   { return string(models.RematchDeclined) }
func (ExpiredEvent) EventName() string           { return "notification_expired" }

// EventFor maps a stored notification to its event. Unknown types yield nil.
func EventFor(n *models.Notification) Event {
	switch n.Type {
	case models.ChallengeDeclined:
		return ChallengeDeclinedEvent{By: n.From, Message: n.Message}
	case models.PlayerAvailable:
		return PlayerAvailableEvent{Player: n.AvailablePlayer, Message: n.Message}
	case models.PlayerLeftGame:
		return PlayerLeftEvent{Player: n.From, RoomID: n.RoomID, Message: n.Message}
	case models.RoundStarted:
		return RoundStartedEvent{From: n.From, RoomID: n.RoomID, Round: n.RoundNumber, Message: n.Message}
	case models.RematchRequested:
		return RematchRequestedEvent{From: n.From, RoomID: n.RoomID, Message: n.Message}
	case models.RematchAccepted:
		return RematchAcceptedEvent{By: n.From, RoomID: n.RoomID, Round: n.RoundNumber, Message: n.Message}
	case models.RematchDeclined:
		return RematchDeclinedEvent{By: n.From, Message: n.Message}
	}
	return nil
}
