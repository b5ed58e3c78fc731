package arena

import (
	"time"

	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/rules"
)

// KickedEvent means the player's record was removed or deactivated by
// someone else while this client was logged in.
type KickedEvent struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type PlayerUpdatedEvent struct {
	Player models.Player `json:"player"`
}

type ChallengeReceivedEvent struct {
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

// ChallengeClearedEvent means the inbound challenge slot is empty again.
type ChallengeClearedEvent struct{}

type RoomUpdatedEvent struct {
	Room models.Room `json:"room"`
}

// RoomClosedEvent is sent once the room document disappears, whether or not
// a notification explained why.
type RoomClosedEvent struct {
	RoomID string `json:"roomId"`
}

// RoundResultEvent is sent once per round, from this player's side.
type RoundResultEvent struct {
	RoomID         string       `json:"roomId"`
	Round          int          `json:"round"`
	Opponent       string       `json:"opponent"`
	Choice         rules.Choice `json:"choice"`
	OpponentChoice rules.Choice `json:"opponentChoice"`
	Result         rules.Result `json:"result"`
	Score          int          `json:"score"`
	OpponentScore  int          `json:"opponentScore"`
}

type RosterEvent struct {
	Online    []models.Player `json:"online"`
	Available []models.Player `json:"available"`
}

type WaitingListEvent struct {
	Entries []models.WaitingEntry `json:"entries"`
}

func (KickedEvent) EventName() string            { return "kicked" }
func (PlayerUpdatedEvent) EventName() string     { return "player_updated" }
func (ChallengeReceivedEvent) EventName() string { return "challenge_received" }
func (ChallengeClearedEvent) EventName() string  { return "challenge_cleared" }
func (RoomUpdatedEvent) EventName() string       { return "room_updated" }
func (RoomClosedEvent) EventName() string        { return "room_closed" }
func (RoundResultEvent) EventName() string       { return "round_result" }
func (RosterEvent) EventName() string            { return "roster" }
func (WaitingListEvent) EventName() string       { return "waiting_list" }
