// models/models.go
package models

import (
	"time"

	"github.com/wfunc/rpsarena/rules"
)

// Player is stored at players/{username}. Stats only ever grow.
type Player struct {
	Username string    `json:"username"`
	Wins     int       `json:"wins"`
	Losses   int       `json:"losses"`
	Draws    int       `json:"draws"`
	IsActive bool      `json:"isActive"`
	RoomID   string    `json:"roomId,omitempty"`
	LastSeen time.Time `json:"lastSeen"`
}

func NewPlayer(username string, now time.Time) *Player {
	return &Player{
		Username: username,
		IsActive: true,
		LastSeen: now,
	}
}

// Record adds one round outcome to the cumulative stats.
func (p *Player) Record(r rules.Result) {
	switch r {
	case rules.Win:
		p.Wins++
	case rules.Lose:
		p.Losses++
	case rules.Draw:
		p.Draws++
	}
}

func (p *Player) GamesPlayed() int {
	return p.Wins + p.Losses + p.Draws
}

// WinRate is the rounded win percentage, 0 for a player with no games.
func (p *Player) WinRate() int {
	games := p.GamesPlayed()
	if games == 0 {
		return 0
	}
	return (p.Wins*100 + games/2) / games
}

const StatusPending = "pending"

// Challenge is stored at challenges/{to}. Its existence means pending.
type Challenge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

type RoomStatus string

const (
	RoomWaiting   RoomStatus = "waiting"
	RoomPlaying   RoomStatus = "playing"
	RoomCompleted RoomStatus = "completed"
)

// SideState is one player's slot in the current round, indexed by the
// player's position in Room.Players.
type SideState struct {
	Choice rules.Choice `json:"choice,omitempty"`
	Result rules.Result `json:"result,omitempty"`
	Score  int          `json:"score"`
}

type GameData struct {
	Sides       [2]SideState `json:"sides"`
	RoundNumber int          `json:"roundNumber"`
	LastUpdated time.Time    `json:"lastUpdated"`
}

type Room struct {
	ID        string     `json:"id"`
	Players   [2]string  `json:"players"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	GameData  *GameData  `json:"gameData"`
}

func NewRoom(id, p1, p2 string, now time.Time) *Room {
	return &Room{
		ID:        id,
		Players:   [2]string{p1, p2},
		Status:    RoomWaiting,
		CreatedAt: now,
	}
}

// Side returns the slot index of username, or -1.
func (r *Room) Side(username string) int {
	for i, p := range r.Players {
		if p == username {
			return i
		}
	}
	return -1
}

func (r *Room) Has(username string) bool {
	return r.Side(username) >= 0
}

// Opponent returns the other player, or "" when username is not seated.
func (r *Room) Opponent(username string) string {
	switch r.Side(username) {
	case 0:
		return r.Players[1]
	case 1:
		return r.Players[0]
	}
	return ""
}

// Round is the current round number; a room without game data is on round 1.
func (r *Room) Round() int {
	if r.GameData == nil || r.GameData.RoundNumber == 0 {
		return 1
	}
	return r.GameData.RoundNumber
}

// Data returns the game data, creating it for the first round if needed.
func (r *Room) Data() *GameData {
	if r.GameData == nil {
		r.GameData = &GameData{RoundNumber: 1}
	}
	return r.GameData
}

func (r *Room) ChoiceOf(username string) rules.Choice {
	side := r.Side(username)
	if side < 0 || r.GameData == nil {
		return ""
	}
	return r.GameData.Sides[side].Choice
}

func (r *Room) BothChosen() bool {
	return r.GameData != nil &&
		r.GameData.Sides[0].Choice != "" &&
		r.GameData.Sides[1].Choice != ""
}

// Resolved reports whether any result of the current round is already set.
func (r *Room) Resolved() bool {
	return r.GameData != nil &&
		(r.GameData.Sides[0].Result != "" || r.GameData.Sides[1].Result != "")
}

// ResetRound clears choices and results and moves to the next round,
// keeping cumulative scores.
func (r *Room) ResetRound(now time.Time) {
	gd := r.Data()
	for i := range gd.Sides {
		gd.Sides[i].Choice = ""
		gd.Sides[i].Result = ""
	}
	gd.RoundNumber = r.Round() + 1
	gd.LastUpdated = now
	r.Status = RoomWaiting
}

type NotificationType string

const (
	ChallengeDeclined NotificationType = "challenge_declined"
	PlayerAvailable   NotificationType = "player_available"
	PlayerLeftGame    NotificationType = "player_left_game"
	RoundStarted      NotificationType = "round_started"
	RematchRequested  NotificationType = "play_another_round_request"
	RematchAccepted   NotificationType = "play_another_round_accepted"
	RematchDeclined   NotificationType = "play_another_round_declined"
)

// SystemSender is the From of notifications produced by the matchmaker.
const SystemSender = "system"

// Notification is stored at notifications/{to}. A newer one replaces it.
type Notification struct {
	Type            NotificationType `json:"type"`
	From            string           `json:"from"`
	To              string           `json:"to"`
	Message         string           `json:"message"`
	Timestamp       time.Time        `json:"timestamp"`
	RoomID          string           `json:"roomId,omitempty"`
	RoundNumber     int              `json:"roundNumber,omitempty"`
	AvailablePlayer string           `json:"availablePlayer,omitempty"`
}

const StatusWaiting = "waiting"

type WaitingEntry struct {
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
	Status   string    `json:"status"`
}

// RoundRecord is one resolved round, kept by the optional archive.
type RoundRecord struct {
	RoomID      string          `json:"roomId"`
	RoundNumber int             `json:"roundNumber"`
	Players     [2]string       `json:"players"`
	Choices     [2]rules.Choice `json:"choices"`
	Results     [2]rules.Result `json:"results"`
	ResolvedAt  time.Time       `json:"resolvedAt"`
}

// Involves reports whether username played in the round.
func (r *RoundRecord) Involves(username string) bool {
	return r.Players[0] == username || r.Players[1] == username
}
