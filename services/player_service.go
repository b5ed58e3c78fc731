// services/player_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wfunc/rpsarena/matchmaker"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/monitor"
	"github.com/wfunc/rpsarena/persistence"
	"github.com/wfunc/rpsarena/presence"
)

var ErrPlayerNotFound = errors.New("player not found")

const LeaderboardSize = 10

type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	Username   string `json:"username"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
	TotalGames int    `json:"totalGames"`
	WinRate    int    `json:"winRate"`
}

type ArenaStats struct {
	OnlinePlayers   int `json:"onlinePlayers"`
	AvailableToPlay int `json:"availableToPlay"`
	ActiveGames     int `json:"activeGames"`
	WaitingPlayers  int `json:"waitingPlayers"`
}

type PlayerHistory struct {
	Player *models.Player       `json:"player"`
	Online bool                 `json:"online"`
	Rounds []models.RoundRecord `json:"rounds"`
}

// PlayerService builds the read-only lobby views from the store and the
// optional round archive.
type PlayerService struct {
	presence *presence.Tracker
	waiting  *matchmaker.WaitingList
	archive  persistence.Archive
	monitor  *monitor.Monitor
}

func NewPlayerService(p *presence.Tracker, w *matchmaker.WaitingList, a persistence.Archive, m *monitor.Monitor) *PlayerService {
	return &PlayerService{presence: p, waiting: w, archive: a, monitor: m}
}

// Leaderboard ranks every player with at least one game. query filters the
// top entries by username, ignoring case.
func (s *PlayerService) Leaderboard(ctx context.Context, query string) ([]LeaderboardEntry, error) {
	roster, err := s.presence.Roster(ctx)
	if err != nil {
		return nil, err
	}
	return Search(Rank(roster), query), nil
}

// Stats counts the arena. Active games are online players in a room, halved.
func (s *PlayerService) Stats(ctx context.Context) (*ArenaStats, error) {
	roster, err := s.presence.Roster(ctx)
	if err != nil {
		return nil, err
	}
	waiting, err := s.waiting.List(ctx)
	if err != nil {
		return nil, err
	}
	stats := Summarize(s.presence.Online(roster), len(waiting))
	s.monitor.SetOnlinePlayers(stats.OnlinePlayers)
	return stats, nil
}

// PlayerWithHistory returns the player record and their most recent rounds.
func (s *PlayerService) PlayerWithHistory(ctx context.Context, username string, limit int) (*PlayerHistory, error) {
	p, err := s.presence.Player(ctx, username)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, username)
	}
	h := &PlayerHistory{Player: p, Online: s.presence.IsOnline(p)}
	if s.archive != nil {
		h.Rounds, err = s.archive.RecentRounds(ctx, username, limit)
		if err != nil {
			return nil, fmt.Errorf("load history for %s: %w", username, err)
		}
	}
	return h, nil
}

// Round looks up one archived round.
func (s *PlayerService) Round(ctx context.Context, roomID string, number int) (*models.RoundRecord, error) {
	if s.archive == nil {
		return nil, persistence.ErrRecordNotFound
	}
	return s.archive.Round(ctx, roomID, number)
}

// Rank orders players by win rate, then wins, and keeps the top entries.
func Rank(roster map[string]models.Player) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(roster))
	for name, p := range roster {
		if p.GamesPlayed() == 0 {
			continue
		}
		if p.Username == "" {
			p.Username = name
		}
		out = append(out, LeaderboardEntry{
			Username:   p.Username,
			Wins:       p.Wins,
			Losses:     p.Losses,
			Draws:      p.Draws,
			TotalGames: p.GamesPlayed(),
			WinRate:    p.WinRate(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WinRate != out[j].WinRate {
			return out[i].WinRate > out[j].WinRate
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].Username < out[j].Username
	})
	if len(out) > LeaderboardSize {
		out = out[:LeaderboardSize]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func Search(entries []LeaderboardEntry, query string) []LeaderboardEntry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Username), query) {
			out = append(out, e)
		}
	}
	return out
}

// SearchPlayers filters players by username, ignoring case.
func SearchPlayers(players []models.Player, query string) []models.Player {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return players
	}
	out := players[:0:0]
	for _, p := range players {
		if strings.Contains(strings.ToLower(p.Username), query) {
			out = append(out, p)
		}
	}
	return out
}

func Summarize(online []models.Player, waiting int) *ArenaStats {
	stats := &ArenaStats{OnlinePlayers: len(online), WaitingPlayers: waiting}
	inRoom := 0
	for _, p := range online {
		if p.RoomID == "" {
			stats.AvailableToPlay++
		} else {
			inRoom++
		}
	}
	stats.ActiveGames = inRoom / 2
	return stats
}

