package rpc

import (
	"context"
	"net/rpc"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/matchmaker"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/persistence"
	"github.com/wfunc/rpsarena/presence"
	"github.com/wfunc/rpsarena/rules"
	"github.com/wfunc/rpsarena/services"
	"github.com/wfunc/rpsarena/store"
)

type MockNotifier struct{}

func (m *MockNotifier) Send(ctx context.Context, n *models.Notification) error { return nil }

func startServer(t *testing.T) (*rpc.Client, *store.MemoryStore, clockwork.Clock, *persistence.MemoryArchive) {
	t.Helper()
	s := store.NewMemoryStore()
	clock := clockwork.NewFakeClock()
	archive := persistence.NewMemoryArchive()
	ps := services.NewPlayerService(
		presence.NewTracker(s, clock, 2*time.Minute),
		matchmaker.NewWaitingList(s, clock, &MockNotifier{}),
		archive,
		nil,
	)

	srv, err := NewServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := srv.Register(NewArenaService(ps)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	go srv.Start()

	client, err := rpc.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
		s.Close()
	})
	return client, s, clock, archive
}

func TestArenaService(t *testing.T) {
	ctx := context.Background()
	client, s, clock, archive := startServer(t)
	now := clock.Now()

	store.Put(ctx, s, store.PlayerPath("alice"), &models.Player{Username: "alice", Wins: 2, Losses: 1, IsActive: true, LastSeen: now})
	store.Put(ctx, s, store.PlayerPath("bob"), &models.Player{Username: "bob", Wins: 1, Losses: 2, IsActive: true, LastSeen: now})
	archive.SaveRound(ctx, &models.RoundRecord{
		RoomID:      "room_1",
		RoundNumber: 1,
		Players:     [2]string{"alice", "bob"},
		Choices:     [2]rules.Choice{rules.Rock, rules.Scissors},
		Results:     [2]rules.Result{rules.Win, rules.Lose},
		ResolvedAt:  now,
	})

	var stats StatsReply
	if err := client.Call("ArenaService.Stats", &StatsArgs{}, &stats); err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Stats.OnlinePlayers != 2 || stats.Stats.AvailableToPlay != 2 {
		t.Errorf("Unexpected stats %+v", stats.Stats)
	}

	var board LeaderboardReply
	if err := client.Call("ArenaService.Leaderboard", &LeaderboardArgs{}, &board); err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(board.Entries) != 2 || board.Entries[0].Username != "alice" || board.Entries[0].Rank != 1 {
		t.Errorf("Unexpected leaderboard %+v", board.Entries)
	}

	var player GetPlayerReply
	if err := client.Call("ArenaService.GetPlayer", &GetPlayerArgs{Username: "bob", Limit: 5}, &player); err != nil {
		t.Fatalf("GetPlayer failed: %v", err)
	}
	if player.History.Player == nil || player.History.Player.Losses != 2 || len(player.History.Rounds) != 1 {
		t.Errorf("Unexpected history %+v", player.History)
	}

	var round GetRoundReply
	if err := client.Call("ArenaService.GetRound", &GetRoundArgs{RoomID: "room_1", Round: 1}, &round); err != nil {
		t.Fatalf("GetRound failed: %v", err)
	}
	if round.Round.Results[1] != rules.Lose {
		t.Errorf("Unexpected round %+v", round.Round)
	}

	err := client.Call("ArenaService.GetPlayer", &GetPlayerArgs{Username: "nobody"}, &player)
	if err == nil || !strings.Contains(err.Error(), services.ErrPlayerNotFound.Error()) {
		t.Errorf("Expected player not found, got %v", err)
	}
}
