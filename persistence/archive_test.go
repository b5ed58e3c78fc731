package persistence

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/rules"
)

func round(roomID string, n int, a, b string, at time.Time) *models.RoundRecord {
	r := rules.Decide(rules.Rock, rules.Scissors)
	return &models.RoundRecord{
		RoomID:      roomID,
		RoundNumber: n,
		Players:     [2]string{a, b},
		Choices:     [2]rules.Choice{rules.Rock, rules.Scissors},
		Results:     [2]rules.Result{r, r.Complement()},
		ResolvedAt:  at,
	}
}

// testArchive runs the behaviour every Archive shares.
func testArchive(t *testing.T, a Archive) {
	ctx := context.Background()
	roomID := "room_" + uuid.NewString()
	alice := "alice_" + uuid.NewString()[:8]
	bob := "bob_" + uuid.NewString()[:8]
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		if err := a.SaveRound(ctx, round(roomID, i, alice, bob, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveRound %d failed: %v", i, err)
		}
	}
	// archiving the same round twice keeps the first copy
	dup := round(roomID, 1, alice, bob, base.Add(time.Hour))
	if err := a.SaveRound(ctx, dup); err != nil {
		t.Fatalf("Duplicate SaveRound failed: %v", err)
	}

	got, err := a.RecentRounds(ctx, bob, 2)
	if err != nil {
		t.Fatalf("RecentRounds failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 rounds, got %d", len(got))
	}
	if got[0].RoundNumber != 3 || got[1].RoundNumber != 2 {
		t.Errorf("Expected newest first, got %d then %d", got[0].RoundNumber, got[1].RoundNumber)
	}
	if got[0].Results != [2]rules.Result{rules.Win, rules.Lose} {
		t.Errorf("Unexpected results %v", got[0].Results)
	}

	first, err := a.Round(ctx, roomID, 1)
	if err != nil {
		t.Fatalf("Round failed: %v", err)
	}
	if !first.ResolvedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("Duplicate save must not overwrite, got %v", first.ResolvedAt)
	}
	if _, err := a.Round(ctx, roomID, 9); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}

	none, err := a.RecentRounds(ctx, "nobody_"+uuid.NewString()[:8], 0)
	if err != nil || len(none) != 0 {
		t.Errorf("Expected no rounds, got %v %v", none, err)
	}
}

func TestMemoryArchive(t *testing.T) {
	testArchive(t, NewMemoryArchive())
}

func TestDSN(t *testing.T) {
	got := DSN("db", 5433, "rps", "secret", "arena")
	want := "host=db port=5433 user=rps password=secret dbname=arena sslmode=disable"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestClampLimit(t *testing.T) {
	if clampLimit(0) != defaultLimit || clampLimit(-3) != defaultLimit || clampLimit(5) != 5 {
		t.Errorf("Unexpected clamp")
	}
}

// postgresParams reads RPS_TEST_POSTGRES_HOST and friends, skipping when unset.
func postgresParams(t *testing.T) (string, int, string, string, string) {
	host := os.Getenv("RPS_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("RPS_TEST_POSTGRES_HOST not set")
	}
	port, err := strconv.Atoi(os.Getenv("RPS_TEST_POSTGRES_PORT"))
	if err != nil {
		port = 5432
	}
	return host, port, os.Getenv("RPS_TEST_POSTGRES_USER"), os.Getenv("RPS_TEST_POSTGRES_PASSWORD"), os.Getenv("RPS_TEST_POSTGRES_DB")
}

func TestGormArchive(t *testing.T) {
	a, err := NewGormArchive(postgresParams(t))
	if err != nil {
		t.Fatalf("NewGormArchive failed: %v", err)
	}
	defer a.Close()
	testArchive(t, a)
}

func TestSQLArchive(t *testing.T) {
	a, err := NewSQLArchive(postgresParams(t))
	if err != nil {
		t.Fatalf("NewSQLArchive failed: %v", err)
	}
	defer a.Close()
	testArchive(t, a)
}
