package arena

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/rpsarena/challenge"
	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/notify"
	"github.com/wfunc/rpsarena/presence"
	"github.com/wfunc/rpsarena/room"
	"github.com/wfunc/rpsarena/rules"
	"github.com/wfunc/rpsarena/store"
)

var (
	ErrLoginTimeout     = errors.New("login timed out")
	ErrNotLoggedIn      = errors.New("not logged in")
	ErrAlreadyLoggedIn  = errors.New("already logged in")
	ErrNoRoom           = errors.New("not in a game")
	ErrNoRematchRequest = errors.New("no request to play another round")
)

// callbackTimeout bounds store work started from a subscription callback.
const callbackTimeout = 5 * time.Second

type roundKey struct {
	roomID string
	round  int
}

// Client is one player's session. Events are delivered through emit from
// subscription goroutines; emit must not block for long.
type Client struct {
	arena *Arena
	emit  func(notify.Event)

	mutex       sync.Mutex
	username    string
	loggedIn    bool
	leaving     bool
	unsubs      []store.Unsubscribe
	heartbeat   int64
	dispatcher  *notify.Dispatcher
	roomID      string
	roomUnsub   store.Unsubscribe
	closedRoom  string
	reported    roundKey
	sent        map[string]bool
	rematchFrom string
	rematchRoom string
}

func (a *Arena) NewClient(emit func(notify.Event)) *Client {
	if emit == nil {
		emit = func(notify.Event) {}
	}
	return &Client{arena: a, emit: emit, sent: make(map[string]bool)}
}

func (c *Client) Username() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.username
}

func (c *Client) LoggedIn() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.loggedIn
}

// RoomID is the room this client is following, as last seen on the
// player's own record.
func (c *Client) RoomID() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.roomID
}

// SentChallenges lists players this client challenged that have not
// declined yet.
func (c *Client) SentChallenges() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([]string, 0, len(c.sent))
	for name := range c.sent {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Client) self() (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.loggedIn {
		return "", ErrNotLoggedIn
	}
	return c.username, nil
}

// Login checks the store is reachable, activates the player, empties their
// inbox and starts the subscriptions and heartbeat. The store work is
// bounded by LoginTimeout.
func (c *Client) Login(ctx context.Context, username string) (*models.Player, error) {
	c.mutex.Lock()
	if c.loggedIn {
		c.mutex.Unlock()
		return nil, ErrAlreadyLoggedIn
	}
	c.mutex.Unlock()

	lctx := ctx
	if c.arena.opts.LoginTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, c.arena.opts.LoginTimeout)
		defer cancel()
	}
	p, err := c.login(lctx, username)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrLoginTimeout, err)
		}
		return nil, err
	}

	c.mutex.Lock()
	c.username = username
	c.loggedIn = true
	c.leaving = false
	c.roomID = ""
	c.closedRoom = ""
	c.reported = roundKey{}
	c.sent = make(map[string]bool)
	c.rematchFrom, c.rematchRoom = "", ""
	c.dispatcher = notify.NewDispatcher(username, c.arena.Mailbox, c.arena.Timers, c.arena.opts.Expiry, c.onNotification)
	c.mutex.Unlock()

	if err := c.subscribe(ctx, username); err != nil {
		c.stop()
		return nil, err
	}
	if iv := c.arena.opts.HeartbeatInterval; iv > 0 {
		id := c.arena.Timers.AddTimer(iv, iv, func() {
			hctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
			defer cancel()
			if err := c.Heartbeat(hctx); err != nil && !errors.Is(err, ErrNotLoggedIn) {
				logger.Log.Warnf("arena: heartbeat for %s: %v", username, err)
			}
		})
		c.mutex.Lock()
		c.heartbeat = id
		c.mutex.Unlock()
	}
	return p, nil
}

func (c *Client) login(ctx context.Context, username string) (*models.Player, error) {
	if err := store.Ping(ctx, c.arena.store); err != nil {
		return nil, fmt.Errorf("store unreachable: %w", err)
	}
	p, err := c.arena.Presence.Login(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := c.arena.Mailbox.Clear(ctx, username); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Client) subscribe(ctx context.Context, username string) error {
	a := c.arena
	watches := []func() (store.Unsubscribe, error){
		func() (store.Unsubscribe, error) { return a.Presence.WatchPlayer(ctx, username, c.onPlayer) },
		func() (store.Unsubscribe, error) { return a.Challenges.Watch(ctx, username, c.onChallenge) },
		func() (store.Unsubscribe, error) {
			return a.Mailbox.Watch(ctx, username, func(n *models.Notification) {
				c.mutex.Lock()
				d := c.dispatcher
				c.mutex.Unlock()
				if d != nil {
					d.Handle(n)
				}
			})
		},
	}
	if !a.opts.SharedFeeds {
		watches = append(watches,
			func() (store.Unsubscribe, error) { return a.Presence.WatchRoster(ctx, c.ObserveRoster) },
			func() (store.Unsubscribe, error) { return a.Waiting.Watch(ctx, c.ObserveWaitingList) },
		)
	}
	for _, watch := range watches {
		unsub, err := watch()
		if err != nil {
			return err
		}
		c.mutex.Lock()
		c.unsubs = append(c.unsubs, unsub)
		c.mutex.Unlock()
	}
	return nil
}

// stop drops every subscription and timer without touching the store.
func (c *Client) stop() {
	c.mutex.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	if c.roomUnsub != nil {
		unsubs = append(unsubs, c.roomUnsub)
		c.roomUnsub = nil
	}
	if c.heartbeat != 0 {
		c.arena.Timers.RemoveTimer(c.heartbeat)
		c.heartbeat = 0
	}
	d := c.dispatcher
	c.dispatcher = nil
	c.loggedIn = false
	c.roomID = ""
	c.mutex.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if d != nil {
		d.Stop()
	}
}

// Logout leaves any game, marks the player inactive (which also takes them
// off the waiting list) and empties their inbox.
func (c *Client) Logout(ctx context.Context) error {
	username, err := c.self()
	if err != nil {
		return err
	}
	c.mutex.Lock()
	c.leaving = true
	c.mutex.Unlock()

	var errs []error
	if err := c.arena.Rooms.LeaveArena(ctx, username); err != nil {
		errs = append(errs, err)
	}
	if err := c.arena.Presence.MarkInactive(ctx, username); err != nil {
		errs = append(errs, err)
	}
	if err := c.arena.Mailbox.Clear(ctx, username); err != nil {
		errs = append(errs, err)
	}
	c.stop()
	logger.Log.Infof("player %s logged out", username)
	return errors.Join(errs...)
}

// Close is the best-effort exit hook for a dropped connection. Delivery is
// not guaranteed; the presence threshold expires the player regardless.
func (c *Client) Close() {
	if !c.LoggedIn() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()
	if err := c.Logout(ctx); err != nil {
		logger.Log.Warnf("arena: exit hook: %v", err)
	}
}

func (c *Client) Heartbeat(ctx context.Context) error {
	username, err := c.self()
	if err != nil {
		return err
	}
	return c.arena.Presence.Heartbeat(ctx, username)
}

func (c *Client) Player(ctx context.Context) (*models.Player, error) {
	username, err := c.self()
	if err != nil {
		return nil, err
	}
	return c.arena.Presence.Player(ctx, username)
}

func (c *Client) SendChallenge(ctx context.Context, to string) error {
	username, err := c.self()
	if err != nil {
		return err
	}
	if err := c.arena.Challenges.Send(ctx, username, to); err != nil {
		return err
	}
	c.mutex.Lock()
	c.sent[to] = true
	c.mutex.Unlock()
	return nil
}

// AcceptChallenge answers the challenge currently in this player's slot and
// returns the new room id.
func (c *Client) AcceptChallenge(ctx context.Context) (string, error) {
	username, err := c.self()
	if err != nil {
		return "", err
	}
	pending, err := c.arena.Challenges.Pending(ctx, username)
	if err != nil {
		return "", err
	}
	if pending == nil {
		return "", challenge.ErrNoChallenge
	}
	return c.arena.Challenges.Accept(ctx, pending.From, username)
}

func (c *Client) DeclineChallenge(ctx context.Context) error {
	username, err := c.self()
	if err != nil {
		return err
	}
	return c.arena.Challenges.Decline(ctx, username)
}

// currentRoom reads the player's record for their room.
func (c *Client) currentRoom(ctx context.Context) (string, string, error) {
	username, err := c.self()
	if err != nil {
		return "", "", err
	}
	p, err := c.arena.Presence.Player(ctx, username)
	if err != nil {
		return "", "", err
	}
	if p == nil || p.RoomID == "" {
		return username, "", ErrNoRoom
	}
	return username, p.RoomID, nil
}

// SubmitChoice plays choice in the current round and resolves the round if
// this player is the resolver and the opponent already chose.
func (c *Client) SubmitChoice(ctx context.Context, choice rules.Choice) (*models.Room, error) {
	username, roomID, err := c.currentRoom(ctx)
	if err != nil {
		return nil, err
	}
	r, err := c.arena.Rooms.SubmitChoice(ctx, room.ChoiceRequest{RoomID: roomID, Player: username, Choice: choice})
	if err != nil {
		return nil, err
	}
	out, err := c.arena.Rooms.MaybeResolve(ctx, r, username)
	if err != nil {
		return r, err
	}
	if out != nil {
		return out.Room, nil
	}
	return r, nil
}

func (c *Client) RequestRematch(ctx context.Context) error {
	username, roomID, err := c.currentRoom(ctx)
	if err != nil {
		return err
	}
	r, err := c.arena.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	return c.arena.Rooms.RequestRematch(ctx, username, r.Opponent(username), roomID)
}

func (c *Client) takeRematch() (string, string, string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.loggedIn {
		return "", "", "", ErrNotLoggedIn
	}
	if c.rematchFrom == "" {
		return "", "", "", ErrNoRematchRequest
	}
	from, roomID := c.rematchFrom, c.rematchRoom
	c.rematchFrom, c.rematchRoom = "", ""
	return c.username, from, roomID, nil
}

func (c *Client) AcceptRematch(ctx context.Context) (*models.Room, error) {
	username, from, roomID, err := c.takeRematch()
	if err != nil {
		return nil, err
	}
	return c.arena.Rooms.AcceptRematch(ctx, from, username, roomID)
}

func (c *Client) DeclineRematch(ctx context.Context) error {
	username, from, _, err := c.takeRematch()
	if err != nil {
		return err
	}
	c.clearSent()
	return c.arena.Rooms.DeclineRematch(ctx, from, username)
}

func (c *Client) LeaveGame(ctx context.Context) error {
	username, err := c.self()
	if err != nil {
		return err
	}
	return c.arena.Rooms.LeaveGame(ctx, username)
}

func (c *Client) JoinWaitingList(ctx context.Context) error {
	username, err := c.self()
	if err != nil {
		return err
	}
	return c.arena.Waiting.Join(ctx, username)
}

func (c *Client) LeaveWaitingList(ctx context.Context) error {
	username, err := c.self()
	if err != nil {
		return err
	}
	return c.arena.Waiting.Leave(ctx, username)
}

func (c *Client) clearSent() {
	c.mutex.Lock()
	c.sent = make(map[string]bool)
	c.mutex.Unlock()
}

func (c *Client) onPlayer(p *models.Player) {
	c.mutex.Lock()
	if !c.loggedIn || c.leaving {
		c.mutex.Unlock()
		return
	}
	username := c.username
	if p == nil || !p.IsActive {
		c.mutex.Unlock()
		logger.Log.Warnf("arena: %s was logged out elsewhere", username)
		c.emit(KickedEvent{Username: username, Message: "You were logged out because your session became inactive"})
		c.stop()
		return
	}
	follow := p.RoomID != c.roomID
	c.mutex.Unlock()

	if follow {
		c.followRoom(p.RoomID)
	}
	c.emit(PlayerUpdatedEvent{Player: *p})
}

// followRoom moves the room subscription to roomID.
func (c *Client) followRoom(roomID string) {
	c.mutex.Lock()
	prev := c.roomID
	closed := prev != "" && prev != roomID && c.closedRoom != prev
	old := c.roomUnsub
	c.roomUnsub = nil
	c.roomID = roomID
	c.closedRoom = ""
	c.mutex.Unlock()

	if old != nil {
		old()
	}
	if closed {
		c.emit(RoomClosedEvent{RoomID: prev})
	}
	if roomID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()
	unsub, err := c.arena.Rooms.Watch(ctx, roomID, func(r *models.Room) {
		c.onRoom(roomID, r)
	})
	if err != nil {
		logger.Log.Errorf("arena: watch room %s: %v", roomID, err)
		return
	}

	c.mutex.Lock()
	if c.roomID != roomID || !c.loggedIn {
		c.mutex.Unlock()
		unsub()
		return
	}
	c.roomUnsub = unsub
	c.mutex.Unlock()
}

func (c *Client) onRoom(roomID string, r *models.Room) {
	c.mutex.Lock()
	if !c.loggedIn || c.roomID != roomID {
		c.mutex.Unlock()
		return
	}
	username := c.username
	if r == nil {
		already := c.closedRoom == roomID
		c.closedRoom = roomID
		if c.rematchRoom == roomID {
			c.rematchFrom, c.rematchRoom = "", ""
		}
		c.mutex.Unlock()
		if !already {
			c.emit(RoomClosedEvent{RoomID: roomID})
		}
		return
	}
	var result *RoundResultEvent
	key := roundKey{roomID, r.Round()}
	if r.Resolved() && c.reported != key {
		c.reported = key
		result = resultFor(r, username)
	}
	c.mutex.Unlock()

	c.emit(RoomUpdatedEvent{Room: *r})
	if result != nil {
		c.emit(*result)
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()
	if _, err := c.arena.Rooms.MaybeResolve(ctx, r, username); err != nil {
		logger.Log.Warnf("arena: resolve room %s as %s: %v", roomID, username, err)
	}
}

func resultFor(r *models.Room, username string) *RoundResultEvent {
	side := r.Side(username)
	if side < 0 || r.GameData == nil {
		return nil
	}
	other := 1 - side
	gd := r.GameData
	return &RoundResultEvent{
		RoomID:         r.ID,
		Round:          r.Round(),
		Opponent:       r.Players[other],
		Choice:         gd.Sides[side].Choice,
		OpponentChoice: gd.Sides[other].Choice,
		Result:         gd.Sides[side].Result,
		Score:          gd.Sides[side].Score,
		OpponentScore:  gd.Sides[other].Score,
	}
}

func (c *Client) onChallenge(ch *models.Challenge) {
	if !c.LoggedIn() {
		return
	}
	if ch == nil {
		c.emit(ChallengeClearedEvent{})
		return
	}
	c.emit(ChallengeReceivedEvent{From: ch.From, Timestamp: ch.Timestamp})
}

// onNotification applies local side effects before passing the event on.
func (c *Client) onNotification(e notify.Event) {
	c.mutex.Lock()
	switch ev := e.(type) {
	case notify.ChallengeDeclinedEvent:
		delete(c.sent, ev.By)
	case notify.RematchRequestedEvent:
		c.rematchFrom, c.rematchRoom = ev.From, ev.RoomID
	case notify.RematchDeclinedEvent:
		c.sent = make(map[string]bool)
		c.rematchFrom, c.rematchRoom = "", ""
	case notify.PlayerLeftEvent:
		c.rematchFrom, c.rematchRoom = "", ""
	}
	c.mutex.Unlock()
	c.emit(e)
}

// ObserveRoster prunes sent challenges to players who went offline and
// emits the online and available lists.
func (c *Client) ObserveRoster(roster map[string]models.Player) {
	c.mutex.Lock()
	if !c.loggedIn {
		c.mutex.Unlock()
		return
	}
	username := c.username
	now := c.arena.clock.Now()
	threshold := c.arena.opts.InactiveThreshold
	for name := range c.sent {
		p, ok := roster[name]
		if !ok || !presence.IsOnline(&p, now, threshold) {
			delete(c.sent, name)
		}
	}
	c.mutex.Unlock()

	c.emit(RosterEvent{
		Online:    c.arena.Presence.Online(roster),
		Available: c.arena.Presence.Available(roster, username),
	})
}

func (c *Client) ObserveWaitingList(entries []models.WaitingEntry) {
	if !c.LoggedIn() {
		return
	}
	c.emit(WaitingListEvent{Entries: entries})
}
