package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand/v2"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/rpsarena/arena"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/network"
	"github.com/wfunc/rpsarena/notify"
	"github.com/wfunc/rpsarena/rules"
)

var choices = []rules.Choice{rules.Rock, rules.Paper, rules.Scissors}

// bot plays random choices until it has finished the requested number of
// rounds, then leaves the game.
type bot struct {
	conn     *websocket.Conn
	mutex    sync.Mutex
	name     string
	opponent string
	rounds   int
	played   int
}

// send formats and sends a message to the WebSocket server.
func (b *bot) send(msgID uint16, v any) {
	var data []byte
	if v != nil {
		var err error
		if data, err = json.Marshal(v); err != nil {
			log.Printf("Marshal error: %v", err)
			return
		}
	}
	frame, err := network.Frame(msgID, data)
	if err != nil {
		log.Printf("Frame error: %v", err)
		return
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if err := b.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		log.Printf("Write error: %v", err)
	}
}

func (b *bot) handle(p *network.Packet) {
	switch p.MsgID {
	case network.MsgTypeAck:
		var ack network.Ack
		json.Unmarshal(p.Data, &ack)
		if ack.MsgID == network.MsgTypeLogin {
			b.seek()
		}
	case network.MsgTypeError:
		var reply network.ErrorReply
		json.Unmarshal(p.Data, &reply)
		log.Printf("Request %d failed: %s", reply.MsgID, reply.Message)
	case network.MsgTypeEvent:
		var push struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(p.Data, &push); err != nil {
			log.Printf("Bad event: %v", err)
			return
		}
		b.onEvent(push.Type, push.Data)
	}
}

// seek challenges the configured opponent or queues on the waiting list.
func (b *bot) seek() {
	if b.opponent != "" {
		log.Printf("-> challenge %s", b.opponent)
		b.send(network.MsgTypeChallenge, network.ChallengeRequest{To: b.opponent})
		return
	}
	log.Println("-> join waiting list")
	b.send(network.MsgTypeJoinWaitingList, nil)
}

func (b *bot) onEvent(name string, data json.RawMessage) {
	switch name {
	case "challenge_received":
		log.Println("-> accept challenge")
		b.send(network.MsgTypeAcceptChallenge, nil)
	case "player_available":
		var ev notify.PlayerAvailableEvent
		json.Unmarshal(data, &ev)
		log.Printf("-> challenge %s", ev.Player)
		b.send(network.MsgTypeChallenge, network.ChallengeRequest{To: ev.Player})
	case "room_updated":
		var ev arena.RoomUpdatedEvent
		json.Unmarshal(data, &ev)
		if ev.Room.Status == models.RoomCompleted || ev.Room.ChoiceOf(b.name) != "" {
			return
		}
		choice := choices[rand.IntN(len(choices))]
		log.Printf("-> play %s in round %d", choice, ev.Room.Round())
		b.send(network.MsgTypeChoice, network.ChoiceRequest{Choice: string(choice)})
	case "round_result":
		var ev arena.RoundResultEvent
		json.Unmarshal(data, &ev)
		b.played++
		log.Printf("<- round %d: %s vs %s, %s (%d:%d)", ev.Round, ev.Choice, ev.OpponentChoice, ev.Result, ev.Score, ev.OpponentScore)
		switch {
		case b.played >= b.rounds:
			log.Println("-> leave game")
			b.send(network.MsgTypeLeaveGame, nil)
		case rules.IsResolver(b.name, ev.Opponent):
			b.send(network.MsgTypeRematchRequest, nil)
		}
	case "play_another_round_request":
		if b.played >= b.rounds {
			b.send(network.MsgTypeRematchDecline, nil)
			return
		}
		b.send(network.MsgTypeRematchAccept, nil)
	case "player_left_game", "play_another_round_declined":
		log.Printf("<- %s: %s", name, data)
		if b.played < b.rounds {
			b.seek()
		}
	default:
		log.Printf("<- %s: %s", name, data)
	}
}

func main() {
	addr := flag.String("addr", "localhost:8080", "gateway address")
	name := flag.String("name", "bot", "username")
	opponent := flag.String("opponent", "", "player to challenge; empty joins the waiting list")
	rounds := flag.Int("rounds", 3, "rounds to play before leaving")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	b := &bot{conn: c, name: *name, opponent: *opponent, rounds: *rounds}
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			p, err := network.Parse(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			b.handle(p)
		}
	}()

	b.send(network.MsgTypeLogin, network.LoginRequest{Username: *name})

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			b.send(network.MsgTypeHeartbeat, nil)
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			b.send(network.MsgTypeLogout, nil)
			b.mutex.Lock()
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			b.mutex.Unlock()
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
