package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/rpsarena/arena"
	"github.com/wfunc/rpsarena/broadcast"
	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/monitor"
	"github.com/wfunc/rpsarena/network"
	"github.com/wfunc/rpsarena/rules"
	"github.com/wfunc/rpsarena/session"
)

var ErrUnknownMessage = errors.New("unknown message type")

// requestTimeout bounds the store work of one request.
const requestTimeout = 10 * time.Second

// GameServer is the websocket gateway. Each connection gets a session with
// its own arena client; roster and waiting list snapshots come from one
// shared broadcaster.
type GameServer struct {
	addr           string
	readTimeout    time.Duration
	upgrader       websocket.Upgrader
	arena          *arena.Arena
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	monitor        *monitor.Monitor
	httpServer     *http.Server
	mutex          sync.Mutex
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

// NewGameServer expects an arena built with SharedFeeds. readTimeout drops a
// connection that sends nothing for twice its value; 0 disables it.
func NewGameServer(addr string, a *arena.Arena, m *monitor.Monitor, readTimeout time.Duration) *GameServer {
	s := &GameServer{
		addr:           addr,
		readTimeout:    readTimeout,
		arena:          a,
		sessionManager: session.NewManager(),
		monitor:        m,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.broadcaster = broadcast.NewFeedBroadcaster(a, s.sessionManager)
	return s
}

func (s *GameServer) Sessions() *session.Manager {
	return s.sessionManager
}

func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start subscribes the shared feeds and serves until Shutdown.
func (s *GameServer) Start(ctx context.Context) error {
	if err := s.broadcaster.Start(ctx); err != nil {
		return fmt.Errorf("start broadcaster: %w", err)
	}

	s.mutex.Lock()
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	srv := s.httpServer
	s.mutex.Unlock()

	logger.Log.Infof("Game server listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and runs the exit hook of every
// logged-in session.
func (s *GameServer) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
	s.broadcaster.Stop()

	s.mutex.Lock()
	srv := s.httpServer
	s.mutex.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, sess := range s.sessionManager.All() {
		if sess.Client != nil {
			sess.Client.Close()
		}
		sess.Close()
	}
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	if s.readTimeout > 0 {
		wsConn.SetHeartbeat(s.readTimeout)
	}
	sess := session.NewSession(uuid.New().String(), wsConn)
	sess.Client = s.arena.NewClient(sess.Push)
	s.sessionManager.Add(sess)

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		sess.Client.Close()
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

// handlePacket answers every request with an ack or an error frame.
func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.monitor.IncMessagesReceived()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	data, err := s.dispatch(ctx, sess, packet)
	s.monitor.ObserveMessageLatency(time.Since(start))

	if err != nil {
		logger.Log.Debugf("session %s: message %d: %v", sess.GetID(), packet.MsgID, err)
		err = sess.SendJSON(network.MsgTypeError, network.ErrorReply{MsgID: packet.MsgID, Message: err.Error()})
	} else {
		err = sess.SendJSON(network.MsgTypeAck, network.Ack{MsgID: packet.MsgID, Data: data})
	}
	if err != nil {
		logger.Log.Warnf("session %s: reply to %d: %v", sess.GetID(), packet.MsgID, err)
	}
}

func (s *GameServer) dispatch(ctx context.Context, sess *session.Session, packet *network.Packet) (any, error) {
	c := sess.Client
	switch packet.MsgID {
	case network.MsgTypeLogin:
		var req network.LoginRequest
		if err := network.Decode(packet, &req); err != nil {
			return nil, err
		}
		p, err := c.Login(ctx, req.Username)
		if err != nil {
			return nil, err
		}
		s.broadcaster.Prime(c)
		return p, nil
	case network.MsgTypeLogout:
		return nil, c.Logout(ctx)
	case network.MsgTypeHeartbeat:
		return nil, c.Heartbeat(ctx)

	case network.MsgTypeChallenge:
		var req network.ChallengeRequest
		if err := network.Decode(packet, &req); err != nil {
			return nil, err
		}
		return nil, c.SendChallenge(ctx, req.To)
	case network.MsgTypeAcceptChallenge:
		roomID, err := c.AcceptChallenge(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"roomId": roomID}, nil
	case network.MsgTypeDeclineChallenge:
		return nil, c.DeclineChallenge(ctx)

	case network.MsgTypeChoice:
		var req network.ChoiceRequest
		if err := network.Decode(packet, &req); err != nil {
			return nil, err
		}
		choice, err := rules.ParseChoice(req.Choice)
		if err != nil {
			return nil, err
		}
		return c.SubmitChoice(ctx, choice)
	case network.MsgTypeRematchRequest:
		return nil, c.RequestRematch(ctx)
	case network.MsgTypeRematchAccept:
		return c.AcceptRematch(ctx)
	case network.MsgTypeRematchDecline:
		return nil, c.DeclineRematch(ctx)
	case network.MsgTypeLeaveGame:
		return nil, c.LeaveGame(ctx)

	case network.MsgTypeJoinWaitingList:
		return nil, c.JoinWaitingList(ctx)
	case network.MsgTypeLeaveWaitingList:
		return nil, c.LeaveWaitingList(ctx)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, packet.MsgID)
}
