package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/services"
)

// callTimeout bounds the store and archive work of one call.
const callTimeout = 10 * time.Second

// Server manages the RPC listener. Services are registered on the server's
// own rpc.Server, not the package default.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      rpc.NewServer(),
	}, nil
}

func (s *Server) Addr() string {
	return s.address
}

// Register publishes rcvr's exported methods under its type name.
func (s *Server) Register(rcvr any) error {
	return s.rpc.Register(rcvr)
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// ArenaService exposes read-only player and arena views to operators.
// Methods follow the net/rpc signature: exported args, pointer reply, error.
type ArenaService struct {
	playerService *services.PlayerService
}

func NewArenaService(ps *services.PlayerService) *ArenaService {
	return &ArenaService{playerService: ps}
}

type GetPlayerArgs struct {
	Username string
	Limit    int
}

type GetPlayerReply struct {
	History services.PlayerHistory
}

func (as *ArenaService) GetPlayer(args *GetPlayerArgs, reply *GetPlayerReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	h, err := as.playerService.PlayerWithHistory(ctx, args.Username, args.Limit)
	if err != nil {
		return err
	}
	reply.History = *h
	return nil
}

type LeaderboardArgs struct {
	Query string
}

type LeaderboardReply struct {
	Entries []services.LeaderboardEntry
}

func (as *ArenaService) Leaderboard(args *LeaderboardArgs, reply *LeaderboardReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	entries, err := as.playerService.Leaderboard(ctx, args.Query)
	if err != nil {
		return err
	}
	reply.Entries = entries
	return nil
}

type StatsArgs struct{}

type StatsReply struct {
	Stats services.ArenaStats
}

func (as *ArenaService) Stats(args *StatsArgs, reply *StatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	stats, err := as.playerService.Stats(ctx)
	if err != nil {
		return err
	}
	reply.Stats = *stats
	return nil
}

type GetRoundArgs struct {
	RoomID string
	Round  int
}

type GetRoundReply struct {
	Round models.RoundRecord
}

func (as *ArenaService) GetRound(args *GetRoundArgs, reply *GetRoundReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	r, err := as.playerService.Round(ctx, args.RoomID, args.Round)
	if err != nil {
		return err
	}
	reply.Round = *r
	return nil
}
