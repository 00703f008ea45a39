package web

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/domain"
	"github.com/akralex/smc-futures-bot/internal/usecase"
)

// Server exposes the JSON control and status API for the bots.
type Server struct {
	router     *http.ServeMux
	server     *http.Server
	botService *usecase.BotService
	bots       domain.BotRepository
	trades     domain.TradeRepository
	signals    domain.SignalRepository
	gateway    domain.ExchangeGateway
	logger     *zap.Logger
}

func NewServer(
	port int,
	botService *usecase.BotService,
	bots domain.BotRepository,
	trades domain.TradeRepository,
	signals domain.SignalRepository,
	gateway domain.ExchangeGateway,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:     http.NewServeMux(),
		botService: botService,
		bots:       bots,
		trades:     trades,
		signals:    signals,
		gateway:    gateway,
		logger:     logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /status", s.handleStatus)

	s.router.HandleFunc("GET /api/bots", s.handleListBots)
	s.router.HandleFunc("POST /api/bots/{symbol}/start", s.handleStartBot)
	s.router.HandleFunc("POST /api/bots/{symbol}/stop", s.handleStopBot)

	s.router.HandleFunc("GET /api/trades", s.handleListTrades)
	s.router.HandleFunc("GET /api/signals", s.handleListSignals)

	s.router.HandleFunc("GET /api/positions", s.handleListPositions)
	s.router.HandleFunc("POST /api/positions/{symbol}/close", s.handleClosePosition)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
