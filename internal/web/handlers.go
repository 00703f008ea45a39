package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/akralex/smc-futures-bot/internal/domain"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.botService.Statuses(r.Context())
	if err != nil {
		s.logger.Error("Failed to collect statuses", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"bots":   statuses,
	})
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.bots.ListBots(r.Context())
	if err != nil {
		s.logger.Error("Failed to list bots", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bots)
}

func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if err := s.botService.StartBot(r.Context(), symbol); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started", "symbol": symbol})
}

func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if err := s.botService.StopBot(r.Context(), symbol); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "symbol": symbol})
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades.ListTrades(r.Context(), r.URL.Query().Get("bot_id"), queryLimit(r))
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if trades == nil {
		trades = []*domain.Trade{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := s.signals.ListSignals(r.Context(), r.URL.Query().Get("bot_id"), queryLimit(r))
	if err != nil {
		s.logger.Error("Failed to list signals", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if signals == nil {
		signals = []*domain.Signal{}
	}
	s.writeJSON(w, http.StatusOK, signals)
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	bots, err := s.bots.ListBots(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	positions := []domain.Position{}
	for _, bot := range bots {
		got, err := s.gateway.GetOpenPositions(r.Context(), bot.Symbol)
		if err != nil {
			s.logger.Warn("Failed to fetch positions",
				zap.String("symbol", bot.Symbol), zap.Error(err))
			continue
		}
		positions = append(positions, got...)
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	err := s.botService.ClosePosition(r.Context(), symbol)
	if errors.Is(err, domain.ErrNoPosition) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.logger.Error("Failed to close position",
			zap.String("symbol", symbol), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "closed", "symbol": symbol})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 100
	}
	return limit
}
