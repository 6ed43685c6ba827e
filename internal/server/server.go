// Package server exposes the round engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/lox/blackjack/internal/engine"
	"github.com/lox/blackjack/internal/errs"
	"github.com/lox/blackjack/internal/fairness"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/wager"
	"github.com/rs/zerolog"
)

// PlayerHeader carries the caller's player id
const PlayerHeader = "X-Player-ID"

const maxBodyBytes = 64 << 10

// Rounds is the engine surface the server drives
type Rounds interface {
	Open(ctx context.Context, req engine.OpenRequest) (*engine.View, error)
	Start(ctx context.Context, req engine.OpenRequest) (*engine.View, error)
	Join(ctx context.Context, req engine.JoinRequest) (*engine.View, error)
	Deal(ctx context.Context, roundID, playerID string) (*engine.View, error)
	Act(ctx context.Context, req engine.ActRequest) (*engine.View, error)
	View(ctx context.Context, roundID string) (*engine.View, error)
	Verify(ctx context.Context, roundID, playerID string) (*fairness.Result, error)
	RotateClientSeed(ctx context.Context, playerID, seed string) error
}

// Server handles HTTP requests for rounds
type Server struct {
	rounds Rounds
	logger zerolog.Logger
	mux    *http.ServeMux

	httpSrv *http.Server
}

// NewServer creates a server backed by rounds
func NewServer(rounds Rounds, logger zerolog.Logger) *Server {
	s := &Server{
		rounds: rounds,
		logger: logger.With().Str("component", "server").Logger(),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /rounds", s.handleOpen)
	s.mux.HandleFunc("POST /rounds/{id}/join", s.handleJoin)
	s.mux.HandleFunc("POST /rounds/{id}/deal", s.handleDeal)
	s.mux.HandleFunc("POST /rounds/{id}/actions", s.handleAct)
	s.mux.HandleFunc("GET /rounds/{id}", s.handleView)
	s.mux.HandleFunc("GET /rounds/{id}/verify", s.handleVerify)
	s.mux.HandleFunc("PUT /players/client-seed", s.handleClientSeed)
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Dur("duration", time.Since(start)).
		Msg("Handled request")
}

// Serve accepts connections on l until Shutdown is called
func (s *Server) Serve(l net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", l.Addr().String()).Msg("Server listening")
	return s.httpSrv.Serve(l)
}

// Start listens on addr and serves until Shutdown is called
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type openBody struct {
	Wager wager.Wager `json:"wager"`
	Deal  *bool       `json:"deal,omitempty"`
}

type wagerBody struct {
	Wager wager.Wager `json:"wager"`
}

type actBody struct {
	HandIndex int    `json:"handIndex"`
	Action    string `json:"action"`
	Accept    bool   `json:"accept"`
}

type seedBody struct {
	ClientSeed string `json:"clientSeed"`
}

type errorBody struct {
	Error errs.PublicError `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// handleOpen opens a round and deals it unless the body asks to wait for
// other players with "deal": false.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	playerID, err := requirePlayer(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body openBody
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req := engine.OpenRequest{PlayerID: playerID, Wager: body.Wager}
	open := s.rounds.Start
	if body.Deal != nil && !*body.Deal {
		open = s.rounds.Open
	}
	v, err := open(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	playerID, err := requirePlayer(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body wagerBody
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.rounds.Join(r.Context(), engine.JoinRequest{
		RoundID:  r.PathValue("id"),
		PlayerID: playerID,
		Wager:    body.Wager,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeal(w http.ResponseWriter, r *http.Request) {
	playerID, err := requirePlayer(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.rounds.Deal(r.Context(), r.PathValue("id"), playerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAct(w http.ResponseWriter, r *http.Request) {
	playerID, err := requirePlayer(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body actBody
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	roundID := r.PathValue("id")
	action, ok := game.ParseActionType(body.Action)
	if !ok || action == game.ActionDeal {
		s.writeError(w, r, errs.E(errs.UnknownAction, roundID, "server.act", "action", body.Action))
		return
	}
	v, err := s.rounds.Act(r.Context(), engine.ActRequest{
		RoundID:   roundID,
		PlayerID:  playerID,
		HandIndex: body.HandIndex,
		Action:    action,
		Accept:    body.Accept,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	v, err := s.rounds.View(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	playerID, err := requirePlayer(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.rounds.Verify(r.Context(), r.PathValue("id"), playerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleClientSeed replaces the caller's client seed for their next rounds.
func (s *Server) handleClientSeed(w http.ResponseWriter, r *http.Request) {
	playerID, err := requirePlayer(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body seedBody
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.rounds.RotateClientSeed(r.Context(), playerID, body.ClientSeed); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requirePlayer(r *http.Request) (string, error) {
	id := r.Header.Get(PlayerHeader)
	if id == "" {
		return "", errs.E(errs.BadRequest, "", "server", "reason", "missing "+PlayerHeader+" header")
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		reason := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			reason = "empty body"
		}
		return errs.E(errs.BadRequest, "", "server", "reason", reason).Wrap(err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errs.Report(s.logger, err)
	pub := errs.Public(err, r.Header.Get("Accept-Language"))
	s.writeJSON(w, pub.Status, errorBody{Error: pub})
}
