package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/engine"
	"github.com/lox/blackjack/internal/errs"
	"github.com/lox/blackjack/internal/fairness"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/players"
	"github.com/lox/blackjack/internal/roundid"
	"github.com/lox/blackjack/internal/store"
	"github.com/lox/blackjack/internal/wager"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zerolog.Nop()
	rounds := store.New(store.NewMemoryDocuments(), store.NewMemoryCache(nil, 100), store.Options{LockTimeout: time.Second}, logger)
	users := players.NewDirectory(fairness.RoundValue, logger)
	for _, id := range []string{"alice", "bob"} {
		_, err := users.Register(players.User{ID: id, ClientSeed: id + "-seed"})
		require.NoError(t, err)
	}
	limits := wager.Limits{
		DemoStake: 1,
		ByType:    map[string]wager.Range{wager.Main: {Min: 10, Max: 1000}},
	}
	eng := engine.New(rounds, users, users, engine.Config{Rules: game.DefaultRules(), Limits: limits}, logger,
		engine.WithClock(quartz.NewMock(t)))
	return NewServer(eng, logger)
}

func do(t *testing.T, h http.Handler, method, path, player string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if player != "" {
		req.Header.Set(PlayerHeader, player)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) engine.View {
	t.Helper()
	var v engine.View
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errs.PublicError {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body), rec.Body.String())
	return body.Error
}

func TestHealth(t *testing.T) {
	t.Parallel()
	rec := do(t, newTestServer(t), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRoundLifecycle(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	stake := map[string]any{"wager": map[string]any{"type": "main", "amount": 25}}

	rec := do(t, srv, http.MethodPost, "/rounds", "alice", map[string]any{
		"wager": map[string]any{"type": "main", "amount": 25},
		"deal":  false,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, "pending", v.Status)

	rec = do(t, srv, http.MethodPost, "/rounds/"+v.ID+"/join", "bob", stake)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeView(t, rec).Seats, 2)

	for _, outsider := range []string{"mallory", ""} {
		rec = do(t, srv, http.MethodPost, "/rounds/"+v.ID+"/deal", outsider, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodPost, "/rounds/"+v.ID+"/deal", "mallory", nil)
	assert.Equal(t, string(errs.NotSeated), decodeError(t, rec).Key)

	rec = do(t, srv, http.MethodPost, "/rounds/"+v.ID+"/deal", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v = decodeView(t, rec)
	assert.NotEmpty(t, v.Hash)

	for range 20 {
		if v.Status != "active" {
			break
		}
		require.NotNil(t, v.Turn)
		rec = do(t, srv, http.MethodPost, "/rounds/"+v.ID+"/actions", v.Turn.PlayerID, map[string]any{
			"handIndex": v.Turn.HandIndex,
			"action":    "stand",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		v = decodeView(t, rec)
	}
	require.Equal(t, "complete", v.Status)
	assert.NotEmpty(t, v.Seed)

	rec = do(t, srv, http.MethodGet, "/rounds/"+v.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, v.Seed, decodeView(t, rec).Seed)

	rec = do(t, srv, http.MethodGet, "/rounds/"+v.ID+"/verify", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res fairness.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, v.Seed, res.ServerSeed)
	assert.Equal(t, "bob-seed", res.ClientSeed)
	assert.Len(t, res.HandResults, 1)
}

func TestStartDealsImmediately(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/rounds", "alice", map[string]any{
		"wager": map[string]any{"type": "main", "amount": 25},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.NotEqual(t, "pending", v.Status)
	assert.NotEmpty(t, v.Hash)

	if v.Status == "active" {
		assert.Empty(t, v.Seed)
		rec = do(t, srv, http.MethodGet, "/rounds/"+v.ID+"/verify", "alice", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(errs.RoundStillActive), decodeError(t, rec).Key)
	}
}

func TestRotateClientSeed(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPut, "/players/client-seed", "alice", map[string]any{"clientSeed": "lucky"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/rounds", "alice", map[string]any{
		"wager": map[string]any{"type": "main", "amount": 25},
		"deal":  false,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPut, "/players/client-seed", "alice", map[string]any{"clientSeed": "luckier"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errs.RoundInProgress), decodeError(t, rec).Key)

	rec = do(t, srv, http.MethodPut, "/players/client-seed", "bob", map[string]any{"clientSeed": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errs.BadRequest), decodeError(t, rec).Key)
}

func TestRequestErrors(t *testing.T) {
	t.Parallel()
	missing, err := roundid.New()
	require.NoError(t, err)
	stake := map[string]any{"wager": map[string]any{"type": "main", "amount": 25}}

	tests := []struct {
		name       string
		method     string
		path       string
		player     string
		body       any
		wantStatus int
		wantKey    errs.Kind
	}{
		{"missing player header", http.MethodPost, "/rounds", "", stake, http.StatusBadRequest, errs.BadRequest},
		{"empty body", http.MethodPost, "/rounds", "alice", nil, http.StatusBadRequest, errs.BadRequest},
		{"unknown field", http.MethodPost, "/rounds", "alice", map[string]any{"bet": 10}, http.StatusBadRequest, errs.BadRequest},
		{"unknown player", http.MethodPost, "/rounds", "mallory", stake, http.StatusBadRequest, errs.UnknownPlayer},
		{"wager over limit", http.MethodPost, "/rounds", "alice", map[string]any{"wager": map[string]any{"type": "main", "amount": 5000}}, http.StatusBadRequest, errs.InvalidWagerMix},
		{"invalid round id", http.MethodGet, "/rounds/nope", "", nil, http.StatusBadRequest, errs.InvalidRoundID},
		{"round not found", http.MethodGet, "/rounds/" + missing, "", nil, http.StatusNotFound, errs.RoundNotFound},
		{"unknown action", http.MethodPost, "/rounds/" + missing + "/actions", "alice", map[string]any{"handIndex": 0, "action": "surrender"}, http.StatusBadRequest, errs.UnknownAction},
		{"seed for unknown player", http.MethodPut, "/players/client-seed", "mallory", map[string]any{"clientSeed": "x"}, http.StatusBadRequest, errs.UnknownPlayer},
		{"deal is not a player action", http.MethodPost, "/rounds/" + missing + "/actions", "alice", map[string]any{"handIndex": 0, "action": "deal"}, http.StatusBadRequest, errs.UnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, newTestServer(t), tt.method, tt.path, tt.player, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, string(tt.wantKey), decodeError(t, rec).Key)
		})
	}
}

func TestErrorsAreTranslated(t *testing.T) {
	t.Parallel()
	missing, err := roundid.New()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/rounds/"+missing, nil)
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9")
	rec := httptest.NewRecorder()
	newTestServer(t).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	pub := decodeError(t, rec)
	assert.Equal(t, "No se encontró la ronda "+missing+".", pub.Message)
	assert.Equal(t, missing, pub.Args["round_id"])
}

type brokenRounds struct {
	Rounds
}

func (brokenRounds) View(context.Context, string) (*engine.View, error) {
	return nil, errors.New("connection reset")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	t.Parallel()
	srv := NewServer(brokenRounds{}, zerolog.Nop())
	rec := do(t, srv, http.MethodGet, "/rounds/anything", "", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	assert.Equal(t, errs.TryAgain, decodeError(t, rec).Key)
}
