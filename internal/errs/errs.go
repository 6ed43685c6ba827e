// Package errs defines the named failures of the round engine, the structured
// carrier that attaches round context to them, and the conversion of any
// failure into the message a caller is allowed to see.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind names a failure. Kinds are comparable sentinels: errors.Is(err, WrongTurn)
// matches any *Error of that kind.
type Kind string

func (k Kind) Error() string { return string(k) }

// Validation failures, rejected before any mutation.
const (
	BadRequest        Kind = "bad_request"
	InvalidRoundID    Kind = "invalid_round_id"
	MissingSeed       Kind = "missing_seed"
	MissingHash       Kind = "missing_hash"
	NoPlayers         Kind = "no_players"
	MissingHand       Kind = "missing_player_hand"
	NoWagers          Kind = "no_wagers"
	InvalidWagerMix   Kind = "invalid_wager_mix"
	NotSeated         Kind = "not_seated"
	UnknownPlayer     Kind = "unknown_player"
	WrongTurn         Kind = "wrong_turn"
	IllegalAction     Kind = "illegal_action"
	UnknownAction     Kind = "unknown_action"
	AlreadyInsured    Kind = "already_insured"
	InvalidCloseout   Kind = "invalid_closeout"
	RoundComplete     Kind = "round_complete"
	RoundInProgress   Kind = "round_in_progress"
	InvalidTransition Kind = "invalid_transition"
	ActionHashParse   Kind = "action_hash_parse"
	Validation        Kind = "validation_failed"
)

// Invariant breaches inside the engine.
const (
	MalformedTable Kind = "malformed_table"
	ShoeExhausted  Kind = "shoe_exhausted"
)

// Concurrency and persistence failures.
const (
	LockNotAcquired Kind = "lock_not_acquired"
	UpsertFailed    Kind = "upsert_failed"
	RoundNotFound   Kind = "round_not_found"
)

// Verification failures.
const (
	RoundStillActive   Kind = "verify_round_still_active"
	RoundIncomplete    Kind = "verify_round_incomplete"
	MissingSeats       Kind = "verify_missing_seats"
	SeatsUnresolved    Kind = "verify_seats_unresolved"
	MissingRoundValue  Kind = "verify_missing_round_value"
	RoundValueMismatch Kind = "verify_round_value_mismatch"
	HashMismatch       Kind = "verify_hash_mismatch"
	CardMismatch       Kind = "verify_card_mismatch"
)

// Error carries a Kind together with the round and logging scope it occurred in
// and the ids a caller needs to make sense of it.
type Error struct {
	Kind    Kind
	RoundID string
	Scope   string
	Args    map[string]any
	Err     error
}

// E builds an error of kind k. args is a list of alternating keys and values.
func E(k Kind, roundID, scope string, args ...any) *Error {
	e := &Error{Kind: k, RoundID: roundID, Scope: scope}
	if len(args) > 0 {
		e.Args = make(map[string]any, len(args)/2)
		for i := 0; i+1 < len(args); i += 2 {
			e.Args[fmt.Sprint(args[i])] = args[i+1]
		}
	}
	return e
}

// Wrap records cause as the underlying error.
func (e *Error) Wrap(cause error) *Error {
	e.Err = cause
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Scope != "" {
		b.WriteString(e.Scope)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	var ctx []string
	if e.RoundID != "" {
		ctx = append(ctx, "round="+e.RoundID)
	}
	keys := make([]string, 0, len(e.Args))
	for k := range e.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ctx = append(ctx, fmt.Sprintf("%s=%v", k, e.Args[k]))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Aggregate is a single validation failure made of several independent causes.
type Aggregate struct {
	RoundID string
	Scope   string
	Errs    []error
}

func (a *Aggregate) Error() string {
	parts := make([]string, len(a.Errs))
	for i, err := range a.Errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%s: %d problems: %s", Validation, len(a.Errs), strings.Join(parts, "; "))
}

// Unwrap returns the individual causes.
func (a *Aggregate) Unwrap() []error { return a.Errs }

// Is matches the Validation kind as well as any cause.
func (a *Aggregate) Is(target error) bool { return target == Validation }

// Join collects the non-nil errors of one validation pass. It returns nil when
// there are none and the error itself when there is exactly one.
func Join(roundID, scope string, errs ...error) error {
	var causes []error
	for _, err := range errs {
		if err != nil {
			causes = append(causes, err)
		}
	}
	switch len(causes) {
	case 0:
		return nil
	case 1:
		return causes[0]
	}
	return &Aggregate{RoundID: roundID, Scope: scope, Errs: causes}
}

// Causes flattens an aggregate into its individual errors.
func Causes(err error) []error {
	var agg *Aggregate
	if errors.As(err, &agg) {
		return agg.Errs
	}
	if err == nil {
		return nil
	}
	return []error{err}
}

// KindOf returns the kind of err, or "" for errors that carry none.
func KindOf(err error) Kind {
	var agg *Aggregate
	if errors.As(err, &agg) {
		return Validation
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}
