package errs

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// TryAgain is the message key every internal failure collapses to.
const TryAgain = "try_again"

// internal kinds are never shown verbatim to a caller.
var internal = map[Kind]bool{
	UpsertFailed:    true,
	LockNotAcquired: true,
	MalformedTable:  true,
	ShoeExhausted:   true,
}

var notFound = map[Kind]bool{
	RoundNotFound: true,
}

// PublicError is what a caller outside the engine gets to see.
type PublicError struct {
	Status  int            `json:"-"`
	Key     string         `json:"key"`
	Message string         `json:"message"`
	Args    map[string]any `json:"args,omitempty"`
	Causes  []PublicError  `json:"causes,omitempty"`
}

// Public converts err into a translated, caller-safe error. Validation and
// verification kinds keep their key and arguments, not-found kinds map to 404
// and everything else becomes a generic 500.
func Public(err error, lang string) PublicError {
	var agg *Aggregate
	if errors.As(err, &agg) {
		pub := PublicError{Status: http.StatusBadRequest, Key: string(Validation)}
		for _, cause := range agg.Errs {
			c := Public(cause, lang)
			if c.Status >= http.StatusInternalServerError {
				return c
			}
			pub.Causes = append(pub.Causes, c)
		}
		pub.Message = Translate(lang, pub.Key, nil)
		return pub
	}

	kind := KindOf(err)
	switch {
	case kind == "" || internal[kind]:
		return PublicError{
			Status:  http.StatusInternalServerError,
			Key:     TryAgain,
			Message: Translate(lang, TryAgain, nil),
		}
	case notFound[kind]:
		args := argsOf(err)
		return PublicError{
			Status:  http.StatusNotFound,
			Key:     string(kind),
			Message: Translate(lang, string(kind), args),
			Args:    args,
		}
	default:
		args := argsOf(err)
		return PublicError{
			Status:  http.StatusBadRequest,
			Key:     string(kind),
			Message: Translate(lang, string(kind), args),
			Args:    args,
		}
	}
}

func argsOf(err error) map[string]any {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	args := make(map[string]any, len(e.Args)+1)
	for k, v := range e.Args {
		args[k] = v
	}
	if e.RoundID != "" {
		args["round_id"] = e.RoundID
	}
	return args
}

// Report logs err once with its structured context. Internal kinds log at
// error level, caller mistakes at debug.
func Report(logger zerolog.Logger, err error) {
	if err == nil {
		return
	}
	kind := KindOf(err)
	ev := logger.Debug()
	if kind == "" || internal[kind] {
		ev = logger.Error()
	}
	ev = ev.Err(err).Str("kind", string(kind))

	var e *Error
	if errors.As(err, &e) {
		if e.RoundID != "" {
			ev = ev.Str("round_id", e.RoundID)
		}
		if e.Scope != "" {
			ev = ev.Str("scope", e.Scope)
		}
		if len(e.Args) > 0 {
			ev = ev.Fields(e.Args)
		}
	}
	var agg *Aggregate
	if errors.As(err, &agg) {
		ev = ev.Str("round_id", agg.RoundID).Str("scope", agg.Scope).Int("causes", len(agg.Errs))
	}
	ev.Msg("request failed")
}
