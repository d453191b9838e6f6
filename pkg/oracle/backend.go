package oracle

import (
	"context"

	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/pkg/errors"
)

// ErrUnavailable marks a backend that could not be invoked or did not answer
// within the tier's timeout. The pipeline treats it as "handler unavailable"
// and moves to the next tier without consuming a fix attempt.
var ErrUnavailable = errors.New("diagnostic backend unavailable")

// Request is one diagnosis request to a backend.
type Request struct {
	Tier   errctx.Tier
	Prompt string
}

// Response is the raw backend answer plus any usage accounting the backend
// can provide.
type Response struct {
	Text  string
	Usage *errctx.Usage
}

// Backend produces raw model text for a diagnosis request. Implementations
// wrap ErrUnavailable for timeouts and invocation failures so the oracle can
// distinguish "unavailable" from "diagnosed and declined".
type Backend interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}
