package protocol

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateConnected SessionState = iota // socket open, awaiting hello
	StateJoined                        // welcomed, receives broadcasts
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateJoined:
		return "Joined"
	case StateClosing:
		return "Closing"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc handles one decoded message. The session is passed as an
// opaque value to avoid an import cycle with the transport. A returned
// error is reported to the sender as an error message.
type HandlerFunc func(ctx context.Context, sess any, msg Envelope) error

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps message types to handlers with state-based access control.
type Registry struct {
	handlers  map[string]*handlerEntry
	validator *Validator
	tracer    trace.Tracer
	log       *zap.Logger
}

func NewRegistry(validator *Validator, tracer trace.Tracer, log *zap.Logger) *Registry {
	return &Registry{
		handlers:  make(map[string]*handlerEntry),
		validator: validator,
		tracer:    tracer,
		log:       log,
	}
}

// Register maps a message type to a handler, restricted to the given
// session states.
func (reg *Registry) Register(typ string, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[typ] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch validates raw, checks the session state and calls the handler
// inside one span. The decoded envelope is returned even on error when it
// could be decoded, so the caller can reference its id.
func (reg *Registry) Dispatch(ctx context.Context, sess any, state SessionState, raw []byte) (Envelope, error) {
	env, err := reg.validator.Decode(raw)
	if err != nil {
		reg.log.Debug("rejected message", zap.Int("size", len(raw)), zap.Error(err))
		return env, err
	}

	ctx, span := reg.tracer.Start(ctx, "dispatch "+env.Type,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("message.type", env.Type),
			attribute.String("message.id", env.ID.String()),
			attribute.String("session.state", state.String()),
		))
	defer span.End()

	err = reg.dispatch(ctx, sess, state, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, CodeFor(err))
	}
	return env, err
}

func (reg *Registry) dispatch(ctx context.Context, sess any, state SessionState, env Envelope) error {
	reg.log.Debug("received message",
		zap.String("type", env.Type),
		zap.Int("size", len(env.Payload)),
		zap.String("state", state.String()),
	)

	entry, ok := reg.handlers[env.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("message not allowed in this state",
			zap.String("type", env.Type),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("%w: %s in %s", ErrNotAllowed, env.Type, state)
	}

	return reg.safeCall(ctx, entry.fn, sess, env)
}

// safeCall executes a handler with panic recovery so one bad message
// cannot stop the game loop.
func (reg *Registry) safeCall(ctx context.Context, fn HandlerFunc, sess any, env Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("type", env.Type),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, env.Type, rec)
		}
	}()
	return fn(ctx, sess, env)
}
