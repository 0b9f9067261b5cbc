// Package dialer bridges two call legs into a conference room on the switch,
// watches for both legs to arrive and plays synthesized speech into the room.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dense-identity/confdialer/internal/asteriskcli"
	"github.com/dense-identity/confdialer/internal/callstore"
	"github.com/dense-identity/confdialer/internal/helpers"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultListLimit = 10

// CallRequest asks for a new bridged call.
type CallRequest struct {
	CallerID      string
	Destination   string
	AgentEndpoint string
	Trunk         string

	// Audio: a pre-rendered file id, or a message to synthesize.
	Message     string
	Voice       string
	AudioFileID string
}

// Deps are the collaborators an Engine drives. Store and Switch are
// required; CLI and Assets may be nil.
type Deps struct {
	Store  callstore.Store
	Switch Connector
	CLI    asteriskcli.Runner
	Assets AssetResolver
	Logger *zap.Logger
}

// Engine orchestrates calls. Every operation opens its own manager session;
// background work (origination and per-call monitors) is bound to the
// engine's lifetime and stopped by Close.
type Engine struct {
	opts   Options
	store  callstore.Store
	sw     Connector
	cli    asteriskcli.Runner
	assets AssetResolver
	events *Hub
	log    *zap.Logger

	newRoom func() (string, error)

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	monitors map[string]context.CancelFunc

	teardowns singleflight.Group
}

func New(opts Options, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("dialer: store is required")
	}
	if deps.Switch == nil {
		return nil, fmt.Errorf("dialer: switch connector is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancelCause(context.Background())
	e := &Engine{
		opts:     opts,
		store:    deps.Store,
		sw:       deps.Switch,
		cli:      deps.CLI,
		assets:   deps.Assets,
		events:   NewHub(),
		log:      logger.Named("dialer"),
		ctx:      ctx,
		cancel:   cancel,
		monitors: make(map[string]context.CancelFunc),
	}
	e.newRoom = func() (string, error) { return helpers.RandomDigits(opts.RoomDigits) }
	return e, nil
}

// Events exposes record updates as they are written.
func (e *Engine) Events() *Hub {
	return e.events
}

// PlaceCall resolves the call audio, records the call as initiated and starts
// origination in the background. The returned record is the initiated one.
func (e *Engine) PlaceCall(ctx context.Context, req CallRequest) (*callstore.CallRecord, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	req.Destination = strings.TrimSpace(req.Destination)
	req.AgentEndpoint = strings.TrimSpace(req.AgentEndpoint)
	req.Trunk = strings.TrimSpace(req.Trunk)
	switch {
	case req.Destination == "":
		return nil, fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	case req.AgentEndpoint == "":
		return nil, fmt.Errorf("%w: agent endpoint is required", ErrInvalidRequest)
	case req.Trunk == "":
		return nil, fmt.Errorf("%w: trunk is required", ErrInvalidRequest)
	}
	if e.assets == nil {
		return nil, fmt.Errorf("dialer: no audio resolver configured")
	}

	asset, err := e.assets.Resolve(ctx, req.AudioFileID, req.Message, req.Voice)
	if err != nil {
		return nil, fmt.Errorf("resolve audio: %w", err)
	}

	now := time.Now().UTC()
	rec := &callstore.CallRecord{
		ID:             uuid.NewString(),
		Status:         callstore.StatusInitiated,
		CallerID:       strings.TrimSpace(req.CallerID),
		Destination:    req.Destination,
		OriginEndpoint: req.AgentEndpoint,
		TrunkEndpoint:  req.Trunk,
		AudioAssetRef:  asset.Ref,
		AudioFileID:    asset.FileID,
		Message:        req.Message,
		Voice:          req.Voice,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("store call: %w", err)
	}
	e.events.Publish(rec)
	e.log.Info("Call initiated",
		zap.String("call_id", rec.ID),
		zap.String("agent", rec.OriginEndpoint),
		zap.String("destination", rec.Destination),
		zap.String("trunk", rec.TrunkEndpoint))

	started := e.spawn(func(ctx context.Context) {
		if _, err := e.OriginateCallLegs(ctx, rec.ID); err != nil {
			e.log.Warn("Origination failed", zap.String("call_id", rec.ID), zap.Error(err))
		}
	})
	if !started {
		_, _ = e.failCall(ctx, rec.ID, "", ErrClosed)
		return nil, ErrClosed
	}
	return rec.Clone(), nil
}

func (e *Engine) GetCall(ctx context.Context, id string) (*callstore.CallRecord, error) {
	return e.store.Get(ctx, id)
}

// ListCalls returns recent calls, newest first.
func (e *Engine) ListCalls(ctx context.Context, limit int) ([]*callstore.CallRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return e.store.ListRecent(ctx, limit)
}

// Close stops background origination and every monitor, and waits for them
// to return. The store is left open.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cancel(ErrClosed)
	e.mu.Unlock()

	e.wg.Wait()
	e.log.Info("Dialer stopped")
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// spawn runs fn in a goroutine tracked by Close.
func (e *Engine) spawn(fn func(ctx context.Context)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
	return true
}

// update writes through the store and publishes the result.
func (e *Engine) update(ctx context.Context, id string, fn func(*callstore.CallRecord) error) (*callstore.CallRecord, error) {
	rec, err := e.store.Update(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	e.events.Publish(rec)
	return rec, nil
}

// failCall moves a call to failed, stops its monitor and frees its room. It
// returns the cause so callers can `return e.failCall(...)`.
func (e *Engine) failCall(ctx context.Context, id, room string, cause error) (*callstore.CallRecord, error) {
	ctx = context.WithoutCancel(ctx)
	e.stopMonitor(id)

	rec, err := e.update(ctx, id, func(r *callstore.CallRecord) error {
		return r.Fail(cause.Error(), time.Now().UTC())
	})
	if err != nil && !errors.Is(err, callstore.ErrInvalidTransition) {
		e.log.Error("Could not record call failure", zap.String("call_id", id), zap.Error(err))
	}
	if room != "" {
		e.releaseRoom(ctx, room, id)
	}
	e.log.Warn("Call failed", zap.String("call_id", id), zap.Error(cause))
	return rec, cause
}
