package dialer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dense-identity/confdialer/internal/ami"
	"github.com/dense-identity/confdialer/internal/callstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OriginateCallLegs reserves a conference room, dials the agent leg and then
// the destination leg into it, moves the call to dialing and starts its
// connection monitor. Any failure marks the call failed and no monitor is
// started.
func (e *Engine) OriginateCallLegs(ctx context.Context, callID string) (*callstore.CallRecord, error) {
	rec, err := e.store.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if rec.Status != callstore.StatusInitiated {
		return rec, &InvalidStateError{CallID: callID, Status: rec.Status, Op: "originate"}
	}
	log := e.log.With(zap.String("call_id", callID))

	room, err := e.reserveRoom(ctx, callID)
	if err != nil {
		return e.failCall(ctx, callID, "", err)
	}
	if _, err := e.update(ctx, callID, func(r *callstore.CallRecord) error {
		return r.AssignRoom(room)
	}); err != nil {
		return e.failCall(ctx, callID, room, err)
	}
	log.Debug("Conference room assigned", zap.String("room", room))

	agentID, customerID, err := e.originateLegs(ctx, rec, room)
	if err != nil {
		return e.failCall(ctx, callID, room, err)
	}

	updated, err := e.update(ctx, callID, func(r *callstore.CallRecord) error {
		r.AgentActionID = agentID
		r.CustomerActionID = customerID
		return r.Transition(callstore.StatusDialing, time.Now().UTC())
	})
	if err != nil {
		return e.failCall(ctx, callID, room, err)
	}

	log.Info("Call legs originated",
		zap.String("room", room),
		zap.String("agent_action_id", agentID),
		zap.String("customer_action_id", customerID))
	e.startMonitor(updated)
	return updated, nil
}

// originateLegs holds one manager session for both legs.
func (e *Engine) originateLegs(ctx context.Context, rec *callstore.CallRecord, room string) (string, string, error) {
	agent := e.agentChannel(rec.OriginEndpoint)
	dest := e.destinationChannel(rec.TrunkEndpoint, rec.Destination)

	sess, err := e.sw.Connect(ctx)
	if err != nil {
		return "", "", &OriginationError{CallID: rec.ID, Leg: "agent", Channel: agent, Err: err}
	}
	defer sess.Close()

	agentID, err := e.originate(ctx, sess, rec, agent, room)
	if err != nil {
		return "", "", &OriginationError{CallID: rec.ID, Leg: "agent", Channel: agent, Err: err}
	}

	// Give the switch time to set up the first leg before the second one
	// joins the same room.
	if err := sleepCtx(ctx, e.opts.LegSettle); err != nil {
		return "", "", &OriginationError{CallID: rec.ID, Leg: "destination", Channel: dest, Err: err}
	}

	customerID, err := e.originate(ctx, sess, rec, dest, room)
	if err != nil {
		return "", "", &OriginationError{CallID: rec.ID, Leg: "destination", Channel: dest, Err: err}
	}
	return agentID, customerID, nil
}

func (e *Engine) originate(ctx context.Context, sess Session, rec *callstore.CallRecord, channel, room string) (string, error) {
	action := ami.NewAction("Originate",
		"ActionID", uuid.NewString(),
		"Channel", channel,
		"Application", e.opts.ConferenceApp,
		"Data", room,
		"Timeout", strconv.FormatInt(e.opts.OriginateTimeout.Milliseconds(), 10),
		"Async", "true",
	)
	if rec.CallerID != "" {
		action = action.With("CallerID", rec.CallerID)
	}

	resp, err := ami.Do(ctx, sess, action)
	if err != nil {
		return "", err
	}
	if id := resp.ActionID(); id != "" {
		return id, nil
	}
	return action.Get("ActionID"), nil
}

// agentChannel turns an agent endpoint into a dial string. Endpoints that
// already name a technology are used as given.
func (e *Engine) agentChannel(endpoint string) string {
	if strings.Contains(endpoint, "/") {
		return endpoint
	}
	return e.opts.AgentTech + "/" + endpoint
}

func (e *Engine) destinationChannel(trunk, destination string) string {
	if strings.Contains(trunk, "/") {
		return trunk + "/" + destination
	}
	return e.opts.AgentTech + "/" + trunk + "/" + destination
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
