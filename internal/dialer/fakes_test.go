package dialer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dense-identity/confdialer/internal/ami"
	"github.com/dense-identity/confdialer/internal/callstore"
	"github.com/dense-identity/confdialer/internal/synth"
	"go.uber.org/zap"
)

const testRoom = "123456"

// fakeSwitch answers manager actions from in-memory state, in the same text
// format the real switch uses.
type fakeSwitch struct {
	mu sync.Mutex

	active  []string
	members map[string][]string
	// join maps an originated dial string to the channel that then shows up
	// in the room.
	join map[string]string

	originateErr map[string]string
	playErr      bool
	kickErr      bool
	connectErr   error

	actions  []ami.Action
	sentAt   []time.Time
	sessions int
	closed   int
	kicks    int
	plays    []string
}

func newFakeSwitch() *fakeSwitch {
	return &fakeSwitch{
		members:      make(map[string][]string),
		join:         make(map[string]string),
		originateErr: make(map[string]string),
	}
}

func (f *fakeSwitch) Connect(ctx context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.sessions++
	return &fakeSession{sw: f}, nil
}

func (f *fakeSwitch) set(fn func(f *fakeSwitch)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSwitch) sent(name string) []ami.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ami.Action
	for _, a := range f.actions {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeSwitch) kickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kicks
}

func (f *fakeSwitch) sessionCounts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions, f.closed
}

func reply(ok bool, actionID, message string, events ...string) string {
	var b strings.Builder
	if ok {
		b.WriteString("Response: Success\r\n")
	} else {
		b.WriteString("Response: Error\r\n")
	}
	if actionID != "" {
		fmt.Fprintf(&b, "ActionID: %s\r\n", actionID)
	}
	fmt.Fprintf(&b, "Message: %s\r\n\r\n", message)
	for _, ev := range events {
		b.WriteString(ev)
		b.WriteString("\r\n\r\n")
	}
	return b.String()
}

func (f *fakeSwitch) handle(a ami.Action) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, a)
	f.sentAt = append(f.sentAt, time.Now())
	id := a.Get("ActionID")

	switch a.Name {
	case "Originate":
		ch := a.Get("Channel")
		if a.Get("Application") == "Playback" {
			if f.playErr {
				return reply(false, id, "Originate failed")
			}
			f.plays = append(f.plays, ch)
			return reply(true, id, "Originate successfully queued")
		}
		if msg, ok := f.originateErr[ch]; ok {
			return reply(false, id, msg)
		}
		if joined, ok := f.join[ch]; ok {
			room := a.Get("Data")
			f.members[room] = append(f.members[room], joined)
			f.active = append(f.active, joined)
		}
		return reply(true, id, "Originate successfully queued")

	case "CoreShowChannels":
		var events []string
		for _, ch := range f.active {
			events = append(events, "Event: CoreShowChannel\r\nChannel: "+ch)
		}
		events = append(events, fmt.Sprintf("Event: CoreShowChannelsComplete\r\nListItems: %d", len(f.active)))
		return reply(true, id, "Channels will follow", events...)

	case "ConfbridgeList":
		room := a.Get("Conference")
		members := f.members[room]
		if len(members) == 0 {
			return reply(false, id, "No active conferences.")
		}
		var events []string
		for _, ch := range members {
			events = append(events, "Event: ConfbridgeList\r\nConference: "+room+"\r\nChannel: "+ch)
		}
		return reply(true, id, "Confbridge user list will follow", events...)

	case "ConfbridgeKick":
		if f.kickErr {
			return reply(false, id, "Permission denied")
		}
		room := a.Get("Conference")
		if len(f.members[room]) == 0 {
			return reply(false, id, "No Conference by that name found.")
		}
		f.kicks++
		delete(f.members, room)
		return reply(true, id, "User kicked")
	}
	return reply(false, id, "Invalid/unknown command")
}

type fakeSession struct {
	sw *fakeSwitch
}

func (s *fakeSession) SendAction(ctx context.Context, a ami.Action) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.sw.handle(a), nil
}

func (s *fakeSession) Close() error {
	s.sw.mu.Lock()
	defer s.sw.mu.Unlock()
	s.sw.closed++
	return nil
}

// fakeConsole answers console commands by prefix.
type fakeConsole struct {
	mu       sync.Mutex
	commands []string
	outputs  map[string]string
	err      error
}

func (c *fakeConsole) Run(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, command)
	if c.err != nil {
		return "", c.err
	}
	for prefix, out := range c.outputs {
		if strings.HasPrefix(command, prefix) {
			return out, nil
		}
	}
	return "", nil
}

func (c *fakeConsole) ran(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			out = append(out, cmd)
		}
	}
	return out
}

type stubAssets struct {
	err error
}

func (s stubAssets) Resolve(ctx context.Context, fileID, message, voice string) (synth.Asset, error) {
	if s.err != nil {
		return synth.Asset{}, s.err
	}
	return synth.Asset{FileID: "f1", Path: "/sounds/custom/tts-f1.wav", Ref: "/sounds/custom/tts-f1"}, nil
}

func testOptions() Options {
	return Options{
		AgentTech:        "SIP",
		ConferenceApp:    "ConfBridge",
		OriginateTimeout: 30 * time.Second,
		LegSettle:        5 * time.Millisecond,
		RoomDigits:       6,
		Monitor: MonitorPolicy{
			PollInterval: 20 * time.Millisecond,
			MaxWait:      400 * time.Millisecond,
			Grace:        150 * time.Millisecond,
			MaxErrors:    3,
		},
		PlaybackApp:  "Playback",
		BroadcastCap: 4,
	}
}

type harness struct {
	engine *Engine
	store  *callstore.MemoryStore
	sw     *fakeSwitch
	cli    *fakeConsole
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		store: callstore.NewMemoryStore(time.Hour),
		sw:    newFakeSwitch(),
		cli:   &fakeConsole{outputs: make(map[string]string)},
	}
	e, err := New(opts, Deps{
		Store:  h.store,
		Switch: h.sw,
		CLI:    h.cli,
		Assets: stubAssets{},
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	h.engine = e
	t.Cleanup(func() { _ = e.Close() })
	return h
}

// seed stores a call that has already been dialed into testRoom.
func (h *harness) seed(t *testing.T, status callstore.Status) *callstore.CallRecord {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	rec := &callstore.CallRecord{
		ID:             fmt.Sprintf("call-%d", now.UnixNano()),
		Status:         callstore.StatusInitiated,
		Destination:    "5551234567",
		OriginEndpoint: "2001",
		TrunkEndpoint:  "sip-trunk-1",
		AudioAssetRef:  "custom/tts-f1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := h.store.ReserveRoom(ctx, testRoom, rec.ID); err != nil || !ok {
		t.Fatalf("reserve room: %v %v", ok, err)
	}
	path := map[callstore.Status][]callstore.Status{
		callstore.StatusInitiated: nil,
		callstore.StatusDialing:   {callstore.StatusDialing},
		callstore.StatusConnected: {callstore.StatusDialing, callstore.StatusConnected},
		callstore.StatusCompleted: {callstore.StatusDialing, callstore.StatusConnected, callstore.StatusCompleted},
		callstore.StatusFailed:    {callstore.StatusDialing, callstore.StatusFailed},
	}[status]
	out, err := h.store.Update(ctx, rec.ID, func(r *callstore.CallRecord) error {
		if len(path) > 0 {
			if err := r.AssignRoom(testRoom); err != nil {
				return err
			}
		}
		for _, s := range path {
			if err := r.Transition(s, time.Now().UTC()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed %s: %v", status, err)
	}
	return out
}

func (h *harness) status(t *testing.T, id string) *callstore.CallRecord {
	t.Helper()
	rec, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return rec
}

// awaitStatus reads updates until one has the wanted status and returns it
// with the time it was seen.
func awaitStatus(t *testing.T, updates <-chan *callstore.CallRecord, want callstore.Status, within time.Duration) (*callstore.CallRecord, time.Time) {
	t.Helper()
	timer := time.NewTimer(within)
	defer timer.Stop()
	for {
		select {
		case rec, ok := <-updates:
			if !ok {
				t.Fatalf("updates closed before status %s", want)
			}
			if rec.Status == want {
				return rec, time.Now()
			}
		case <-timer.C:
			t.Fatalf("status %s not reached within %v", want, within)
		}
	}
}

func waitUntil(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", within)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
