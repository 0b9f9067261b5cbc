package dialer

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dense-identity/confdialer/internal/ami"
	"github.com/dense-identity/confdialer/internal/callstore"
	"go.uber.org/zap"
)

func TestHangupEvictsAndCompletes(t *testing.T) {
	h := newHarness(t, testOptions())
	h.sw.set(func(f *fakeSwitch) {
		f.members[testRoom] = []string{"SIP/2001-00000001", "SIP/sip-trunk-1-00000002"}
	})
	rec := h.seed(t, callstore.StatusConnected)

	got, err := h.engine.Hangup(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if got.Status != callstore.StatusCompleted || got.EndTime == nil {
		t.Errorf("expected completed with end time, got %s %v", got.Status, got.EndTime)
	}
	kicks := h.sw.sent("ConfbridgeKick")
	if len(kicks) != 1 {
		t.Fatalf("expected one kick, got %d", len(kicks))
	}
	if kicks[0].Get("Conference") != testRoom || kicks[0].Get("Channel") != "all" {
		t.Errorf("unexpected kick: %+v", kicks[0])
	}
	ok, err := h.store.ReserveRoom(context.Background(), testRoom, "other-call")
	if err != nil || !ok {
		t.Errorf("room should be released: %v %v", ok, err)
	}
}

func TestHangupTwice(t *testing.T) {
	h := newHarness(t, testOptions())
	h.sw.set(func(f *fakeSwitch) {
		f.members[testRoom] = []string{"SIP/2001-00000001"}
	})
	rec := h.seed(t, callstore.StatusConnected)

	if _, err := h.engine.Hangup(context.Background(), rec.ID); err != nil {
		t.Fatalf("first hangup: %v", err)
	}
	got, err := h.engine.Hangup(context.Background(), rec.ID)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if got == nil || got.Status != callstore.StatusCompleted {
		t.Errorf("expected the completed record back, got %+v", got)
	}
	if n := h.sw.kickCount(); n != 1 {
		t.Errorf("expected a single eviction, got %d", n)
	}
}

func TestConcurrentHangupsEvictOnce(t *testing.T) {
	h := newHarness(t, testOptions())
	h.sw.set(func(f *fakeSwitch) {
		f.members[testRoom] = []string{"SIP/2001-00000001", "SIP/sip-trunk-1-00000002"}
	})
	rec := h.seed(t, callstore.StatusConnected)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Hangup(context.Background(), rec.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, ErrAlreadyCompleted) {
			t.Errorf("unexpected hangup error: %v", err)
		}
	}
	if n := h.sw.kickCount(); n != 1 {
		t.Errorf("expected a single eviction, got %d", n)
	}
	if got := h.status(t, rec.ID); got.Status != callstore.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

func TestHangupFailedCall(t *testing.T) {
	h := newHarness(t, testOptions())
	rec := h.seed(t, callstore.StatusFailed)

	if _, err := h.engine.Hangup(context.Background(), rec.ID); !errors.Is(err, ErrAlreadyEnded) {
		t.Fatalf("expected ErrAlreadyEnded, got %v", err)
	}
	if n := len(h.sw.sent("ConfbridgeKick")); n != 0 {
		t.Errorf("expected no switch traffic, got %d kicks", n)
	}
}

func TestHangupInitiatedCall(t *testing.T) {
	h := newHarness(t, testOptions())
	rec := h.seed(t, callstore.StatusInitiated)

	_, err := h.engine.Hangup(context.Background(), rec.ID)
	var serr *InvalidStateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestHangupEvictionFailure(t *testing.T) {
	h := newHarness(t, testOptions())
	h.sw.set(func(f *fakeSwitch) {
		f.members[testRoom] = []string{"SIP/2001-00000001"}
		f.kickErr = true
	})
	h.cli.err = errors.New("console unavailable")
	rec := h.seed(t, callstore.StatusConnected)

	_, err := h.engine.Hangup(context.Background(), rec.ID)
	var terr *TeardownError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TeardownError, got %v", err)
	}
	if terr.Room != testRoom {
		t.Errorf("room mismatch: %s", terr.Room)
	}
	got := h.status(t, rec.ID)
	if got.Status != callstore.StatusConnected || got.EndTime != nil {
		t.Errorf("failed teardown must leave the call as it was: %s", got.Status)
	}

	// The call can be hung up once the switch recovers.
	h.sw.set(func(f *fakeSwitch) { f.kickErr = false })
	if _, err := h.engine.Hangup(context.Background(), rec.ID); err != nil {
		t.Fatalf("retry hangup: %v", err)
	}
}

func TestHangupConsoleKick(t *testing.T) {
	h := newHarness(t, testOptions())
	h.sw.set(func(f *fakeSwitch) {
		f.members[testRoom] = []string{"SIP/2001-00000001"}
		f.kickErr = true
	})
	rec := h.seed(t, callstore.StatusConnected)

	got, err := h.engine.Hangup(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if got.Status != callstore.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if cmds := h.cli.ran("confbridge kick"); len(cmds) != 1 || cmds[0] != "confbridge kick "+testRoom+" all" {
		t.Errorf("unexpected console commands: %v", cmds)
	}
}

func TestHangupEmptyRoom(t *testing.T) {
	h := newHarness(t, testOptions())
	rec := h.seed(t, callstore.StatusDialing)

	got, err := h.engine.Hangup(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if got.Status != callstore.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if n := len(h.sw.sent("ConfbridgeKick")); n != 1 {
		t.Errorf("expected the kick to be attempted once, got %d", n)
	}
	if n := h.sw.kickCount(); n != 0 {
		t.Errorf("nobody should have been kicked, got %d", n)
	}
	if cmds := h.cli.ran("confbridge kick"); len(cmds) != 0 {
		t.Errorf("console fallback not expected for a missing room: %v", cmds)
	}
}

// managerLoopback is a manager socket that logs in anyone and answers every
// other action through respond.
type managerLoopback struct {
	ln      net.Listener
	respond func(name string, fields map[string]string) []string

	mu    sync.Mutex
	names []string
}

func newManagerLoopback(t *testing.T, respond func(name string, fields map[string]string) []string) *managerLoopback {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	m := &managerLoopback{ln: ln, respond: respond}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go m.serve(conn)
		}
	}()
	return m
}

func (m *managerLoopback) config() ami.Config {
	host, portStr, _ := net.SplitHostPort(m.ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return ami.Config{
		Host:        host,
		Port:        port,
		Username:    "dialer",
		Secret:      "secret",
		Timeout:     2 * time.Second,
		QuietPeriod: 30 * time.Millisecond,
	}
}

func (m *managerLoopback) sent(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, got := range m.names {
		if got == name {
			n++
		}
	}
	return n
}

func (m *managerLoopback) serve(conn net.Conn) {
	defer conn.Close()
	if _, err := conn.Write([]byte("Asterisk Call Manager/5.0.1\r\n")); err != nil {
		return
	}
	r := bufio.NewReader(conn)
	for {
		fields := make(map[string]string)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				break
			}
			key, value, _ := strings.Cut(line, ":")
			fields[key] = strings.TrimSpace(value)
		}
		name := fields["Action"]
		m.mu.Lock()
		m.names = append(m.names, name)
		m.mu.Unlock()

		var chunks []string
		switch name {
		case "Login":
			chunks = []string{"Response: Success\r\nMessage: Authentication accepted\r\n\r\n"}
		case "Logoff":
			_, _ = conn.Write([]byte("Response: Goodbye\r\n\r\n"))
			return
		default:
			chunks = m.respond(name, fields)
		}
		for i, chunk := range chunks {
			if i > 0 {
				time.Sleep(100 * time.Millisecond)
			}
			if _, err := conn.Write([]byte(chunk)); err != nil {
				return
			}
		}
	}
}

func newManagerHarness(t *testing.T, m *managerLoopback) *harness {
	t.Helper()
	h := &harness{
		store: callstore.NewMemoryStore(time.Hour),
		cli:   &fakeConsole{outputs: make(map[string]string)},
	}
	e, err := New(testOptions(), Deps{
		Store:  h.store,
		Switch: NewAMIConnector(m.config(), zap.NewNop()),
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

func TestHangupKicksOverSlowManager(t *testing.T) {
	// The room is kicked without asking the switch for its room list first;
	// the kick reply arrives split across a pause longer than the quiet period.
	m := newManagerLoopback(t, func(name string, fields map[string]string) []string {
		if name == "ConfbridgeKick" && fields["Conference"] == testRoom && fields["Channel"] == "all" {
			return []string{"Response: Success\r\n", "Message: User kicked\r\n\r\n"}
		}
		return []string{"Response: Error\r\nMessage: Invalid/unknown command\r\n\r\n"}
	})
	h := newManagerHarness(t, m)
	rec := h.seed(t, callstore.StatusConnected)

	got, err := h.engine.Hangup(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if got.Status != callstore.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if n := m.sent("ConfbridgeKick"); n != 1 {
		t.Errorf("expected the room to be kicked once, got %d", n)
	}
	if n := m.sent("ConfbridgeListRooms"); n != 0 {
		t.Errorf("eviction must not depend on a room listing, got %d", n)
	}
	if cmds := h.cli.ran("confbridge kick"); len(cmds) != 0 {
		t.Errorf("console fallback not expected: %v", cmds)
	}
}

func TestHangupMissingRoomOverManager(t *testing.T) {
	m := newManagerLoopback(t, func(name string, fields map[string]string) []string {
		return []string{"Response: Error\r\nMessage: No Conference by that name found.\r\n\r\n"}
	})
	h := newManagerHarness(t, m)
	rec := h.seed(t, callstore.StatusDialing)

	got, err := h.engine.Hangup(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if got.Status != callstore.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if n := m.sent("ConfbridgeKick"); n != 1 {
		t.Errorf("expected one kick attempt, got %d", n)
	}
}

func TestHangupUnknownCall(t *testing.T) {
	h := newHarness(t, testOptions())
	if _, err := h.engine.Hangup(context.Background(), "missing"); !errors.Is(err, callstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHangupOutlivesCancelledCaller(t *testing.T) {
	h := newHarness(t, testOptions())
	h.sw.set(func(f *fakeSwitch) {
		f.members[testRoom] = []string{"SIP/2001-00000001"}
	})
	rec := h.seed(t, callstore.StatusConnected)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.engine.Hangup(ctx, rec.ID); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected hangup error: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		return h.status(t, rec.ID).Status == callstore.StatusCompleted
	})
	if n := h.sw.kickCount(); n != 1 {
		t.Errorf("expected one eviction, got %d", n)
	}

	// A later caller either joins the finishing teardown or sees its result.
	got, err := h.engine.Hangup(context.Background(), rec.ID)
	if err != nil && !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("unexpected second hangup error: %v", err)
	}
	if got == nil || got.Status != callstore.StatusCompleted {
		t.Errorf("expected the completed record, got %+v", got)
	}
}
