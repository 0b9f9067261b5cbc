// Package ami implements a minimal client for the switch manager interface:
// a text protocol of "Key: value" lines where a blank line ends a message.
package ami

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const bannerPrefix = "Asterisk Call Manager/"

var (
	eventListStart    = []byte("eventlist: start")
	eventListComplete = []byte("eventlist: complete")
)

// Config holds the connection settings for a manager session.
type Config struct {
	Host     string
	Port     int
	Username string
	Secret   string

	// Timeout bounds the dial, the banner read and every action round trip.
	Timeout time.Duration
	// QuietPeriod is how long to keep reading after a terminator was seen,
	// since the switch may split a reply (and any list events) over several
	// packets.
	QuietPeriod time.Duration
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5038
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = 250 * time.Millisecond
	}
	return c
}

// Client is a single authenticated manager session. It is not meant to be
// shared between concurrent operations and is not reusable after a failure:
// once an I/O error happens every later call returns ErrClientBroken.
type Client struct {
	cfg    Config
	addr   string
	conn   net.Conn
	r      *bufio.Reader
	banner string

	mu     sync.Mutex
	broken atomic.Bool
	closed atomic.Bool

	log *zap.Logger
}

// Dial opens a TCP connection, validates the banner and logs in.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := cfg.Addr()

	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Op: "dial", Err: err}
	}

	c := &Client{
		cfg:  cfg,
		addr: addr,
		conn: conn,
		r:    bufio.NewReader(conn),
		log:  logger.Named("ami").With(zap.String("addr", addr)),
	}

	if err := c.readBanner(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := c.login(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.log.Debug("Connected to switch", zap.String("banner", c.banner))
	return c, nil
}

// Banner returns the greeting line sent by the switch.
func (c *Client) Banner() string {
	return c.banner
}

func (c *Client) readBanner(ctx context.Context) error {
	_ = c.conn.SetReadDeadline(c.deadline(ctx))
	line, err := c.r.ReadString('\n')
	if err != nil {
		return &ConnectionError{Addr: c.addr, Op: "banner", Err: err}
	}
	banner := strings.TrimSpace(line)
	if !strings.HasPrefix(banner, bannerPrefix) {
		return &ConnectionError{Addr: c.addr, Op: "banner", Err: fmt.Errorf("unexpected banner %q", banner)}
	}
	c.banner = banner
	return nil
}

func (c *Client) login(ctx context.Context) error {
	raw, err := c.SendAction(ctx, NewAction("Login",
		"Username", c.cfg.Username,
		"Secret", c.cfg.Secret,
		"Events", "off",
	))
	if err != nil {
		return err
	}
	resp := ParseResponse(raw)
	if !resp.Success() {
		c.broken.Store(true)
		return &AuthenticationError{Username: c.cfg.Username, Message: resp.Message()}
	}
	return nil
}

// SendAction writes the action and returns the raw accumulated reply. An
// ActionID is generated when the action carries none. The reply is read
// until a blank-line terminator has been seen and the socket then stays
// quiet for QuietPeriod. A reply that opens an event list is read until the
// list completes or the deadline passes.
func (c *Client) SendAction(ctx context.Context, action Action) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken.Load() {
		return "", ErrClientBroken
	}
	if action.Get("ActionID") == "" {
		action = action.With("ActionID", uuid.NewString())
	}

	// Unblock reads and writes as soon as ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	deadline := c.deadline(ctx)
	_ = c.conn.SetWriteDeadline(deadline)
	if _, err := c.conn.Write(action.Encode()); err != nil {
		return "", c.fail(ctx, "write", err)
	}

	raw, err := c.readReply(ctx, deadline)
	if err != nil {
		return "", c.fail(ctx, "read", err)
	}

	c.log.Debug("Action completed",
		zap.String("action", action.Name),
		zap.String("action_id", action.Get("ActionID")),
		zap.Int("bytes", len(raw)))
	return raw, nil
}

func (c *Client) readReply(ctx context.Context, deadline time.Time) (string, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	terminated := false
	pending := false

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		readBy := deadline
		if terminated && !pending {
			if quiet := time.Now().Add(c.cfg.QuietPeriod); quiet.Before(deadline) {
				readBy = quiet
			}
		}
		_ = c.conn.SetReadDeadline(readBy)

		n, err := c.r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if !terminated && bytes.Contains(buf.Bytes(), terminator) {
				terminated = true
			}
			pending = listPending(buf.Bytes())
		}
		if err != nil {
			if pending {
				return "", fmt.Errorf("event list incomplete: %w", err)
			}
			if terminated && (isTimeout(err) || errors.Is(err, io.EOF)) {
				return buf.String(), nil
			}
			return "", err
		}
		if terminated && !pending && !time.Now().Before(deadline) {
			return buf.String(), nil
		}
	}
}

// listPending reports whether the reply opened an event list that has not
// been completed yet. The quiet period does not apply to such a reply.
func listPending(b []byte) bool {
	lower := bytes.ToLower(b)
	return bytes.Contains(lower, eventListStart) && !bytes.Contains(lower, eventListComplete)
}

// Close sends a best-effort Logoff and closes the socket. It never fails.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if !c.broken.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if _, err := c.SendAction(ctx, NewAction("Logoff")); err != nil {
			c.log.Debug("Logoff failed", zap.Error(err))
		}
		cancel()
	}
	c.broken.Store(true)
	if err := c.conn.Close(); err != nil {
		c.log.Debug("Close failed", zap.Error(err))
	}
	return nil
}

func (c *Client) fail(ctx context.Context, op string, err error) error {
	c.broken.Store(true)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return &ConnectionError{Addr: c.addr, Op: op, Err: err}
}

func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.cfg.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
