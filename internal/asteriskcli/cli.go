// Package asteriskcli drives the switch through its remote console
// ("asterisk -rx"). It is the secondary signal source and action path when
// the manager interface gives no usable answer.
package asteriskcli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/dense-identity/confdialer/internal/helpers"
	"go.uber.org/zap"
)

// Runner executes one console command and returns its output.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// ExecRunner runs the console binary as a child process.
type ExecRunner struct {
	Bin     string
	Timeout time.Duration
	log     *zap.Logger
}

func NewExecRunner(bin string, timeout time.Duration, logger *zap.Logger) *ExecRunner {
	if bin == "" {
		bin = "asterisk"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{Bin: bin, Timeout: timeout, log: logger.Named("cli")}
}

func (r *ExecRunner) Run(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Bin, "-rx", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		r.log.Debug("Console command failed",
			zap.String("command", command),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(err))
		return stdout.String(), fmt.Errorf("%s -rx %q: %w", r.Bin, command, err)
	}
	out := stdout.String()
	if LooksFailed(out) {
		return out, fmt.Errorf("%s -rx %q: %s", r.Bin, command, firstLine(out))
	}
	return out, nil
}

// Console commands.

func ListConference(room string) string {
	return "confbridge list " + room
}

func KickAll(room string) string {
	return fmt.Sprintf("confbridge kick %s all", room)
}

func PlayToChannel(channel, asset string) string {
	return fmt.Sprintf("channel originate %s application Playback %s", channel, asset)
}

var channelToken = regexp.MustCompile(`\b(?:PJSIP|SIP|IAX2|DAHDI|Local|Motif|WebRTC)/[^\s,;]+`)

// ParseChannels extracts channel-looking tokens from free-text console
// output, deduplicated and in order of appearance.
func ParseChannels(output string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range channelToken.FindAllString(output, -1) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

var failureMarkers = []string{
	"no such",
	"not found",
	"unable to",
	"failed",
	"no command found",
	"no conference bridge named",
	"unable to connect to remote asterisk",
}

// LooksFailed reports whether output that came with a zero exit status
// still describes a failure. The console exits 0 for most command errors.
func LooksFailed(output string) bool {
	for _, m := range failureMarkers {
		if helpers.ContainsFold(output, m) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
