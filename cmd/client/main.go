package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"

	pb "github.com/dense-identity/confdialer/api/go/dialer/v1"
	dialerconfig "github.com/dense-identity/confdialer/internal/config"
	"github.com/dense-identity/confdialer/internal/dialer"
)

type config struct {
	Addr     string `env:"DIALER_ADDR" envDefault:"localhost:50061"`
	UseTLS   bool   `env:"DIALER_TLS" envDefault:"false"`
	Token    string `env:"DIALER_TOKEN"`
	Agent    string `env:"AGENT_ENDPOINT" envDefault:"2001"`
	Trunk    string `env:"TRUNK" envDefault:"sip-trunk-1"`
	CallerID string `env:"CALLER_ID"`
	Voice    string `env:"VOICE"`
	Timeout  int    `env:"REQUEST_TIMEOUT_SEC" envDefault:"30"`
}

func main() {
	_ = dialerconfig.LoadEnv()
	cfg, err := dialerconfig.New[config]()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client, err := dialer.NewClient(cfg.Addr, cfg.UseTLS, cfg.Token)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.Addr, err)
	}
	defer client.Close()

	// One-shot mode: client <command> [args...]
	if len(os.Args) > 1 {
		if err := run(cfg, client.Stub, os.Args[1:]); err != nil {
			log.Fatalf("%s failed: %v", os.Args[1], err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Println("===== Dialer Client =====")
	log.Printf("  Server: %s (TLS: %v)", cfg.Addr, cfg.UseTLS)
	log.Printf("  Agent:  %s via %s", cfg.Agent, cfg.Trunk)
	log.Println("=========================")
	log.Println("")
	log.Println("Commands:")
	log.Println("  call <destination> <message...> - Place a call that speaks the message")
	log.Println("  file <destination> <file_id>     - Place a call with pre-rendered audio")
	log.Println("  get <call_id>                    - Show a call")
	log.Println("  list [limit]                     - List recent calls")
	log.Println("  play <call_id>                   - Play the call audio into the room")
	log.Println("  hangup <call_id>                 - End a call")
	log.Println("  quit                             - Exit")
	log.Println("")

	go commandLoop(cfg, client.Stub, stop)
	<-ctx.Done()
}

// commandLoop reads commands from stdin
func commandLoop(cfg *config, stub pb.DialerServiceClient, stop context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "quit", "exit":
			stop()
			return
		default:
			if err := run(cfg, stub, parts); err != nil {
				fmt.Printf("%s failed: %v\n", parts[0], err)
			}
		}
	}
	stop()
}

func run(cfg *config, stub pb.DialerServiceClient, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Timeout)*time.Second)
	defer cancel()

	need := func(n int, usage string) error {
		if len(args) < n {
			return fmt.Errorf("usage: %s", usage)
		}
		return nil
	}

	switch args[0] {
	case "call":
		if err := need(3, "call <destination> <message...>"); err != nil {
			return err
		}
		return show(stub.PlaceCall(ctx, &pb.PlaceCallRequest{
			CallerID:      cfg.CallerID,
			Destination:   args[1],
			AgentEndpoint: cfg.Agent,
			Trunk:         cfg.Trunk,
			Message:       strings.Join(args[2:], " "),
			Voice:         cfg.Voice,
		}))

	case "file":
		if err := need(3, "file <destination> <file_id>"); err != nil {
			return err
		}
		return show(stub.PlaceCall(ctx, &pb.PlaceCallRequest{
			CallerID:      cfg.CallerID,
			Destination:   args[1],
			AgentEndpoint: cfg.Agent,
			Trunk:         cfg.Trunk,
			AudioFileID:   args[2],
		}))

	case "get":
		if err := need(2, "get <call_id>"); err != nil {
			return err
		}
		return show(stub.GetCall(ctx, wrapperspb.String(args[1])))

	case "list":
		limit := 10
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("limit must be a number: %w", err)
			}
			limit = n
		}
		return show(stub.ListCalls(ctx, wrapperspb.Int32(int32(limit))))

	case "play":
		if err := need(2, "play <call_id>"); err != nil {
			return err
		}
		return show(stub.PlayAudio(ctx, wrapperspb.String(args[1])))

	case "hangup":
		if err := need(2, "hangup <call_id>"); err != nil {
			return err
		}
		return show(stub.Hangup(ctx, wrapperspb.String(args[1])))
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func show(v any, err error) error {
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
