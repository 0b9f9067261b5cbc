package dialer

import (
	"time"

	"github.com/dense-identity/confdialer/internal/ami"
	"github.com/dense-identity/confdialer/internal/config"
)

// MonitorPolicy controls how the connection monitor decides a call is up.
type MonitorPolicy struct {
	PollInterval time.Duration
	// MaxWait bounds the whole monitoring window. When it runs out the call
	// is marked connected regardless of what was observed.
	MaxWait time.Duration
	// Grace is how long a single observed participant must wait before it
	// counts as connected.
	Grace time.Duration
	// MaxErrors is the number of consecutive failed polls that makes the
	// monitor give up.
	MaxErrors int
	// Strict fails the call with a MonitorError when the monitor gives up.
	// By default the call is marked connected instead.
	Strict bool
}

type Options struct {
	AgentTech        string
	ConferenceApp    string
	OriginateTimeout time.Duration
	LegSettle        time.Duration
	RoomDigits       int

	Monitor MonitorPolicy

	PlaybackApp string
	// BroadcastCap is the most active channels playback may fan out to when
	// none can be tied to the call. A negative cap disables the fan out.
	BroadcastCap int
}

func DefaultOptions() Options {
	return Options{
		AgentTech:        "SIP",
		ConferenceApp:    "ConfBridge",
		OriginateTimeout: 30 * time.Second,
		LegSettle:        2 * time.Second,
		RoomDigits:       6,
		Monitor: MonitorPolicy{
			PollInterval: 2 * time.Second,
			MaxWait:      30 * time.Second,
			Grace:        10 * time.Second,
			MaxErrors:    3,
		},
		PlaybackApp:  "Playback",
		BroadcastCap: 4,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AgentTech == "" {
		o.AgentTech = d.AgentTech
	}
	if o.ConferenceApp == "" {
		o.ConferenceApp = d.ConferenceApp
	}
	if o.OriginateTimeout <= 0 {
		o.OriginateTimeout = d.OriginateTimeout
	}
	if o.LegSettle <= 0 {
		o.LegSettle = d.LegSettle
	}
	if o.RoomDigits <= 0 {
		o.RoomDigits = d.RoomDigits
	}
	if o.Monitor.PollInterval <= 0 {
		o.Monitor.PollInterval = d.Monitor.PollInterval
	}
	if o.Monitor.MaxWait <= 0 {
		o.Monitor.MaxWait = d.Monitor.MaxWait
	}
	if o.Monitor.Grace <= 0 {
		o.Monitor.Grace = d.Monitor.Grace
	}
	if o.Monitor.MaxErrors <= 0 {
		o.Monitor.MaxErrors = d.Monitor.MaxErrors
	}
	if o.PlaybackApp == "" {
		o.PlaybackApp = d.PlaybackApp
	}
	if o.BroadcastCap == 0 {
		o.BroadcastCap = d.BroadcastCap
	}
	return o
}

// OptionsFromConfig maps the service environment onto engine options.
func OptionsFromConfig(cfg *config.DialerConfig) Options {
	broadcastCap := cfg.PlaybackBroadcastCap
	if broadcastCap == 0 {
		broadcastCap = -1
	}
	return Options{
		AgentTech:        cfg.AgentTech,
		ConferenceApp:    cfg.ConferenceApp,
		OriginateTimeout: cfg.OriginateTimeout(),
		LegSettle:        cfg.LegSettle(),
		RoomDigits:       cfg.RoomDigits,
		Monitor: MonitorPolicy{
			PollInterval: cfg.MonitorPoll(),
			MaxWait:      cfg.MonitorMaxWait(),
			Grace:        cfg.MonitorGrace(),
			MaxErrors:    cfg.MonitorMaxErrors,
			Strict:       !cfg.LenientMonitoring,
		},
		PlaybackApp:  cfg.PlaybackApp,
		BroadcastCap: broadcastCap,
	}
}

// AMIConfigFromConfig builds the manager session settings.
func AMIConfigFromConfig(cfg *config.DialerConfig) ami.Config {
	return ami.Config{
		Host:        cfg.AMIHost,
		Port:        cfg.AMIPort,
		Username:    cfg.AMIUser,
		Secret:      cfg.AMISecret,
		Timeout:     cfg.AMITimeout(),
		QuietPeriod: cfg.AMIQuietPeriod(),
	}
}
