package config

import (
	"fmt"
	"strings"
	"time"
)

type DialerConfig struct {
	IsProduction bool   `env:"IS_PRODUCTION" envDefault:"false"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	// API
	Port         string `env:"PORT" envDefault:":50061"`
	WatchAddr    string `env:"WATCH_ADDR" envDefault:""`
	APITokenHash string `env:"API_TOKEN_HASH" envDefault:""`

	// Switch manager interface
	AMIHost      string `env:"AMI_HOST" envDefault:"localhost"`
	AMIPort      int    `env:"AMI_PORT" envDefault:"5038"`
	AMIUser      string `env:"AMI_USER" envDefault:"admin"`
	AMISecret    string `env:"AMI_SECRET,required"`
	AMITimeoutMs int    `env:"AMI_TIMEOUT_MS" envDefault:"5000"`
	AMIQuietMs   int    `env:"AMI_QUIET_MS" envDefault:"250"`

	// Origination
	AgentTech           string `env:"AGENT_TECH" envDefault:"SIP"`
	ConferenceApp       string `env:"CONFERENCE_APP" envDefault:"ConfBridge"`
	OriginateTimeoutSec int    `env:"ORIGINATE_TIMEOUT_SEC" envDefault:"30"`
	LegSettleMs         int    `env:"LEG_SETTLE_MS" envDefault:"2000"`
	RoomDigits          int    `env:"ROOM_DIGITS" envDefault:"6"`

	// Connection monitor
	MonitorPollMs     int  `env:"MONITOR_POLL_MS" envDefault:"2000"`
	MonitorMaxWaitMs  int  `env:"MONITOR_MAX_WAIT_MS" envDefault:"30000"`
	MonitorGraceMs    int  `env:"MONITOR_GRACE_MS" envDefault:"10000"`
	MonitorMaxErrors  int  `env:"MONITOR_MAX_ERRORS" envDefault:"3"`
	LenientMonitoring bool `env:"LENIENT_MONITORING" envDefault:"true"`

	// Playback
	PlaybackApp          string `env:"PLAYBACK_APP" envDefault:"Playback"`
	PlaybackBroadcastCap int    `env:"PLAYBACK_BROADCAST_CAP" envDefault:"4"`

	// Console fallback
	AsteriskBin  string `env:"ASTERISK_BIN" envDefault:"asterisk"`
	CLITimeoutMs int    `env:"CLI_TIMEOUT_MS" envDefault:"5000"`

	// Call records
	StoreBackend  string `env:"STORE_BACKEND" envDefault:"memory"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"redis:6379"`
	RedisUsername string `env:"REDIS_USERNAME" envDefault:""`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"confdialer:v1"`
	RoomTTLSec    int    `env:"ROOM_TTL_SEC" envDefault:"7200"`

	// Speech synthesis
	TTSAPIURL     string `env:"TTS_API_URL" envDefault:"http://localhost:8000/api/synthesize"`
	TTSTimeoutSec int    `env:"TTS_TIMEOUT_SEC" envDefault:"30"`
	SoundsDir     string `env:"SOUNDS_DIR" envDefault:"/var/lib/asterisk/sounds/custom"`
}

// Validate checks the values env parsing cannot.
func (c *DialerConfig) Validate() error {
	switch strings.ToLower(c.StoreBackend) {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.RoomDigits < 4 || c.RoomDigits > 12 {
		return fmt.Errorf("ROOM_DIGITS must be between 4 and 12, got %d", c.RoomDigits)
	}
	if c.MonitorPollMs <= 0 || c.MonitorMaxWaitMs <= 0 {
		return fmt.Errorf("monitor poll interval and max wait must be positive")
	}
	if c.MonitorGraceMs > c.MonitorMaxWaitMs {
		return fmt.Errorf("MONITOR_GRACE_MS (%d) exceeds MONITOR_MAX_WAIT_MS (%d)", c.MonitorGraceMs, c.MonitorMaxWaitMs)
	}
	if c.PlaybackBroadcastCap < 0 {
		return fmt.Errorf("PLAYBACK_BROADCAST_CAP must not be negative")
	}
	return nil
}

func ms(v int) time.Duration  { return time.Duration(v) * time.Millisecond }
func sec(v int) time.Duration { return time.Duration(v) * time.Second }

func (c *DialerConfig) AMITimeout() time.Duration       { return ms(c.AMITimeoutMs) }
func (c *DialerConfig) AMIQuietPeriod() time.Duration   { return ms(c.AMIQuietMs) }
func (c *DialerConfig) OriginateTimeout() time.Duration { return sec(c.OriginateTimeoutSec) }
func (c *DialerConfig) LegSettle() time.Duration        { return ms(c.LegSettleMs) }
func (c *DialerConfig) MonitorPoll() time.Duration      { return ms(c.MonitorPollMs) }
func (c *DialerConfig) MonitorMaxWait() time.Duration   { return ms(c.MonitorMaxWaitMs) }
func (c *DialerConfig) MonitorGrace() time.Duration     { return ms(c.MonitorGraceMs) }
func (c *DialerConfig) CLITimeout() time.Duration       { return ms(c.CLITimeoutMs) }
func (c *DialerConfig) RoomTTL() time.Duration          { return sec(c.RoomTTLSec) }
func (c *DialerConfig) TTSTimeout() time.Duration       { return sec(c.TTSTimeoutSec) }
