// Package config loads viewer configuration from environment variables with
// command-line flag overrides. Flags win over env vars; env vars win over
// defaults.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

const (
	envVarRelayURL         = "FRAME_BUCKET_VIEWER_RELAY_URL"
	envVarProducerID       = "FRAME_BUCKET_VIEWER_PRODUCER_ID"
	envVarDisplayName      = "FRAME_BUCKET_VIEWER_DISPLAY_NAME"
	envVarMode             = "FRAME_BUCKET_VIEWER_MODE"
	envVarLogFormat        = "FRAME_BUCKET_VIEWER_LOG_FORMAT"
	envVarLogLevel         = "FRAME_BUCKET_VIEWER_LOG_LEVEL"
	envVarKeyframeInterval = "FRAME_BUCKET_VIEWER_KEYFRAME_INTERVAL"
	envVarStatsInterval    = "FRAME_BUCKET_VIEWER_STATS_INTERVAL"
	envVarSink             = "FRAME_BUCKET_VIEWER_SINK"
	envVarRTPDumpPath      = "FRAME_BUCKET_VIEWER_RTPDUMP_PATH"

	// DefaultSTUNURL is used when no ICE configuration is provided at all.
	// The viewer must always gather at least server-reflexive candidates.
	DefaultSTUNURL = "stun:stun.l.google.com:19302"

	DefaultKeyframeInterval      = 3 * time.Second
	DefaultStatsInterval         = 10 * time.Second
	DefaultMode             Mode = ModeDev
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// SinkKind selects where received media goes.
type SinkKind string

const (
	// SinkStats counts packets and bytes per track and logs periodically.
	SinkStats SinkKind = "stats"
	// SinkRTPDump writes length-prefixed RTP packets to a file.
	SinkRTPDump SinkKind = "rtpdump"
)

type Config struct {
	// RelayURL is the ws:// or wss:// URL of the signaling relay.
	RelayURL string
	// ProducerID is the relay peer id of the producer to view.
	ProducerID string
	// DisplayName is sent in the listener registration.
	DisplayName string

	Mode      Mode
	LogFormat LogFormat
	LogLevel  slog.Level

	ICEServers []webrtc.ICEServer

	// KeyframeInterval is the PLI cadence for video tracks; negative
	// disables keyframe requests.
	KeyframeInterval time.Duration

	StatsInterval time.Duration
	Sink          SinkKind
	RTPDumpPath   string
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	relayURL := envOrDefault(lookup, envVarRelayURL, "")
	producerID := envOrDefault(lookup, envVarProducerID, "")
	displayName := envOrDefault(lookup, envVarDisplayName, "")
	sinkStr := envOrDefault(lookup, envVarSink, string(SinkStats))
	rtpDumpPath := envOrDefault(lookup, envVarRTPDumpPath, "")

	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	keyframeInterval, err := envDurationOrDefault(lookup, envVarKeyframeInterval, DefaultKeyframeInterval)
	if err != nil {
		return Config{}, err
	}
	statsInterval, err := envDurationOrDefault(lookup, envVarStatsInterval, DefaultStatsInterval)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("frame-bucket-viewer", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&relayURL, "relay-url", relayURL, "Signaling relay WebSocket URL (env "+envVarRelayURL+")")
	fs.StringVar(&producerID, "producer-id", producerID, "Peer id of the producer to view (env "+envVarProducerID+")")
	fs.StringVar(&displayName, "display-name", displayName, "Listener display name; default is a generated viewer-<id> (env "+envVarDisplayName+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential ("+envTurnCredential+")")
	fs.DurationVar(&keyframeInterval, "keyframe-interval", keyframeInterval, "PLI cadence for video tracks; negative disables (env "+envVarKeyframeInterval+")")
	fs.DurationVar(&statsInterval, "stats-interval", statsInterval, "Stats sink log interval (env "+envVarStatsInterval+")")
	fs.StringVar(&sinkStr, "sink", sinkStr, "Media sink: stats or rtpdump (env "+envVarSink+")")
	fs.StringVar(&rtpDumpPath, "rtpdump-path", rtpDumpPath, "Output file for the rtpdump sink (env "+envVarRTPDumpPath+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if err := validateRelayURL(relayURL); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(producerID) == "" {
		return Config{}, fmt.Errorf("%s/--producer-id must be set", envVarProducerID)
	}
	if displayName == "" {
		displayName = "viewer-" + uuid.NewString()[:8]
	}

	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential)
	if err != nil {
		return Config{}, err
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: []string{DefaultSTUNURL}}}
	}

	sink, err := parseSinkKind(sinkStr)
	if err != nil {
		return Config{}, err
	}
	if sink == SinkRTPDump && strings.TrimSpace(rtpDumpPath) == "" {
		return Config{}, fmt.Errorf("%s/--rtpdump-path must be set when sink is %q", envVarRTPDumpPath, SinkRTPDump)
	}
	if statsInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--stats-interval must be > 0", envVarStatsInterval)
	}
	if keyframeInterval == 0 {
		keyframeInterval = DefaultKeyframeInterval
	}

	return Config{
		RelayURL:         relayURL,
		ProducerID:       producerID,
		DisplayName:      displayName,
		Mode:             mode,
		LogFormat:        logFormat,
		LogLevel:         level,
		ICEServers:       iceServers,
		KeyframeInterval: keyframeInterval,
		StatsInterval:    statsInterval,
		Sink:             sink,
		RTPDumpPath:      rtpDumpPath,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func validateRelayURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s/--relay-url must be set", envVarRelayURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid relay URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("relay URL %q must use ws or wss scheme", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("relay URL %q is missing a host", raw)
	}
	return nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseSinkKind(raw string) (SinkKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(SinkStats):
		return SinkStats, nil
	case string(SinkRTPDump):
		return SinkRTPDump, nil
	default:
		return "", fmt.Errorf("invalid sink %q (expected stats or rtpdump)", raw)
	}
}
