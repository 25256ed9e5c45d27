package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type ListenerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type ServerConfig struct {
	WebSocket       ListenerConfig `yaml:"websocket"`
	UDP             ListenerConfig `yaml:"udp"`
	MaxMessageBytes int            `yaml:"max_message_bytes"`
}

type EngineConfig struct {
	Mode              string `yaml:"mode"` // mock, exec
	Command           string `yaml:"command"`
	Name              string `yaml:"name"`
	MaxWords          int    `yaml:"max_words"`
	MaxPhonemes       int    `yaml:"max_phonemes"`
	SentenceSilenceMS int    `yaml:"sentence_silence_ms"`
	CacheCeilingMiB   int    `yaml:"cache_ceiling_mib"`
}

type AudioConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SampleRate   int     `yaml:"sample_rate"`
	GraceMS      int     `yaml:"grace_ms"`
	QueueDelayMS int     `yaml:"queue_delay_ms"`
	Volume       float64 `yaml:"volume"`
}

// VoiceAlias binds a friendly voice name to a model and its synthesis
// parameters.
type VoiceAlias struct {
	Model       string  `yaml:"model"`
	Speaker     int     `yaml:"speaker"`
	LengthScale float64 `yaml:"length_scale"`
	NoiseScale  float64 `yaml:"noise_scale"`
	NoiseW      float64 `yaml:"noise_w"`
	Volume      float64 `yaml:"volume"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxEvents     int    `yaml:"max_events"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName  string                `yaml:"runtime_name"`
	Environment  string                `yaml:"environment"`
	HTTP         HTTPConfig            `yaml:"http"`
	Telemetry    TelemetryConfig       `yaml:"telemetry"`
	Bus          BusConfig             `yaml:"bus"`
	Server       ServerConfig          `yaml:"server"`
	Engine       EngineConfig          `yaml:"engine"`
	Audio        AudioConfig           `yaml:"audio"`
	EventStore   EventStoreConfig      `yaml:"event_store"`
	DefaultVoice string                `yaml:"default_voice"`
	Voices       map[string]VoiceAlias `yaml:"voices"`
}

func Default() Config {
	return Config{
		RuntimeName: "speakerd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Server: ServerConfig{
			WebSocket: ListenerConfig{
				Enabled: true,
				Bind:    "127.0.0.1",
				Port:    7580,
			},
			UDP: ListenerConfig{
				Enabled: true,
				Bind:    "0.0.0.0",
				Port:    6669,
			},
			MaxMessageBytes: 64 * 1024,
		},
		Engine: EngineConfig{
			Mode:              "mock",
			Name:              "speakerd",
			MaxWords:          25,
			MaxPhonemes:       200,
			SentenceSilenceMS: 200,
			CacheCeilingMiB:   defaultCacheCeiling(),
		},
		Audio: AudioConfig{
			Enabled:      true,
			SampleRate:   22050,
			GraceMS:      2000,
			QueueDelayMS: 0,
			Volume:       1.0,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/speakerd-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxEvents:     100000,
		},
		DefaultVoice: "",
		Voices:       map[string]VoiceAlias{},
	}
}

// defaultCacheCeiling bounds voice-model memory to 512 MiB or 1/32 of
// system memory, whichever is smaller.
func defaultCacheCeiling() int {
	const fallback = 512
	vm, err := mem.VirtualMemory()
	if err != nil {
		return fallback
	}
	share := int(vm.Total / (32 * 1024 * 1024))
	if share < fallback {
		return share
	}
	return fallback
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalizeVoices(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// normalizeVoices fills unset per-alias knobs with the engine defaults.
func normalizeVoices(cfg *Config) {
	for name, alias := range cfg.Voices {
		if alias.LengthScale == 0 {
			alias.LengthScale = 1.0
		}
		if alias.NoiseScale == 0 {
			alias.NoiseScale = 0.667
		}
		if alias.NoiseW == 0 {
			alias.NoiseW = 0.8
		}
		if alias.Volume == 0 {
			alias.Volume = 1.0
		}
		cfg.Voices[name] = alias
	}
	if cfg.DefaultVoice == "" && len(cfg.Voices) == 1 {
		for name := range cfg.Voices {
			cfg.DefaultVoice = name
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "SPEAKERD_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SPEAKERD_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SPEAKERD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SPEAKERD_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SPEAKERD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SPEAKERD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SPEAKERD_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "SPEAKERD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SPEAKERD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SPEAKERD_BUS_SERVERS")
	overrideInt(&cfg.Bus.ConnectTimeout, "SPEAKERD_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Server.WebSocket.Enabled, "SPEAKERD_WS_ENABLED")
	overrideString(&cfg.Server.WebSocket.Bind, "SPEAKERD_WS_BIND")
	overrideInt(&cfg.Server.WebSocket.Port, "SPEAKERD_WS_PORT")
	overrideBool(&cfg.Server.UDP.Enabled, "SPEAKERD_UDP_ENABLED")
	overrideString(&cfg.Server.UDP.Bind, "SPEAKERD_UDP_BIND")
	overrideInt(&cfg.Server.UDP.Port, "SPEAKERD_UDP_PORT")
	overrideInt(&cfg.Server.MaxMessageBytes, "SPEAKERD_MAX_MESSAGE_BYTES")
	overrideString(&cfg.Engine.Mode, "SPEAKERD_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "SPEAKERD_ENGINE_COMMAND")
	overrideInt(&cfg.Engine.MaxWords, "SPEAKERD_ENGINE_MAX_WORDS")
	overrideInt(&cfg.Engine.MaxPhonemes, "SPEAKERD_ENGINE_MAX_PHONEMES")
	overrideInt(&cfg.Engine.SentenceSilenceMS, "SPEAKERD_ENGINE_SENTENCE_SILENCE_MS")
	overrideInt(&cfg.Engine.CacheCeilingMiB, "SPEAKERD_ENGINE_CACHE_CEILING_MIB")
	overrideBool(&cfg.Audio.Enabled, "SPEAKERD_AUDIO_ENABLED")
	overrideInt(&cfg.Audio.SampleRate, "SPEAKERD_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.GraceMS, "SPEAKERD_AUDIO_GRACE_MS")
	overrideInt(&cfg.Audio.QueueDelayMS, "SPEAKERD_AUDIO_QUEUE_DELAY_MS")
	overrideFloat(&cfg.Audio.Volume, "SPEAKERD_AUDIO_VOLUME")
	overrideString(&cfg.EventStore.Path, "SPEAKERD_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "SPEAKERD_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "SPEAKERD_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxEvents, "SPEAKERD_EVENT_STORE_MAX_EVENTS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "SPEAKERD_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.DefaultVoice, "SPEAKERD_DEFAULT_VOICE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Server.WebSocket.Enabled {
		if cfg.Server.WebSocket.Port <= 0 || cfg.Server.WebSocket.Port > 65535 {
			return errors.New("server.websocket.port must be between 1 and 65535")
		}
	}
	if cfg.Server.UDP.Enabled {
		if cfg.Server.UDP.Port <= 0 || cfg.Server.UDP.Port > 65535 {
			return errors.New("server.udp.port must be between 1 and 65535")
		}
	}
	if cfg.Server.MaxMessageBytes <= 0 {
		return errors.New("server.max_message_bytes must be positive")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.MaxWords < 0 {
		return errors.New("engine.max_words must be >= 0")
	}
	if cfg.Engine.MaxPhonemes <= 0 {
		return errors.New("engine.max_phonemes must be positive")
	}
	if cfg.Engine.CacheCeilingMiB <= 0 {
		return errors.New("engine.cache_ceiling_mib must be positive")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Volume < 0 || cfg.Audio.Volume > 1 {
		return errors.New("audio.volume must be between 0.0 and 1.0")
	}
	for name, alias := range cfg.Voices {
		if alias.Volume < 0 || alias.Volume > 1 {
			return fmt.Errorf("voices.%s.volume must be between 0.0 and 1.0", name)
		}
	}
	if cfg.DefaultVoice != "" {
		if _, ok := cfg.Voices[cfg.DefaultVoice]; !ok {
			return fmt.Errorf("default_voice %q is not a configured alias", cfg.DefaultVoice)
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	return nil
}
