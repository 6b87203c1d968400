// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

type Config struct {
	PostgresDSN string
	RedisAddr   string

	QueueKey         string
	ProcessingKey    string
	ProcessingMapKey string
	RetryKey         string
	EventsChannel    string

	Workers          int
	ChunkConcurrency int
	HTTPAddr         string
	LogMode          string

	OpenAIAPIKey string
	TextModel    string
	SpeechModel  string
	DefaultVoice string

	AudioDir        string
	OutputDir       string
	GCSBucket       string
	GCSPrefix       string
	GCSEmulatorHost string

	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	ReaperInterval    time.Duration
	RetryPollInterval time.Duration
	ProgressMaxAge    time.Duration
}

// Load reads the environment. Missing required keys are reported together.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	e := env{get: getenv}

	processingKey := e.str("REDIS_PROCESSING_KEY", "narration:processing")
	c := Config{
		PostgresDSN: e.must("POSTGRES_DSN"),
		RedisAddr:   e.must("REDIS_ADDR"),

		QueueKey:         e.str("REDIS_QUEUE_KEY", "narration:queue"),
		ProcessingKey:    processingKey,
		ProcessingMapKey: e.str("REDIS_PROCESSING_MAP_KEY", processingKey+":map"),
		RetryKey:         e.str("REDIS_RETRY_KEY", "narration:retries"),
		EventsChannel:    e.str("REDIS_EVENTS_CHANNEL", "narration:events"),

		Workers:          e.integer("WORKERS", 4),
		ChunkConcurrency: e.integer("CHUNK_CONCURRENCY", 4),
		HTTPAddr:         e.str("HTTP_ADDR", ":8080"),
		LogMode:          e.str("LOG_MODE", "prod"),

		OpenAIAPIKey: e.must("OPENAI_API_KEY"),
		TextModel:    e.str("OPENAI_TEXT_MODEL", "gpt-4o-mini"),
		SpeechModel:  e.str("OPENAI_SPEECH_MODEL", "tts-1-hd"),
		DefaultVoice: e.str("DEFAULT_VOICE", "onyx"),

		AudioDir:        e.str("AUDIO_DIR", "/tmp/narration/chunks"),
		OutputDir:       e.str("OUTPUT_DIR", "/tmp/narration/output"),
		GCSBucket:       e.str("GCS_BUCKET", ""),
		GCSPrefix:       e.str("GCS_PREFIX", "narrations"),
		GCSEmulatorHost: e.str("STORAGE_EMULATOR_HOST", ""),

		RetryBaseDelay:    e.duration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:     e.duration("RETRY_MAX_DELAY", 5*time.Minute),
		ReaperInterval:    e.duration("REAPER_INTERVAL", 30*time.Second),
		RetryPollInterval: e.duration("RETRY_POLL_INTERVAL", time.Second),
		ProgressMaxAge:    e.duration("PROGRESS_MAX_AGE", 30*time.Minute),
	}
	if len(e.missing) > 0 {
		return c, fmt.Errorf("missing env: %v", e.missing)
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.ChunkConcurrency <= 0 {
		c.ChunkConcurrency = 1
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		return c, errors.New("RETRY_MAX_DELAY must not be below RETRY_BASE_DELAY")
	}
	return c, nil
}

// Redacted is the config line logged at startup.
func (c Config) Redacted() string {
	return fmt.Sprintf("workers=%d chunk_concurrency=%d http_addr=%s redis_addr=%s queue_key=%s processing_key=%s postgres_dsn=%s gcs_bucket=%q",
		c.Workers, c.ChunkConcurrency, c.HTTPAddr, c.RedisAddr, c.QueueKey, c.ProcessingKey, RedactDSN(c.PostgresDSN), c.GCSBucket,
	)
}

var dsnPassword = regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)

// RedactDSN masks the password of a URL-style DSN: user:pass@ -> user:****@.
func RedactDSN(dsn string) string {
	return dsnPassword.ReplaceAllString(dsn, `://$1:****@`)
}

type env struct {
	get     func(string) string
	missing []string
}

func (e *env) must(key string) string {
	v := e.get(key)
	if v == "" {
		e.missing = append(e.missing, key)
	}
	return v
}

func (e *env) str(key, def string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
