package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Database DatabaseSettings `json:"database"`
	Cache    CacheSettings    `json:"cache"`
	Trakt    TraktSettings    `json:"trakt"`
	Metadata MetadataSettings `json:"metadata"`
	History  HistorySettings  `json:"history"`
	Queues   QueueSettings    `json:"queues"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseSettings defines the sqlite database location.
type DatabaseSettings struct {
	Path string `json:"path"`
}

// CacheSettings configures the response cache store and per-provider TTLs.
// TTL strings accept "<n>d" or "<n>h" only; anything else is a load error.
type CacheSettings struct {
	Directory   string `json:"directory"`
	MetadataTTL string `json:"metadataTtl"`
	ListTTL     string `json:"listTtl"`
}

type TraktSettings struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type MetadataSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey"`
	FanartKey  string `json:"fanartKey"`
	Language   string `json:"language"`
}

// HistorySettings drives the watch-history synchronizer.
type HistorySettings struct {
	SyncInterval string `json:"syncInterval"` // "<n>h" or "<n>d"
	Marker       string `json:"marker"`       // prefix for watched items
}

// QueueLimit configures one gateway queue: at most Concurrent in-flight
// calls, and at most Requests per Per-duration.
type QueueLimit struct {
	Concurrent int `json:"concurrent"`
	Requests   int `json:"requests"`
	PerSeconds int `json:"perSeconds"`
}

type QueueSettings struct {
	TraktGET  QueueLimit `json:"traktGet"`
	TraktPOST QueueLimit `json:"traktPost"`
	TMDB      QueueLimit `json:"tmdb"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

var ErrPathRequired = errors.New("settings path not provided")

// ParseInterval converts a "<n>d" or "<n>h" duration string into a
// time.Duration. Any other unit, or a malformed number, is an error; callers
// must treat that as fatal rather than defaulting.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q: expected \"<n>d\" or \"<n>h\"", s)
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration %q: expected \"<n>d\" or \"<n>h\"", s)
	}
	switch unit {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid duration %q: unit must be 'd' or 'h'", s)
	}
}

// MetadataTTL returns the parsed metadata cache TTL.
func (s *Settings) MetadataTTL() (time.Duration, error) {
	return ParseInterval(s.Cache.MetadataTTL)
}

// ListTTL returns the parsed list/catalog cache TTL.
func (s *Settings) ListTTL() (time.Duration, error) {
	return ParseInterval(s.Cache.ListTTL)
}

// SyncInterval returns the parsed history sync cooldown.
func (s *Settings) SyncInterval() (time.Duration, error) {
	return ParseInterval(s.History.SyncInterval)
}

// Rate returns the queue's per-call interval derived from requests/perSeconds.
func (q QueueLimit) Rate() (events float64, burst int) {
	per := q.PerSeconds
	if per <= 0 {
		per = 1
	}
	reqs := q.Requests
	if reqs <= 0 {
		reqs = 1
	}
	return float64(reqs) / float64(per), reqs
}

func defaultSettings() Settings {
	return Settings{
		Server:   ServerSettings{Host: "0.0.0.0", Port: 7000},
		Database: DatabaseSettings{Path: filepath.Join("cache", "showdeck.db")},
		Cache: CacheSettings{
			Directory:   filepath.Join("cache", "responses"),
			MetadataTTL: "7d",
			ListTTL:     "12h",
		},
		Metadata: MetadataSettings{Language: "en"},
		History:  HistorySettings{SyncInterval: "12h", Marker: "✔ "},
		Queues: QueueSettings{
			TraktGET:  QueueLimit{Concurrent: 10, Requests: 50, PerSeconds: 5},
			TraktPOST: QueueLimit{Concurrent: 2, Requests: 1, PerSeconds: 1},
			TMDB:      QueueLimit{Concurrent: 15, Requests: 40, PerSeconds: 1},
		},
		Log: LogConfig{MaxSize: 20, MaxAge: 14, MaxBackups: 3, Compress: true},
	}
}

// Manager loads and persists Settings from a JSON file.
type Manager struct {
	mu   sync.Mutex
	path string
}

// NewManager creates a settings manager for the given file path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads settings from disk, creating defaults when the file is missing.
// Malformed duration strings are reported here so startup can fail fast.
func (m *Manager) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(m.path) == "" {
		return Settings{}, ErrPathRequired
	}

	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		settings := defaultSettings()
		if err := m.saveLocked(settings); err != nil {
			return Settings{}, err
		}
		return settings, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	settings := defaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	if err := validate(settings); err != nil {
		return Settings{}, err
	}

	return settings, nil
}

// Save persists settings to disk.
func (m *Manager) Save(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(settings)
}

func (m *Manager) saveLocked(settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

func validate(s Settings) error {
	if _, err := ParseInterval(s.Cache.MetadataTTL); err != nil {
		return fmt.Errorf("cache.metadataTtl: %w", err)
	}
	if _, err := ParseInterval(s.Cache.ListTTL); err != nil {
		return fmt.Errorf("cache.listTtl: %w", err)
	}
	if _, err := ParseInterval(s.History.SyncInterval); err != nil {
		return fmt.Errorf("history.syncInterval: %w", err)
	}
	return nil
}
