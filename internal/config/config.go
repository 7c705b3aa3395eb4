package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DocumentsBackendSQLite    = "sqlite"
	DocumentsBackendFirestore = "firestore"

	BlobsBackendLocal = "local"
	BlobsBackendGCS   = "gcs"

	CaptureBackendFile    = "file"
	CaptureBackendCommand = "command"

	PermissionAllow  = "allow"
	PermissionDeny   = "deny"
	PermissionPrompt = "prompt"

	DefaultIdentityEndpoint = "https://identitytoolkit.googleapis.com/v1"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	API       APIConfig       `yaml:"api"`
	Identity  IdentityConfig  `yaml:"identity"`
	Documents DocumentsConfig `yaml:"documents"`
	Blobs     BlobsConfig     `yaml:"blobs"`
	Capture   CaptureConfig   `yaml:"capture"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	DevAPI    DevAPIConfig    `yaml:"devapi"`
}

type APIConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	Timeout        time.Duration `yaml:"timeout"`
	RateLimitRPS   float64       `yaml:"rateLimitRPS"`
	RateLimitBurst int           `yaml:"rateLimitBurst"`
}

type IdentityConfig struct {
	APIKey   string `yaml:"apiKey"`
	Endpoint string `yaml:"endpoint"`
}

type DocumentsConfig struct {
	Backend         string `yaml:"backend"`
	ProjectID       string `yaml:"projectID"`
	CredentialsFile string `yaml:"credentialsFile"`
	Collection      string `yaml:"collection"`
}

type BlobsConfig struct {
	Backend         string `yaml:"backend"`
	Bucket          string `yaml:"bucket"`
	Dir             string `yaml:"dir"`
	CredentialsFile string `yaml:"credentialsFile"`
}

type CaptureConfig struct {
	Backend          string        `yaml:"backend"`
	AudioCommand     []string      `yaml:"audioCommand"`
	ImageCommand     []string      `yaml:"imageCommand"`
	FrontDevice      string        `yaml:"frontDevice"`
	RearDevice       string        `yaml:"rearDevice"`
	CameraPolicy     string        `yaml:"cameraPermission"`
	MicrophonePolicy string        `yaml:"microphonePermission"`
	ImageQuality     float64       `yaml:"imageQuality"`
	AudioPreset      string        `yaml:"audioPreset"`
	AudioDuration    time.Duration `yaml:"audioDuration"`
}

type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
	Secret  string `yaml:"secret"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type DevAPIConfig struct {
	ListenAddr string        `yaml:"listenAddr"`
	DBPath     string        `yaml:"dbPath"`
	APIKey     string        `yaml:"apiKey"`
	TokenTTL   time.Duration `yaml:"tokenTTL"`
}

func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://127.0.0.1:8080",
			Timeout:        30 * time.Second,
			RateLimitRPS:   5,
			RateLimitBurst: 5,
		},
		Identity: IdentityConfig{
			Endpoint: DefaultIdentityEndpoint,
		},
		Documents: DocumentsConfig{
			Backend:    DocumentsBackendSQLite,
			Collection: "users",
		},
		Blobs: BlobsConfig{
			Backend: BlobsBackendLocal,
		},
		Capture: CaptureConfig{
			Backend:          CaptureBackendFile,
			FrontDevice:      "front",
			RearDevice:       "rear",
			CameraPolicy:     PermissionPrompt,
			MicrophonePolicy: PermissionPrompt,
			ImageQuality:     0.5,
			AudioPreset:      "high",
			AudioDuration:    30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		DevAPI: DevAPIConfig{
			ListenAddr: "127.0.0.1:8080",
			DBPath:     "verisay-devapi.db",
			APIKey:     "dev-api-key",
			TokenTTL:   time.Hour,
		},
	}
}

// LoadFromPath reads configPath, or the first default candidate that exists, merges it over the
// defaults and applies VERISAY_* overrides. An explicit path that cannot be read is an error;
// missing default candidates are not.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	configPath = strings.TrimSpace(configPath)
	candidates := []string{configPath}
	if configPath == "" {
		candidates = []string{"configs/verisay.yaml"}
		if dir, err := os.UserConfigDir(); err == nil {
			candidates = append(candidates, filepath.Join(dir, "verisay", "config.yaml"))
		}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Merge(dst *Config, src Config) {
	mergeString(&dst.API.BaseURL, src.API.BaseURL)
	if src.API.Timeout > 0 {
		dst.API.Timeout = src.API.Timeout
	}
	if src.API.RateLimitRPS > 0 {
		dst.API.RateLimitRPS = src.API.RateLimitRPS
	}
	if src.API.RateLimitBurst > 0 {
		dst.API.RateLimitBurst = src.API.RateLimitBurst
	}

	mergeString(&dst.Identity.APIKey, src.Identity.APIKey)
	mergeString(&dst.Identity.Endpoint, src.Identity.Endpoint)

	mergeString(&dst.Documents.Backend, src.Documents.Backend)
	mergeString(&dst.Documents.ProjectID, src.Documents.ProjectID)
	mergeString(&dst.Documents.CredentialsFile, src.Documents.CredentialsFile)
	mergeString(&dst.Documents.Collection, src.Documents.Collection)

	mergeString(&dst.Blobs.Backend, src.Blobs.Backend)
	mergeString(&dst.Blobs.Bucket, src.Blobs.Bucket)
	mergeString(&dst.Blobs.Dir, src.Blobs.Dir)
	mergeString(&dst.Blobs.CredentialsFile, src.Blobs.CredentialsFile)

	mergeString(&dst.Capture.Backend, src.Capture.Backend)
	if src.Capture.AudioCommand != nil {
		dst.Capture.AudioCommand = src.Capture.AudioCommand
	}
	if src.Capture.ImageCommand != nil {
		dst.Capture.ImageCommand = src.Capture.ImageCommand
	}
	mergeString(&dst.Capture.FrontDevice, src.Capture.FrontDevice)
	mergeString(&dst.Capture.RearDevice, src.Capture.RearDevice)
	mergeString(&dst.Capture.CameraPolicy, src.Capture.CameraPolicy)
	mergeString(&dst.Capture.MicrophonePolicy, src.Capture.MicrophonePolicy)
	if src.Capture.ImageQuality != 0 {
		dst.Capture.ImageQuality = src.Capture.ImageQuality
	}
	mergeString(&dst.Capture.AudioPreset, src.Capture.AudioPreset)
	if src.Capture.AudioDuration > 0 {
		dst.Capture.AudioDuration = src.Capture.AudioDuration
	}

	mergeString(&dst.Storage.DataDir, src.Storage.DataDir)
	mergeString(&dst.Storage.Secret, src.Storage.Secret)

	mergeString(&dst.Logging.Level, src.Logging.Level)
	mergeString(&dst.Logging.Format, src.Logging.Format)

	mergeString(&dst.Metrics.Textfile, src.Metrics.Textfile)

	mergeString(&dst.DevAPI.ListenAddr, src.DevAPI.ListenAddr)
	mergeString(&dst.DevAPI.DBPath, src.DevAPI.DBPath)
	mergeString(&dst.DevAPI.APIKey, src.DevAPI.APIKey)
	if src.DevAPI.TokenTTL > 0 {
		dst.DevAPI.TokenTTL = src.DevAPI.TokenTTL
	}
}

func ApplyEnvOverrides(cfg *Config) {
	overrideString(&cfg.API.BaseURL, "VERISAY_API_BASE_URL")
	cfg.API.Timeout = envDurationWithFallback("VERISAY_API_TIMEOUT", cfg.API.Timeout)
	cfg.API.RateLimitRPS = envFloatWithFallback("VERISAY_API_RATE_LIMIT_RPS", cfg.API.RateLimitRPS)
	cfg.API.RateLimitBurst = envBoundedIntWithFallback("VERISAY_API_RATE_LIMIT_BURST", cfg.API.RateLimitBurst, 1, 1000)

	overrideString(&cfg.Identity.APIKey, "VERISAY_FIREBASE_API_KEY")
	overrideString(&cfg.Identity.Endpoint, "VERISAY_IDENTITY_ENDPOINT")

	overrideString(&cfg.Documents.Backend, "VERISAY_DOCUMENTS_BACKEND")
	overrideString(&cfg.Documents.ProjectID, "VERISAY_FIRESTORE_PROJECT")

	overrideString(&cfg.Blobs.Backend, "VERISAY_BLOBS_BACKEND")
	overrideString(&cfg.Blobs.Bucket, "VERISAY_GCS_BUCKET")
	overrideString(&cfg.Blobs.Dir, "VERISAY_BLOBS_DIR")

	overrideString(&cfg.Capture.Backend, "VERISAY_CAPTURE_BACKEND")
	if argv := envFields("VERISAY_CAPTURE_AUDIO_COMMAND"); argv != nil {
		cfg.Capture.AudioCommand = argv
	}
	if argv := envFields("VERISAY_CAPTURE_IMAGE_COMMAND"); argv != nil {
		cfg.Capture.ImageCommand = argv
	}
	overrideString(&cfg.Capture.CameraPolicy, "VERISAY_CAMERA_PERMISSION")
	overrideString(&cfg.Capture.MicrophonePolicy, "VERISAY_MICROPHONE_PERMISSION")
	overrideString(&cfg.Capture.AudioPreset, "VERISAY_AUDIO_PRESET")

	overrideString(&cfg.Storage.DataDir, "VERISAY_DATA_DIR")
	overrideString(&cfg.Storage.Secret, "VERISAY_STORAGE_SECRET")

	overrideString(&cfg.Logging.Level, "VERISAY_LOG_LEVEL")
	overrideString(&cfg.Logging.Format, "VERISAY_LOG_FORMAT")

	overrideString(&cfg.Metrics.Textfile, "VERISAY_METRICS_TEXTFILE")

	overrideString(&cfg.DevAPI.ListenAddr, "VERISAY_DEVAPI_ADDR")
	overrideString(&cfg.DevAPI.DBPath, "VERISAY_DEVAPI_DB")
	overrideString(&cfg.DevAPI.APIKey, "VERISAY_DEVAPI_KEY")
}

func (c Config) Validate() error {
	checks := []struct {
		field string
		value string
		allow []string
	}{
		{"documents.backend", c.Documents.Backend, []string{DocumentsBackendSQLite, DocumentsBackendFirestore}},
		{"blobs.backend", c.Blobs.Backend, []string{BlobsBackendLocal, BlobsBackendGCS}},
		{"capture.backend", c.Capture.Backend, []string{CaptureBackendFile, CaptureBackendCommand}},
		{"capture.cameraPermission", c.Capture.CameraPolicy, []string{PermissionAllow, PermissionDeny, PermissionPrompt}},
		{"capture.microphonePermission", c.Capture.MicrophonePolicy, []string{PermissionAllow, PermissionDeny, PermissionPrompt}},
		{"capture.audioPreset", c.Capture.AudioPreset, []string{"high", "low"}},
		{"logging.format", c.Logging.Format, []string{"text", "json"}},
	}
	for _, check := range checks {
		if !oneOf(check.value, check.allow) {
			return fmt.Errorf("%w: %s=%q, want one of %s", ErrInvalidConfig, check.field, check.value, strings.Join(check.allow, "|"))
		}
	}
	if c.Capture.ImageQuality <= 0 || c.Capture.ImageQuality > 1 {
		return fmt.Errorf("%w: capture.imageQuality must be in (0,1], got %v", ErrInvalidConfig, c.Capture.ImageQuality)
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("%w: storage.dataDir is empty", ErrInvalidConfig)
	}
	if c.Documents.Backend == DocumentsBackendFirestore && strings.TrimSpace(c.Documents.ProjectID) == "" {
		return fmt.Errorf("%w: documents.projectID is required for firestore", ErrInvalidConfig)
	}
	if c.Blobs.Backend == BlobsBackendGCS && strings.TrimSpace(c.Blobs.Bucket) == "" {
		return fmt.Errorf("%w: blobs.bucket is required for gcs", ErrInvalidConfig)
	}
	if c.Capture.Backend == CaptureBackendCommand && (len(c.Capture.AudioCommand) == 0 || len(c.Capture.ImageCommand) == 0) {
		return fmt.Errorf("%w: capture commands are required for the command backend", ErrInvalidConfig)
	}
	return nil
}

// SessionPath is where the persisted session lives inside the data directory.
func (c Config) SessionPath() string {
	return filepath.Join(c.Storage.DataDir, "session.json")
}

func (c Config) CaptureDir() string {
	return filepath.Join(c.Storage.DataDir, "captures")
}

func (c Config) LocalDBPath() string {
	return filepath.Join(c.Storage.DataDir, "verisay.db")
}

func (c *Config) resolvePaths() {
	c.Storage.DataDir = expandHome(c.Storage.DataDir)
	if strings.TrimSpace(c.Blobs.Dir) == "" {
		c.Blobs.Dir = filepath.Join(c.Storage.DataDir, "blobs")
	}
	c.Blobs.Dir = expandHome(c.Blobs.Dir)
	c.Documents.Backend = strings.ToLower(c.Documents.Backend)
	c.Blobs.Backend = strings.ToLower(c.Blobs.Backend)
	c.Capture.Backend = strings.ToLower(c.Capture.Backend)
	c.Capture.CameraPolicy = strings.ToLower(c.Capture.CameraPolicy)
	c.Capture.MicrophonePolicy = strings.ToLower(c.Capture.MicrophonePolicy)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "verisay")
	}
	return ".verisay"
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func mergeString(dst *string, src string) {
	if v := strings.TrimSpace(src); v != "" {
		*dst = v
	}
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
