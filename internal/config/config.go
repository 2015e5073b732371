package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed face.yaml
var faceYAML []byte

type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Face     FaceConfig
	LogLevel string
}

type HTTPConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // origins allowed by CORS in addition to localhost
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWEnabled   bool   // Keep an in-memory HNSW index of descriptors per role
	HNSWIndexPath string // Directory to persist HNSW graphs (optional)
}

type AuthConfig struct {
	SecretKey     string
	TokenLifetime time.Duration
	DevSecret     bool // true when SecretKey fell back to the development default
}

// FaceConfig holds the face extraction and matching policy.
type FaceConfig struct {
	ServiceURL          string          `yaml:"service_url"`
	Dim                 int             `yaml:"dim"`
	LoginTolerance      float64         `yaml:"login_tolerance"`
	AttendanceTolerance float64         `yaml:"attendance_tolerance"`
	DuplicateTolerance  float64         `yaml:"duplicate_tolerance"`
	MatchPolicy         string          `yaml:"match_policy"`
	EmployeeDedup       bool            `yaml:"employee_dedup"`
	Normalize           NormalizeConfig `yaml:"normalize"`
}

type NormalizeConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// defaultFaceConfig decodes the embedded face policy.
func defaultFaceConfig() FaceConfig {
	var face FaceConfig
	if err := yaml.Unmarshal(faceYAML, &face); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded face.yaml: " + err.Error())
	}
	return face
}

func Load() *Config {
	face := defaultFaceConfig()
	face.ServiceURL = envString("FACE_SERVICE_URL", face.ServiceURL)
	face.Dim = envInt("FACE_DESCRIPTOR_DIM", face.Dim)
	face.LoginTolerance = envFloat("FACE_LOGIN_TOLERANCE", face.LoginTolerance)
	face.AttendanceTolerance = envFloat("FACE_ATTENDANCE_TOLERANCE", face.AttendanceTolerance)
	face.DuplicateTolerance = envFloat("FACE_DUPLICATE_TOLERANCE", face.DuplicateTolerance)
	face.MatchPolicy = envString("FACE_MATCH_POLICY", face.MatchPolicy)
	face.EmployeeDedup = envBool("FACE_EMPLOYEE_DEDUP", face.EmployeeDedup)
	face.Normalize.Width = envInt("FACE_NORMALIZE_WIDTH", face.Normalize.Width)
	face.Normalize.Height = envInt("FACE_NORMALIZE_HEIGHT", face.Normalize.Height)

	secret := os.Getenv("SECRET_KEY")
	devSecret := secret == ""
	if devSecret {
		secret = constants.DevSecretKey
	}

	return &Config{
		HTTP: HTTPConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", constants.DefaultPort),
			AllowedOrigins: splitList(os.Getenv("WEB_ALLOWED_ORIGINS")),
			RequestTimeout: time.Duration(envInt("WEB_REQUEST_TIMEOUT", constants.DefaultRequestTimeout)) * time.Second,
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWEnabled:   envBool("HNSW_ENABLED", false),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Auth: AuthConfig{
			SecretKey:     secret,
			TokenLifetime: constants.TokenLifetime,
			DevSecret:     devSecret,
		},
		Face:     face,
		LogLevel: envString("LOG_LEVEL", "info"),
	}
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable is required"))
	}
	if c.Face.Dim <= 0 {
		errs = append(errs, fmt.Errorf("face descriptor dimension must be positive, got %d", c.Face.Dim))
	}
	if c.Face.LoginTolerance < 0 || c.Face.AttendanceTolerance < 0 || c.Face.DuplicateTolerance < 0 {
		errs = append(errs, errors.New("face tolerances must not be negative"))
	}
	switch c.Face.MatchPolicy {
	case constants.MatchPolicyFirst, constants.MatchPolicyNearest:
	default:
		errs = append(errs, fmt.Errorf("unknown face match policy %q", c.Face.MatchPolicy))
	}
	if c.Face.Normalize.Width <= 0 || c.Face.Normalize.Height <= 0 {
		errs = append(errs, errors.New("face normalization size must be positive"))
	}
	return errors.Join(errs...)
}
