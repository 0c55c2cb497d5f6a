// Package config loads the Trusted Authority core's environment-driven
// configuration, the way node.Config loads and validates its settings,
// generalized to a .env-backed load (joho/godotenv) per
// original_source's dotenv convention.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// FabricMode selects the ledger backing.
type FabricMode string

const (
	FabricMock   FabricMode = "mock"
	FabricFabric FabricMode = "fabric"
)

// Config is the fully resolved, validated configuration for one TA core
// instance.
type Config struct {
	PeerIDs        []string
	FabricMode     FabricMode
	FabricURL      string
	FabricTLS      bool
	JWTSecret      string
	DataDir        string
	HTTPAddr       string
	RequestTimeout time.Duration
	LLMURL         string
	Users          []User
}

// User is one entry of the restored static operator table
// (trusted_authority_service/auth.py), with the password bcrypt-hashed at
// load time rather than stored in plaintext.
type User struct {
	Name         string
	PasswordHash string
	Role         string
}

// defaultUsers restores auth.py's two built-in accounts; passwords are
// hashed by Load, never stored here in plaintext.
var defaultUsers = []struct {
	Name, Password, Role string
}{
	{"admin", "admin", "ADMIN"},
	{"doctor", "doctor", "DOCTOR"},
}

// Load reads process environment (after applying .env at envPath if it
// exists, without overriding variables already set — godotenv.Load's
// default behavior) and returns a validated Config.
func Load(envPath string) (Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return Config{}, fmt.Errorf("config: load %s: %w", envPath, err)
			}
		}
	}

	cfg := Config{
		FabricMode:     FabricMode(strings.ToLower(getEnvDefault("FABRIC_MODE", "mock"))),
		FabricURL:      os.Getenv("FABRIC_REST_URL"),
		FabricTLS:      parseTLSVerify(getEnvDefault("FABRIC_SSL_VERIFY", "true")),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		DataDir:        getEnvDefault("TA_DATA_DIR", "./data"),
		HTTPAddr:       getEnvDefault("TA_HTTP_ADDR", ":8443"),
		LLMURL:         os.Getenv("TA_LLM_URL"),
	}

	timeout, err := parseDurationSeconds(getEnvDefault("TA_REQUEST_TIMEOUT", "30"))
	if err != nil {
		return Config{}, fmt.Errorf("config: TA_REQUEST_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = timeout

	peerIDs, err := resolvePeerIDs()
	if err != nil {
		return Config{}, err
	}
	cfg.PeerIDs = peerIDs

	users, err := resolveUsers()
	if err != nil {
		return Config{}, err
	}
	cfg.Users = users

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.FabricMode {
	case FabricMock, FabricFabric:
	default:
		return fmt.Errorf("config: invalid FABRIC_MODE %q", cfg.FabricMode)
	}
	if cfg.FabricMode == FabricFabric && strings.TrimSpace(cfg.FabricURL) == "" {
		return fmt.Errorf("config: FABRIC_REST_URL is required when FABRIC_MODE=fabric")
	}
	if len(cfg.PeerIDs) < 2 {
		return fmt.Errorf("config: at least 2 peers are required, got %d", len(cfg.PeerIDs))
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("config: TA_REQUEST_TIMEOUT must be > 0")
	}
	return nil
}

func resolvePeerIDs() ([]string, error) {
	if raw := os.Getenv("TA_PEER_IDS"); strings.TrimSpace(raw) != "" {
		var ids []string
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				ids = append(ids, p)
			}
		}
		return ids, nil
	}

	n := 5
	if raw := os.Getenv("TA_NUM_PEERS"); strings.TrimSpace(raw) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("config: TA_NUM_PEERS: %w", err)
		}
		if parsed < 2 {
			return nil, fmt.Errorf("config: TA_NUM_PEERS must be >= 2, got %d", parsed)
		}
		n = parsed
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("peer%d", i+1)
	}
	return ids, nil
}

func parseTLSVerify(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}

func parseDurationSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
