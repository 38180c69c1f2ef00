// Package config resolves the middleware's dotted-path configuration
// options with precedence account-override > primary-override > global
// > built-in default. It generalizes the teacher's flat JSON/YAML Config
// struct into a layered Resolver while keeping the same file-loading and
// validation idiom.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults are the built-in fallback layer, consulted when no global,
// primary, or account override supplies a value.
var Defaults = map[string]string{
	"blockSize":                        "200",
	"maxNumConnections":                "4",
	"imapTimeout":                      "0",
	"imapConnectionTimeout":            "0",
	"imapTemporaryDown":                "0",
	"failedAuthTimeout":                "10000",
	"imapAuthEnc":                      "UTF-8",
	"imapSupportsACL":                  "auto",
	"imapFastFetch":                    "false",
	"imapSearch":                       "true",
	"imapSort":                         "imap",
	"propagateClientIPAddress":         "false",
	"enableTls":                        "true",
	"auditLog.enabled":                 "false",
	"debugLog.enabled":                 "false",
	"allowFolderCaches":                "true",
	"allowFetchSingleHeaders":          "true",
	"attachmentMarker.enabled":         "false",
	"breaker.enabled":                  "true",
	"breaker.failureThreshold":         "5",
	"breaker.failureExecutions":        "10",
	"breaker.successThreshold":         "3",
	"breaker.successExecutions":        "5",
	"breaker.delayMillis":              "10000",
	"breaker.primary.applyPerEndpoint": "false",
	"metrics.enabled":                  "true",
	"metrics.groupByPrimaryHosts":      "false",
	"metrics.groupByPrimaryEndpoints":  "false",
	"metrics.measureExternalAccounts":  "true",
	"metrics.groupByExternalHosts":     "false",
	"metrics.groupByCommands":          "true",
	"metrics.commandWhitelist":         "",
	"refthreader.cache.enabled":        "true",
	"refthreader.cache.prefillCache":   "true",
	"useImapThreaderIfSupported":       "true",
	"includeSharedInboxExplicitly":     "false",
	"ignoreDeleted":                    "true",
}

// Layer is one precedence tier of dotted-path string values.
type Layer map[string]string

// Resolver resolves option values with precedence:
// account override > primary override > global > built-in default.
type Resolver struct {
	Account map[int64]Layer
	Primary Layer
	Global  Layer
	builtin Layer
}

// NewResolver builds a Resolver seeded with the built-in defaults.
func NewResolver() *Resolver {
	return &Resolver{
		Account: make(map[int64]Layer),
		Primary: make(Layer),
		Global:  make(Layer),
		builtin: Defaults,
	}
}

// Get resolves a dotted-path option for the given account, falling
// through the precedence chain. ok is false only if no layer, including
// the built-in defaults, has the key.
func (r *Resolver) Get(accountID int64, key string) (string, bool) {
	if layer, found := r.Account[accountID]; found {
		if v, ok := layer[key]; ok {
			return v, true
		}
	}
	if v, ok := r.Primary[key]; ok {
		return v, true
	}
	if v, ok := r.Global[key]; ok {
		return v, true
	}
	if v, ok := r.builtin[key]; ok {
		return v, true
	}
	return "", false
}

// GetBool resolves key and parses it as a bool, defaulting to def on any
// missing or unparsable value.
func (r *Resolver) GetBool(accountID int64, key string, def bool) bool {
	v, ok := r.Get(accountID, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetInt resolves key and parses it as an int, defaulting to def.
func (r *Resolver) GetInt(accountID int64, key string, def int) int {
	v, ok := r.Get(accountID, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetDuration resolves key (milliseconds) and parses it as a Duration.
func (r *Resolver) GetDuration(accountID int64, key string, def time.Duration) time.Duration {
	ms := r.GetInt(accountID, key, -1)
	if ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// SetAccount installs account-scoped overrides, merging into any
// existing layer for that account.
func (r *Resolver) SetAccount(accountID int64, overrides Layer) {
	layer, ok := r.Account[accountID]
	if !ok {
		layer = make(Layer)
		r.Account[accountID] = layer
	}
	for k, v := range overrides {
		layer[k] = v
	}
}

// Credentials holds IMAP connection data for one account, kept from the
// teacher's Credentials struct.
type Credentials struct {
	Label  string `json:"label" yaml:"label"`
	Server string `json:"server" yaml:"server"`
	User   string `json:"user" yaml:"user"`
	Pass   string `json:"pass" yaml:"pass"`
}

// FileConfig is the on-disk document shape: account credentials plus a
// flat "options" map that seeds the global layer.
type FileConfig struct {
	AccountID int64             `json:"accountId" yaml:"accountId"`
	Primary   Credentials       `json:"primary" yaml:"primary"`
	Options   map[string]string `json:"options" yaml:"options"`
}

// Load reads a JSON or YAML file at path and returns a FileConfig,
// following the teacher's extension-sniffing New() loader.
func Load(path string) (*FileConfig, error) {
	filePath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", path, err)
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file %q does not exist", filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", filePath, err)
	}

	var cfg FileConfig
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid JSON in config file %q: %w", filePath, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in config file %q: %w", filePath, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format %q; supported: .json, .yaml, .yml", ext)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks required fields, mirroring the teacher's Config.validate.
func (c *FileConfig) validate() error {
	if c.Primary.Server == "" {
		return fmt.Errorf("primary server is required")
	}
	if c.Primary.User == "" {
		return fmt.Errorf("primary user is required")
	}
	if c.Primary.Pass == "" {
		return fmt.Errorf("primary password is required")
	}
	return nil
}

// ToResolver builds a Resolver whose global layer is seeded from the
// file's Options map.
func (c *FileConfig) ToResolver() *Resolver {
	r := NewResolver()
	for k, v := range c.Options {
		r.Global[k] = v
	}
	return r
}
