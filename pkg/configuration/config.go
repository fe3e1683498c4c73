// Package configuration loads and serves INI-style settings. All
// getters are safe to call before Initialize and return the supplied
// default in that case.
package configuration

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds the parsed settings grouped by section.
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// Initialize loads the configuration file, creating it with defaults
// when missing. A settings.local.cfg next to the binary overrides
// individual values without touching the base file.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		globalConfig, err = loadConfig(configPath)
		if err != nil {
			return
		}
		localConfigPath := "settings.local.cfg"
		if _, statErr := os.Stat(localConfigPath); statErr == nil {
			// Overrides are best effort; the base config stays usable.
			globalConfig.loadLocalConfig(localConfigPath)
		}
	})
	return err
}

func loadConfig(filePath string) (*Config, error) {
	config := &Config{
		settings: make(map[string]map[string]string),
		filePath: filePath,
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		config.createDefaultConfig()
		if err := config.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %v", err)
		}
		return config, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := parseInto(file, config.settings); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadLocalConfig(filePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	return parseInto(file, c.settings)
}

// parseInto reads INI lines from r into settings, overwriting
// existing keys. Lines starting with ; or # are comments.
func parseInto(file *os.File, settings map[string]map[string]string) error {
	scanner := bufio.NewScanner(file)
	currentSection := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = line[1 : len(line)-1]
			if settings[currentSection] == nil {
				settings[currentSection] = make(map[string]string)
			}
			continue
		}
		if strings.Contains(line, "=") && currentSection != "" {
			parts := strings.SplitN(line, "=", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			settings[currentSection][key] = value
		}
	}
	return scanner.Err()
}

// createDefaultConfig populates the settings a fresh install needs.
func (c *Config) createDefaultConfig() {
	c.settings["Server"] = map[string]string{
		"listen_address":     ":8080",
		"enable_tls":         "false",
		"tls_cert_file":      "",
		"tls_key_file":       "",
		"static_dir":         "static",
		"shutdown_timeout":   "10s",
		"read_header_limit":  "8192",
		"allow_origin_hosts": "",
	}

	c.settings["Authentication"] = map[string]string{
		"max_username_length":  "20",
		"min_username_length":  "3",
		"max_password_length":  "100",
		"min_password_length":  "6",
		"password_hash_cost":   "12",
		"enable_guest_access":  "true",
		"session_token_hours":  "24",
	}

	c.settings["Database"] = map[string]string{
		"path":             "claroterm.db",
		"busy_timeout_ms":  "5000",
		"max_script_bytes": "262144",
	}

	c.settings["Interpreter"] = map[string]string{
		"max_call_depth":         "64",
		"context_check_interval": "1000",
		"output_buffer_size":     "4096",
	}

	c.settings["Terminal"] = map[string]string{
		"max_sessions_per_ip":          "5",
		"session_inactivity_timeout":   "30m",
		"pong_timeout":                 "90s",
		"write_wait_timeout":           "10s",
		"max_message_size_kb":          "64",
	}

	c.settings["Debug"] = map[string]string{
		"enable_debug_logging": "true",
		"log_level":            "INFO",
		"log_file":             "debug.log",
		"max_log_size_mb":      "10",
		"log_rotation_count":   "3",
		"log_websocket":        "false",
		"log_terminal":         "false",
		"log_interpreter":      "false",
		"log_auth":             "true",
		"log_database":         "false",
		"log_filesystem":       "false",
		"log_session":          "false",
		"log_config":           "true",
		"log_general":          "true",
	}
}

func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	file.WriteString("; ClaroTerm Configuration File\n")
	file.WriteString("; Generated automatically - modify with care\n")
	file.WriteString(";\n\n")

	sections := []string{"Server", "Authentication", "Database", "Interpreter", "Terminal", "Debug"}
	for _, section := range sections {
		if settings, exists := c.settings[section]; exists {
			file.WriteString(fmt.Sprintf("[%s]\n", section))
			for key, value := range settings {
				file.WriteString(fmt.Sprintf("%s = %s\n", key, value))
			}
			file.WriteString("\n")
		}
	}
	return nil
}

// GetString returns a string value from the configuration.
func GetString(section, key, defaultValue string) string {
	if globalConfig == nil {
		return defaultValue
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	if sectionMap, exists := globalConfig.settings[section]; exists {
		if value, exists := sectionMap[key]; exists {
			return value
		}
	}
	return defaultValue
}

// GetInt returns an integer value from the configuration.
func GetInt(section, key string, defaultValue int) int {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(str); err == nil {
		return value
	}
	return defaultValue
}

// GetFloat returns a float value from the configuration.
func GetFloat(section, key string, defaultValue float64) float64 {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseFloat(str, 64); err == nil {
		return value
	}
	return defaultValue
}

// GetBool returns a boolean value from the configuration.
func GetBool(section, key string, defaultValue bool) bool {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(str); err == nil {
		return value
	}
	return defaultValue
}

// GetDuration returns a duration value from the configuration.
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(str); err == nil {
		return value
	}
	return defaultValue
}

// GetSection returns a copy of all key-value pairs in a section.
func GetSection(sectionName string) map[string]string {
	if globalConfig == nil {
		return make(map[string]string)
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	result := make(map[string]string)
	for key, value := range globalConfig.settings[sectionName] {
		result[key] = value
	}
	return result
}

// SetString sets a string value in the configuration.
func SetString(section, key, value string) {
	if globalConfig == nil {
		return
	}

	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()

	if globalConfig.settings[section] == nil {
		globalConfig.settings[section] = make(map[string]string)
	}
	globalConfig.settings[section][key] = value
}

// Save writes the current configuration back to the file.
func Save() error {
	if globalConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	return globalConfig.saveToFile()
}
