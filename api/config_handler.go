package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/seenimoa/finanalyst/internal/config"
)

// configMu serialises access to the running config.
var configMu sync.Mutex

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config          *config.Config `json:"config"`
	ConfigFile      string         `json:"config_file"`
	RestartRequired bool           `json:"restart_required,omitempty"`
}

// ConfigUpdate lists the settings the dashboard may change. Nil fields are
// left alone.
type ConfigUpdate struct {
	Model       *string  `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	CacheTTL    *int     `json:"cache_ttl,omitempty"`
	CacheOn     *bool    `json:"cache_enabled,omitempty"`
	LogLevel    *string  `json:"log_level,omitempty"`
}

// handleGetConfig returns the running configuration. The API key is
// excluded by its json:"-" tag.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configMu.Lock()
	defer configMu.Unlock()
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ConfigResponse{Config: s.cfg, ConfigFile: s.cfg.FilePath()},
	})
}

// handleUpdateConfig applies a ConfigUpdate to a copy of the running
// config and persists it. Running agents keep their settings until the
// next start.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var upd ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if msg := upd.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	configMu.Lock()
	defer configMu.Unlock()

	next := *s.cfg
	upd.apply(&next)

	path := s.cfg.FilePath()
	if err := config.SaveToFile(&next, path); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save config: "+err.Error())
		return
	}
	s.logger.Info().Str("path", path).Msg("configuration saved")

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ConfigResponse{Config: &next, ConfigFile: path, RestartRequired: true},
	})
}

// handleGetConfigKeys returns whether the API key is set, masked.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckAPIKeys(s.cfg),
	})
}

func (u ConfigUpdate) validate() string {
	switch {
	case u.Model != nil && strings.TrimSpace(*u.Model) == "":
		return "model must not be empty"
	case u.Temperature != nil && (*u.Temperature < 0 || *u.Temperature > 2):
		return "temperature must be between 0 and 2"
	case u.MaxTokens != nil && *u.MaxTokens <= 0:
		return "max_tokens must be positive"
	case u.CacheTTL != nil && *u.CacheTTL < 0:
		return "cache_ttl must not be negative"
	}
	if u.LogLevel != nil {
		if _, err := zerolog.ParseLevel(strings.ToLower(*u.LogLevel)); err != nil || *u.LogLevel == "" {
			return "unknown log level " + *u.LogLevel
		}
	}
	return ""
}

func (u ConfigUpdate) apply(c *config.Config) {
	if u.Model != nil {
		c.LLM.Model = strings.TrimSpace(*u.Model)
	}
	if u.Temperature != nil {
		c.LLM.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		c.LLM.MaxTokens = *u.MaxTokens
	}
	if u.CacheTTL != nil {
		c.Cache.TTL = *u.CacheTTL
	}
	if u.CacheOn != nil {
		c.Cache.Enabled = *u.CacheOn
	}
	if u.LogLevel != nil {
		c.Logging.Level = strings.ToLower(*u.LogLevel)
	}
}
