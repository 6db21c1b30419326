// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the bridge service.
type Config struct {
	// Slack
	SlackBotToken   string
	SlackChannelID  string
	SlackAPIBaseURL string

	// Email provider
	EmailAPIKey     string
	EmailAPIBaseURL string

	// Redis thread store. Empty falls back to the in-memory store, which
	// loses mappings on restart and cannot serve multiple instances.
	RedisURL string

	// Postgres user preference store. Empty disables preference lookups.
	DatabaseURL string

	// Bridge behaviour
	AvatarBaseURL        string
	DefaultSendingDomain string
	EmojiCacheTTL        time.Duration
	HTTPTimeout          time.Duration

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Slack struct {
		BotToken  string `yaml:"bot_token"`
		ChannelID string `yaml:"channel_id"`
		APIURL    string `yaml:"api_url"`
	} `yaml:"slack"`
	Email struct {
		APIKey string `yaml:"api_key"`
		APIURL string `yaml:"api_url"`
	} `yaml:"email"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Bridge struct {
		AvatarURL     string `yaml:"avatar_url"`
		SendingDomain string `yaml:"sending_domain"`
	} `yaml:"bridge"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. The YAML file is optional; environment variables
// alone are enough for a full configuration.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// Env-only configuration.
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	cfg := &Config{
		SlackBotToken:        firstNonEmpty(raw.Slack.BotToken, os.Getenv("SLACK_BOT_TOKEN")),
		SlackChannelID:       firstNonEmpty(raw.Slack.ChannelID, os.Getenv("SLACK_CHANNEL_ID")),
		SlackAPIBaseURL:      firstNonEmpty(raw.Slack.APIURL, os.Getenv("SLACK_API_URL")),
		EmailAPIKey:          firstNonEmpty(raw.Email.APIKey, os.Getenv("EMAIL_API_KEY")),
		EmailAPIBaseURL:      firstNonEmpty(raw.Email.APIURL, os.Getenv("EMAIL_API_URL")),
		RedisURL:             firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		DatabaseURL:          firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		AvatarBaseURL:        firstNonEmpty(raw.Bridge.AvatarURL, envOrDefault("AVATAR_URL", "https://useravatar.vercel.app")),
		DefaultSendingDomain: firstNonEmpty(raw.Bridge.SendingDomain, envOrDefault("SENDING_DOMAIN", "inbound.new")),
		EmojiCacheTTL:        envOrDefaultDuration("EMOJI_CACHE_TTL", time.Hour),
		HTTPTimeout:          envOrDefaultDuration("HTTP_TIMEOUT", 30*time.Second),
		Port:                 envOrDefaultInt("PORT", 8080),
	}

	if cfg.SlackBotToken == "" {
		return nil, fmt.Errorf("slack bot token is required — set SLACK_BOT_TOKEN or slack.bot_token")
	}
	if cfg.SlackChannelID == "" {
		return nil, fmt.Errorf("slack channel ID is required — set SLACK_CHANNEL_ID or slack.channel_id")
	}
	if cfg.EmailAPIKey == "" {
		return nil, fmt.Errorf("email API key is required — set EMAIL_API_KEY or email.api_key")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
