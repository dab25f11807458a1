// Copyright (c) 2026 Skywalkers Paragliding
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

	"gopkg.in/yaml.v3"
)

// SMTPConfig holds outbound email credentials.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// WhatsAppConfig holds WhatsApp Business Cloud API credentials.
type WhatsAppConfig struct {
	APIVersion    string `yaml:"api_version"`
	PhoneNumberID string `yaml:"phone_number_id"`
	AccessToken   string `yaml:"access_token"`
	VerifyToken   string `yaml:"verify_token"`
}

// CalendarConfig holds Google Calendar service-account settings.
type CalendarConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	CalendarID      string `yaml:"calendar_id"`
}

// AuthConfig holds the Supabase auth endpoint and admin policy settings.
type AuthConfig struct {
	SupabaseURL string `yaml:"supabase_url"`
	ServiceKey  string `yaml:"service_key"`
	AdminEmail  string `yaml:"admin_email"`
}

// Config holds all configuration for the message hub service.
type Config struct {
	DatabaseURL string
	RedisURL    string
	NotifyQueue string

	SMTP       SMTPConfig
	WhatsApp   WhatsAppConfig
	Calendar   CalendarConfig
	Auth       AuthConfig
	ChatbotURL string
	AppURL     string

	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Notifications string `yaml:"notifications"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Calendar CalendarConfig `yaml:"calendar"`
	Auth     AuthConfig     `yaml:"auth"`
	Chatbot  struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"chatbot"`
	App struct {
		PublicURL string `yaml:"public_url"`
	} `yaml:"app"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. The YAML file is optional;
// every setting has an environment fallback.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		// env-only deployment
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		DatabaseURL: firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		NotifyQueue: firstNonEmpty(raw.Redis.Queues.Notifications, envOrDefault("NOTIFY_QUEUE", "dashboard:notifications")),
		SMTP:        raw.SMTP,
		WhatsApp:    raw.WhatsApp,
		Calendar:    raw.Calendar,
		Auth:        raw.Auth,
		ChatbotURL:  firstNonEmpty(raw.Chatbot.WebhookURL, os.Getenv("CHATBOT_WEBHOOK_URL")),
		AppURL:      firstNonEmpty(raw.App.PublicURL, os.Getenv("PUBLIC_APP_URL")),
		Port:        envOrDefaultInt("PORT", 8080),
	}

	cfg.SMTP.Host = firstNonEmpty(cfg.SMTP.Host, os.Getenv("SMTP_HOST"))
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = envOrDefaultInt("SMTP_PORT", 587)
	}
	cfg.SMTP.Username = firstNonEmpty(cfg.SMTP.Username, os.Getenv("SMTP_USERNAME"))
	cfg.SMTP.Password = firstNonEmpty(cfg.SMTP.Password, os.Getenv("SMTP_PASSWORD"))
	cfg.SMTP.From = firstNonEmpty(cfg.SMTP.From, os.Getenv("SMTP_FROM"), cfg.SMTP.Username)

	cfg.WhatsApp.APIVersion = firstNonEmpty(cfg.WhatsApp.APIVersion, envOrDefault("WHATSAPP_API_VERSION", "v21.0"))
	cfg.WhatsApp.PhoneNumberID = firstNonEmpty(cfg.WhatsApp.PhoneNumberID, os.Getenv("WHATSAPP_PHONE_NUMBER_ID"))
	cfg.WhatsApp.AccessToken = firstNonEmpty(cfg.WhatsApp.AccessToken, os.Getenv("WHATSAPP_ACCESS_TOKEN"))
	cfg.WhatsApp.VerifyToken = firstNonEmpty(cfg.WhatsApp.VerifyToken, os.Getenv("WHATSAPP_VERIFY_TOKEN"))

	cfg.Calendar.CredentialsFile = firstNonEmpty(cfg.Calendar.CredentialsFile, os.Getenv("GOOGLE_CREDENTIALS_FILE"))
	cfg.Calendar.CalendarID = firstNonEmpty(cfg.Calendar.CalendarID, os.Getenv("GOOGLE_CALENDAR_ID"))

	cfg.Auth.SupabaseURL = firstNonEmpty(cfg.Auth.SupabaseURL, os.Getenv("SUPABASE_URL"))
	cfg.Auth.ServiceKey = firstNonEmpty(cfg.Auth.ServiceKey, os.Getenv("SUPABASE_SERVICE_KEY"))
	cfg.Auth.AdminEmail = firstNonEmpty(cfg.Auth.AdminEmail, os.Getenv("ADMIN_EMAIL"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required — set database.url or DATABASE_URL")
	}
	if cfg.Auth.AdminEmail == "" {
		return nil, fmt.Errorf("admin email is required — set auth.admin_email or ADMIN_EMAIL")
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
