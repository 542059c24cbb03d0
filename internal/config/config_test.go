package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(Prefix+"_"+k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, map[string]string{
		"CLIENT_ID":     "1234-abcd.apps.googleusercontent.com",
		"CLIENT_SECRET": "s3cr3t",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := &Config{
		ClientID:      "1234-abcd.apps.googleusercontent.com",
		ClientSecret:  "s3cr3t",
		Scope:         "https://www.googleapis.com/auth/calendar.readonly",
		AuthHost:      "accounts.google.com",
		AuthPort:      443,
		AuthPath:      "/o/oauth2/device/code",
		TokenHost:     "www.googleapis.com",
		TokenPort:     443,
		TokenPath:     "/oauth2/v4/token",
		GrantType:     "http://oauth.net/grant_type/device/1.0",
		ReadTimeout:   1500 * time.Millisecond,
		DialTimeout:   10 * time.Second,
		StoreBackend:  StoreFile,
		StorePath:     "credentials.img",
		RedisKey:      "device-auth:credentials",
		StoreCapacity: 512,
		LogLevel:      "info",
		LogFormat:     "console",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:    "missing client id",
			env:     map[string]string{"CLIENT_SECRET": "s"},
			wantErr: true,
		},
		{
			name: "redis without url",
			env: map[string]string{
				"CLIENT_ID": "id", "CLIENT_SECRET": "s", "STORE": "redis",
			},
			wantErr: true,
		},
		{
			name: "unknown backend",
			env: map[string]string{
				"CLIENT_ID": "id", "CLIENT_SECRET": "s", "STORE": "eeprom",
			},
			wantErr: true,
		},
		{
			name: "zero read timeout",
			env: map[string]string{
				"CLIENT_ID": "id", "CLIENT_SECRET": "s", "READ_TIMEOUT": "0s",
			},
			wantErr: true,
		},
		{
			name: "redis with overrides",
			env: map[string]string{
				"CLIENT_ID":     "id",
				"CLIENT_SECRET": "s",
				"STORE":         "redis",
				"REDIS_URL":     "redis://localhost:6379/0",
				"STORE_OFFSET":  "16",
				"READ_TIMEOUT":  "3s",
				"TOKEN_HOST":    "oauth2.googleapis.com",
				"TOKEN_PATH":    "/token",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.StoreOffset != 16 || cfg.ReadTimeout != 3*time.Second {
					t.Errorf("overrides not applied: %+v", cfg)
				}
				if cfg.TokenHost != "oauth2.googleapis.com" || cfg.TokenPath != "/token" {
					t.Errorf("token endpoint not overridden: %+v", cfg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
