package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 2*time.Hour, cfg.Session.Expiration)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.PersistentExpiration)
	assert.Equal(t, int64(5*1024*1024), cfg.Uploads.MaxFileSize)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SESSION_EXPIRATION", "90m")
	v.Set("SESSION_PERSISTENT_EXPIRATION", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	v.Set("UPLOADS_MAX_FILE_SIZE", 0)

	cfg := fromViper(v)
	assert.Equal(t, 90*time.Minute, cfg.Session.Expiration)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.PersistentExpiration)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, int64(5*1024*1024), cfg.Uploads.MaxFileSize)
}

func TestValidateProductionSecrets(t *testing.T) {
	strong := strings.Repeat("s", minSecretLength)
	cases := map[string]struct {
		env           string
		session       string
		uploads       string
		wantErrSubstr []string
	}{
		"development keeps defaults": {env: EnvDevelopment, session: devSessionSecret, uploads: devUploadsSecret},
		"production defaults rejected": {
			env: EnvProduction, session: devSessionSecret, uploads: devUploadsSecret,
			wantErrSubstr: []string{"SESSION_SECRET must be set", "UPLOADS_SIGNED_URL_SECRET must be set"},
		},
		"production short session secret": {
			env: EnvProduction, session: "short", uploads: strong,
			wantErrSubstr: []string{"SESSION_SECRET must be at least 32 bytes"},
		},
		"production empty uploads secret": {
			env: EnvProduction, session: strong, uploads: "",
			wantErrSubstr: []string{"UPLOADS_SIGNED_URL_SECRET must be set"},
		},
		"production strong secrets": {env: EnvProduction, session: strong, uploads: strong + "u"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			v.Set("ENV", tc.env)
			v.Set("SESSION_SECRET", tc.session)
			v.Set("UPLOADS_SIGNED_URL_SECRET", tc.uploads)

			err := fromViper(v).Validate()
			if len(tc.wantErrSubstr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tc.wantErrSubstr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
