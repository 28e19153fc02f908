package config

import (
	"encoding/json"
	"os"

	"github.com/asavelyev/mediahub/internal/flagx"
	"github.com/asavelyev/mediahub/internal/timex"
)

// JsonConfig is the DTO for the optional JSON config file. Duration fields
// accept both "15m" strings and integer nanoseconds; zero values leave the
// current config untouched.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	AccessTokenSecret            string         `json:"access_token_secret"`
	RefreshTokenSecret           string         `json:"refresh_token_secret"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3AccessKey                  string         `json:"s3_access_key"`
	S3SecretKey                  string         `json:"s3_secret_key"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	UploadDir                    string         `json:"upload_dir"`
}

// parseJson loads configuration from the JSON file named by the -c/-config
// flags. When no flag is given, nothing is loaded. A file that cannot be
// read or parsed is a startup error and panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setIfNotEmpty := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	setIfNotEmpty(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setIfNotEmpty(&config.DatabaseDSN, c.DatabaseDSN)
	setIfNotEmpty(&config.AccessTokenSecret, c.AccessTokenSecret)
	setIfNotEmpty(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	setIfNotEmpty(&config.S3AccessKey, c.S3AccessKey)
	setIfNotEmpty(&config.S3SecretKey, c.S3SecretKey)
	setIfNotEmpty(&config.S3Bucket, c.S3Bucket)
	setIfNotEmpty(&config.S3Region, c.S3Region)
	setIfNotEmpty(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setIfNotEmpty(&config.UploadDir, c.UploadDir)
}
