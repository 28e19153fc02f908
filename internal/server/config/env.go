package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays values from environment variables. A .env file in the
// working directory is loaded first if present; real environment variables
// win over the file, which is godotenv's default.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("HTTP_ADDR", &config.EndpointAddrHTTP)
	setString("DATABASE_DSN", &config.DatabaseDSN)
	setString("ACCESS_TOKEN_SECRET", &config.AccessTokenSecret)
	setString("REFRESH_TOKEN_SECRET", &config.RefreshTokenSecret)
	setDuration("ACCESS_TOKEN_EXPIRY", &config.AccessTokenValidityDuration)
	setDuration("REFRESH_TOKEN_EXPIRY", &config.RefreshTokenValidityDuration)
	setString("S3_ACCESS_KEY", &config.S3AccessKey)
	setString("S3_SECRET_KEY", &config.S3SecretKey)
	setString("S3_BUCKET", &config.S3Bucket)
	setString("S3_REGION", &config.S3Region)
	setString("S3_ENDPOINT", &config.S3BaseEndpoint)
	setString("UPLOAD_DIR", &config.UploadDir)
}
