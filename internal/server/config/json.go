package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/authcore/internal/flagx"
	"github.com/dmitrijs2005/authcore/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Interval fields use timex.Duration, which accepts both strings such as
// "15m" and integer nanoseconds. Pointer and zero-valued fields that are
// absent from the file leave the runtime Config unchanged.
type JsonConfig struct {
	Environment         string         `json:"environment"`
	HTTPAddr            string         `json:"http_addr"`
	GRPCAddr            string         `json:"grpc_addr"`
	StoreDriver         string         `json:"store_driver"`
	DatabaseDSN         string         `json:"database_dsn"`
	DBMaxOpenConns      int            `json:"db_max_open_conns"`
	DBMaxIdleConns      int            `json:"db_max_idle_conns"`
	DBConnMaxLifetime   timex.Duration `json:"db_conn_max_lifetime"`
	StoreTimeout        timex.Duration `json:"store_timeout"`
	SecretKey           string         `json:"secret_key"`
	SecretKeyCiphertext string         `json:"secret_key_ciphertext"`
	AWSRegion           string         `json:"aws_region"`
	KMSEndpoint         string         `json:"kms_endpoint"`
	TokenIssuer         string         `json:"token_issuer"`
	TokenTTL            timex.Duration `json:"token_ttl"`
	SessionTTL          timex.Duration `json:"session_ttl"`
	RefreshTokens       *bool          `json:"refresh_tokens"`
	RequireLiveSession  *bool          `json:"require_live_session"`
	OTPLength           int            `json:"otp_length"`
	OTPTTL              timex.Duration `json:"otp_ttl"`
	SweepInterval       timex.Duration `json:"sweep_interval"`
	BcryptCost          int            `json:"bcrypt_cost"`
	FaceMinScore        *float64       `json:"face_min_score"`
	RedisURL            string         `json:"redis_url"`
	RateLimitMax        int            `json:"rate_limit_max"`
	RateLimitWindow     timex.Duration `json:"rate_limit_window"`
	KafkaBrokers        []string       `json:"kafka_brokers"`
	KafkaOTPTopic       string         `json:"kafka_otp_topic"`
	AllowedOrigins      []string       `json:"allowed_origins"`
	LogBackend          string         `json:"log_backend"`
	LogFormat           string         `json:"log_format"`
	LogLevel            string         `json:"log_level"`
	ShutdownTimeout     timex.Duration `json:"shutdown_timeout"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flag into config. Without the flag nothing is loaded.
func parseJson(config *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", jsonConfigFile, err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.Environment, c.Environment)
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.StoreDriver, c.StoreDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setInt(&config.DBMaxOpenConns, c.DBMaxOpenConns)
	setInt(&config.DBMaxIdleConns, c.DBMaxIdleConns)
	setDuration(&config.DBConnMaxLifetime, c.DBConnMaxLifetime)
	setDuration(&config.StoreTimeout, c.StoreTimeout)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SecretKeyCiphertext, c.SecretKeyCiphertext)
	setString(&config.AWSRegion, c.AWSRegion)
	setString(&config.KMSEndpoint, c.KMSEndpoint)
	setString(&config.TokenIssuer, c.TokenIssuer)
	setDuration(&config.TokenTTL, c.TokenTTL)
	setDuration(&config.SessionTTL, c.SessionTTL)
	if c.RefreshTokens != nil {
		config.RefreshTokens = *c.RefreshTokens
	}
	if c.RequireLiveSession != nil {
		config.RequireLiveSession = *c.RequireLiveSession
	}
	setInt(&config.OTPLength, c.OTPLength)
	setDuration(&config.OTPTTL, c.OTPTTL)
	setDuration(&config.SweepInterval, c.SweepInterval)
	setInt(&config.BcryptCost, c.BcryptCost)
	if c.FaceMinScore != nil {
		config.FaceMinScore = *c.FaceMinScore
	}
	setString(&config.RedisURL, c.RedisURL)
	setInt(&config.RateLimitMax, c.RateLimitMax)
	setDuration(&config.RateLimitWindow, c.RateLimitWindow)
	if len(c.KafkaBrokers) > 0 {
		config.KafkaBrokers = c.KafkaBrokers
	}
	setString(&config.KafkaOTPTopic, c.KafkaOTPTopic)
	if len(c.AllowedOrigins) > 0 {
		config.AllowedOrigins = c.AllowedOrigins
	}
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
