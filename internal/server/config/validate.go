package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.SecretKey == "" {
		add("secret key must not be empty")
	} else if c.SecretKey == DefaultSecretKey && !c.IsDevelopment() {
		add("default secret key is not allowed in %s", c.Environment)
	}
	if !slices.Contains([]string{DriverPostgres, DriverMemory}, c.StoreDriver) {
		add("unknown store driver %q", c.StoreDriver)
	}
	if c.StoreDriver == DriverPostgres && c.DatabaseDSN == "" {
		add("database DSN is required for the postgres driver")
	}
	if c.StoreDriver == DriverMemory && !c.IsDevelopment() {
		add("memory store is not allowed in %s", c.Environment)
	}
	if c.DBMaxOpenConns <= 0 {
		add("db max open conns must be positive")
	}
	if c.StoreTimeout <= 0 {
		add("store timeout must be positive")
	}
	if c.TokenTTL <= 0 {
		add("token ttl must be positive")
	}
	if c.SessionTTL < 0 {
		add("session ttl must not be negative")
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		add("otp length %d out of range [4,10]", c.OTPLength)
	}
	if c.OTPTTL <= 0 {
		add("otp ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		add("sweep interval must be positive")
	}
	if c.FaceMinScore < 0 || c.FaceMinScore > 1 {
		add("face min score %.2f out of range [0,1]", c.FaceMinScore)
	}
	if c.RedisURL != "" && (c.RateLimitMax <= 0 || c.RateLimitWindow <= 0) {
		add("rate limit max and window must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaOTPTopic == "" {
		add("kafka otp topic is required when brokers are set")
	}
	if !slices.Contains([]string{"slog", "zap"}, c.LogBackend) {
		add("unknown log backend %q", c.LogBackend)
	}

	return errors.Join(errs...)
}
