package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authcore/internal/flagx"
)

var serverFlags = []string{"-a", "-g", "-m", "-d", "-s", "-t", "-o", "-r", "-l"}

// ValueFlags lists every flag LoadConfig reads from the command line. Each
// takes a value.
func ValueFlags() []string {
	return append([]string{"-c", "-config"}, serverFlags...)
}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC bind address (e.g., ":50051")
//	-m string   store driver ("postgres" or "memory")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-o int      passcode validity, minutes
//	-r string   Redis URL for attempt limiting
//	-l string   log level
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) error {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port to run server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port to run server")
	fs.StringVar(&config.StoreDriver, "m", config.StoreDriver, "store driver (postgres|memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenTTL := fs.Int("t", int(config.TokenTTL.Minutes()), "token_ttl (in minutes)")
	otpTTL := fs.Int("o", int(config.OTPTTL.Minutes()), "otp_ttl (in minutes)")

	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "Redis URL")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return err
	}

	config.TokenTTL = time.Duration(*tokenTTL) * time.Minute
	config.OTPTTL = time.Duration(*otpTTL) * time.Minute
	return nil
}
