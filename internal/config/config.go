package config // package config loads application configuration from environment variables

import (
	"log"      // log is used to report configuration errors and halt execution
	"os"       // os provides access to environment variables
	"strconv"  // strconv converts strings to other types
	"time"     // time parses TTL durations
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints and durations
// for lifetimes.
type Config struct {
	Env                string        // application environment (e.g. "dev", "prod")
	Port               string        // HTTP port to listen on
	DBUser             string        // database username
	DBPass             string        // database password (optional)
	DBHost             string        // database host address
	DBPort             string        // database port number
	DBName             string        // database name
	GoogleClientID     string        // OAuth client id issued by Google
	GoogleClientSecret string        // OAuth client secret issued by Google
	RedirectURI        string        // OAuth callback URL registered with the provider
	SessionTTLDays     int           // session lifetime in days
	StateTTL           time.Duration // lifetime of pending CSRF states and unclaimed handoffs
	BcryptCost         int           // bcrypt cost for password hashing
	RabbitURL          string        // AMQP broker URL (empty disables the provisioning queue)
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Optional values fall
// back to the defaults the original deployment used.
func Load() Config {
	return Config{
		Env:                must("APP_ENV"),              // environment (dev/test/prod)
		Port:               getenv("APP_PORT", "8000"),   // port to bind the HTTP server
		DBUser:             must("DB_USER"),              // database user
		DBPass:             os.Getenv("DB_PASS"),         // database password (empty allowed)
		DBHost:             must("DB_HOST"),              // database host
		DBPort:             must("DB_PORT"),              // database port
		DBName:             must("DB_NAME"),              // database name
		GoogleClientID:     must("GOOGLE_CLIENT_ID"),     // provider client id
		GoogleClientSecret: must("GOOGLE_CLIENT_SECRET"), // provider client secret
		RedirectURI:        getenv("REDIRECT_URI", "http://localhost:8000/auth/callback"),
		SessionTTLDays:     atoiDefault("SESSION_TTL_DAYS", 30),
		StateTTL:           parseDur(getenv("AUTH_STATE_TTL", "10m")),
		BcryptCost:         atoiDefault("BCRYPT_COST", 10),
		RabbitURL:          os.Getenv("RABBITMQ_URL"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// getenv returns the value of an environment variable or a default when the
// variable is unset or empty.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// atoiDefault converts an optional environment variable to an int, falling
// back to def when the variable is unset.  A value that is present but not
// numeric is a configuration mistake and aborts startup.
func atoiDefault(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// parseDur parses a duration string, defaulting to ten minutes on error.
func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}
