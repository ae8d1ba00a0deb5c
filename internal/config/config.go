package config

import (
	"bufio"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config centralises runtime configuration.
type Config struct {
	HTTPPort        string
	BaseURL         string
	StorageDriver   string
	DatabaseURL     string
	JWTSecret       string
	JWTIssuer       string
	JWTExpiry       time.Duration
	AllowedOrigins  []string
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int

	LogLevel  string
	LogFormat string

	Credentials CredentialConfig
	Users       UserPolicy
	Login       LoginThrottle
	Picture     PictureConfig
	S3          S3Config
	SMTP        SMTPConfig
}

// CredentialConfig selects the bcrypt work factor.
type CredentialConfig struct {
	CostMode    string
	BcryptCost  int
	RememberTTL time.Duration
}

// UserPolicy holds the validation limits for user records.
type UserPolicy struct {
	NameMaxLength     int
	EmailMaxLength    int
	PasswordMinLength int
}

// LoginThrottle configures the redis-backed login limiter. An empty RedisURL disables it.
type LoginThrottle struct {
	RedisURL    string
	MaxAttempts int
	Window      time.Duration
}

// PictureConfig bounds uploaded pictures.
type PictureConfig struct {
	MaxWidth  int
	MaxHeight int
	MaxBytes  int64
	MaxPixels int64
	URLExpiry time.Duration
	// Dir is the filesystem root for pictures when no S3 bucket is configured.
	Dir string
}

// S3Config points at the picture bucket. An empty Bucket keeps pictures on local disk.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// SMTPConfig configures activation mail. An empty Addr logs deliveries instead of sending.
type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

// Load reads configuration from environment variables providing sane defaults.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	httpPort := getEnv("HTTP_PORT", "")
	if httpPort == "" {
		httpPort = getEnv("PORT", "8080")
	}

	cfg := Config{
		HTTPPort:        httpPort,
		BaseURL:         strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:"+strings.TrimPrefix(httpPort, ":")), "/"),
		StorageDriver:   strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		DatabaseURL:     resolveDatabaseURL(),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "sampleapp"),
		JWTExpiry:       getDurationEnv("JWT_EXPIRY", 12*time.Hour),
		AllowedOrigins:  splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ReadTimeoutSec:  getIntEnv("HTTP_READ_TIMEOUT", 15),
		WriteTimeoutSec: getIntEnv("HTTP_WRITE_TIMEOUT", 15),
		IdleTimeoutSec:  getIntEnv("HTTP_IDLE_TIMEOUT", 60),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		Credentials: CredentialConfig{
			CostMode:    strings.ToLower(getEnv("HASH_COST_MODE", "strong")),
			BcryptCost:  getIntEnv("BCRYPT_COST", 10),
			RememberTTL: getDurationEnv("REMEMBER_TTL", 20*365*24*time.Hour),
		},
		Users: UserPolicy{
			NameMaxLength:     getIntEnv("USER_NAME_MAX_LENGTH", 50),
			EmailMaxLength:    getIntEnv("USER_EMAIL_MAX_LENGTH", 255),
			PasswordMinLength: getIntEnv("USER_PASSWORD_MIN_LENGTH", 6),
		},
		Login: LoginThrottle{
			RedisURL:    getEnv("REDIS_URL", ""),
			MaxAttempts: getIntEnv("LOGIN_MAX_ATTEMPTS", 5),
			Window:      getDurationEnv("LOGIN_WINDOW", 15*time.Minute),
		},
		Picture: PictureConfig{
			MaxWidth:  getIntEnv("PICTURE_MAX_WIDTH", 400),
			MaxHeight: getIntEnv("PICTURE_MAX_HEIGHT", 400),
			MaxBytes:  int64(getIntEnv("PICTURE_MAX_BYTES", 5<<20)),
			MaxPixels: int64(getIntEnv("PICTURE_MAX_PIXELS", 25_000_000)),
			URLExpiry: getDurationEnv("PICTURE_URL_EXPIRY", 15*time.Minute),
			Dir:       getEnv("PICTURE_DIR", "public"),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Bucket:    getEnv("S3_BUCKET", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
		SMTP: SMTPConfig{
			Addr:     getEnv("SMTP_ADDR", ""),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "noreply@example.com"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database configuration missing: provide DATABASE_URL or PG* env vars")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Credentials.CostMode {
	case "fast", "strong":
	default:
		return fmt.Errorf("HASH_COST_MODE must be fast or strong, got %q", c.Credentials.CostMode)
	}
	if c.Users.PasswordMinLength < 1 {
		return fmt.Errorf("USER_PASSWORD_MIN_LENGTH must be positive")
	}
	if c.Picture.MaxWidth < 1 || c.Picture.MaxHeight < 1 || c.Picture.MaxPixels < 1 {
		return fmt.Errorf("picture limits must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := []string{}
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return []string{"*"}
	}
	return parts
}

func resolveDatabaseURL() string {
	for _, key := range []string{"DATABASE_URL", "POSTGRES_URL", "PGURL"} {
		if url := coerceDatabaseURL(os.Getenv(key)); url != "" {
			return url
		}
	}
	if url := coerceDatabaseURL(readEnvFile("DATABASE_URL_FILE")); url != "" {
		return url
	}

	host := firstNonEmpty(os.Getenv("PGHOST"), os.Getenv("POSTGRES_HOST"))
	user := firstNonEmpty(os.Getenv("PGUSER"), os.Getenv("POSTGRES_USER"))
	if host == "" || user == "" {
		return ""
	}
	password := firstNonEmpty(os.Getenv("PGPASSWORD"), os.Getenv("POSTGRES_PASSWORD"))
	database := firstNonEmpty(os.Getenv("PGDATABASE"), os.Getenv("POSTGRES_DB"), user)
	port := firstNonEmpty(os.Getenv("PGPORT"), os.Getenv("POSTGRES_PORT"), "5432")
	sslMode := firstNonEmpty(os.Getenv("PGSSLMODE"), "disable")

	dsn := &neturl.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + database,
		User:   neturl.User(user),
	}
	if password != "" {
		dsn.User = neturl.UserPassword(user, password)
	}
	query := dsn.Query()
	query.Set("sslmode", sslMode)
	dsn.RawQuery = query.Encode()
	return dsn.String()
}

func coerceDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "postgres://"):
		return raw
	case strings.HasPrefix(raw, "postgresql://"):
		return "postgres://" + strings.TrimPrefix(raw, "postgresql://")
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func readEnvFile(key string) string {
	path := os.Getenv(key)
	if path == "" {
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func loadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf(".env line %d: missing '='", lineNum)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return fmt.Errorf(".env line %d: empty key", lineNum)
		}
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		// Real environment wins over .env.
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf(".env line %d: %w", lineNum, err)
		}
	}
	return scanner.Err()
}
