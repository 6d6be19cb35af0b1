package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	// Downloads
	DownloadDir     string
	SvtplayDLPath   string
	WorkerCount     int
	JobTimeout      time.Duration
	DefaultQuality  string
	DefaultSubtitle bool

	// Profiles are kept in Postgres when DatabaseURL is set, otherwise in ProfilesFile
	ProfilesFile string
	DatabaseURL  string

	// Redis backs the job mirror and the probe cache; empty disables both
	RedisURL      string
	ProbeCacheTTL time.Duration

	// MinIO/S3 archive; empty endpoint disables it
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	BrowseRoot      string
	SubmitRateLimit float64
	SubmitRateBurst int
	CORSOrigins     []string
}

// Load reads configuration from the environment, after applying an
// optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return fromEnv(), nil
}

func fromEnv() *Config {
	workerCount, _ := strconv.Atoi(getEnvOrDefault("MAX_CONCURRENT_DOWNLOADS", "3"))
	if workerCount <= 0 {
		workerCount = 3
	}

	subtitle, err := strconv.ParseBool(getEnvOrDefault("DEFAULT_SUBTITLE", "true"))
	if err != nil {
		subtitle = true
	}

	minioUseSSL, _ := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", "false"))

	rateLimit, err := strconv.ParseFloat(getEnvOrDefault("SUBMIT_RATE_LIMIT", "2"), 64)
	if err != nil || rateLimit <= 0 {
		rateLimit = 2
	}
	rateBurst, err := strconv.Atoi(getEnvOrDefault("SUBMIT_RATE_BURST", "5"))
	if err != nil || rateBurst <= 0 {
		rateBurst = 5
	}

	return &Config{
		ServerAddr:      getEnvOrDefault("SERVER_ADDR", "0.0.0.0:5000"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		DownloadDir:     getEnvOrDefault("DOWNLOAD_DIR", "./downloads"),
		SvtplayDLPath:   getEnvOrDefault("SVTPLAY_DL_PATH", "svtplay-dl"),
		WorkerCount:     workerCount,
		JobTimeout:      getDurationOrDefault("JOB_TIMEOUT", 2*time.Hour),
		DefaultQuality:  getEnvOrDefault("DEFAULT_QUALITY", "best"),
		DefaultSubtitle: subtitle,
		ProfilesFile:    getEnvOrDefault("PROFILES_FILE", "./profiles.json"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ProbeCacheTTL:   getDurationOrDefault("PROBE_CACHE_TTL", 10*time.Minute),
		MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     getEnvOrDefault("MINIO_BUCKET", "svtfetch"),
		MinioUseSSL:     minioUseSSL,
		BrowseRoot:      getEnvOrDefault("BROWSE_ROOT", "/"),
		SubmitRateLimit: rateLimit,
		SubmitRateBurst: rateBurst,
		CORSOrigins:     splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
