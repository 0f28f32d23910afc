package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OutputDir    string
	CacheDir     string
	RequestDelay time.Duration
	Publish      PublishConfig
}

type PublishConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	outputDir := flag.String("out", "outputs", "dataset output directory")
	cacheDir := flag.String("cache", ".cache", "download cache directory")
	publish := flag.Bool("publish", false, "upload the finished dataset to object storage")
	flag.Parse()

	if v := strings.TrimSpace(os.Getenv("ANDROIDINFO_OUTPUT_DIR")); v != "" {
		*outputDir = v
	}
	if v := strings.TrimSpace(os.Getenv("ANDROIDINFO_CACHE_DIR")); v != "" {
		*cacheDir = v
	}

	delay := 500 * time.Millisecond
	if v := strings.TrimSpace(os.Getenv("ANDROIDINFO_REQUEST_DELAY_MS")); v != "" {
		ms, err := strconv.Atoi(v)
		if err == nil && ms >= 0 {
			delay = time.Duration(ms) * time.Millisecond
		}
	}

	return &Config{
		OutputDir:    *outputDir,
		CacheDir:     *cacheDir,
		RequestDelay: delay,
		Publish:      loadPublishConfig(*publish),
	}, nil
}

func loadPublishConfig(enabled bool) PublishConfig {
	return PublishConfig{
		Enabled:   enabled,
		Endpoint:  strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT")),
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "androidinfo-datasets"),
		UseSSL:    resolveUseSSL(),
	}
}

func resolveUseSSL() bool {
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
