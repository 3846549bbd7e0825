package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr  string
	RedisAddr string
	RedisPass string

	SmsURL      string
	SmsAPIKey   string
	SmsSenderID string
	SmsUserID   string
	SmsPassword string

	UploadDir     string
	PublicBaseURL string

	FanoutWorkers int
	DigestCron    string
}

func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("Broadcast: No .env file found, relying on system env vars")
	}
	return AppConfig{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8021"),
		RedisAddr: getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass: getEnv("REDIS_PASS", ""),

		SmsURL:      getEnv("SMS_API_URL", ""),
		SmsAPIKey:   getEnv("SMS_API_KEY", ""),
		SmsSenderID: getEnv("SMS_SENDER_ID", ""),
		SmsUserID:   getEnv("SMS_USER_ID", ""),
		SmsPassword: getEnv("SMS_PASSWORD", ""),

		UploadDir:     getEnv("UPLOAD_DIR", "/app/uploads"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8021"),

		FanoutWorkers: getEnvAsInt("FANOUT_WORKERS", 10),
		DigestCron:    getEnv("DIGEST_CRON", "0 20 * * *"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
