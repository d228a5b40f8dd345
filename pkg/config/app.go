package config

import "time"

// Config holds runtime configuration for the API service.
type Config struct {
	Environment    string
	Addr           string
	DatabaseURL    string
	MigrationsDir  string
	JWTSecret      string
	AccessTokenTTL time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
}

// Load constructs a Config from environment variables.
func Load() Config {
	return Config{
		Environment:    GetString("APP_ENV", "development"),
		Addr:           GetString("API_ADDR", ":8080"),
		DatabaseURL:    GetString("DATABASE_URL", "postgres://zhiyin:zhiyin@db:5432/zhiyin?sslmode=disable"),
		MigrationsDir:  GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:      GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL: GetDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RedisAddr:      GetString("REDIS_ADDR", ""),
		RedisPassword:  GetString("REDIS_PASSWORD", ""),
		RedisDB:        GetInt("REDIS_DB", 0),
	}
}
