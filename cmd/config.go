package main

import "time"

type Config struct {
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	SearchFilepath            string        `env:"SEARCH_FILEPATH,required=true"`
	LogLevel                  string        `env:"LOG_LEVEL,required=true"`
	JWTSecret                 string        `env:"JWT_SECRET,required=true"`
	ModerationCharReplacement rune          `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
	RedisURL                  string        `env:"REDIS_URL"`
	Host                      string        `env:"HOST,default=localhost"`
	Port                      int           `env:"PORT,default=8080"`
	HealthInterval            time.Duration `env:"HEALTH_INTERVAL,default=1m"`
	PresenceSweepInterval     time.Duration `env:"PRESENCE_SWEEP_INTERVAL,default=30s"`
	ReconcileInterval         time.Duration `env:"RECONCILE_INTERVAL,default=5m"`
	ShutdownTimeout           time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}
