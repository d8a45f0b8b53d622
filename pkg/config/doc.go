// Package config loads and validates the service configuration.
//
// # Sources
//
// Values are resolved with viper, highest precedence first:
//
//  1. command-line flags (--port)
//  2. environment variables prefixed with TASKMANAGER_
//  3. a config file given with --config or TASKMANAGER_CONFIG
//  4. built-in defaults
//
// A .env file (or the one named by --env-file) is loaded with godotenv before
// the environment is read. Variables already present in the process win.
//
// # Keys
//
//	TASKMANAGER_JWT_SECRET="..."              # required, at least 32 bytes
//	TASKMANAGER_JWT_TTL="168h"
//	TASKMANAGER_DATABASE_DRIVER="postgres"    # postgres or sqlite3
//	TASKMANAGER_DATABASE_URL="postgres://localhost/taskmanager"
//	TASKMANAGER_SERVER_PORT="8080"
//	TASKMANAGER_SERVER_HEALTH_PORT="9090"
//	TASKMANAGER_SERVER_CORS_ORIGINS="https://app.example.com,https://admin.example.com"
//	TASKMANAGER_REDIS_URL="redis://localhost:6379/0"
//	TASKMANAGER_RATELIMIT_LOGIN_PER_MINUTE="10"
//	TASKMANAGER_PASSWORD_SCHEME="argon2id"   # argon2id or sha256
//	TASKMANAGER_AUDIT_DIR="/var/log/taskmanager" # optional audit.log directory
//	TASKMANAGER_LOG_LEVEL="info"
//	TASKMANAGER_OTEL_ENABLED="true"
//	TASKMANAGER_OTEL_ENDPOINT="otel-collector:4317"
//
// The same keys can be written in a config file using their dotted form:
//
//	jwt:
//	  secret: "..."
//	database:
//	  driver: postgres
//	  url: postgres://localhost/taskmanager
//
// # Usage Example
//
//	cfg, err := config.Load(os.Args[1:])
//	if err != nil {
//		log.Fatalf("invalid configuration: %v", err)
//	}
//	fmt.Println(cfg.Server.Addr())
package config
