// Package config handles configuration loading for bankd.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from NORTHBRIDGE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/northbridge/bankd.yaml
//  3. ~/.config/northbridge/bankd.yaml
//
// A .env file placed in the same directory as the config file is loaded
// before expansion. Variables already present in the environment are kept.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${NORTHBRIDGE_JWT_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8080"
//	  cors_origins: ["http://localhost:3000"]
//	  auth_rate_limit: 30  # /auth requests per client IP per minute, 0 disables
//
//	database:
//	  path: "/var/lib/northbridge/bank.db"
//
//	auth:
//	  jwt_secret: "${NORTHBRIDGE_JWT_SECRET}"  # at least 32 bytes
//	  token_ttl: "30m"
//	  admin_email: "admin@northbridge.com"
//	  bcrypt_cost: 12  # optional, defaults to bcrypt.DefaultCost
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// The returned *Config is immutable by convention; components receive the
// sub-structs they need at construction time.
package config
