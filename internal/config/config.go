package config

import (
    "time"

    "github.com/spf13/viper"
)

// Config is the process-wide configuration, loaded once at startup and
// never mutated.
type Config struct {
    Server ServerConfig
    Store  StoreConfig
    Redis  RedisConfig
    CNAM   CNAMConfig
    Log    LogConfig
}

type ServerConfig struct {
    Port           int
    RequestTimeout time.Duration
}

type StoreConfig struct {
    URI          string
    MaxOpenConns int
    MaxIdleConns int
    QueryTimeout time.Duration
}

type RedisConfig struct {
    Host     string
    Port     int
    Password string
    DB       int
}

// CNAMConfig carries the lookup API credentials. All three must be set
// for enrichment; anything missing disables it without failing startup.
type CNAMConfig struct {
    ProjectID string
    APIToken  string
    SpaceHost string
}

type LogConfig struct {
    Level string
    File  string
}

// Load reads configuration from the environment with defaults suited
// to a local switch deployment.
func Load() (*Config, error) {
    v := viper.New()

    v.SetDefault("port", 8080)
    v.SetDefault("request_timeout", "3s")
    v.SetDefault("store_uri", "fsrouter:fsrouter@tcp(localhost:3306)/fsrouter?parseTime=true")
    v.SetDefault("store_max_open_conns", 25)
    v.SetDefault("store_max_idle_conns", 5)
    v.SetDefault("store_query_timeout", "500ms")
    v.SetDefault("redis_host", "localhost")
    v.SetDefault("redis_port", 6379)
    v.SetDefault("redis_password", "")
    v.SetDefault("redis_db", 0)
    v.SetDefault("log_level", "info")
    v.SetDefault("log_file", "")

    // the switch-facing options use the documented bare names
    v.BindEnv("port", "PORT")
    v.BindEnv("store_uri", "STORE_URI")
    v.BindEnv("cnam_project_id", "CNAM_PROJECT_ID")
    v.BindEnv("cnam_api_token", "CNAM_API_TOKEN")
    v.BindEnv("cnam_space_host", "CNAM_SPACE_HOST")

    v.SetEnvPrefix("FS_ROUTER")
    v.AutomaticEnv()

    cfg := &Config{
        Server: ServerConfig{
            Port:           v.GetInt("port"),
            RequestTimeout: v.GetDuration("request_timeout"),
        },
        Store: StoreConfig{
            URI:          v.GetString("store_uri"),
            MaxOpenConns: v.GetInt("store_max_open_conns"),
            MaxIdleConns: v.GetInt("store_max_idle_conns"),
            QueryTimeout: v.GetDuration("store_query_timeout"),
        },
        Redis: RedisConfig{
            Host:     v.GetString("redis_host"),
            Port:     v.GetInt("redis_port"),
            Password: v.GetString("redis_password"),
            DB:       v.GetInt("redis_db"),
        },
        CNAM: CNAMConfig{
            ProjectID: v.GetString("cnam_project_id"),
            APIToken:  v.GetString("cnam_api_token"),
            SpaceHost: v.GetString("cnam_space_host"),
        },
        Log: LogConfig{
            Level: v.GetString("log_level"),
            File:  v.GetString("log_file"),
        },
    }

    return cfg, nil
}
