package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/jira-worklog/pkg/cache"
	"github.com/Sternrassler/jira-worklog/pkg/jira"
	"github.com/Sternrassler/jira-worklog/pkg/logging"
	"github.com/Sternrassler/jira-worklog/pkg/worklog"
)

// config is the process configuration, read from the environment and
// overridden by flags.
type config struct {
	JiraURL      string
	JiraUsername string
	JiraPassword string
	UserParam    string
	RedisURL     string
	Port         string
	LogLevel     string
	LogPretty    bool
	RateLimit    float64
	Timeout      time.Duration
}

func configFromEnv() config {
	return config{
		JiraURL:      getEnv("JIRA_URL", ""),
		JiraUsername: getEnv("JIRA_USERNAME", ""),
		JiraPassword: getEnv("JIRA_PASSWORD", ""),
		UserParam:    getEnv("JIRA_USER_PARAM", "key"),
		RedisURL:     getEnv("REDIS_URL", ""),
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getEnvBool("LOG_PRETTY", false),
		RateLimit:    getEnvFloat("JIRA_RATE_LIMIT", 0),
		Timeout:      30 * time.Second,
	}
}

var cfg = configFromEnv()

var rootCmd = &cobra.Command{
	Use:   "worklog-server",
	Short: "Aggregate issue tracker worklogs per project and period",
	Long: `worklog-server resolves the work logged on a tracker project into a flat
list of localized, classified entries. It serves them over HTTP or exports
them as XLSX/JSON.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logging.Config{
			Level:  logging.LogLevel(cfg.LogLevel),
			Pretty: cfg.LogPretty,
			Output: os.Stderr,
		})
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.JiraURL, "jira-url", cfg.JiraURL, "Tracker base URL (JIRA_URL)")
	flags.StringVar(&cfg.JiraUsername, "jira-username", cfg.JiraUsername, "Tracker user (JIRA_USERNAME)")
	flags.StringVar(&cfg.UserParam, "user-param", cfg.UserParam, "Query parameter for user lookups (JIRA_USER_PARAM)")
	flags.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis address or URL for a shared cache (REDIS_URL)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error (LOG_LEVEL)")
	flags.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "Human readable logs (LOG_PRETTY)")
	flags.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Max tracker requests per second, 0 for none (JIRA_RATE_LIMIT)")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout per tracker request")

	rootCmd.AddCommand(serveCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired components.
type app struct {
	tracker    *jira.Client
	aggregator *worklog.Aggregator
	redis      *redis.Client
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
}

// newApp wires cache, tracker client and aggregator from cfg.
func newApp(ctx context.Context, cfg config) (*app, error) {
	if cfg.JiraURL == "" {
		return nil, fmt.Errorf("tracker url is required (set JIRA_URL or --jira-url)")
	}

	a := &app{}

	var manager *cache.Manager
	var err error
	if cfg.RedisURL != "" {
		a.redis, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info().Str("redis", cfg.RedisURL).Msg("Connected to Redis")
		manager, err = cache.NewRedisManager(a.redis, cache.DefaultConfig())
	} else {
		manager, err = cache.NewManager(cache.DefaultConfig())
	}
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	jiraCfg := jira.DefaultConfig(cfg.JiraURL)
	jiraCfg.Username = cfg.JiraUsername
	jiraCfg.Password = cfg.JiraPassword
	jiraCfg.UserParam = cfg.UserParam
	jiraCfg.RateLimit = cfg.RateLimit
	if cfg.Timeout > 0 {
		jiraCfg.Timeout = cfg.Timeout
	}

	a.tracker, err = jira.New(jiraCfg, manager)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create tracker client: %w", err)
	}
	a.aggregator = worklog.NewAggregator(a.tracker)

	return a, nil
}

// newRedisClient accepts a redis:// URL or a plain host:port address.
func newRedisClient(addr string) (*redis.Client, error) {
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}
