package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ConfigPath string
	Simulation bool
	Watchlist  []string

	Capital        float64
	RiskPerTrade   float64
	MaxPositions   int
	DailyLossLimit float64
	KillSwitch     bool

	FastEMA       int
	SlowEMA       int
	StopLossPct   float64
	TakeProfitPct float64

	ScanInterval      time.Duration
	BarInterval       time.Duration
	Lookback          time.Duration
	PollInterval      time.Duration
	ErrorBackoff      time.Duration
	ReconcileInterval time.Duration

	MarketOpen  Clock
	MarketClose Clock
	ForceExitAt Clock
	Timezone    string
	Location    *time.Location

	TradesPath     string
	DecisionsPath  string
	CheckpointPath string
	LogPath        string
	LogLevel       string
	MetricsAddr    string

	TelegramToken  string
	TelegramChatID string

	APIKey       string
	APISecret    string
	BaseURL      string
	DataURL      string
	Feed         string
	OrderType    string
	TimeInForce  string
	APIRateLimit int
	Seed         int64
}

// setting binds one Config field to a flag name (also the YAML key), its
// environment variables and a default.
type setting struct {
	name  string
	env   []string
	def   string
	usage string
	set   func(cfg *Config, value string) error
}

var settings = []setting{
	{"simulation", []string{"SIMULATION", "MOCK_TRADING"}, "true", "simulated venue, synthetic data, market always open", boolVar(func(c *Config) *bool { return &c.Simulation })},
	{"watchlist", []string{"WATCHLIST"}, "AAPL,MSFT,NVDA,AMZN,GOOGL", "comma separated symbols, evaluated in order", func(c *Config, v string) error {
		c.Watchlist = parseWatchlist(v)
		return nil
	}},
	{"capital", []string{"CAPITAL"}, "50000", "trading capital", floatVar(func(c *Config) *float64 { return &c.Capital })},
	{"risk-per-trade", []string{"RISK_PER_TRADE"}, "0.02", "fraction of capital risked per trade", floatVar(func(c *Config) *float64 { return &c.RiskPerTrade })},
	{"max-positions", []string{"MAX_POSITIONS"}, "3", "max concurrently open positions", intVar(func(c *Config) *int { return &c.MaxPositions })},
	{"daily-loss-limit", []string{"DAILY_LOSS_LIMIT"}, "0.05", "fraction of capital; entries stop once daily pnl reaches its negative", floatVar(func(c *Config) *float64 { return &c.DailyLossLimit })},
	{"kill-switch", []string{"KILL_SWITCH"}, "false", "if true, never open new positions", boolVar(func(c *Config) *bool { return &c.KillSwitch })},
	{"fast-ema", []string{"FAST_EMA_PERIOD"}, "9", "fast EMA span", intVar(func(c *Config) *int { return &c.FastEMA })},
	{"slow-ema", []string{"SLOW_EMA_PERIOD"}, "21", "slow EMA span", intVar(func(c *Config) *int { return &c.SlowEMA })},
	{"stop-loss-pct", []string{"STOP_LOSS_PCT"}, "0.01", "stop-loss distance below entry", floatVar(func(c *Config) *float64 { return &c.StopLossPct })},
	{"take-profit-pct", []string{"TAKE_PROFIT_PCT"}, "0.02", "take-profit distance above entry", floatVar(func(c *Config) *float64 { return &c.TakeProfitPct })},
	{"scan-interval-minutes", []string{"SCAN_INTERVAL_MINUTES"}, "5", "minutes between evaluation cycles", func(c *Config, v string) error {
		minutes, err := strconv.Atoi(v)
		c.ScanInterval = time.Duration(minutes) * time.Minute
		return err
	}},
	{"bar-interval", []string{"BAR_INTERVAL"}, "5m", "bar size requested from the data source", durationVar(func(c *Config) *time.Duration { return &c.BarInterval })},
	{"lookback", []string{"LOOKBACK"}, "120h", "history window fetched per cycle", durationVar(func(c *Config) *time.Duration { return &c.Lookback })},
	{"poll-interval", []string{"POLL_INTERVAL"}, "30s", "scheduler polling quantum", durationVar(func(c *Config) *time.Duration { return &c.PollInterval })},
	{"error-backoff", []string{"ERROR_BACKOFF"}, "60s", "sleep after a failed job", durationVar(func(c *Config) *time.Duration { return &c.ErrorBackoff })},
	{"reconcile-interval", []string{"RECONCILE_INTERVAL"}, "10m", "live mode ledger/venue reconciliation interval", durationVar(func(c *Config) *time.Duration { return &c.ReconcileInterval })},
	{"market-open", []string{"MARKET_OPEN"}, "09:30", "market open, HH:MM in market timezone", clockVar(func(c *Config) *Clock { return &c.MarketOpen })},
	{"market-close", []string{"MARKET_CLOSE"}, "16:00", "market close, HH:MM in market timezone", clockVar(func(c *Config) *Clock { return &c.MarketClose })},
	{"force-exit-at", []string{"FORCE_EXIT_AT"}, "15:15", "daily forced liquidation time, HH:MM", clockVar(func(c *Config) *Clock { return &c.ForceExitAt })},
	{"timezone", []string{"MARKET_TZ"}, "America/New_York", "IANA timezone of the market clock", func(c *Config, v string) error {
		loc, err := time.LoadLocation(v)
		c.Timezone, c.Location = v, loc
		return err
	}},
	{"trades-path", []string{"TRADES_FILE"}, "logs/trades.csv", "trade journal CSV", stringVar(func(c *Config) *string { return &c.TradesPath })},
	{"decisions-path", []string{"DECISIONS_FILE"}, "logs/decisions.ndjson", "per-symbol decision log", stringVar(func(c *Config) *string { return &c.DecisionsPath })},
	{"checkpoint-path", []string{"CHECKPOINT_FILE"}, "logs/positions.json", "open positions checkpoint", stringVar(func(c *Config) *string { return &c.CheckpointPath })},
	{"log-path", []string{"LOG_FILE"}, "logs/system.log", "system log file, empty for stdout only", stringVar(func(c *Config) *string { return &c.LogPath })},
	{"log-level", []string{"LOG_LEVEL"}, "info", "debug, info, warn or error", stringVar(func(c *Config) *string { return &c.LogLevel })},
	{"metrics-addr", []string{"METRICS_ADDR"}, ":9090", "prometheus listen address, empty disables", stringVar(func(c *Config) *string { return &c.MetricsAddr })},
	{"telegram-token", []string{"TELEGRAM_BOT_TOKEN"}, "", "telegram bot token", stringVar(func(c *Config) *string { return &c.TelegramToken })},
	{"telegram-chat-id", []string{"TELEGRAM_CHAT_ID"}, "", "telegram chat id", stringVar(func(c *Config) *string { return &c.TelegramChatID })},
	{"api-key", []string{"APCA_API_KEY_ID"}, "", "alpaca key id", stringVar(func(c *Config) *string { return &c.APIKey })},
	{"api-secret", []string{"APCA_API_SECRET_KEY"}, "", "alpaca secret key", stringVar(func(c *Config) *string { return &c.APISecret })},
	{"base-url", []string{"APCA_API_BASE_URL"}, "https://paper-api.alpaca.markets", "alpaca trading base URL", stringVar(func(c *Config) *string { return &c.BaseURL })},
	{"data-url", []string{"APCA_API_DATA_URL"}, "", "alpaca market data base URL, empty for the SDK default", stringVar(func(c *Config) *string { return &c.DataURL })},
	{"feed", []string{"DATA_FEED"}, "iex", "market data feed: iex or sip", stringVar(func(c *Config) *string { return &c.Feed })},
	{"order-type", []string{"ORDER_TYPE"}, "market", "order type: market or limit", stringVar(func(c *Config) *string { return &c.OrderType })},
	{"time-in-force", []string{"TIME_IN_FORCE"}, "day", "time in force: day or gtc", stringVar(func(c *Config) *string { return &c.TimeInForce })},
	{"api-rate-limit", []string{"API_RATE_LIMIT"}, "200", "alpaca requests per minute", intVar(func(c *Config) *int { return &c.APIRateLimit })},
	{"seed", []string{"SYNTHETIC_SEED"}, "0", "synthetic data seed, 0 picks one from the clock", func(c *Config, v string) error {
		seed, err := strconv.ParseInt(v, 10, 64)
		c.Seed = seed
		return err
	}},
}

// Load resolves every setting with precedence default < YAML file (--config)
// < environment (.env included) < flags given on the command line.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	fs := flag.CommandLine
	configPath := fs.String("config", "", "path to YAML config file")
	flagValues := make(map[string]*string, len(settings))
	for _, s := range settings {
		flagValues[s.name] = fs.String(s.name, s.def, s.usage)
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Config{}, err
	}
	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	fileValues := map[string]string{}
	if *configPath != "" {
		var err error
		if fileValues, err = readConfigFile(*configPath); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{ConfigPath: *configPath}
	for _, s := range settings {
		value := s.def
		if v, ok := fileValues[s.name]; ok {
			value = v
		}
		for _, key := range s.env {
			if v, ok := os.LookupEnv(key); ok {
				value = v
				break
			}
		}
		if explicit[s.name] {
			value = *flagValues[s.name]
		}
		if err := s.set(&cfg, strings.TrimSpace(value)); err != nil {
			return cfg, fmt.Errorf("invalid %s %q: %w", s.name, value, err)
		}
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if !cfg.Simulation && (cfg.APIKey == "" || cfg.APISecret == "") {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required when simulation is off")
	}
	if len(cfg.Watchlist) == 0 {
		return fmt.Errorf("watchlist must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Watchlist))
	for _, symbol := range cfg.Watchlist {
		if seen[symbol] {
			return fmt.Errorf("watchlist contains %s twice", symbol)
		}
		seen[symbol] = true
	}
	if cfg.Capital <= 0 {
		return fmt.Errorf("capital must be > 0")
	}
	if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade > 1 {
		return fmt.Errorf("risk-per-trade must be in (0, 1]")
	}
	if cfg.MaxPositions <= 0 {
		return fmt.Errorf("max-positions must be > 0")
	}
	if cfg.DailyLossLimit <= 0 || cfg.DailyLossLimit > 1 {
		return fmt.Errorf("daily-loss-limit must be in (0, 1]")
	}
	if cfg.FastEMA < 1 || cfg.SlowEMA <= cfg.FastEMA {
		return fmt.Errorf("ema periods must satisfy 1 <= fast-ema < slow-ema")
	}
	if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 1 {
		return fmt.Errorf("stop-loss-pct must be in (0, 1)")
	}
	if cfg.TakeProfitPct <= 0 {
		return fmt.Errorf("take-profit-pct must be > 0")
	}
	if cfg.ScanInterval <= 0 {
		return fmt.Errorf("scan-interval-minutes must be > 0")
	}
	if cfg.BarInterval < time.Minute {
		return fmt.Errorf("bar-interval must be >= 1m")
	}
	if cfg.Lookback < time.Duration(cfg.SlowEMA)*cfg.BarInterval {
		return fmt.Errorf("lookback must cover at least slow-ema bars")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be > 0")
	}
	if cfg.ErrorBackoff <= 0 {
		return fmt.Errorf("error-backoff must be > 0")
	}
	if !cfg.MarketOpen.Before(cfg.MarketClose) {
		return fmt.Errorf("market-open must be before market-close")
	}
	if cfg.ForceExitAt.Before(cfg.MarketOpen) || !cfg.ForceExitAt.Before(cfg.MarketClose) {
		return fmt.Errorf("force-exit-at must fall within market hours, before market-close")
	}
	if cfg.OrderType != "market" && cfg.OrderType != "limit" {
		return fmt.Errorf("order-type must be market or limit")
	}
	if cfg.APIRateLimit <= 0 {
		return fmt.Errorf("api-rate-limit must be > 0")
	}
	return nil
}

func loadDotEnv(path string) error {
	return godotenv.Load(path)
}

// readConfigFile flattens a YAML document keyed by flag names into strings
// so file values go through the same parsers as flags and env vars.
func readConfigFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case []any:
			items := make([]string, len(v))
			for i, item := range v {
				items[i] = fmt.Sprint(item)
			}
			out[key] = strings.Join(items, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out, nil
}

func parseWatchlist(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		symbol := strings.ToUpper(strings.TrimSpace(part))
		if symbol != "" {
			out = append(out, symbol)
		}
	}
	return out
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		*field(c) = b
		return err
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		i, err := strconv.Atoi(v)
		*field(c) = i
		return err
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		*field(c) = f
		return err
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		*field(c) = d
		return err
	}
}

func clockVar(field func(*Config) *Clock) func(*Config, string) error {
	return func(c *Config, v string) error {
		clock, err := ParseClock(v)
		*field(c) = clock
		return err
	}
}
