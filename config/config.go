package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every tunable of the bridge. It is built once at startup and
// passed by reference to each component constructor.
type Config struct {
	Book              string
	RestEndpoint      string
	WebsocketEndpoint string

	// OrderBookReadyTimeout bounds how long a book read blocks while the
	// book is being (re)built before it fails with ErrBookNotReady.
	OrderBookReadyTimeout time.Duration

	// ResetErrorEscalationTries is the number of consecutive reset failures
	// after which the retry log messages escalate from warning to error.
	// The reset keeps retrying either way.
	ResetErrorEscalationTries int

	// TradeBufferMaxTrades is the soft capacity of the in-memory trade
	// history; it also caps how many trades a single GetLastTrades may ask for.
	TradeBufferMaxTrades   int
	TradeBufferCheckPeriod time.Duration

	// BackfillLockWait is how long a history request waits for the backfill
	// lock before re-checking whether another request already filled the
	// buffer far enough.
	BackfillLockWait time.Duration

	PollInterval   time.Duration
	PollPageSize   int
	InterPageDelay time.Duration
}

func Default() *Config {
	return &Config{
		Book:              "btc_mxn",
		RestEndpoint:      "https://api.bitso.com",
		WebsocketEndpoint: "wss://ws.bitso.com",

		OrderBookReadyTimeout:     20 * time.Second,
		ResetErrorEscalationTries: 10,

		TradeBufferMaxTrades:   500,
		TradeBufferCheckPeriod: 60 * time.Second,

		BackfillLockWait: 500 * time.Millisecond,

		PollInterval:   10 * time.Second,
		PollPageSize:   100,
		InterPageDelay: 500 * time.Millisecond,
	}
}

// FromEnv returns the default config overridden by whatever environment
// variables are set. Call godotenv.Load first if a .env file should count.
func FromEnv() *Config {
	c := Default()

	stringVar(&c.Book, "BITSO_BOOK")
	stringVar(&c.RestEndpoint, "BITSO_REST_ENDPOINT")
	stringVar(&c.WebsocketEndpoint, "BITSO_WS_ENDPOINT")

	secondsVar(&c.OrderBookReadyTimeout, "ORDERBOOK_READY_TIMEOUT_SECONDS")
	intVar(&c.ResetErrorEscalationTries, "ORDERBOOK_RESET_ESCALATION_TRIES")

	intVar(&c.TradeBufferMaxTrades, "TRADES_BUFFER_MAX")
	secondsVar(&c.TradeBufferCheckPeriod, "TRADES_BUFFER_CHECK_PERIOD_SECONDS")

	millisVar(&c.BackfillLockWait, "TRADES_BACKFILL_LOCK_WAIT_MILLIS")
	secondsVar(&c.PollInterval, "TRADES_POLL_SECONDS")
	intVar(&c.PollPageSize, "TRADES_POLL_PAGE_SIZE")
	millisVar(&c.InterPageDelay, "TRADES_INTER_PAGE_DELAY_MILLIS")

	return c
}

func (c *Config) Validate() error {
	if c.TradeBufferMaxTrades <= 0 {
		return fmt.Errorf("trade buffer max trades must be greater than zero, got %d", c.TradeBufferMaxTrades)
	}
	if c.PollPageSize <= 0 {
		return fmt.Errorf("poll page size must be greater than zero, got %d", c.PollPageSize)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than zero, got %s", c.PollInterval)
	}
	if c.BackfillLockWait <= 0 {
		return fmt.Errorf("backfill lock wait must be greater than zero, got %s", c.BackfillLockWait)
	}
	if c.OrderBookReadyTimeout <= 0 {
		return fmt.Errorf("order book ready timeout must be greater than zero, got %s", c.OrderBookReadyTimeout)
	}
	return nil
}

func stringVar(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func intVar(dst *int, name string) {
	if v := os.Getenv(name); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Sprintf("env %s must be a number, got %q", name, v))
		}
		*dst = n
	}
}

func secondsVar(dst *time.Duration, name string) {
	var n int
	if v := os.Getenv(name); v != "" {
		intVar(&n, name)
		*dst = time.Duration(n) * time.Second
	}
}

func millisVar(dst *time.Duration, name string) {
	var n int
	if v := os.Getenv(name); v != "" {
		intVar(&n, name)
		*dst = time.Duration(n) * time.Millisecond
	}
}
