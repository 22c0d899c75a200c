// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hamed0406/pingbase/internal/config"
	"github.com/hamed0406/pingbase/internal/repo/backend"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load()
	if err != nil {
		fail("config: " + err.Error())
	}

	if len(cfg.AdminAPIKeys) == 0 {
		fail("ADMIN_API_KEYS is empty (registry writes would be open to anyone).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty; only admin keys can read the API.")
	}
	for name, v := range map[string]string{"ADMIN_API_KEYS": os.Getenv("ADMIN_API_KEYS"), "PUBLIC_API_KEYS": os.Getenv("PUBLIC_API_KEYS")} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; they are trimmed, but key1,key2 is the expected form")
		}
	}

	ok("API_ADDR=" + cfg.Addr)

	switch kind, _ := backend.Parse(cfg.DatabaseURL); kind {
	case backend.Memory:
		warn("DATABASE_URL empty; monitors, checks and incidents live in memory and are lost on restart.")
	default:
		ok("DATABASE_URL present (" + string(kind) + ")")
	}

	lim := cfg.Limits()
	if lim.MinInterval < cfg.Tick {
		warn(fmt.Sprintf("MIN_CHECK_INTERVAL %v is below TICK_INTERVAL %v; intervals are only honored at tick granularity", lim.MinInterval, cfg.Tick))
	}
	ok(fmt.Sprintf("scheduler: tick=%v batch=%d skip_overlap=%v retries=%d", cfg.Tick, cfg.BatchSize, cfg.SkipOverlappingTicks, cfg.RetryAttempts))

	if cfg.SMTP.Host == "" {
		warn("SMTP_HOST empty; email alerts will only be logged.")
	} else {
		ok(fmt.Sprintf("SMTP %s:%d from %s", cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From))
	}

	if len(cfg.KafkaBrokers) == 0 {
		ok("KAFKA_BROKERS empty; event stream disabled")
	} else {
		ok("events → " + strings.Join(cfg.KafkaBrokers, ",") + " topic " + cfg.KafkaTopic)
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	ok("preflight passed")
}
