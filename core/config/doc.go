// Package config provides type-safe environment variable loading with
// caching. Each configuration type is loaded once and cached for
// subsequent calls, so every component sees the same validated snapshot
// taken at process start, with no ad-hoc environment reads inside logic.
//
// The package loads a .env file on first use and parses variables into
// struct fields via the caarlos0/env library:
//
//	type SchedulerConfig struct {
//		CheckInterval time.Duration `env:"CERT_CHECK_INTERVAL" envDefault:"12h"`
//		LockFile      string        `env:"CERT_LOCK_FILE" envDefault:"/var/run/swarmcert.lock"`
//	}
//
//	var cfg SchedulerConfig
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
package config
