package ratelimit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/viper"
)

// LoadWaitlist reads a JSON object mapping hostnames (or "*") to wait specs.
// A missing file yields an empty map. Any unparseable spec is an error.
func LoadWaitlist(path string) (map[string]Policy, error) {
	policies := make(map[string]Policy)
	if path == "" {
		return policies, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return policies, nil
		}
		return nil, fmt.Errorf("stat waitlist: %w", err)
	}

	// Hostnames contain dots, so use a delimiter that cannot appear in them.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read waitlist %s: %w", path, err)
	}
	for _, host := range v.AllKeys() {
		spec := v.GetString(host)
		p, err := ParsePolicy(spec)
		if err != nil {
			return nil, fmt.Errorf("waitlist %s entry %q: %w", path, host, err)
		}
		policies[host] = p
	}
	return policies, nil
}

// ConfigFromArgs builds a limiter Config from the CLI default wait words and
// an optional waitlist file. A waitlist wildcard entry wins over the CLI
// default; with neither, requests are not delayed.
func ConfigFromArgs(defaultWait []string, waitlistPath string) (Config, error) {
	hosts, err := LoadWaitlist(waitlistPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Default: NoWait(), Hosts: hosts}
	if _, ok := hosts[Wildcard]; !ok && len(defaultWait) > 0 {
		p, err := ParsePolicy(defaultWait...)
		if err != nil {
			return Config{}, fmt.Errorf("default wait: %w", err)
		}
		cfg.Default = p
	}
	return cfg, nil
}
