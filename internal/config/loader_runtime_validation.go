package config

import (
	"fmt"
	"os"
	"strings"
)

// applyRuntimeValidation applies runtime validations and transformations
func applyRuntimeValidation(cfg *Config) error {
	normalizeBroker(&cfg.MQTT)
	cfg.Redis.KeyPrefix = strings.TrimRight(cfg.Redis.KeyPrefix, ":")
	return checkTLSFiles(&cfg.MQTT)
}

// normalizeBroker adds a scheme to bare host:port broker addresses,
// picking ssl:// when TLS is enabled.
func normalizeBroker(cfg *MQTTConfig) {
	if cfg.Broker == "" || strings.Contains(cfg.Broker, "://") {
		return
	}
	if cfg.TLSEnabled {
		cfg.Broker = "ssl://" + cfg.Broker
		return
	}
	cfg.Broker = "tcp://" + cfg.Broker
}

// checkTLSFiles fails early when a configured certificate file is unreadable.
func checkTLSFiles(cfg *MQTTConfig) error {
	if !cfg.TLSEnabled {
		return nil
	}
	for _, path := range []string{cfg.CACert, cfg.ClientCert, cfg.ClientKey} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("mqtt tls file %s: %w", path, err)
		}
	}
	if (cfg.ClientCert == "") != (cfg.ClientKey == "") {
		return fmt.Errorf("mqtt client cert and key must be set together")
	}
	return nil
}
