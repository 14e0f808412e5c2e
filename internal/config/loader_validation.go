package config

import "fmt"

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	if err := validateRedis(&cfg.Redis); err != nil {
		return err
	}
	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}
	if err := validateRouter(&cfg.Router); err != nil {
		return err
	}
	return validateHTTP(&cfg.HTTP)
}

// validateRedis validates Redis configuration
func validateRedis(cfg *RedisConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if cfg.KeyPrefix == "" {
		return fmt.Errorf("redis key prefix cannot be empty")
	}
	if cfg.DB < 0 {
		return fmt.Errorf("redis db cannot be negative")
	}
	if cfg.StreamMaxLen < 0 {
		return fmt.Errorf("redis stream max len cannot be negative")
	}
	return nil
}

// validateMQTT validates MQTT configuration
func validateMQTT(cfg *MQTTConfig) error {
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("mqtt client ID cannot be empty")
	}
	if cfg.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if cfg.SubscribeTimeout <= 0 {
		return fmt.Errorf("mqtt subscribe timeout must be positive")
	}
	return nil
}

// validateRouter validates routing configuration
func validateRouter(cfg *RouterConfig) error {
	if cfg.BufferCapacity < 1 {
		return fmt.Errorf("router buffer capacity must be positive")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("router workers must be positive")
	}
	if cfg.WriteTimeout <= 0 {
		return fmt.Errorf("router write timeout must be positive")
	}
	if cfg.ActivityCapacity < 1 {
		return fmt.Errorf("router activity capacity must be positive")
	}
	if cfg.ObserverBuffer < 1 {
		return fmt.Errorf("router observer buffer must be positive")
	}
	if cfg.ResyncInterval <= 0 || cfg.StatsInterval <= 0 {
		return fmt.Errorf("router intervals must be positive")
	}
	return nil
}

// validateHTTP validates HTTP configuration
func validateHTTP(cfg *HTTPConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}
	if cfg.PingInterval <= 0 {
		return fmt.Errorf("http ping interval must be positive")
	}
	return nil
}
