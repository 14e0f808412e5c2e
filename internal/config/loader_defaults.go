package config

import "time"

// defaultRedisConfig returns the default Redis configuration
func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		DB:           0,
		KeyPrefix:    "mqtt-router",
		StreamMaxLen: 0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		PingTimeout:  5 * time.Second,
	}
}

// defaultMQTTConfig returns the default MQTT configuration
func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:               "tcp://localhost:1883",
		ClientID:             "mqtt-router",
		QoS:                  0,
		KeepAlive:            60 * time.Second,
		ConnectTimeout:       10 * time.Second,
		ConnectRetryInterval: 2 * time.Second,
		MaxReconnectInterval: 30 * time.Second,
		SubscribeTimeout:     10 * time.Second,
		DisconnectTimeout:    1000,
	}
}

// defaultRouterConfig returns the default routing configuration
func defaultRouterConfig() RouterConfig {
	return RouterConfig{
		BufferCapacity:   10000,
		Workers:          8,
		WriteTimeout:     5 * time.Second,
		ActivityCapacity: 100,
		ObserverBuffer:   64,
		ResyncInterval:   30 * time.Second,
		StatsInterval:    1 * time.Minute,
		ShutdownTimeout:  30 * time.Second,
	}
}

// defaultHTTPConfig returns the default HTTP configuration
func defaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Address:           ":3100",
		ReadHeaderTimeout: 10 * time.Second,
		PingInterval:      30 * time.Second,
	}
}

// defaultConfig returns a complete configuration with all default values
func defaultConfig() *Config {
	return &Config{
		Redis:  defaultRedisConfig(),
		MQTT:   defaultMQTTConfig(),
		Router: defaultRouterConfig(),
		HTTP:   defaultHTTPConfig(),
	}
}
