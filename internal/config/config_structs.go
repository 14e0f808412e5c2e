// Package config provides configuration loading and validation from a YAML file,
// environment variables and command line flags.
package config

import "time"

// Config holds the complete configuration
type Config struct {
	Redis  RedisConfig  `yaml:"redis"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Router RouterConfig `yaml:"router"`
	HTTP   HTTPConfig   `yaml:"http"`
}

// RedisConfig holds the route table and destination store configuration
type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	StreamMaxLen int64         `yaml:"streamMaxLen"` // 0 keeps destination streams unbounded
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	PingTimeout  time.Duration `yaml:"pingTimeout"`
}

// MQTTConfig holds MQTT client configuration
type MQTTConfig struct {
	Broker               string        `yaml:"broker"`
	ClientID             string        `yaml:"clientId"`
	Username             string        `yaml:"username"`
	Password             string        `yaml:"password"`
	QoS                  byte          `yaml:"qos"`
	KeepAlive            time.Duration `yaml:"keepAlive"`
	ConnectTimeout       time.Duration `yaml:"connectTimeout"`
	ConnectRetryInterval time.Duration `yaml:"connectRetryInterval"`
	MaxReconnectInterval time.Duration `yaml:"maxReconnectInterval"`
	SubscribeTimeout     time.Duration `yaml:"subscribeTimeout"`
	DisconnectTimeout    uint          `yaml:"disconnectTimeout"` // Milliseconds for graceful disconnect
	// TLS Configuration
	TLSEnabled   bool   `yaml:"tlsEnabled"`
	CACert       string `yaml:"caCert"`
	ClientCert   string `yaml:"clientCert"`
	ClientKey    string `yaml:"clientKey"`
	InsecureSkip bool   `yaml:"insecureSkip"`
}

// RouterConfig holds message routing settings
type RouterConfig struct {
	BufferCapacity   int           `yaml:"bufferCapacity"`
	Workers          int           `yaml:"workers"`
	WriteTimeout     time.Duration `yaml:"writeTimeout"`
	ActivityCapacity int           `yaml:"activityCapacity"`
	ObserverBuffer   int           `yaml:"observerBuffer"`
	ResyncInterval   time.Duration `yaml:"resyncInterval"`
	StatsInterval    time.Duration `yaml:"statsInterval"`
	ShutdownTimeout  time.Duration `yaml:"shutdownTimeout"`
}

// HTTPConfig holds the administration and diagnostics server settings
type HTTPConfig struct {
	Address           string        `yaml:"address"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	PingInterval      time.Duration `yaml:"pingInterval"`
}
