package config

import (
	"flag"
)

// Command line flags (have precedence over environment variables)
var (
	flagConfigFile = flag.String("config", "", "Path to a YAML configuration file")

	// Redis flags
	flagRedisAddress      = flag.String("redis-address", "", "Redis address")
	flagRedisPassword     = flag.String("redis-password", "", "Redis password")
	flagRedisDB           = flag.Int("redis-db", -1, "Redis database number")
	flagRedisKeyPrefix    = flag.String("redis-key-prefix", "", "Prefix for every Redis key")
	flagRedisStreamMaxLen = flag.Int64("redis-stream-max-len", 0, "Approximate max length of destination streams")
	flagRedisDialTimeout  = flag.Duration("redis-dial-timeout", 0, "Redis dial timeout")
	flagRedisReadTimeout  = flag.Duration("redis-read-timeout", 0, "Redis read timeout")
	flagRedisWriteTimeout = flag.Duration("redis-write-timeout", 0, "Redis write timeout")
	flagRedisPingTimeout  = flag.Duration("redis-ping-timeout", 0, "Redis ping timeout")

	// MQTT flags
	flagMQTTBroker            = flag.String("mqtt-broker", "", "MQTT broker URL")
	flagMQTTClientID          = flag.String("mqtt-client-id", "", "MQTT client ID")
	flagMQTTUsername          = flag.String("mqtt-username", "", "MQTT username")
	flagMQTTPassword          = flag.String("mqtt-password", "", "MQTT password")
	flagMQTTQoS               = flag.Int("mqtt-qos", -1, "MQTT subscription QoS (0, 1, or 2)")
	flagMQTTKeepAlive         = flag.Duration("mqtt-keep-alive", 0, "MQTT keep alive")
	flagMQTTConnectTimeout    = flag.Duration("mqtt-connect-timeout", 0, "MQTT connect timeout")
	flagMQTTConnectRetry      = flag.Duration("mqtt-connect-retry-interval", 0, "MQTT initial connect retry interval")
	flagMQTTMaxReconnect      = flag.Duration("mqtt-max-reconnect-interval", 0, "MQTT max reconnect interval")
	flagMQTTSubscribeTimeout  = flag.Duration("mqtt-subscribe-timeout", 0, "MQTT subscribe timeout")
	flagMQTTDisconnectTimeout = flag.Int("mqtt-disconnect-timeout", 0, "MQTT disconnect timeout (ms)")
	flagMQTTTLSEnabled        = flag.Bool("mqtt-tls-enabled", false, "Enable MQTT TLS")
	flagMQTTCACert            = flag.String("mqtt-ca-cert", "", "MQTT CA certificate path")
	flagMQTTClientCert        = flag.String("mqtt-client-cert", "", "MQTT client certificate path")
	flagMQTTClientKey         = flag.String("mqtt-client-key", "", "MQTT client key path")
	flagMQTTTLSInsecureSkip   = flag.Bool("mqtt-tls-insecure-skip", false, "Skip MQTT TLS verification")

	// Router flags
	flagRouterBufferCapacity   = flag.Int("router-buffer-capacity", 0, "Inbound message queue capacity")
	flagRouterWorkers          = flag.Int("router-workers", 0, "Number of routing workers")
	flagRouterWriteTimeout     = flag.Duration("router-write-timeout", 0, "Per-write storage timeout")
	flagRouterActivityCapacity = flag.Int("router-activity-capacity", 0, "Recent activity buffer size")
	flagRouterObserverBuffer   = flag.Int("router-observer-buffer", 0, "Per-observer message buffer")
	flagRouterResyncInterval   = flag.Duration("router-resync-interval", 0, "Subscription resync interval")
	flagRouterStatsInterval    = flag.Duration("router-stats-interval", 0, "Statistics log interval")
	flagRouterShutdownTimeout  = flag.Duration("router-shutdown-timeout", 0, "Graceful shutdown timeout")

	// HTTP flags
	flagHTTPAddress           = flag.String("http-address", "", "HTTP listen address")
	flagHTTPReadHeaderTimeout = flag.Duration("http-read-header-timeout", 0, "HTTP read header timeout")
	flagHTTPPingInterval      = flag.Duration("http-ping-interval", 0, "WebSocket ping interval")
)

// applyRedisFlags applies command line flags to Redis configuration
func applyRedisFlags(cfg *RedisConfig) {
	if *flagRedisAddress != "" {
		cfg.Address = *flagRedisAddress
	}
	if *flagRedisPassword != "" {
		cfg.Password = *flagRedisPassword
	}
	if *flagRedisDB >= 0 {
		cfg.DB = *flagRedisDB
	}
	if *flagRedisKeyPrefix != "" {
		cfg.KeyPrefix = *flagRedisKeyPrefix
	}
	if *flagRedisStreamMaxLen != 0 {
		cfg.StreamMaxLen = *flagRedisStreamMaxLen
	}
	applyRedisFlagTimeouts(cfg)
}

func applyRedisFlagTimeouts(cfg *RedisConfig) {
	if *flagRedisDialTimeout != 0 {
		cfg.DialTimeout = *flagRedisDialTimeout
	}
	if *flagRedisReadTimeout != 0 {
		cfg.ReadTimeout = *flagRedisReadTimeout
	}
	if *flagRedisWriteTimeout != 0 {
		cfg.WriteTimeout = *flagRedisWriteTimeout
	}
	if *flagRedisPingTimeout != 0 {
		cfg.PingTimeout = *flagRedisPingTimeout
	}
}

// applyMQTTFlags applies command line flags to MQTT configuration
func applyMQTTFlags(cfg *MQTTConfig) {
	applyMQTTFlagStrings(cfg)
	applyMQTTFlagInts(cfg)
	applyMQTTFlagTimeouts(cfg)
	applyMQTTFlagTLS(cfg)
	applyMQTTFlagBools(cfg)
}

func applyMQTTFlagStrings(cfg *MQTTConfig) {
	if *flagMQTTBroker != "" {
		cfg.Broker = *flagMQTTBroker
	}
	if *flagMQTTClientID != "" {
		cfg.ClientID = *flagMQTTClientID
	}
	if *flagMQTTUsername != "" {
		cfg.Username = *flagMQTTUsername
	}
	if *flagMQTTPassword != "" {
		cfg.Password = *flagMQTTPassword
	}
}

func applyMQTTFlagInts(cfg *MQTTConfig) {
	if *flagMQTTQoS >= 0 && *flagMQTTQoS <= 2 {
		cfg.QoS = byte(*flagMQTTQoS) // #nosec G115 - validated range 0-2
	}
	if *flagMQTTDisconnectTimeout > 0 {
		cfg.DisconnectTimeout = uint(*flagMQTTDisconnectTimeout) // #nosec G115 - validated non-negative
	}
}

func applyMQTTFlagTimeouts(cfg *MQTTConfig) {
	if *flagMQTTKeepAlive != 0 {
		cfg.KeepAlive = *flagMQTTKeepAlive
	}
	if *flagMQTTConnectTimeout != 0 {
		cfg.ConnectTimeout = *flagMQTTConnectTimeout
	}
	if *flagMQTTConnectRetry != 0 {
		cfg.ConnectRetryInterval = *flagMQTTConnectRetry
	}
	if *flagMQTTMaxReconnect != 0 {
		cfg.MaxReconnectInterval = *flagMQTTMaxReconnect
	}
	if *flagMQTTSubscribeTimeout != 0 {
		cfg.SubscribeTimeout = *flagMQTTSubscribeTimeout
	}
}

func applyMQTTFlagTLS(cfg *MQTTConfig) {
	if *flagMQTTCACert != "" {
		cfg.CACert = *flagMQTTCACert
	}
	if *flagMQTTClientCert != "" {
		cfg.ClientCert = *flagMQTTClientCert
	}
	if *flagMQTTClientKey != "" {
		cfg.ClientKey = *flagMQTTClientKey
	}
}

func applyMQTTFlagBools(cfg *MQTTConfig) {
	if isFlagSet("mqtt-tls-enabled") {
		cfg.TLSEnabled = *flagMQTTTLSEnabled
	}
	if isFlagSet("mqtt-tls-insecure-skip") {
		cfg.InsecureSkip = *flagMQTTTLSInsecureSkip
	}
}

// applyRouterFlags applies command line flags to routing configuration
func applyRouterFlags(cfg *RouterConfig) {
	if *flagRouterBufferCapacity != 0 {
		cfg.BufferCapacity = *flagRouterBufferCapacity
	}
	if *flagRouterWorkers != 0 {
		cfg.Workers = *flagRouterWorkers
	}
	if *flagRouterWriteTimeout != 0 {
		cfg.WriteTimeout = *flagRouterWriteTimeout
	}
	if *flagRouterActivityCapacity != 0 {
		cfg.ActivityCapacity = *flagRouterActivityCapacity
	}
	if *flagRouterObserverBuffer != 0 {
		cfg.ObserverBuffer = *flagRouterObserverBuffer
	}
	if *flagRouterResyncInterval != 0 {
		cfg.ResyncInterval = *flagRouterResyncInterval
	}
	if *flagRouterStatsInterval != 0 {
		cfg.StatsInterval = *flagRouterStatsInterval
	}
	if *flagRouterShutdownTimeout != 0 {
		cfg.ShutdownTimeout = *flagRouterShutdownTimeout
	}
}

// applyHTTPFlags applies command line flags to HTTP configuration
func applyHTTPFlags(cfg *HTTPConfig) {
	if *flagHTTPAddress != "" {
		cfg.Address = *flagHTTPAddress
	}
	if *flagHTTPReadHeaderTimeout != 0 {
		cfg.ReadHeaderTimeout = *flagHTTPReadHeaderTimeout
	}
	if *flagHTTPPingInterval != 0 {
		cfg.PingInterval = *flagHTTPPingInterval
	}
}

// isFlagSet checks if a flag was explicitly set on the command line
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
