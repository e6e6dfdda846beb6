package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Source       SourceConfig       `mapstructure:"source"`
	Robot        RobotConfig        `mapstructure:"robot"`
	Export       ExportConfig       `mapstructure:"export"`
	MessageQueue MessageQueueConfig `mapstructure:"message_queue"`
}

type MessageQueueConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Type     string         `mapstructure:"type"`
	Topic    string         `mapstructure:"topic"`
	Workers  int            `mapstructure:"workers"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

type RabbitMQConfig struct {
	URL         string `mapstructure:"url"`
	VirtualHost string `mapstructure:"virtual_host"`
	Exchange    string `mapstructure:"exchange"`
	RoutingKey  string `mapstructure:"routing_key"`
	QueueName   string `mapstructure:"queue_name"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ServerConfig configures the TCP line ingest used when the telemetry radio
// is bridged to the network instead of a local serial port.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	Host      string `mapstructure:"host"`
	Multicore bool   `mapstructure:"multicore"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

// SourceConfig selects where raw telemetry lines come from.
type SourceConfig struct {
	Type          string        `mapstructure:"type"` // "serial" or "tcp"
	Port          string        `mapstructure:"port"`
	BaudRate      int           `mapstructure:"baud_rate"`
	ChannelBuffer int           `mapstructure:"channel_buffer"`
	MaxLineLength int           `mapstructure:"max_line_length"`
	RawLogLimit   int           `mapstructure:"raw_log_limit"`
	LinkTimeout   time.Duration `mapstructure:"link_timeout"`
}

type RobotConfig struct {
	Name         string              `mapstructure:"name"`
	Marker       string              `mapstructure:"marker"`
	ReferenceESC string              `mapstructure:"reference_esc"`
	Precision    int                 `mapstructure:"precision"`
	ESCs         []ESCConfig         `mapstructure:"escs"`
	Measurements []MeasurementConfig `mapstructure:"measurements"`
	Filter       FilterConfig        `mapstructure:"filter"`
	Decode       DecodeConfig        `mapstructure:"decode"`
	StatusPeriod time.Duration       `mapstructure:"status_period"`
}

// ESCConfig describes one controller of the roster. Slot is the packet
// position: 0 and 1 are the 9-byte slices, 2 and 3 the 8-byte slices.
type ESCConfig struct {
	Name         string              `mapstructure:"name"`
	Class        string              `mapstructure:"class"`
	Slot         int                 `mapstructure:"slot"`
	Active       bool                `mapstructure:"active"`
	Measurements []MeasurementConfig `mapstructure:"measurements"`
}

type MeasurementConfig struct {
	Name string   `mapstructure:"name"`
	Min  *float64 `mapstructure:"min"`
	Max  *float64 `mapstructure:"max"`
}

type FilterConfig struct {
	Enabled     bool                    `mapstructure:"enabled"`
	Temperature TemperatureFilterConfig `mapstructure:"temperature"`
	Voltage     BoundsConfig            `mapstructure:"voltage"`
}

type TemperatureFilterConfig struct {
	Min      float64 `mapstructure:"min"`
	Max      float64 `mapstructure:"max"`
	MaxDelta float64 `mapstructure:"max_delta"`
}

type BoundsConfig struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// DecodeConfig carries the scaled-12bit constants. RPMDivisor is the pole
// pair factor still awaiting confirmation against the hardware.
type DecodeConfig struct {
	Scale        float64 `mapstructure:"scale"`
	TempSpan     float64 `mapstructure:"temp_span"`
	VoltageSpan  float64 `mapstructure:"voltage_span"`
	CurrentSpan  float64 `mapstructure:"current_span"`
	RPMFullScale float64 `mapstructure:"rpm_full_scale"`
	RPMDivisor   float64 `mapstructure:"rpm_divisor"`
	TruncateRPM  bool    `mapstructure:"truncate_rpm"`
}

type ExportConfig struct {
	Dir             string `mapstructure:"dir"`
	Prefix          string `mapstructure:"prefix"`
	BufferSizeKB    int    `mapstructure:"buffer_size_kb"`
	AutoSaveOnClear bool   `mapstructure:"auto_save_on_clear"`
	AutoSaveOnExit  bool   `mapstructure:"auto_save_on_exit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9760)
	v.SetDefault("server.multicore", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.filename", "logs/recorder.log")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 14)

	v.SetDefault("source.type", "serial")
	v.SetDefault("source.baud_rate", 115200)
	v.SetDefault("source.channel_buffer", 1024)
	v.SetDefault("source.max_line_length", 1024)
	v.SetDefault("source.link_timeout", 5*time.Second)

	v.SetDefault("robot.marker", "Data:")
	v.SetDefault("robot.precision", 0)
	v.SetDefault("robot.status_period", time.Second)
	v.SetDefault("robot.filter.enabled", true)
	v.SetDefault("robot.filter.temperature.min", 15)
	v.SetDefault("robot.filter.temperature.max", 110)
	v.SetDefault("robot.filter.temperature.max_delta", 30)
	v.SetDefault("robot.filter.voltage.min", 5)
	v.SetDefault("robot.filter.voltage.max", 28)
	v.SetDefault("robot.decode.scale", 2042)
	v.SetDefault("robot.decode.temp_span", 30)
	v.SetDefault("robot.decode.voltage_span", 20)
	v.SetDefault("robot.decode.current_span", 50)
	v.SetDefault("robot.decode.rpm_full_scale", 20416.66)
	v.SetDefault("robot.decode.rpm_divisor", 7)
	v.SetDefault("robot.decode.truncate_rpm", true)

	v.SetDefault("export.dir", "data")
	v.SetDefault("export.prefix", "telemetry")
	v.SetDefault("export.buffer_size_kb", 256)
	v.SetDefault("export.auto_save_on_clear", true)
	v.SetDefault("export.auto_save_on_exit", true)

	v.SetDefault("message_queue.topic", "esc_telemetry")
	v.SetDefault("message_queue.workers", 4)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the parts of the configuration the recorder cannot run
// without. Roster consistency is checked again when the robot is built.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case "serial":
		if c.Source.Port == "" {
			return errors.New("source.port is required for a serial source")
		}
	case "tcp":
		if c.Server.Port <= 0 {
			return fmt.Errorf("server.port must be positive, got %d", c.Server.Port)
		}
	default:
		return fmt.Errorf("unknown source.type %q", c.Source.Type)
	}

	if c.Robot.Name == "" {
		return errors.New("robot.name is required")
	}
	if len(c.Robot.ESCs) == 0 {
		return errors.New("robot.escs must list at least one controller")
	}
	if c.Robot.Precision < 0 || c.Robot.Precision > 6 {
		return fmt.Errorf("robot.precision out of range: %d", c.Robot.Precision)
	}
	if c.Robot.Decode.Scale <= 0 || c.Robot.Decode.RPMDivisor <= 0 {
		return errors.New("robot.decode.scale and robot.decode.rpm_divisor must be positive")
	}

	if c.MessageQueue.Enabled {
		switch c.MessageQueue.Type {
		case "kafka":
			if len(c.MessageQueue.Kafka.Brokers) == 0 {
				return errors.New("message_queue.kafka.brokers is empty")
			}
		case "rabbitmq":
			if c.MessageQueue.RabbitMQ.URL == "" {
				return errors.New("message_queue.rabbitmq.url is empty")
			}
		default:
			return fmt.Errorf("unknown message_queue.type %q", c.MessageQueue.Type)
		}
	}
	return nil
}
