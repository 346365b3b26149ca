package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Values come from defaults, then an
// optional YAML file named by CONFIG_FILE, then the environment.
type Config struct {
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	UploadDir string `yaml:"upload_dir"`
	DBPath    string `yaml:"db_path"`
	LogDir    string `yaml:"log_dir"`
	StaticDir string `yaml:"static_dir"`

	Model     ModelConfig     `yaml:"model"`
	Detection DetectionConfig `yaml:"detection"`
	Alert     AlertConfig     `yaml:"alert"`

	JPEGQuality          int    `yaml:"jpeg_quality"`
	MaxUploadMB          int64  `yaml:"max_upload_mb"`
	UploadRetentionHours int    `yaml:"upload_retention_hours"`
	RetentionSchedule    string `yaml:"retention_schedule"`
	MetricsEnabled       bool   `yaml:"metrics_enabled"`
}

// ModelConfig points at the Darknet artifacts of the pothole detector.
type ModelConfig struct {
	ConfigPath  string `yaml:"cfg"`
	WeightsPath string `yaml:"weights"`
	NamesPath   string `yaml:"names"`
}

// DetectionConfig holds the pothole pipeline geometry and thresholds.
type DetectionConfig struct {
	ConfThreshold float64 `yaml:"conf_threshold"`
	NMSThreshold  float64 `yaml:"nms_threshold"`
	WorkWidth     int     `yaml:"work_width"`
	WorkHeight    int     `yaml:"work_height"`
	InputSize     int     `yaml:"input_size"`
}

// AlertConfig selects the alert sinks.
type AlertConfig struct {
	Label     string `yaml:"label"`
	SoundPath string `yaml:"sound"`
	Player    string `yaml:"player"`
	Webhook   string `yaml:"webhook"`
	MQTT      string `yaml:"mqtt_broker"`
	MQTTTopic string `yaml:"mqtt_topic"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:      8080,
		UploadDir: filepath.Join(".", "uploads"),
		DBPath:    filepath.Join(".", "data", "videos.db"),
		LogDir:    filepath.Join(".", "logs"),
		StaticDir: "static",
		Model: ModelConfig{
			ConfigPath:  filepath.Join(".", "models", "yolov4_tiny_pothole.cfg"),
			WeightsPath: filepath.Join(".", "models", "yolov4_tiny_pothole_last.weights"),
			NamesPath:   filepath.Join(".", "models", "pothole.names"),
		},
		Detection: DetectionConfig{
			ConfThreshold: 0.25,
			NMSThreshold:  0.2,
			WorkWidth:     800,
			WorkHeight:    450,
			InputSize:     416,
		},
		Alert: AlertConfig{
			Label:     "pothole",
			SoundPath: filepath.Join(".", "static", "beep.wav"),
			Player:    "auto",
			MQTTTopic: "roadstream/alerts",
		},
		JPEGQuality:       95,
		MaxUploadMB:       512,
		RetentionSchedule: "@hourly",
	}
}

// Load reads .env (if any), the optional CONFIG_FILE and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.Password = getEnv("PASSWORD", c.Password)
	c.UploadDir = getEnv("UPLOAD_DIR", c.UploadDir)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.LogDir = getEnv("LOG_DIR", c.LogDir)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)

	c.Model.ConfigPath = getEnv("MODEL_CFG", c.Model.ConfigPath)
	c.Model.WeightsPath = getEnv("MODEL_WEIGHTS", c.Model.WeightsPath)
	c.Model.NamesPath = getEnv("MODEL_NAMES", c.Model.NamesPath)

	c.Detection.ConfThreshold = getEnvAsFloat("CONF_THRESHOLD", c.Detection.ConfThreshold)
	c.Detection.NMSThreshold = getEnvAsFloat("NMS_THRESHOLD", c.Detection.NMSThreshold)
	c.Detection.WorkWidth = getEnvAsInt("WORK_WIDTH", c.Detection.WorkWidth)
	c.Detection.WorkHeight = getEnvAsInt("WORK_HEIGHT", c.Detection.WorkHeight)
	c.Detection.InputSize = getEnvAsInt("INPUT_SIZE", c.Detection.InputSize)

	c.Alert.Label = getEnv("ALERT_LABEL", c.Alert.Label)
	c.Alert.SoundPath = getEnv("ALERT_SOUND", c.Alert.SoundPath)
	c.Alert.Player = getEnv("ALERT_PLAYER", c.Alert.Player)
	c.Alert.Webhook = getEnv("ALERT_WEBHOOK", c.Alert.Webhook)
	c.Alert.MQTT = getEnv("MQTT_BROKER", c.Alert.MQTT)
	c.Alert.MQTTTopic = getEnv("MQTT_TOPIC", c.Alert.MQTTTopic)

	c.JPEGQuality = getEnvAsInt("JPEG_QUALITY", c.JPEGQuality)
	c.MaxUploadMB = getEnvAsInt64("MAX_UPLOAD_MB", c.MaxUploadMB)
	c.UploadRetentionHours = getEnvAsInt("UPLOAD_RETENTION_HOURS", c.UploadRetentionHours)
	c.RetentionSchedule = getEnv("RETENTION_SCHEDULE", c.RetentionSchedule)
	c.MetricsEnabled = getEnvAsBool("METRICS_ENABLED", c.MetricsEnabled)
}

// Validate rejects values the pipelines cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.Detection.ConfThreshold <= 0 || c.Detection.ConfThreshold > 1:
		return fmt.Errorf("conf threshold %v out of range (0,1]", c.Detection.ConfThreshold)
	case c.Detection.NMSThreshold <= 0 || c.Detection.NMSThreshold > 1:
		return fmt.Errorf("nms threshold %v out of range (0,1]", c.Detection.NMSThreshold)
	case c.Detection.WorkWidth <= 0 || c.Detection.WorkHeight <= 0:
		return fmt.Errorf("invalid working size %dx%d", c.Detection.WorkWidth, c.Detection.WorkHeight)
	case c.Detection.InputSize <= 0 || c.Detection.InputSize%32 != 0:
		return fmt.Errorf("input size %d must be a positive multiple of 32", c.Detection.InputSize)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("jpeg quality %d out of range [1,100]", c.JPEGQuality)
	case c.UploadRetentionHours < 0:
		return fmt.Errorf("negative upload retention")
	}
	return nil
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
