package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Detector DetectorConfig `yaml:"detector"`
	Blend    BlendConfig    `yaml:"blend"`
	Display  DisplayConfig  `yaml:"display"`
	Log      LogConfig      `yaml:"log"`
}

type DetectorConfig struct {
	Backend       string        `yaml:"backend"`      // scrfd, yunet, haar, pigo or remote
	ModelPath     string        `yaml:"model_path"`   // ONNX model for scrfd and yunet; empty picks the backend default
	LibraryPath   string        `yaml:"library_path"` // ONNX Runtime shared library
	InputSize     int           `yaml:"input_size"`   // SCRFD input side, multiple of 32
	ConfThreshold float64       `yaml:"conf_threshold"`
	NMSThreshold  float64       `yaml:"nms_threshold"`
	CascadePath   string        `yaml:"cascade_path"` // haar XML or pigo binary cascade
	SocketPath    string        `yaml:"socket_path"`  // remote detector Unix socket
	Timeout       time.Duration `yaml:"timeout"`
}

// DefaultModelPaths are the models used when detector.model_path is unset
var DefaultModelPaths = map[string]string{
	"scrfd": "models/scrfd_10g.onnx",
	"yunet": "models/face_detection_yunet_2023mar.onnx",
}

// Model returns the configured model path or the backend's default
func (d DetectorConfig) Model() string {
	if d.ModelPath != "" {
		return d.ModelPath
	}
	return DefaultModelPaths[d.Backend]
}

type BlendConfig struct {
	Inset      int     `yaml:"inset"`
	KernelSize int     `yaml:"kernel_size"`
	Sigma      float64 `yaml:"sigma"`
	Workers    int     `yaml:"workers"`
}

type DisplayConfig struct {
	FallbackWidth  int `yaml:"fallback_width"`
	FallbackHeight int `yaml:"fallback_height"`
	PreviewWidth   int `yaml:"preview_width"`
	PreviewHeight  int `yaml:"preview_height"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Detector: DetectorConfig{
			Backend:       "scrfd",
			LibraryPath:   "lib/libonnxruntime.so",
			InputSize:     640,
			ConfThreshold: 0.5,
			NMSThreshold:  0.4,
			CascadePath:   "models/haarcascade_frontalface_default.xml",
			SocketPath:    "/tmp/faceswap-detector.sock",
			Timeout:       5 * time.Second,
		},
		Blend: BlendConfig{
			Inset:      5,
			KernelSize: 19,
			Sigma:      11,
			Workers:    1,
		},
		Display: DisplayConfig{
			FallbackWidth:  400,
			FallbackHeight: 400,
			PreviewWidth:   1280,
			PreviewHeight:  720,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Override adjusts a loaded configuration before validation
type Override func(*Config)

// Load builds the configuration from defaults, the optional YAML file at
// path, FACESWAP_* environment variables and overrides, in that order, then
// validates the result once.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	d := &c.Detector
	d.Backend = envString("FACESWAP_DETECTOR", d.Backend)
	d.ModelPath = envString("FACESWAP_MODEL_PATH", d.ModelPath)
	d.LibraryPath = envString("FACESWAP_ORT_LIBRARY", d.LibraryPath)
	d.InputSize = envInt("FACESWAP_INPUT_SIZE", d.InputSize)
	d.ConfThreshold = envFloat("FACESWAP_CONF_THRESHOLD", d.ConfThreshold)
	d.NMSThreshold = envFloat("FACESWAP_NMS_THRESHOLD", d.NMSThreshold)
	d.CascadePath = envString("FACESWAP_CASCADE_PATH", d.CascadePath)
	d.SocketPath = envString("FACESWAP_SOCKET_PATH", d.SocketPath)
	if s := os.Getenv("FACESWAP_DETECTOR_TIMEOUT"); s != "" {
		if t, err := time.ParseDuration(s); err == nil && t > 0 {
			d.Timeout = t
		}
	}

	c.Blend.Inset = envInt("FACESWAP_BLEND_INSET", c.Blend.Inset)
	c.Blend.KernelSize = envInt("FACESWAP_BLEND_KERNEL", c.Blend.KernelSize)
	c.Blend.Sigma = envFloat("FACESWAP_BLEND_SIGMA", c.Blend.Sigma)
	c.Blend.Workers = envInt("FACESWAP_WORKERS", c.Blend.Workers)

	c.Log.Level = envString("FACESWAP_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("FACESWAP_LOG_FORMAT", c.Log.Format)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	switch c.Detector.Backend {
	case "scrfd":
		if c.Detector.InputSize <= 0 || c.Detector.InputSize%32 != 0 {
			errs = append(errs, fmt.Errorf("detector.input_size must be a positive multiple of 32, got %d", c.Detector.InputSize))
		}
	case "yunet":
	case "haar", "pigo":
		if c.Detector.CascadePath == "" {
			errs = append(errs, fmt.Errorf("detector.cascade_path is required for %s", c.Detector.Backend))
		}
	case "remote":
		if c.Detector.SocketPath == "" {
			errs = append(errs, errors.New("detector.socket_path is required for remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown detector backend %q", c.Detector.Backend))
	}

	if c.Detector.ConfThreshold < 0 || c.Detector.ConfThreshold > 1 {
		errs = append(errs, fmt.Errorf("detector.conf_threshold must be in [0,1], got %v", c.Detector.ConfThreshold))
	}
	if c.Detector.NMSThreshold < 0 || c.Detector.NMSThreshold > 1 {
		errs = append(errs, fmt.Errorf("detector.nms_threshold must be in [0,1], got %v", c.Detector.NMSThreshold))
	}

	if c.Blend.Inset < 0 {
		errs = append(errs, fmt.Errorf("blend.inset must be >= 0, got %d", c.Blend.Inset))
	}
	if c.Blend.KernelSize <= 0 {
		errs = append(errs, fmt.Errorf("blend.kernel_size must be positive, got %d", c.Blend.KernelSize))
	}
	if c.Blend.Sigma <= 0 {
		errs = append(errs, fmt.Errorf("blend.sigma must be positive, got %v", c.Blend.Sigma))
	}
	if c.Blend.Workers < 1 {
		errs = append(errs, fmt.Errorf("blend.workers must be >= 1, got %d", c.Blend.Workers))
	}

	if c.Display.FallbackWidth <= 1 || c.Display.FallbackHeight <= 1 {
		errs = append(errs, fmt.Errorf("display fallback size must exceed 1x1, got %dx%d", c.Display.FallbackWidth, c.Display.FallbackHeight))
	}
	if c.Display.PreviewWidth <= 1 || c.Display.PreviewHeight <= 1 {
		errs = append(errs, fmt.Errorf("display preview size must exceed 1x1, got %dx%d", c.Display.PreviewWidth, c.Display.PreviewHeight))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// envString returns the environment variable or defaultVal when unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat is envInt for floating point values.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}
