package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scenescan/scenescan/pkg/analyze"
	"github.com/scenescan/scenescan/pkg/nn"
	"github.com/scenescan/scenescan/pkg/videox"
	"github.com/spf13/viper"
)

// Model is the external detection model server.
type Model struct {
	URL       string `mapstructure:"url"`       // eg http://127.0.0.1:9090
	TimeoutMS int    `mapstructure:"timeoutMS"` // per-frame call budget
}

// Pipeline tunables. See analyze.Options for semantics.
type Pipeline struct {
	SampleCount     int      `mapstructure:"sampleCount"`
	MinConfidence   float64  `mapstructure:"minConfidence"`
	Classes         []string `mapstructure:"classes"`
	MinBrightness   float64  `mapstructure:"minBrightness"`
	MaxBrightness   float64  `mapstructure:"maxBrightness"`
	TopClassLimit   int      `mapstructure:"topClassLimit"`
	Workers         int      `mapstructure:"workers"`
	DecodeTimeoutMS int      `mapstructure:"decodeTimeoutMS"`
}

type Config struct {
	Port     int      `mapstructure:"port"`
	TempPath string   `mapstructure:"tempPath"` // where uploads are spilled; empty means the OS temp dir
	Model    Model    `mapstructure:"model"`
	Pipeline Pipeline `mapstructure:"pipeline"`
}

// The class allowlist we ship by default: the classes our rule table knows,
// plus the common objects worth reporting. Everything else the model finds
// tends to be noise for activity inference.
var defaultClasses = []string{
	"person", "car", "truck", "bus", "motorcycle", "bicycle",
	"tv", "laptop", "cell phone", "dog", "cat", "chair", "dining table",
}

// Load reads the configuration file (optional) and environment overrides.
// Pass an empty filename to search the usual locations.
// Environment variables use the SCENESCAN_ prefix, eg SCENESCAN_MODEL_URL.
func Load(filename string) (*Config, error) {
	v := viper.New()
	if filename != "" {
		v.SetConfigFile(filename)
	} else {
		v.SetConfigName("scenescan")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/scenescan")
	}
	v.SetEnvPrefix("scenescan")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("tempPath", "")
	v.SetDefault("model.url", "http://127.0.0.1:9090")
	v.SetDefault("model.timeoutMS", int(analyze.DefaultModelTimeout/time.Millisecond))
	v.SetDefault("pipeline.sampleCount", videox.DefaultSampleCount)
	v.SetDefault("pipeline.minConfidence", nn.DefaultMinConfidence)
	v.SetDefault("pipeline.classes", defaultClasses)
	v.SetDefault("pipeline.minBrightness", videox.DefaultMinBrightness)
	v.SetDefault("pipeline.maxBrightness", videox.DefaultMaxBrightness)
	v.SetDefault("pipeline.topClassLimit", analyze.DefaultTopClassLimit)
	v.SetDefault("pipeline.workers", analyze.DefaultWorkers)
	v.SetDefault("pipeline.decodeTimeoutMS", int(analyze.DefaultDecodeTimeout/time.Millisecond))

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine when we're searching default paths;
		// everything has a default or an env override.
		var notFound viper.ConfigFileNotFoundError
		if filename != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// PipelineOptions translates the config into pipeline options.
func (c *Config) PipelineOptions() analyze.Options {
	return analyze.Options{
		SampleCount:   c.Pipeline.SampleCount,
		MinConfidence: float32(c.Pipeline.MinConfidence),
		Classes:       c.Pipeline.Classes,
		MinBrightness: float32(c.Pipeline.MinBrightness),
		MaxBrightness: float32(c.Pipeline.MaxBrightness),
		TopClassLimit: c.Pipeline.TopClassLimit,
		Workers:       c.Pipeline.Workers,
		ModelTimeout:  time.Duration(c.Model.TimeoutMS) * time.Millisecond,
		DecodeTimeout: time.Duration(c.Pipeline.DecodeTimeoutMS) * time.Millisecond,
	}
}
