package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort     = 12322
	DefaultRows     = 512
	DefaultCols     = 2048
	DefaultEncoding = "cbor"
)

type ProducerConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Rows        int           `yaml:"rows"`
	Cols        int           `yaml:"cols"`
	Period      time.Duration `yaml:"period"`
	Encoding    string        `yaml:"encoding"`
	SendHWM     int           `yaml:"send_hwm"`
	LogEvery    int           `yaml:"log_every"`
	StatsEvery  time.Duration `yaml:"stats_every"`
	Advertise   bool          `yaml:"advertise"`
	ServiceName string        `yaml:"service_name"`
	Seed        int64         `yaml:"seed"`
}

type ViewerConfig struct {
	Port         int           `yaml:"port"`
	Endpoint     string        `yaml:"endpoint"`
	Rows         int           `yaml:"rows"`
	Cols         int           `yaml:"cols"`
	Encoding     string        `yaml:"encoding"`
	RecvTimeout  time.Duration `yaml:"recv_timeout"`
	RecvHWM      int           `yaml:"recv_hwm"`
	ImageWidth   int           `yaml:"image_width"`
	OutputDir    string        `yaml:"output_dir"`
	RawLog       bool          `yaml:"raw_log"`
	RawLogDir    string        `yaml:"raw_log_dir"`
	LogEvery     int           `yaml:"log_every"`
	Discover     bool          `yaml:"discover"`
	DiscoverWait time.Duration `yaml:"discover_wait"`
	TUI          bool          `yaml:"tui"`
	LogFile      string        `yaml:"log_file"`
	Settings     Settings      `yaml:"settings"`
}

type File struct {
	Producer ProducerConfig `yaml:"producer"`
	Viewer   ViewerConfig   `yaml:"viewer"`
}

func DefaultProducer() ProducerConfig {
	return ProducerConfig{
		Endpoint:    fmt.Sprintf("tcp://*:%d", DefaultPort),
		Rows:        DefaultRows,
		Cols:        DefaultCols,
		Period:      100 * time.Millisecond,
		Encoding:    DefaultEncoding,
		SendHWM:     16,
		LogEvery:    50,
		StatsEvery:  10 * time.Second,
		ServiceName: "frame-producer",
	}
}

func DefaultViewer() ViewerConfig {
	return ViewerConfig{
		Port:         8888,
		Endpoint:     fmt.Sprintf("tcp://localhost:%d", DefaultPort),
		Rows:         DefaultRows,
		Cols:         DefaultCols,
		Encoding:     DefaultEncoding,
		RecvTimeout:  500 * time.Millisecond,
		RecvHWM:      4,
		ImageWidth:   1024,
		OutputDir:    "output",
		RawLogDir:    "rawlog",
		LogEvery:     10,
		DiscoverWait: 2 * time.Second,
		LogFile:      "lineout-viewer.log",
		Settings:     DefaultSettings(),
	}
}

// LoadFile reads a YAML file on top of the defaults. Keys missing from the
// file keep their default values.
func LoadFile(path string) (File, error) {
	file := File{
		Producer: DefaultProducer(),
		Viewer:   DefaultViewer(),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse config %s: %w", path, err)
	}
	return file, nil
}

// PathFromArgs finds the value of -config before flag.Parse runs, so the
// file can supply flag defaults.
func PathFromArgs(args []string) string {
	for i, arg := range args {
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(name, "config=") {
			return strings.TrimPrefix(name, "config=")
		}
	}
	return ""
}
