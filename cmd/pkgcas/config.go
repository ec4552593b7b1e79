package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PKGCAS_"

// config holds the settings shared by all subcommands.
type config struct {
	Store           string            `yaml:"store"`
	Workers         int               `yaml:"workers"`
	ExtractWorkers  int               `yaml:"extract_workers"`
	Timeout         time.Duration     `yaml:"timeout"`
	MaxArchiveSize  int64             `yaml:"max_archive_size"`
	MaxUnpackedSize uint64            `yaml:"max_unpacked_size"`
	UserAgent       string            `yaml:"user_agent"`
	Headers         map[string]string `yaml:"headers"`
	PlainHTTP       bool              `yaml:"plain_http"`
	DockerConfig    bool              `yaml:"docker_config"`
	Verbose         bool              `yaml:"verbose"`
}

// loadConfigFile merges the YAML file at path into cfg. Unknown keys are
// rejected so that typos do not go unnoticed.
func loadConfigFile(cfg *config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides cfg with PKGCAS_* variables read through getenv.
func applyEnv(cfg *config, getenv func(string) string) error {
	if v := getenv(envPrefix + "STORE"); v != "" {
		cfg.Store = v
	}
	if v := getenv(envPrefix + "USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"WORKERS", &cfg.Workers},
		{"EXTRACT_WORKERS", &cfg.ExtractWorkers},
	}
	for _, e := range ints {
		v := getenv(envPrefix + e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, e.name, err)
		}
		*e.dst = n
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"PLAIN_HTTP", &cfg.PlainHTTP},
		{"DOCKER_CONFIG", &cfg.DockerConfig},
		{"VERBOSE", &cfg.Verbose},
	}
	for _, e := range bools {
		v := getenv(envPrefix + e.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, e.name, err)
		}
		*e.dst = b
	}

	if v := getenv(envPrefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", envPrefix, err)
		}
		cfg.Timeout = d
	}
	if v := getenv(envPrefix + "MAX_ARCHIVE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_ARCHIVE_SIZE: %w", envPrefix, err)
		}
		cfg.MaxArchiveSize = n
	}
	if v := getenv(envPrefix + "MAX_UNPACKED_SIZE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UNPACKED_SIZE: %w", envPrefix, err)
		}
		cfg.MaxUnpackedSize = n
	}
	return nil
}

// flagValues holds raw flag destinations; only flags the user set are
// applied over the file and environment.
type flagValues struct {
	configPath      string
	store           string
	workers         int
	extractWorkers  int
	timeout         time.Duration
	maxArchiveSize  int64
	maxUnpackedSize uint64
	userAgent       string
	headers         []string
	plainHTTP       bool
	dockerConfig    bool
	verbose         bool
}

func (fv *flagValues) register(fs *pflag.FlagSet) {
	fs.StringVarP(&fv.configPath, "config", "c", "", "path to a YAML config file (env "+envPrefix+"CONFIG)")
	fs.StringVarP(&fv.store, "store", "s", "", "store directory (default \"pnpm-store\")")
	fs.IntVarP(&fv.workers, "workers", "j", 0, "concurrent fetches being verified and extracted (default GOMAXPROCS)")
	fs.IntVar(&fv.extractWorkers, "extract-workers", 0, "files hashed and stored concurrently per archive (default GOMAXPROCS)")
	fs.DurationVar(&fv.timeout, "timeout", 0, "timeout for each download")
	fs.Int64Var(&fv.maxArchiveSize, "max-archive-size", 0, "maximum archive size in bytes")
	fs.Uint64Var(&fv.maxUnpackedSize, "max-unpacked-size", 0, "maximum decompressed size in bytes")
	fs.StringVar(&fv.userAgent, "user-agent", "", "User-Agent header for requests")
	fs.StringArrayVarP(&fv.headers, "header", "H", nil, "extra request header as \"Key: Value\" (repeatable)")
	fs.BoolVar(&fv.plainHTTP, "plain-http", false, "use plain HTTP for oci:// registries")
	fs.BoolVar(&fv.dockerConfig, "docker-config", false, "read registry credentials from ~/.docker/config.json")
	fs.BoolVarP(&fv.verbose, "verbose", "v", false, "enable debug logging")
}

func (fv *flagValues) apply(cfg *config, fs *pflag.FlagSet) error {
	if fs.Changed("store") {
		cfg.Store = fv.store
	}
	if fs.Changed("workers") {
		cfg.Workers = fv.workers
	}
	if fs.Changed("extract-workers") {
		cfg.ExtractWorkers = fv.extractWorkers
	}
	if fs.Changed("timeout") {
		cfg.Timeout = fv.timeout
	}
	if fs.Changed("max-archive-size") {
		cfg.MaxArchiveSize = fv.maxArchiveSize
	}
	if fs.Changed("max-unpacked-size") {
		cfg.MaxUnpackedSize = fv.maxUnpackedSize
	}
	if fs.Changed("user-agent") {
		cfg.UserAgent = fv.userAgent
	}
	if fs.Changed("plain-http") {
		cfg.PlainHTTP = fv.plainHTTP
	}
	if fs.Changed("docker-config") {
		cfg.DockerConfig = fv.dockerConfig
	}
	if fs.Changed("verbose") {
		cfg.Verbose = fv.verbose
	}
	for _, h := range fv.headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("invalid header %q, want \"Key: Value\"", h)
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return nil
}

// resolveConfig builds the effective config: defaults, then the config
// file, then the environment, then flags.
func resolveConfig(fv *flagValues, fs *pflag.FlagSet, getenv func(string) string) (config, error) {
	var cfg config

	path := fv.configPath
	if !fs.Changed("config") {
		path = getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := loadConfigFile(&cfg, path); err != nil {
			return config{}, err
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return config{}, err
	}
	if err := fv.apply(&cfg, fs); err != nil {
		return config{}, err
	}
	return cfg, nil
}
