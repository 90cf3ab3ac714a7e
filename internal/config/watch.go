package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "DTREEWATCH_"

const (
	DefaultReadBufferSize = 100 * (16 + 255 + 1)
	MinReadBufferSize     = 16 + 255 + 1
	DefaultRenameWait     = 2 * time.Millisecond
	MaxRenameWait         = time.Second
)

type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// Settings is the merged runtime configuration of the watcher.
type Settings struct {
	LogFile        string
	Verbosity      int
	CheckCache     bool
	DumpCache      bool
	ReadBufferSize int
	RenameWait     time.Duration
	AbortStopFile  string
	Listen         string
	AllowedOrigins []string
	Token          string
	Sources        map[string]Source
}

// File mirrors the YAML configuration file. Absent keys stay nil.
type File struct {
	LogFile        *string  `yaml:"log_file"`
	Verbosity      *int     `yaml:"verbosity"`
	CheckCache     *bool    `yaml:"check_cache"`
	DumpCache      *bool    `yaml:"dump_cache"`
	ReadBufferSize *int     `yaml:"read_buffer_size"`
	RenameWait     *string  `yaml:"rename_wait"`
	AbortStopFile  *string  `yaml:"abort_stop_file"`
	Listen         *string  `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Token          *string  `yaml:"token"`
}

func Defaults() Settings {
	settings := Settings{
		ReadBufferSize: DefaultReadBufferSize,
		RenameWait:     DefaultRenameWait,
		Sources:        make(map[string]Source),
	}
	for _, key := range keys {
		settings.Sources[key] = SourceDefault
	}
	return settings
}

var keys = []string{
	"log_file",
	"verbosity",
	"check_cache",
	"dump_cache",
	"read_buffer_size",
	"rename_wait",
	"abort_stop_file",
	"listen",
	"allowed_origins",
	"token",
}

// LoadFile reads a YAML configuration file. Unknown keys are rejected.
func LoadFile(path string) (File, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return DecodeFile(payload)
}

func DecodeFile(payload []byte) (File, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	file := File{}
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("decode config: %w", err)
	}
	return file, nil
}

// ApplyFile overlays the keys present in file.
func (settings *Settings) ApplyFile(file File) error {
	if file.LogFile != nil {
		settings.set("log_file", SourceFile)
		settings.LogFile = strings.TrimSpace(*file.LogFile)
	}
	if file.Verbosity != nil {
		settings.set("verbosity", SourceFile)
		settings.Verbosity = *file.Verbosity
	}
	if file.CheckCache != nil {
		settings.set("check_cache", SourceFile)
		settings.CheckCache = *file.CheckCache
	}
	if file.DumpCache != nil {
		settings.set("dump_cache", SourceFile)
		settings.DumpCache = *file.DumpCache
	}
	if file.ReadBufferSize != nil {
		settings.set("read_buffer_size", SourceFile)
		settings.ReadBufferSize = *file.ReadBufferSize
	}
	if file.RenameWait != nil {
		wait, err := time.ParseDuration(strings.TrimSpace(*file.RenameWait))
		if err != nil {
			return fmt.Errorf("invalid rename_wait %q: %w", *file.RenameWait, err)
		}
		settings.set("rename_wait", SourceFile)
		settings.RenameWait = wait
	}
	if file.AbortStopFile != nil {
		settings.set("abort_stop_file", SourceFile)
		settings.AbortStopFile = strings.TrimSpace(*file.AbortStopFile)
	}
	if file.Listen != nil {
		settings.set("listen", SourceFile)
		settings.Listen = strings.TrimSpace(*file.Listen)
	}
	if file.AllowedOrigins != nil {
		settings.set("allowed_origins", SourceFile)
		settings.AllowedOrigins = cleanList(file.AllowedOrigins)
	}
	if file.Token != nil {
		settings.set("token", SourceFile)
		settings.Token = *file.Token
	}
	return nil
}

// ApplyEnv overlays DTREEWATCH_* variables. lookup is usually os.LookupEnv.
func (settings *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := func(key string) (string, bool) {
		value, ok := lookup(EnvPrefix + strings.ToUpper(key))
		if !ok {
			return "", false
		}
		value = strings.TrimSpace(value)
		return value, value != ""
	}

	if value, ok := env("log_file"); ok {
		settings.set("log_file", SourceEnv)
		settings.LogFile = value
	}
	if value, ok := env("verbosity"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %sVERBOSITY %q", EnvPrefix, value)
		}
		settings.set("verbosity", SourceEnv)
		settings.Verbosity = parsed
	}
	if value, ok := env("check_cache"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %sCHECK_CACHE %q", EnvPrefix, value)
		}
		settings.set("check_cache", SourceEnv)
		settings.CheckCache = parsed
	}
	if value, ok := env("dump_cache"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %sDUMP_CACHE %q", EnvPrefix, value)
		}
		settings.set("dump_cache", SourceEnv)
		settings.DumpCache = parsed
	}
	if value, ok := env("read_buffer_size"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %sREAD_BUFFER_SIZE %q", EnvPrefix, value)
		}
		settings.set("read_buffer_size", SourceEnv)
		settings.ReadBufferSize = parsed
	}
	if value, ok := env("rename_wait"); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %sRENAME_WAIT %q", EnvPrefix, value)
		}
		settings.set("rename_wait", SourceEnv)
		settings.RenameWait = parsed
	}
	if value, ok := env("abort_stop_file"); ok {
		settings.set("abort_stop_file", SourceEnv)
		settings.AbortStopFile = value
	}
	if value, ok := env("listen"); ok {
		settings.set("listen", SourceEnv)
		settings.Listen = value
	}
	if value, ok := env("allowed_origins"); ok {
		settings.set("allowed_origins", SourceEnv)
		settings.AllowedOrigins = cleanList(strings.Split(value, ","))
	}
	if value, ok := env("token"); ok {
		settings.set("token", SourceEnv)
		settings.Token = value
	}
	return nil
}

// MarkFlag records that key was set on the command line.
func (settings *Settings) MarkFlag(key string) {
	settings.set(key, SourceFlag)
}

func (settings *Settings) set(key string, source Source) {
	if settings.Sources == nil {
		settings.Sources = make(map[string]Source)
	}
	settings.Sources[key] = source
}

func (settings Settings) Validate() error {
	if settings.Verbosity < 0 {
		return fmt.Errorf("invalid verbosity %d: must be >= 0", settings.Verbosity)
	}
	if settings.ReadBufferSize < MinReadBufferSize {
		return fmt.Errorf("invalid read buffer size %d: must be >= %d", settings.ReadBufferSize, MinReadBufferSize)
	}
	if settings.RenameWait <= 0 || settings.RenameWait > MaxRenameWait {
		return fmt.Errorf("invalid rename wait %s: must be in (0, %s]", settings.RenameWait, MaxRenameWait)
	}
	return nil
}

func cleanList(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
