package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"pkgcheck/filtering"
	"pkgcheck/hasher"
	"pkgcheck/metadata"
	"pkgcheck/version"
)

const (
	ModeAuto      = "auto"
	ModeDirectory = "directory"
	ModeArchive   = "archive"
)

type Config struct {
	Path              string            `json:"path"`
	Mode              string            `json:"mode"`
	FilterFile        string            `json:"filter_file"`
	Includes          []string          `json:"include"`
	Highlights        []string          `json:"highlight"`
	OutputFormat      string            `json:"output_format"`
	OutputFileName    string            `json:"output_file_name"`
	ConcurrencyLevel  int               `json:"concurrency_level"`
	MaxFilesPerSecond int               `json:"max_files_per_second"`
	HashAlgorithms    []string          `json:"hash_algorithms"`
	FuzzyHash         bool              `json:"fuzzy_hash"`
	ScratchDir        string            `json:"scratch_dir"`
	MetadataMaxBytes  int64             `json:"metadata_max_bytes"`
	LogLevel          string            `json:"log_level"`
	Watch             bool              `json:"watch"`
	NoColor           bool              `json:"no_color"`
	ShowProgress      bool              `json:"show_progress"`
	CollectHostInfo   bool              `json:"collect_host_info"`
	ConfigFile        string            `json:"config_file"`
	OtelEndpoint      string            `json:"otel_endpoint"`
	OtelFromEnv       bool              `json:"otel_from_env"`
	OtelHeaders       map[string]string `json:"otel_headers"`
	OtelServiceName   string            `json:"otel_service_name"`
	OtelTimeout       time.Duration     `json:"otel_timeout"`
	OtelExportPaths   bool              `json:"otel_export_paths"`
	OtelExportSigners bool              `json:"otel_export_signatures"`
}

func defaults() *Config {
	return &Config{
		Path:             ".",
		Mode:             ModeAuto,
		OutputFormat:     "json",
		ConcurrencyLevel: runtime.NumCPU(),
		HashAlgorithms:   []string{},
		MetadataMaxBytes: metadata.DefaultMaxBytes,
		LogLevel:         "info",
		ShowProgress:     true,
		CollectHostInfo:  true,
		OtelHeaders:      map[string]string{},
		OtelServiceName:  "pkgcheck",
		OtelTimeout:      5 * time.Second,
	}
}

// patternList collects repeated field=pattern flags.
type patternList []string

func (p *patternList) String() string { return strings.Join(*p, ",") }

func (p *patternList) Set(value string) error {
	if _, _, err := splitFieldPattern(value); err != nil {
		return err
	}
	*p = append(*p, value)
	return nil
}

func LoadConfig() (*Config, error) {
	cfg := defaults()

	path := flag.String("path", cfg.Path, fmt.Sprintf("Directory or .zip archive to inventory (default: %s).", cfg.Path))
	mode := flag.String("mode", cfg.Mode, "Scan mode: auto, directory, or archive (default: auto).")
	filterFile := flag.String("filter", "", "Path to a JSON or YAML filter file (default: none).")
	var includes, highlights patternList
	flag.Var(&includes, "include", "Include pattern as field=pattern; repeatable. Fields: product_version, file_version, file_path, signature.")
	flag.Var(&highlights, "highlight", "Highlight pattern as field=pattern; repeatable.")
	format := flag.String("format", cfg.OutputFormat, fmt.Sprintf("Report format: json or csv (default: %s).", cfg.OutputFormat))
	output := flag.String("output", "", "Report file name (default: none, console only).")
	concurrency := flag.Int("concurrency", cfg.ConcurrencyLevel, fmt.Sprintf("Parallel metadata readers (default: %d).", cfg.ConcurrencyLevel))
	maxFiles := flag.Int("max-files-per-second", cfg.MaxFilesPerSecond, "Maximum files read per second (default: 0 for unlimited).")
	hashes := flag.String("hashes", "", fmt.Sprintf("Comma-separated hash algorithms: %s (default: none).", strings.Join(hasher.Supported, ", ")))
	fuzzyHash := flag.Bool("fuzzy-hash", cfg.FuzzyHash, "Compute a TLSH fuzzy hash per file (default: false).")
	scratchDir := flag.String("scratch-dir", cfg.ScratchDir, "Base directory for archive extraction (default: system temp).")
	metadataMaxBytes := flag.Int64("metadata-max-bytes", cfg.MetadataMaxBytes, fmt.Sprintf("Largest file parsed for version and signature data (default: %d, 0 means unlimited).", cfg.MetadataMaxBytes))
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, or fatal (default: %s).", cfg.LogLevel))
	watch := flag.Bool("watch", cfg.Watch, "Keep running and re-filter when the filter file changes (default: false).")
	noColor := flag.Bool("no-color", cfg.NoColor, "Disable colored console output (default: false).")
	showProgress := flag.Bool("progress", cfg.ShowProgress, fmt.Sprintf("Show a progress bar (default: %t).", cfg.ShowProgress))
	hostInfo := flag.Bool("host-info", cfg.CollectHostInfo, fmt.Sprintf("Record host details in the report (default: %t).", cfg.CollectHostInfo))
	configFile := flag.String("config", "", "Path to JSON configuration file (default: none).")
	otelEndpoint := flag.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint (default: none).")
	otelFromEnv := flag.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: pkgcheck).")
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportPaths := flag.Bool("otel-export-paths", cfg.OtelExportPaths, "Include file paths in OTEL payloads (default: false).")
	otelExportSigners := flag.Bool("otel-export-signatures", cfg.OtelExportSigners, "Include signer subjects in OTEL payloads (default: false).")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Usage = displayHelp
	flag.Parse()
	if *showVersion {
		fmt.Printf("pkgcheck version %s\n", version.Version)
		os.Exit(0)
	}
	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "path":
			cfg.Path = *path
		case "mode":
			cfg.Mode = *mode
		case "filter":
			cfg.FilterFile = *filterFile
		case "include":
			cfg.Includes = append(cfg.Includes, includes...)
		case "highlight":
			cfg.Highlights = append(cfg.Highlights, highlights...)
		case "format":
			cfg.OutputFormat = *format
		case "output":
			cfg.OutputFileName = *output
		case "concurrency":
			cfg.ConcurrencyLevel = *concurrency
		case "max-files-per-second":
			cfg.MaxFilesPerSecond = *maxFiles
		case "hashes":
			cfg.HashAlgorithms = parseCommaSeparated(*hashes)
		case "fuzzy-hash":
			cfg.FuzzyHash = *fuzzyHash
		case "scratch-dir":
			cfg.ScratchDir = *scratchDir
		case "metadata-max-bytes":
			cfg.MetadataMaxBytes = *metadataMaxBytes
		case "log-level":
			cfg.LogLevel = *logLevel
		case "watch":
			cfg.Watch = *watch
		case "no-color":
			cfg.NoColor = *noColor
		case "progress":
			cfg.ShowProgress = *showProgress
		case "host-info":
			cfg.CollectHostInfo = *hostInfo
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-paths":
			cfg.OtelExportPaths = *otelExportPaths
		case "otel-export-signatures":
			cfg.OtelExportSigners = *otelExportSigners
		}
	})
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func displayHelp() {
	fmt.Println("pkgcheck - Binary package inventory")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pkgcheck [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  pkgcheck --path ./build")
	fmt.Println("  pkgcheck --path release.zip --include 'file_path=*test*' --highlight 'signature=!'")
	fmt.Println("  pkgcheck --path ./build --filter filters.yaml --watch")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config file format: %w", err)
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	cfg.OutputFormat = strings.ToLower(strings.TrimSpace(cfg.OutputFormat))
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "json"
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.HashAlgorithms = normalizeAlgorithms(cfg.HashAlgorithms)
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.Path) == "" {
		return fmt.Errorf("a scan path must be specified")
	}
	if cfg.Mode != ModeAuto && cfg.Mode != ModeDirectory && cfg.Mode != ModeArchive {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.OutputFormat != "json" && cfg.OutputFormat != "csv" {
		return fmt.Errorf("invalid output format: %s", cfg.OutputFormat)
	}
	if cfg.ConcurrencyLevel <= 0 {
		return fmt.Errorf("concurrency level must be positive")
	}
	if cfg.MaxFilesPerSecond < 0 {
		return fmt.Errorf("max-files-per-second must be zero or positive")
	}
	if cfg.MetadataMaxBytes < 0 {
		return fmt.Errorf("metadata-max-bytes must be zero or positive")
	}
	for _, algo := range cfg.HashAlgorithms {
		if !hasher.IsSupported(algo) {
			return fmt.Errorf("unsupported hash algorithm: %s", algo)
		}
	}
	for _, item := range append(append([]string{}, cfg.Includes...), cfg.Highlights...) {
		if _, _, err := splitFieldPattern(item); err != nil {
			return err
		}
	}
	if cfg.Watch && cfg.FilterFile == "" {
		return fmt.Errorf("--watch requires --filter")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

// Filters builds the filter configuration from the filter file, if any, with
// the command-line patterns appended to the matching fields.
func (cfg *Config) Filters() (filtering.Info, error) {
	var info filtering.Info
	if cfg.FilterFile != "" {
		loaded, err := filtering.LoadFile(cfg.FilterFile)
		if err != nil {
			return filtering.Info{}, err
		}
		info = loaded
	}
	if err := applyPatterns(&info, cfg.Includes, cfg.Highlights); err != nil {
		return filtering.Info{}, err
	}
	if err := info.Validate(); err != nil {
		return filtering.Info{}, err
	}
	return info, nil
}

// FilterOverlay re-applies the command-line patterns to a freshly loaded
// filter file so that a reload keeps them.
func (cfg *Config) FilterOverlay(info *filtering.Info) error {
	return applyPatterns(info, cfg.Includes, cfg.Highlights)
}

func applyPatterns(info *filtering.Info, includes, highlights []string) error {
	for _, item := range includes {
		field, pattern, err := splitFieldPattern(item)
		if err != nil {
			return err
		}
		c := info.Condition(field)
		c.Include = append(c.Include, pattern)
	}
	for _, item := range highlights {
		field, pattern, err := splitFieldPattern(item)
		if err != nil {
			return err
		}
		c := info.Condition(field)
		c.Highlight = append(c.Highlight, pattern)
	}
	return nil
}

func splitFieldPattern(item string) (filtering.Field, string, error) {
	name, pattern, ok := strings.Cut(item, "=")
	if !ok {
		return 0, "", fmt.Errorf("pattern %q must be field=pattern", item)
	}
	field, err := filtering.ParseField(name)
	if err != nil {
		return 0, "", err
	}
	if _, err := filtering.Compile(pattern); err != nil {
		return 0, "", err
	}
	return field, pattern, nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	for _, item := range strings.Split(input, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}

func normalizeAlgorithms(items []string) []string {
	normalized := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		normalized = append(normalized, item)
	}
	return normalized
}
