package log

import "fmt"

// Config describes a logger declaratively, suitable for env/file loading.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text | json
	Output string `json:"output" yaml:"output"` // console | file | null

	// File output settings, used when Output == "file".
	FilePath       string `json:"filePath" yaml:"filePath"`
	FileMaxSizeMB  int    `json:"fileMaxSizeMB" yaml:"fileMaxSizeMB"`
	FileMaxBackups int    `json:"fileMaxBackups" yaml:"fileMaxBackups"`
	FileMaxAgeDays int    `json:"fileMaxAgeDays" yaml:"fileMaxAgeDays"`

	// Redact masks the values of these keys in all entries.
	Redact []string `json:"redact" yaml:"redact"`

	// Sampling: emit the first SampleInitial occurrences of each message,
	// then one in every SampleThereafter. Zero disables sampling.
	SampleInitial    int `json:"sampleInitial" yaml:"sampleInitial"`
	SampleThereafter int `json:"sampleThereafter" yaml:"sampleThereafter"`
}

// ApplyConfig builds a Logger from a Config.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		return NewLogger(), nil
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	var output Output
	switch cfg.Output {
	case "", "console":
		output = NewConsoleOutput()
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log: file output requires filePath")
		}
		output = NewFileOutput(FileOptions{
			Path:       cfg.FilePath,
			MaxSizeMB:  cfg.FileMaxSizeMB,
			MaxBackups: cfg.FileMaxBackups,
			MaxAgeDays: cfg.FileMaxAgeDays,
		})
	case "null":
		output = NullOutput{}
	default:
		return nil, fmt.Errorf("log: unknown output %q", cfg.Output)
	}

	opts := []LoggerOption{
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(output),
	}
	if len(cfg.Redact) > 0 {
		opts = append(opts, WithRedaction(cfg.Redact...))
	}
	if cfg.SampleThereafter > 0 {
		opts = append(opts, WithSampling(cfg.SampleInitial, cfg.SampleThereafter))
	}
	return NewLogger(opts...), nil
}
