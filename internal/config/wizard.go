package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading from stdin and writing to stdout
func NewWizard() *Wizard {
	return NewWizardIO(os.Stdin, os.Stdout)
}

// NewWizardIO creates a wizard on the given streams
func NewWizardIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for the settings a first run needs, starting from base
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := *base
	cfg.Generator.Profiles = append([]AIProfile(nil), base.Generator.Profiles...)
	validator := NewValidator()

	fmt.Fprintln(w.out, "=== toolshed configuration ===")
	fmt.Fprintln(w.out)

	backend, err := w.ask("Backend URL", cfg.Backend.URL)
	if err != nil {
		return nil, err
	}
	cfg.Backend.URL = backend

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Tool generation (only needed for `toolshed backend`):")

	var provider string
	for {
		provider, err = w.ask("Provider (gemini/anthropic/openai, empty to skip)", "")
		if err != nil {
			return nil, err
		}
		if provider == "" {
			break
		}
		if err := validator.ValidateProvider(provider); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		break
	}

	if provider != "" {
		for {
			key, err := w.ask(provider+" API key", "")
			if err != nil {
				return nil, err
			}
			if err := validator.ValidateAPIKey(key, provider); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.Generator.Profiles = append(cfg.Generator.Profiles, AIProfile{
				ID:       provider,
				Provider: provider,
				APIKey:   key,
				Priority: len(cfg.Generator.Profiles),
			})
			break
		}
	}

	fmt.Fprintln(w.out)
	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Logging.Level)
	} else {
		cfg.Logging.Level = level
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return &cfg, nil
}

func (w *Wizard) ask(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}
