package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/emailpilot/epctl/config"
)

// currentFormat returns the effective output format.
func currentFormat() config.OutputFormat {
	if cfg != nil && cfg.OutputFormat != "" {
		return cfg.OutputFormat
	}
	return config.OutputFormatText
}

// writeJSON writes a value as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML writes a value as YAML.
func writeYAML(w io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// writeStructured writes a value as JSON or YAML depending on the active
// format. Callers handle text rendering themselves.
func writeStructured(w io.Writer, v interface{}) error {
	if currentFormat() == config.OutputFormatYAML {
		return writeYAML(w, v)
	}
	return writeJSON(w, v)
}
