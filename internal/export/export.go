package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Format is an export file format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatTOML  Format = "toml"
)

// ParseFormat accepts a format name, case-insensitively. "yml" is YAML.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatJSONL, FormatYAML, FormatTOML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json, jsonl, yaml or toml)", s)
	}
}

// document is the top-level shape of YAML and TOML exports.
type document struct {
	Tasks []*schema.Task `json:"tasks" yaml:"tasks" toml:"tasks"`
}

// Write encodes tasks to w in format.
func Write(w io.Writer, tasks []*schema.Task, format Format) error {
	if tasks == nil {
		tasks = []*schema.Task{}
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)

	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, t := range tasks {
			if err := enc.Encode(t); err != nil {
				return fmt.Errorf("failed to encode task %s: %w", t.ID, err)
			}
		}
		return nil

	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(document{Tasks: tasks}); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()

	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(document{Tasks: tasks}); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Read decodes an export written by Write.
func Read(r io.Reader, format Format) ([]*schema.Task, error) {
	var doc document
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc.Tasks); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
	case FormatJSONL:
		dec := json.NewDecoder(r)
		for dec.More() {
			var t schema.Task
			if err := dec.Decode(&t); err != nil {
				return nil, fmt.Errorf("failed to decode jsonl: %w", err)
			}
			doc.Tasks = append(doc.Tasks, &t)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return doc.Tasks, nil
}
