package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// decodeFile overlays the file at path onto cfg. Keys missing from the file
// keep the value already in cfg; unknown keys are rejected.
func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return &ArgumentError{Arg: "config", Value: path, Err: err}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return &ArgumentError{Arg: "config", Value: path, Err: fmt.Errorf("unknown key %q", undecoded[0].String())}
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return &ArgumentError{Arg: "config", Value: path, Err: err}
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return &ArgumentError{Arg: "config", Value: path, Err: err}
		}
	default:
		return &ArgumentError{Arg: "config", Value: path, Err: fmt.Errorf("unsupported extension %q", ext)}
	}
	return nil
}
