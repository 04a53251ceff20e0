package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// ErrExists is returned by WriteDefault when the file is already present.
var ErrExists = errors.New("config file already exists")

// Settings returns every resolved key with its value.
func Settings(v *viper.Viper) map[string]any {
	out := make(map[string]any)
	for _, k := range v.AllKeys() {
		out[k] = v.Get(k)
	}
	return out
}

// Encode writes dotted settings as TOML tables, one table per key prefix.
// Keys without a prefix stay at the top level. Durations are written in
// time.Duration string form so they read back unchanged.
func Encode(w io.Writer, settings map[string]any) error {
	root := make(map[string]any)
	for key, val := range settings {
		if d, ok := val.(time.Duration); ok {
			val = d.String()
		}
		section, name, ok := strings.Cut(key, ".")
		if !ok {
			root[key] = val
			continue
		}
		table, _ := root[section].(map[string]any)
		if table == nil {
			table = make(map[string]any)
			root[section] = table
		}
		table[name] = val
	}
	if err := toml.NewEncoder(w).Encode(root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// WriteDefault writes a config file holding every default value. It refuses
// to replace an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := fmt.Fprintln(f, "# tracka configuration. Every key can be overridden with TRACKA_<SECTION>_<KEY>."); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := Encode(f, Defaults()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DefaultPath is where `tracka config init` writes when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "tracka.toml")
}
