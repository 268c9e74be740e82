// Package config loads and validates pruner settings.
//
// Settings are merged in order: built-in defaults, then an optional YAML
// file, then command-line flags the operator set explicitly. The result is
// checked against an embedded CUE schema; any violation is a
// BAD_CONFIGURATION error.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/structprune/internal/split"
)

//go:embed schema.cue
var schemaCUE string

// DefaultFile is read when no --config flag is given and it exists in the
// working directory.
const DefaultFile = "structprune.yaml"

// Config holds every tunable the operator verbs use.
type Config struct {
	Store         string  `yaml:"store" json:"store"`
	Database      string  `yaml:"database" json:"database"`
	BatchSize     int     `yaml:"batch_size" json:"batch_size"`
	Delay         float64 `yaml:"delay" json:"delay"` // seconds between batches
	Retain        int     `yaml:"retain" json:"retain"`
	IgnoreMissing bool    `yaml:"ignore_missing" json:"ignore_missing"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database:  "edxapp",
		BatchSize: 1000,
		Delay:     0,
		Retain:    2,
	}
}

// DelayDuration converts Delay to a time.Duration.
func (c Config) DelayDuration() time.Duration {
	return time.Duration(c.Delay * float64(time.Second))
}

// Load returns Default overlaid with the YAML file at path. An empty path
// falls back to DefaultFile when it exists.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, &split.Error{Kind: split.KindBadConfiguration, Message: "cannot open config file", ID: path, Err: err}
	}
	defer f.Close()

	if err := decode(f, &cfg); err != nil {
		return cfg, &split.Error{Kind: split.KindBadConfiguration, Message: "invalid config file", ID: path, Err: err}
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks c against the schema. requireStore is false for verbs
// that never open a store.
func (c Config) Validate(requireStore bool) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := "#Config"
	if requireStore {
		def = "#StoreConfig"
	}
	v := schema.LookupPath(cue.ParsePath(def)).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &split.Error{
			Kind:    split.KindBadConfiguration,
			Message: "invalid configuration",
			Details: map[string]string{"violations": cueerrors.Details(err, nil)},
			Err:     err,
		}
	}
	return nil
}
