package config

import (
	"errors"
	"io/fs"

	"go.uber.org/zap"
)

// DefaultFleetConfigFile is the conventional fleet config filename.
const DefaultFleetConfigFile = "fleet.yaml"

// Load builds the effective fleet configuration: compiled defaults with
// the given file layered on top. A missing file is not an error (the
// defaults carry the corridor standards); a present-but-broken file is.
func Load(path string, logger *zap.Logger) (*FleetConfig, error) {
	cfg := Default()

	if path == "" {
		path = DefaultFleetConfigFile
	}
	fileCfg, err := LoadFromFile(path)
	switch {
	case err == nil:
		cfg.Merge(fileCfg)
		logger.Info("loaded fleet config", zap.String("path", path))
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("no fleet config file, using defaults", zap.String("path", path))
	default:
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
