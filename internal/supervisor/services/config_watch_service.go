// Quizsync - Realtime State Synchronization for Classroom Quiz Games
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quizsync

package services

import (
	"context"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/quizsync/internal/config"
	"github.com/tomtom215/quizsync/internal/logging"
)

// WatchFunc registers callback for changes to the file at path. It matches
// config.WatchConfigFile.
type WatchFunc func(path string, callback func()) error

// ReloadFunc receives each successfully reloaded configuration.
type ReloadFunc func(cfg *config.Config)

// ConfigWatchService reloads the config file when it changes and hands the
// validated result to onReload. Invalid files are logged and ignored.
//
// The underlying file watch cannot be unregistered, so the service
// registers once and never asks suture for a restart.
type ConfigWatchService struct {
	path     string
	watch    WatchFunc
	load     func(path string) (*config.Config, error)
	onReload ReloadFunc
}

// NewConfigWatchService watches path with config.WatchConfigFile and
// reloads it with config.LoadFile.
func NewConfigWatchService(path string, onReload ReloadFunc) *ConfigWatchService {
	return &ConfigWatchService{
		path:     path,
		watch:    config.WatchConfigFile,
		load:     config.LoadFile,
		onReload: onReload,
	}
}

// Serve implements suture.Service.
func (s *ConfigWatchService) Serve(ctx context.Context) error {
	if err := s.watch(s.path, s.reload); err != nil {
		logging.Warn().Err(err).Str("path", s.path).Msg("config hot reload disabled")
		return fmt.Errorf("watch %s: %w", s.path, suture.ErrDoNotRestart)
	}
	logging.Info().Str("path", s.path).Msg("watching config file for changes")
	<-ctx.Done()
	return ctx.Err()
}

func (s *ConfigWatchService) reload() {
	cfg, err := s.load(s.path)
	if err != nil {
		logging.Warn().Err(err).Str("path", s.path).Msg("config reload failed, keeping current settings")
		return
	}
	if err := cfg.Validate(); err != nil {
		logging.Warn().Err(err).Str("path", s.path).Msg("reloaded config is invalid, keeping current settings")
		return
	}
	logging.Info().Str("path", s.path).Msg("config reloaded")
	s.onReload(cfg)
}

// String implements fmt.Stringer for suture's logs.
func (s *ConfigWatchService) String() string {
	return "config-watcher"
}
