// Package config loads toolshed settings from ~/.toolshed/toolshed.json and
// TOOLSHED_* environment variables.
//
// Usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
package config
