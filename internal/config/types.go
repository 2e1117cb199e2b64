// Package config loads the tenant-scoped McpConfig set the gateway activates
// from a local file, for the out-of-cluster / dev-mode bootstrap path where
// no management REST API is reachable. Grounded on the original
// config package (MCPServersConfig/Observer), adapted from a flat,
// gateway-global server list to the tenant-scoped McpConfig/Router/Tool
// shape, and from one hardcoded struct to one loader producing the model
// types runtime.Runtime.Activate already accepts, so the same Activate call
// path serves both this file-backed bootstrap and a future
// management-API-backed poller.
package config

import "github.com/kagenti/mcp-gateway/internal/model"

// Observer is notified whenever the on-disk config file changes, mirroring
// the original Observer/Notify fan-out (config.Observer/RegisterObserver).
type Observer interface {
	OnConfigChange(configs []*model.McpConfig)
}

// FileConfig is the on-disk shape viper decodes, one entry per McpConfig.
// Field names match model.McpConfig's own (mapstructure matches
// case-insensitively by default, so no struct tags are needed), keeping this
// package a thin loader rather than a second schema to maintain.
type FileConfig struct {
	Configs []*model.McpConfig `mapstructure:"mcp_configs"`
}
