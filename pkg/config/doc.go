// Package config loads gatehouse configuration.
//
// Configuration comes from two layers: an optional YAML file, then
// GATEHOUSE_* environment variables on top. Environment always wins, so a
// deployment can ship a base file and override per instance.
//
//	cfg, err := config.LoadConfig()
//
// With a file:
//
//	cfg, err := config.LoadConfigFile("/etc/gatehouse/config.yaml")
//
// Watch re-reads the file on change and invokes the callback with the fresh
// configuration. Only dynamic settings (log level) take effect without a
// restart; everything else applies on the next boot.
package config
