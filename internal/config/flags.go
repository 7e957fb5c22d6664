package config

import "flag"

var (
	flagConfig = flag.String("config", "", "Path to config file")
	flagDebug  = flag.Bool("debug", false, "Enable debug logging")
	flagMapX   = flag.Int("map-x", 0, "Map size in quads along X")
	flagMapY   = flag.Int("map-y", 0, "Map size in quads along Y")
	flagSeed   = flag.Int64("seed", 0, "Procedural seed (0 keeps the configured seed)")
	flagListen = flag.String("listen", "", "Editor link listen address")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagMapX > 0 {
		cfg.Terrain.MapSizeX = *flagMapX
	}
	if *flagMapY > 0 {
		cfg.Terrain.MapSizeY = *flagMapY
	}
	if *flagSeed != 0 {
		cfg.Procedural.Seed = *flagSeed
	}
	if *flagListen != "" {
		cfg.Network.Listen = *flagListen
	}
}
