// Package config handles terrain configuration loading and management.
package config

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/Faultbox/midgard-terrain/internal/compositor"
	"github.com/Faultbox/midgard-terrain/internal/layer"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

// Config holds all terrain settings.
type Config struct {
	Terrain    TerrainConfig    `yaml:"terrain"`
	Procedural ProceduralConfig `yaml:"procedural"`
	Data       DataConfig       `yaml:"data"`
	Network    NetworkConfig    `yaml:"network"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TerrainConfig holds the map partition settings.
type TerrainConfig struct {
	MapSizeX     int     `yaml:"map_size_x"` // Quads per axis
	MapSizeY     int     `yaml:"map_size_y"`
	QuadPerMeshX int     `yaml:"quad_per_mesh_x"`
	QuadPerMeshY int     `yaml:"quad_per_mesh_y"`
	MeshPerChunk int     `yaml:"mesh_per_chunk"` // N for an NxN tile grid, 1..8
	QuadSize     float32 `yaml:"quad_size"`      // World units per quad
	HeightMin    float32 `yaml:"height_min"`
	HeightMax    float32 `yaml:"height_max"`
	BaseHeight   float32 `yaml:"base_height"` // Normalized
}

// ProceduralConfig holds the noise layer settings.
type ProceduralConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Seed      int64   `yaml:"seed"`
	Alpha     float64 `yaml:"alpha"`
	Beta      float64 `yaml:"beta"`
	Octaves   int32   `yaml:"octaves"`
	Frequency float64 `yaml:"frequency"`
	Amplitude float32 `yaml:"amplitude"`
	Blend     string  `yaml:"blend"` // minimum, maximum or average
}

// DataConfig holds terrain data paths.
type DataConfig struct {
	Paths   []string `yaml:"paths"`    // Read-only data directories, last wins
	SaveDir string   `yaml:"save_dir"` // Where sessions are saved
}

// NetworkConfig holds editor link settings.
type NetworkConfig struct {
	Listen         string        `yaml:"listen"`
	MapID          uint32        `yaml:"map_id"`
	TickRate       int           `yaml:"tick_rate"` // Process calls per second
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			MapSizeX:     256,
			MapSizeY:     256,
			QuadPerMeshX: 16,
			QuadPerMeshY: 16,
			MeshPerChunk: 4,
			QuadSize:     1,
			HeightMin:    0,
			HeightMax:    200,
			BaseHeight:   0,
		},
		Procedural: ProceduralConfig{
			Enabled:   true,
			Seed:      1,
			Alpha:     2,
			Beta:      2,
			Octaves:   3,
			Frequency: 0.02,
			Amplitude: 1,
			Blend:     "maximum",
		},
		Data: DataConfig{
			Paths:   []string{"data"},
			SaveDir: "terrain",
		},
		Network: NetworkConfig{
			Listen:         "127.0.0.1:7420",
			MapID:          1,
			TickRate:       30,
			ConnectTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			LogFile:    "",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

// Validate reports every setting the terrain core cannot work with.
func (c *Config) Validate() error {
	var errs error
	t := c.Terrain
	if t.MapSizeX <= 0 || t.MapSizeY <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("terrain: map size must be positive, got %dx%d", t.MapSizeX, t.MapSizeY))
	}
	if t.QuadPerMeshX <= 0 || t.QuadPerMeshY <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("terrain: quad per mesh must be positive, got %dx%d", t.QuadPerMeshX, t.QuadPerMeshY))
	}
	if !terrain.MeshPerChunk(t.MeshPerChunk).Valid() {
		errs = multierr.Append(errs, fmt.Errorf("terrain: mesh per chunk must be in 1..8, got %d", t.MeshPerChunk))
	}
	if t.QuadSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("terrain: quad size must be positive, got %v", t.QuadSize))
	}
	if t.HeightMax <= t.HeightMin {
		errs = multierr.Append(errs, fmt.Errorf("terrain: height max %v must exceed min %v", t.HeightMax, t.HeightMin))
	}
	if t.BaseHeight < 0 || t.BaseHeight > 1 {
		errs = multierr.Append(errs, fmt.Errorf("terrain: base height must be normalized, got %v", t.BaseHeight))
	}
	if _, err := compositor.ParseBlendType(c.Procedural.Blend); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("procedural: %w", err))
	}
	if c.Network.TickRate <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("network: tick rate must be positive, got %d", c.Network.TickRate))
	}
	return errs
}

// Settings converts the terrain section into map settings.
func (t TerrainConfig) Settings() terrain.Settings {
	return terrain.Settings{
		MapSize:      grid.Size{X: t.MapSizeX, Y: t.MapSizeY},
		QuadPerMesh:  grid.Size{X: t.QuadPerMeshX, Y: t.QuadPerMeshY},
		MeshPerChunk: terrain.MeshPerChunk(t.MeshPerChunk),
		MeshQuadSize: t.QuadSize,
		HeightRange:  terrain.HeightRange{Min: t.HeightMin, Max: t.HeightMax},
	}
}

// TickInterval returns the time between Process calls.
func (n NetworkConfig) TickInterval() time.Duration {
	if n.TickRate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(n.TickRate)
}

// Params converts the procedural section into generator params.
func (p ProceduralConfig) Params() layer.ProceduralParams {
	return layer.ProceduralParams{
		Seed:      p.Seed,
		Alpha:     p.Alpha,
		Beta:      p.Beta,
		Octaves:   p.Octaves,
		Frequency: p.Frequency,
		Amplitude: p.Amplitude,
	}
}

// BlendType returns the parsed blend, falling back to maximum.
func (p ProceduralConfig) BlendType() compositor.BlendType {
	b, err := compositor.ParseBlendType(p.Blend)
	if err != nil {
		return compositor.Maximum
	}
	return b
}
