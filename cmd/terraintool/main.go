// terraintool is a CLI utility for working with stored terrains.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	gomath "math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-terrain/internal/assets"
	"github.com/Faultbox/midgard-terrain/internal/config"
	"github.com/Faultbox/midgard-terrain/internal/host"
	"github.com/Faultbox/midgard-terrain/internal/layer"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/network"
	"github.com/Faultbox/midgard-terrain/internal/network/packets"
	"github.com/Faultbox/midgard-terrain/internal/storage"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
	"github.com/Faultbox/midgard-terrain/internal/texture"
	"github.com/Faultbox/midgard-terrain/pkg/grid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	level := "warn"
	if os.Getenv("TERRAINTOOL_DEBUG") != "" {
		level = "debug"
	}
	if err := logger.InitWithFileConfig(level, logger.FileConfig{}, true); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "generate", "gen":
		cmdGenerate(args)
	case "stamp":
		cmdStamp(args)
	case "import":
		cmdImport(args)
	case "export":
		cmdExport(args)
	case "fetch":
		cmdFetch(args)
	case "ping":
		cmdPing(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`terraintool - layered terrain utility

Usage:
  terraintool <command> [options]

Commands:
  info <dir|heightmap.txt>                Show heightmap and layer statistics
  generate [-config f] [-seed n] <dir>    Create a terrain with a procedural layer
  stamp [options] <dir>                   Paint a brush stamp or stroke
  import <dir> <image>                    Import a PNG/BMP/TGA heightmap layer
  export <dir> <out.png>                  Export the heightmap as 16-bit PNG
  fetch <src> <dir> [name]                Download a remote heightmap
  ping [-map id] [-timeout d] <addr>      Say hello to a running terraind

Examples:
  terraintool generate -seed 7 ./terrain
  terraintool stamp -x 40 -y 40 -r 6 -v 0.8 ./terrain
  terraintool stamp -material 2 -x 10 -y 10 -to 30,10 -r 2 ./terrain
  terraintool import ./terrain island.png
  terraintool fetch https://example.com/heightmap.txt ./terrain

Set TERRAINTOOL_DEBUG=1 for debug logging.`)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// openStore opens dir and the session stored in it, using the stored config
// or the defaults.
func openStore(dir string) (*config.Config, *storage.Store, *layer.Session) {
	store, err := storage.New(dir, logger.Named("storage"))
	if err != nil {
		fail("%v", err)
	}

	cfg, err := store.LoadConfig(config.Default())
	if err != nil {
		fail("%v", err)
	}

	sess, err := store.OpenSession(cfg)
	if err != nil {
		fail("%v", err)
	}
	return cfg, store, sess
}

func save(cfg *config.Config, store *storage.Store, sess *layer.Session) {
	if err := store.SaveConfig(cfg); err != nil {
		fail("%v", err)
	}
	if err := store.SaveSession(sess); err != nil {
		fail("%v", err)
	}
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: terraintool info <dir|heightmap.txt>")
		os.Exit(1)
	}

	info, err := os.Stat(args[0])
	if err != nil {
		fail("%v", err)
	}
	if !info.IsDir() {
		g, err := storage.ReadHeightmapFile(args[0])
		if err != nil {
			fail("%v", err)
		}
		printHeightmap(args[0], g, terrain.HeightRange{Min: 0, Max: 1})
		return
	}

	cfg, _, sess := openStore(args[0])
	printHeightmap(args[0], sess.Map.HeightmapData, sess.Map.HeightRange)

	count := sess.Map.ChunkCount()
	fmt.Printf("Chunks:    %dx%d (%s tiles of %dx%d quads)\n",
		count.X, count.Y, sess.Map.MeshPerChunk, cfg.Terrain.QuadPerMeshX, cfg.Terrain.QuadPerMeshY)
	fmt.Println()
	fmt.Println("Layers:")
	for _, l := range append(sess.Layers(), sess.MaterialLayers()...) {
		state := "empty"
		if l.Buffer.HasData() {
			state = "data"
		}
		fmt.Printf("  %-24s %-8s %v %s\n", l, l.Blend, l.Buffer.Size(), state)
	}

	// Material coverage, most used first
	counts := make(map[uint8]int)
	for i, w := range sess.Materials.Weights.Cells() {
		if w.Float32() > 0 {
			counts[sess.Materials.Materials.Cells()[i]]++
		}
	}
	if len(counts) == 0 {
		return
	}
	type matStat struct {
		material uint8
		cells    int
	}
	var stats []matStat
	for m, n := range counts {
		stats = append(stats, matStat{m, n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].cells > stats[j].cells })
	fmt.Println()
	fmt.Println("Materials:")
	for _, s := range stats {
		fmt.Printf("  %-4d %d cells\n", s.material, s.cells)
	}
}

func printHeightmap(name string, g *grid.Grid[float32], r terrain.HeightRange) {
	st := terrain.ComputeHeightStats(g)
	fmt.Printf("Terrain:   %s\n", name)
	fmt.Printf("Vertices:  %dx%d\n", g.LengthX(), g.LengthY())
	fmt.Printf("Height:    min %.4f  max %.4f  mean %.4f\n", st.Min, st.Max, st.Mean)
	fmt.Printf("World:     min %.2f  max %.2f\n", r.ToWorld(float32(st.Min)), r.ToWorld(float32(st.Max)))
}

func cmdGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (defaults when empty)")
	seed := fs.Int64("seed", 0, "Procedural seed (0 keeps the configured seed)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: terraintool generate [-config f] [-seed n] <dir>")
		os.Exit(1)
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fail("%v", err)
	}
	cfg.Procedural.Enabled = true
	if *seed != 0 {
		cfg.Procedural.Seed = *seed
	}

	store, err := storage.New(fs.Arg(0), logger.Named("storage"))
	if err != nil {
		fail("%v", err)
	}
	sess, err := store.OpenSession(cfg)
	if err != nil {
		fail("%v", err)
	}

	built, err := sess.Map.BuildMeshes(terrain.GridMeshBuilder{})
	if err != nil {
		fail("building meshes: %v", err)
	}
	save(cfg, store, sess)

	fmt.Printf("Generated: %s (seed %d)\n", fs.Arg(0), cfg.Procedural.Seed)
	fmt.Printf("Meshes:    %d built\n", built)
	printHeightmap(fs.Arg(0), sess.Map.HeightmapData, sess.Map.HeightRange)
}

func cmdStamp(args []string) {
	fs := flag.NewFlagSet("stamp", flag.ExitOnError)
	x := fs.Float64("x", 0, "Brush center X (cells)")
	y := fs.Float64("y", 0, "Brush center Y (cells)")
	to := fs.String("to", "", "Stroke end point as x,y")
	radius := fs.Float64("r", 1, "Brush radius (cells)")
	value := fs.Float64("v", 1, "Normalized height or material weight")
	material := fs.Int("material", -1, "Paint weights for this material instead of heights")
	erase := fs.Bool("erase", false, "Clear painted cells")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: terraintool stamp [options] <dir>")
		os.Exit(1)
	}

	cfg, store, sess := openStore(fs.Arg(0))

	var target *layer.Layer
	if *material >= 0 {
		if *material > 255 {
			fail("material must be in 0..255, got %d", *material)
		}
		target = storage.MaterialLayer(sess, uint8(*material))
	} else {
		l, ok := storage.FindLayer(sess, storage.PaintLayer)
		if !ok {
			fail("no %s layer", storage.PaintLayer)
		}
		target = l
	}

	brush := layer.Brush{Radius: float32(*radius), Value: float32(*value), Erase: *erase}
	from := mgl32.Vec2{float32(*x), float32(*y)}

	var dirty grid.Rect
	var err error
	if *to != "" {
		end, perr := parsePoint(*to)
		if perr != nil {
			fail("%v", perr)
		}
		dirty, err = sess.Stroke(target.ID, from, end, brush)
	} else {
		dirty, err = sess.Stamp(target.ID, from, brush)
	}
	if err != nil {
		fail("%v", err)
	}

	res := sess.Commit(dirty)
	save(cfg, store, sess)

	fmt.Printf("Layer:       %s\n", target)
	fmt.Printf("Dirty:       %v\n", res.Region)
	fmt.Printf("Adjusted:    %d tiles\n", res.Adjustments)
	fmt.Printf("Changed:     %d cells\n", res.Changed)
	fmt.Printf("Invalidated: %d meshes\n", res.Invalidated)
}

func parsePoint(s string) (mgl32.Vec2, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return mgl32.Vec2{}, fmt.Errorf("invalid point %q, want x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 32)
	if err != nil {
		return mgl32.Vec2{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 32)
	if err != nil {
		return mgl32.Vec2{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return mgl32.Vec2{float32(x), float32(y)}, nil
}

func cmdImport(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: terraintool import <dir> <image>")
		os.Exit(1)
	}

	cfg, store, sess := openStore(args[0])

	// Plain paths first, then the configured data directories.
	data, err := os.ReadFile(args[1])
	if err != nil {
		mgr := assets.NewManager()
		for _, dir := range cfg.Data.Paths {
			if err := mgr.AddDir(dir); err != nil {
				logger.Sugar.Debugf("skipping data dir %s: %v", dir, err)
			}
		}
		data, err = mgr.Load(args[1])
		if err != nil {
			fail("%v", err)
		}
	}

	g, err := texture.DecodeImage(data)
	if err != nil {
		fail("%v", err)
	}
	res, err := storage.ImportHeights(sess, g)
	if err != nil {
		fail("%v", err)
	}
	save(cfg, store, sess)

	fmt.Printf("Imported:  %s (%dx%d)\n", args[1], g.LengthX(), g.LengthY())
	fmt.Printf("Changed:   %d cells\n", res.Changed)
}

func cmdExport(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: terraintool export <dir> <out.png>")
		os.Exit(1)
	}

	_, _, sess := openStore(args[0])
	g := sess.Map.HeightmapData

	img := image.NewGray16(image.Rect(0, 0, g.LengthX(), g.LengthY()))
	g.ForEach(func(x, y int, v float32) {
		img.SetGray16(x, y, color.Gray16{Y: uint16(gomath.Round(float64(v) * 65535))})
	})

	if err := os.MkdirAll(filepath.Dir(args[1]), 0755); err != nil {
		fail("creating directory: %v", err)
	}
	f, err := os.Create(args[1])
	if err != nil {
		fail("%v", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		fail("encoding png: %v", err)
	}
	if err := f.Close(); err != nil {
		fail("%v", err)
	}
	fmt.Printf("Exported: %s (%dx%d)\n", args[1], g.LengthX(), g.LengthY())
}

func cmdFetch(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: terraintool fetch <src> <dir> [name]")
		os.Exit(1)
	}
	src, dir := args[0], args[1]
	name := filepath.Base(src)
	if len(args) > 2 {
		name = args[2]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := storage.New(dir, logger.Named("storage"))
	if err != nil {
		fail("%v", err)
	}
	path, err := store.Fetch(ctx, src, name)
	if err != nil {
		fail("%v", err)
	}

	g, err := storage.ReadHeightmapFile(path)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("Fetched:   %s\n", path)
	printHeightmap(path, g, terrain.HeightRange{Min: 0, Max: 1})
}

func cmdPing(args []string) {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	mapID := fs.Uint("map", 1, "Map ID to open")
	timeout := fs.Duration("timeout", 10*time.Second, "Connect and reply timeout")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: terraintool ping [-map id] [-timeout d] <addr>")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	editor := network.New(logger.Named("network"))
	editor.DialTimeout = *timeout
	if err := editor.Connect(fs.Arg(0)); err != nil {
		fail("%v", err)
	}
	defer editor.Disconnect()

	var welcome *packets.Welcome
	var refused *packets.Error
	editor.RegisterHandler(packets.RE_WELCOME, func(_ *network.Client, body []byte) error {
		var err error
		welcome, err = packets.DecodeWelcome(body)
		return err
	})
	editor.RegisterHandler(packets.RE_ERROR, func(_ *network.Client, body []byte) error {
		var err error
		refused, err = packets.DecodeError(body)
		return err
	})
	go editor.Serve(ctx)

	start := time.Now()
	hello := &packets.Hello{MapID: uint32(*mapID), Version: host.ProtocolVersion}
	if err := editor.SendPacket(packets.ER_HELLO, hello.Encode()); err != nil {
		fail("%v", err)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for welcome == nil && refused == nil {
		select {
		case <-ctx.Done():
			fail("no reply from %s: %v", fs.Arg(0), ctx.Err())
		case <-ticker.C:
			if _, err := editor.Process(); err != nil {
				fail("%v", err)
			}
		}
	}
	if refused != nil {
		fail("host refused: %s", refused.Message)
	}

	fmt.Printf("Host:      %s (%v)\n", fs.Arg(0), time.Since(start).Round(time.Millisecond))
	fmt.Printf("Map:       %d, %dx%d quads\n", welcome.MapID, welcome.SizeX, welcome.SizeY)
	fmt.Printf("Layers:    %d\n", welcome.Layers)
	fmt.Printf("Protocol:  v%d\n", welcome.Version)
}
