package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/prism/renderer"
	_ "github.com/achilleasa/prism/rtx/cpu"
	"github.com/achilleasa/prism/scene"
	"github.com/achilleasa/prism/scene/reader"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/types"
	"github.com/urfave/cli"
)

// Render a still frame.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	sc, opts, err := setupRender(ctx)
	if err != nil {
		return err
	}
	opts.Scale = uint32(ctx.Int("scale"))
	opts.OutFile = ctx.String("out")

	r, err := renderer.NewDefault(sc, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	logger.Notice("rendering frame")
	start := time.Now()
	if err = r.Render(); err != nil {
		return err
	}
	logger.Noticef("rendered frame in %d ms", time.Since(start).Nanoseconds()/1000000)

	logger.Noticef("frame statistics\n%s", renderer.FrameStatsTable(r.Stats()))
	return nil
}

// Render an interactive view of the scene.
func RenderInteractive(ctx *cli.Context) error {
	setupLogging(ctx)

	sc, opts, err := setupRender(ctx)
	if err != nil {
		return err
	}

	r, err := renderer.NewInteractive(sc, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Render()
}

// Load the scene and collect the options shared by the render commands.
func setupRender(ctx *cli.Context) (*scene.Scene, renderer.Options, error) {
	opts := renderer.Options{
		FrameW:  uint32(ctx.Int("width")),
		FrameH:  uint32(ctx.Int("height")),
		Backend: ctx.String("backend"),
	}

	var (
		sc  *scene.Scene
		err error
	)
	switch ctx.NArg() {
	case 0:
		logger.Notice("no scene file specified; rendering demo scene")
		sc = scene.DemoScene()
	case 1:
		if sc, err = reader.ReadScene(ctx.Args().First()); err != nil {
			return nil, opts, err
		}
	default:
		return nil, opts, fmt.Errorf("expected a single scene file argument; got %d", ctx.NArg())
	}

	camera, err := cameraFromFlags(ctx, tracer.DefaultCamera(sc))
	if err != nil {
		return nil, opts, err
	}
	opts.Camera = camera

	return sc, opts, nil
}

// Override the camera settings with any of the eye, look and up flags.
func cameraFromFlags(ctx *cli.Context, camera scene.Camera) (*scene.Camera, error) {
	for _, flag := range []struct {
		name string
		dst  *types.Vec3
	}{
		{"eye", &camera.From},
		{"look", &camera.At},
		{"up", &camera.Up},
	} {
		value := ctx.String(flag.name)
		if value == "" {
			continue
		}

		v, err := parseVec3(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for --%s: %w", flag.name, err)
		}
		*flag.dst = v
	}

	if camera.At.Sub(camera.From).Len() == 0 {
		return nil, fmt.Errorf("camera eye and look positions must differ; got %v", camera.From)
	}
	return &camera, nil
}

// Parse a vector in "x,y,z" format.
func parseVec3(value string) (types.Vec3, error) {
	tokens := strings.Split(value, ",")
	if len(tokens) != 3 {
		return types.Vec3{}, fmt.Errorf("expected 3 comma-separated components; got %q", value)
	}

	var v types.Vec3
	for index, token := range tokens {
		f, err := strconv.ParseFloat(strings.TrimSpace(token), 32)
		if err != nil {
			return types.Vec3{}, err
		}
		v[index] = float32(f)
	}
	return v, nil
}
