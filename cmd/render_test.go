package cmd

import (
	"flag"
	"strings"
	"testing"

	"github.com/achilleasa/prism/scene"
	"github.com/achilleasa/prism/types"
	"github.com/urfave/cli"
)

func TestParseVec3(t *testing.T) {
	type spec struct {
		in     string
		exp    types.Vec3
		expErr string
	}

	specs := []spec{
		{"1,2,3", types.Vec3{1, 2, 3}, ""},
		{" -0.5, 0 ,10.25", types.Vec3{-0.5, 0, 10.25}, ""},
		{"1,2", types.Vec3{}, "expected 3 comma-separated components"},
		{"1,2,3,4", types.Vec3{}, "expected 3 comma-separated components"},
		{"1,foo,3", types.Vec3{}, "invalid syntax"},
	}

	for index, s := range specs {
		v, err := parseVec3(s.in)
		if s.expErr != "" {
			if err == nil || !strings.Contains(err.Error(), s.expErr) {
				t.Errorf("[spec %d] expected error containing %q; got %v", index, s.expErr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", index, err)
			continue
		}
		if v != s.exp {
			t.Errorf("[spec %d] expected %v; got %v", index, s.exp, v)
		}
	}
}

func TestCameraFromFlags(t *testing.T) {
	base := scene.Camera{
		From: types.Vec3{0, 0, 5},
		At:   types.Vec3{0, 0, 0},
		Up:   types.Vec3{0, 1, 0},
	}

	type spec struct {
		args   []string
		exp    scene.Camera
		expErr string
	}

	specs := []spec{
		{nil, base, ""},
		{
			[]string{"--eye", "1,2,3"},
			scene.Camera{From: types.Vec3{1, 2, 3}, At: base.At, Up: base.Up},
			"",
		},
		{
			[]string{"--look", "0,1,0", "--up", "0,0,1"},
			scene.Camera{From: base.From, At: types.Vec3{0, 1, 0}, Up: types.Vec3{0, 0, 1}},
			"",
		},
		{[]string{"--up", "0,1"}, scene.Camera{}, "invalid value for --up"},
		{[]string{"--eye", "0,0,0"}, scene.Camera{}, "camera eye and look positions must differ"},
	}

	for index, s := range specs {
		set := flag.NewFlagSet("test", flag.ContinueOnError)
		set.String("eye", "", "")
		set.String("look", "", "")
		set.String("up", "", "")
		if err := set.Parse(s.args); err != nil {
			t.Fatal(err)
		}
		ctx := cli.NewContext(cli.NewApp(), set, nil)

		camera, err := cameraFromFlags(ctx, base)
		if s.expErr != "" {
			if err == nil || !strings.Contains(err.Error(), s.expErr) {
				t.Errorf("[spec %d] expected error containing %q; got %v", index, s.expErr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", index, err)
			continue
		}
		if *camera != s.exp {
			t.Errorf("[spec %d] expected camera %s; got %s", index, s.exp, *camera)
		}
	}
}

func TestSetupRenderUsesDemoScene(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.Int("width", 64, "")
	set.Int("height", 32, "")
	set.String("backend", "cpu", "")
	set.String("eye", "", "")
	set.String("look", "", "")
	set.String("up", "", "")
	if err := set.Parse(nil); err != nil {
		t.Fatal(err)
	}
	ctx := cli.NewContext(cli.NewApp(), set, nil)

	sc, opts, err := setupRender(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if exp := 1; len(sc.Meshes) != exp {
		t.Fatalf("expected demo scene to contain %d mesh; got %d", exp, len(sc.Meshes))
	}
	if opts.FrameW != 64 || opts.FrameH != 32 {
		t.Fatalf("expected frame size 64x32; got %dx%d", opts.FrameW, opts.FrameH)
	}
	if opts.Backend != "cpu" {
		t.Fatalf("expected backend cpu; got %q", opts.Backend)
	}
	if opts.Camera == nil || *opts.Camera != *sc.Camera {
		t.Fatalf("expected camera to match the demo scene camera; got %v", opts.Camera)
	}
}
