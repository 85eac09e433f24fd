package main

import (
	"os"

	"github.com/achilleasa/prism/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	sceneFlags := []cli.Flag{
		cli.IntFlag{
			Name:   "width",
			Value:  512,
			Usage:  "frame width",
			EnvVar: "PRISM_WIDTH",
		},
		cli.IntFlag{
			Name:   "height",
			Value:  512,
			Usage:  "frame height",
			EnvVar: "PRISM_HEIGHT",
		},
		cli.StringFlag{
			Name:   "backend",
			Value:  "cpu",
			Usage:  "ray tracing backend to use",
			EnvVar: "PRISM_BACKEND",
		},
		cli.StringFlag{
			Name:  "eye",
			Usage: "camera position in x,y,z format",
		},
		cli.StringFlag{
			Name:  "look",
			Usage: "camera look-at point in x,y,z format",
		},
		cli.StringFlag{
			Name:  "up",
			Usage: "camera up vector in x,y,z format",
		},
	}

	app := cli.NewApp()
	app.Name = "prism"
	app.Usage = "render scenes using a programmable ray tracing pipeline"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "list available ray tracing backends and opencl devices",
			Action: cmd.ListDevices,
		},
		{
			Name:  "scene",
			Usage: "inspect scene files",
			Subcommands: []cli.Command{
				{
					Name:      "info",
					Usage:     "display scene statistics",
					ArgsUsage: "scene_file.obj",
					Action:    cmd.ShowSceneInfo,
				},
			},
		},
		{
			Name:  "render",
			Usage: "render scene",
			Subcommands: []cli.Command{
				{
					Name:  "frame",
					Usage: "render single frame",
					Description: `
Render a single frame of a wavefront obj scene. If no scene file is specified,
a demo scene containing a cube and a sphere is rendered instead.`,
					ArgsUsage: "[scene_file.obj]",
					Flags: append([]cli.Flag{
						cli.IntFlag{
							Name:   "scale",
							Value:  1,
							Usage:  "trace at a multiple of the frame size and downsample the result",
							EnvVar: "PRISM_SCALE",
						},
						cli.StringFlag{
							Name:   "out, o",
							Value:  "frame.png",
							Usage:  "image filename for the rendered frame",
							EnvVar: "PRISM_OUT",
						},
					}, sceneFlags...),
					Action: cmd.RenderFrame,
				},
				{
					Name:      "interactive",
					Usage:     "render interactive view of the scene",
					ArgsUsage: "[scene_file.obj]",
					Flags:     sceneFlags,
					Action:    cmd.RenderInteractive,
				},
			},
		},
	}

	app.Run(os.Args)
}
