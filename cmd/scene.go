package cmd

import (
	"errors"

	"github.com/achilleasa/prism/scene/reader"
	"github.com/urfave/cli"
)

// Display scene info.
func ShowSceneInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	sc, err := reader.ReadScene(ctx.Args().First())
	if err != nil {
		return err
	}

	logger.Noticef("scene information:\n%s", sc.Stats())
	if sc.Camera != nil {
		logger.Noticef("scene camera: %s", sc.Camera)
	}
	return nil
}
