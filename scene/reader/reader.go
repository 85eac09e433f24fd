// Package reader loads scenes from wavefront obj files stored locally or
// served over http(s).
package reader

import (
	"time"

	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/scene"
)

var logger = log.New("scene reader")

// Read a scene from a wavefront obj file. sceneFile may be a local path or
// an http/https URL; files referenced by the scene are resolved relative to
// it.
func ReadScene(sceneFile string) (*scene.Scene, error) {
	res, err := newResource(sceneFile, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	logger.Noticef("parsing scene from %s", res.Path())
	start := time.Now()

	r := newWavefrontReader()
	sc, err := r.Read(res)
	if err != nil {
		return nil, err
	}

	logger.Noticef("parsed scene in %d ms", time.Since(start).Nanoseconds()/1000000)
	return sc, nil
}
