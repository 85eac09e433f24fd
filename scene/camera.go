package scene

import (
	"fmt"

	"github.com/achilleasa/prism/types"
)

type CameraDirection uint8

// Camera movement directions.
const (
	Forward CameraDirection = iota
	Backward
	Left
	Right
)

// A pinhole camera positioned at From and looking towards At.
type Camera struct {
	From types.Vec3
	At   types.Vec3
	Up   types.Vec3
}

func NewCamera(from, at, up types.Vec3) *Camera {
	return &Camera{From: from, At: at, Up: up}
}

// Implements Stringer.
func (c Camera) String() string {
	return fmt.Sprintf(
		"eye (%3.3f, %3.3f, %3.3f) look (%3.3f, %3.3f, %3.3f) up (%3.3f, %3.3f, %3.3f)",
		c.From[0], c.From[1], c.From[2],
		c.At[0], c.At[1], c.At[2],
		c.Up[0], c.Up[1], c.Up[2],
	)
}

// Get the normalized view direction.
func (c *Camera) Direction() types.Vec3 {
	return c.At.Sub(c.From).Normalize()
}

// Move the camera and its look-at target along a direction relative to the
// current view.
func (c *Camera) Move(dir CameraDirection, amount float32) {
	var offset types.Vec3
	switch dir {
	case Forward:
		offset = c.Direction().Mul(amount)
	case Backward:
		offset = c.Direction().Mul(-amount)
	case Left:
		offset = c.Direction().Cross(c.Up).Normalize().Mul(-amount)
	case Right:
		offset = c.Direction().Cross(c.Up).Normalize().Mul(amount)
	}

	c.From = c.From.Add(offset)
	c.At = c.At.Add(offset)
}

// Rotate the view direction around the up axis (yaw) and the camera's
// horizontal axis (pitch). Angles are specified in radians. The distance
// to the look-at target is preserved.
func (c *Camera) Rotate(yaw, pitch float32) {
	view := c.At.Sub(c.From)
	dist := view.Len()
	dir := view.Normalize()

	pitchAxis := dir.Cross(c.Up).Normalize()
	pitchQuat := types.QuatFromAxisAngle(pitchAxis, pitch)
	yawQuat := types.QuatFromAxisAngle(c.Up.Normalize(), yaw)

	orientQuat := pitchQuat.Mul(yawQuat).Normalize()
	dir = orientQuat.Rotate(dir).Normalize()
	c.At = c.From.Add(dir.Mul(dist))
}
