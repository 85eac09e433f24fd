package devicecode

import (
	"math"

	"github.com/achilleasa/prism/types"
)

func putFloat(b []byte, v float32) {
	byteOrder.PutUint32(b, math.Float32bits(v))
}

func getFloat(b []byte) float32 {
	return math.Float32frombits(byteOrder.Uint32(b))
}

func putVec3(b []byte, v types.Vec3) {
	for i := 0; i < 3; i++ {
		putFloat(b[4*i:], v[i])
	}
}

func getVec3(b []byte) types.Vec3 {
	return types.XYZ(getFloat(b), getFloat(b[4:]), getFloat(b[8:]))
}
