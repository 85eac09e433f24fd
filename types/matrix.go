package types

// A row-major 3x4 affine transformation matrix. The last column stores the
// translation.
type Mat3x4 [12]float32

// Create an identity transformation.
func Ident3x4() Mat3x4 {
	return Mat3x4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
}

// Create a translation matrix.
func Translate3x4(v Vec3) Mat3x4 {
	return Mat3x4{
		1, 0, 0, v[0],
		0, 1, 0, v[1],
		0, 0, 1, v[2],
	}
}

// Create a uniform scale matrix.
func Scale3x4(s float32) Mat3x4 {
	return Mat3x4{
		s, 0, 0, 0,
		0, s, 0, 0,
		0, 0, s, 0,
	}
}

// Transform a point.
func (m Mat3x4) TransformPoint(p Vec3) Vec3 {
	return Vec3{
		m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3],
		m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7],
		m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11],
	}
}

// Transform a direction vector; translation is ignored.
func (m Mat3x4) TransformVector(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[4]*v[0] + m[5]*v[1] + m[6]*v[2],
		m[8]*v[0] + m[9]*v[1] + m[10]*v[2],
	}
}

// Transform a normal by the transpose of this matrix. Call it on the inverse
// transformation to map object-space normals to world space.
func (m Mat3x4) TransformNormal(n Vec3) Vec3 {
	return Vec3{
		m[0]*n[0] + m[4]*n[1] + m[8]*n[2],
		m[1]*n[0] + m[5]*n[1] + m[9]*n[2],
		m[2]*n[0] + m[6]*n[1] + m[10]*n[2],
	}
}

// Multiply two affine transformations. The result applies m2 first.
func (m Mat3x4) Mul(m2 Mat3x4) Mat3x4 {
	var out Mat3x4
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			v := m[r*4+0]*m2[0*4+c] + m[r*4+1]*m2[1*4+c] + m[r*4+2]*m2[2*4+c]
			if c == 3 {
				v += m[r*4+3]
			}
			out[r*4+c] = v
		}
	}
	return out
}

// Invert the transformation. The second return value is false if the matrix
// is singular.
func (m Mat3x4) Inverse() (Mat3x4, bool) {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[4], m[5], m[6]
	g, h, i := m[8], m[9], m[10]

	A := e*i - f*h
	B := -(d*i - f*g)
	C := d*h - e*g
	det := a*A + b*B + c*C
	if det > -floatCmpEpsilon && det < floatCmpEpsilon {
		return Mat3x4{}, false
	}
	inv := 1.0 / det

	var out Mat3x4
	out[0] = A * inv
	out[1] = -(b*i - c*h) * inv
	out[2] = (b*f - c*e) * inv
	out[4] = B * inv
	out[5] = (a*i - c*g) * inv
	out[6] = -(a*f - c*d) * inv
	out[8] = C * inv
	out[9] = -(a*h - b*g) * inv
	out[10] = (a*e - b*d) * inv

	t := Vec3{m[3], m[7], m[11]}
	out[3] = -(out[0]*t[0] + out[1]*t[1] + out[2]*t[2])
	out[7] = -(out[4]*t[0] + out[5]*t[1] + out[6]*t[2])
	out[11] = -(out[8]*t[0] + out[9]*t[1] + out[10]*t[2])
	return out, true
}
