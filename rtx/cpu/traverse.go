package cpu

import (
	"math"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/rtx/cpu/bvh"
	"github.com/achilleasa/prism/types"
)

const (
	traversalStackSize = 64

	triangleDetEpsilon = 1e-12
)

// Traverse an acceleration structure whose space is mapped to world space
// by inst.
func (t *thread) traverse(a *accel, rs *rayState, inst instanceContext) {
	origin := inst.worldToObject.TransformPoint(rs.origin)
	dir := inst.worldToObject.TransformVector(rs.dir)

	switch a.kind() {
	case rtx.BuildInputInstances:
		walk(a.nodes, origin, dir, rs, func(first, count uint32) {
			for i := first; i < first+count && !rs.terminated; i++ {
				t.visitInstance(&a.instances[i], rs, inst)
			}
		})
	case rtx.BuildInputTriangles:
		walk(a.nodes, origin, dir, rs, func(first, count uint32) {
			for i := first; i < first+count && !rs.terminated; i++ {
				t.intersectTriangle(a, &a.triangles[i], origin, dir, rs, inst)
			}
		})
	case rtx.BuildInputCustomPrimitives:
		walk(a.nodes, origin, dir, rs, func(first, count uint32) {
			for i := first; i < first+count && !rs.terminated; i++ {
				t.intersectCustom(a, &a.aabbs[i], origin, dir, rs, inst)
			}
		})
	}
}

func (t *thread) visitInstance(in *instance, rs *rayState, parent instanceContext) {
	if in.Instance.VisibilityMask&uint32(rs.mask) == 0 || !in.invertible {
		return
	}

	child, err := t.launch.ctx.resolveAccel(in.Instance.TraversableHandle)
	if err != nil {
		panic(err)
	}

	t.traverse(child, rs, instanceContext{
		id:            in.Instance.InstanceID,
		index:         in.Index,
		sbtOffset:     in.Instance.SbtOffset,
		flags:         in.Instance.Flags,
		objectToWorld: parent.objectToWorld.Mul(in.Instance.Transform),
		worldToObject: in.worldToObject.Mul(parent.worldToObject),
	})
}

// Resolve the hitgroup record for a geometry index.
func (t *thread) hitgroupRecord(rs *rayState, inst instanceContext, gasIndex uint32) *record {
	index := inst.sbtOffset + gasIndex*rs.sbtStride + rs.sbtOffset
	if int(index) >= len(t.launch.hitgroups) {
		t.fail(ErrInvalidSbt, "hitgroup record %d out of range (%d records)", index, len(t.launch.hitgroups))
	}
	return &t.launch.hitgroups[index]
}

// Moller-Trumbore ray/triangle intersection.
func (t *thread) intersectTriangle(a *accel, tri *triangleRecord, origin, dir types.Vec3, rs *rayState, inst instanceContext) {
	e1 := tri.V[1].Sub(tri.V[0])
	e2 := tri.V[2].Sub(tri.V[0])
	pvec := dir.Cross(e2)
	det := e1.Dot(pvec)
	if det > -triangleDetEpsilon && det < triangleDetEpsilon {
		return
	}

	frontFace := det > 0
	if inst.flags&rtx.InstanceFlagDisableTriangleFaceCull == 0 {
		if frontFace && rs.flags&rtx.RayFlagCullFrontFacingTriangles != 0 {
			return
		}
		if !frontFace && rs.flags&rtx.RayFlagCullBackFacingTriangles != 0 {
			return
		}
	}

	invDet := 1.0 / det
	tvec := origin.Sub(tri.V[0])
	u := tvec.Dot(pvec) * invDet
	if u < 0 || u > 1 {
		return
	}
	qvec := tvec.Cross(e1)
	v := dir.Dot(qvec) * invDet
	if v < 0 || u+v > 1 {
		return
	}
	tHit := e2.Dot(qvec) * invDet

	cand := hitInfo{
		t:         tHit,
		kind:      rtx.HitKindTriangleBackFace,
		triangle:  true,
		primIndex: tri.Prim,
		gasIndex:  tri.Input,
		geomFlags: a.inputFlags[tri.Input],
		inst:      inst,
		objOrigin: origin,
		objDir:    dir,
		record:    t.hitgroupRecord(rs, inst, tri.Input),
	}
	if frontFace {
		cand.kind = rtx.HitKindTriangleFrontFace
	}
	cand.attrs[0] = math.Float32bits(u)
	cand.attrs[1] = math.Float32bits(v)
	t.reportCandidate(rs, &cand)
}

// Invoke the intersection program for a custom primitive.
func (t *thread) intersectCustom(a *accel, prim *aabbRecord, origin, dir types.Vec3, rs *rayState, inst instanceContext) {
	rec := t.hitgroupRecord(rs, inst, prim.Input)
	if rec.group.is == nil {
		return
	}

	cand := hitInfo{
		primIndex: prim.Prim,
		gasIndex:  prim.Input,
		geomFlags: a.inputFlags[prim.Input],
		inst:      inst,
		objOrigin: origin,
		objDir:    dir,
		record:    rec,
	}

	saved := t.save()
	defer t.restore(saved)
	t.stage, t.ray, t.hit, t.data = stageIntersection, rs, &cand, rec.data
	rec.group.is.fn(t)
}

// Run the any-hit program if required and commit the candidate if it is
// accepted.
func (t *thread) reportCandidate(rs *rayState, cand *hitInfo) bool {
	if rs.terminated || cand.t < rs.tmin || cand.t > rs.tmax {
		return false
	}

	ah := cand.record.group.ah
	if ah != nil &&
		rs.flags&rtx.RayFlagDisableAnyHit == 0 &&
		cand.geomFlags&rtx.GeometryFlagDisableAnyHit == 0 &&
		cand.inst.flags&rtx.InstanceFlagDisableAnyHit == 0 {
		switch t.runAnyHit(ah, rs, cand) {
		case anyHitIgnore:
			return false
		case anyHitTerminate:
			rs.terminated = true
		}
	}

	rs.hit = *cand
	rs.hasHit = true
	rs.tmax = cand.t
	if rs.flags&rtx.RayFlagTerminateOnFirstHit != 0 {
		rs.terminated = true
	}
	return true
}

func (t *thread) runAnyHit(prog *program, rs *rayState, cand *hitInfo) (result anyHitSignal) {
	saved := t.save()
	defer t.restore(saved)
	defer func() {
		if r := recover(); r != nil {
			if sig, ok := r.(anyHitSignal); ok {
				result = sig
				return
			}
			panic(r)
		}
	}()

	t.stage, t.ray, t.hit, t.data = stageAnyHit, rs, cand, cand.record.data
	prog.fn(t)
	return anyHitAccept
}

// Walk the BVH and invoke visit for every leaf whose bounds intersect the
// ray segment.
func walk(nodes []bvh.Node, origin, dir types.Vec3, rs *rayState, visit func(first, count uint32)) {
	if len(nodes) == 0 {
		return
	}

	invDir := types.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}

	var stackBuf [traversalStackSize]uint32
	stack := append(stackBuf[:0], 0)
	for len(stack) != 0 && !rs.terminated {
		node := &nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		if !intersectBox(node.Min, node.Max, origin, invDir, rs.tmin, rs.tmax) {
			continue
		}

		if node.IsLeaf() {
			visit(node.GetPrimitives())
			continue
		}

		left, right := node.GetChildNodes()
		stack = append(stack, right, left)
	}
}

// Slab test. NaN values produced by axis-parallel rays are ignored.
func intersectBox(min, max, origin, invDir types.Vec3, tmin, tmax float32) bool {
	tNear, tFar := tmin, tmax
	for axis := 0; axis < 3; axis++ {
		t0 := (min[axis] - origin[axis]) * invDir[axis]
		t1 := (max[axis] - origin[axis]) * invDir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tNear {
			tNear = t0
		}
		if t1 < tFar {
			tFar = t1
		}
		if tNear > tFar {
			return false
		}
	}
	return true
}
