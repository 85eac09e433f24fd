package bvh

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/achilleasa/prism/types"
)

type box struct {
	bbox [2]types.Vec3
}

func (b box) BBox() [2]types.Vec3 {
	return b.bbox
}

func (b box) Center() types.Vec3 {
	return b.bbox[0].Add(b.bbox[1]).Mul(0.5)
}

func TestLeafCallback(t *testing.T) {
	type primSpec struct {
		min types.Vec3
		max types.Vec3
	}

	primSpecs := []primSpec{
		{types.Vec3{-2, 0, -2}, types.Vec3{-1, 1, -1}},
		{types.Vec3{1, 0, -2}, types.Vec3{2, 1, -1}},
		{types.Vec3{-2, 0, 1}, types.Vec3{-1, 1, 2}},
		{types.Vec3{1, 0, 1}, types.Vec3{2, 1, 2}},
	}

	itemList := make([]BoundedVolume, len(primSpecs))
	for idx, ps := range primSpecs {
		itemList[idx] = box{[2]types.Vec3{ps.min, ps.max}}
	}

	var cbCount = 0
	var expItemListCount = 0
	cb := func(leaf *Node, itemList []BoundedVolume) {
		cbCount++
		if len(itemList) != expItemListCount {
			t.Fatalf("expected leaf callback to be called with %d items; got %d", expItemListCount, len(itemList))
		}
	}

	var expCount = 0

	// Partition each item in a single leaf
	cbCount = 0
	expItemListCount = 1
	treeNodes, stats := Build(itemList, 1, cb, SurfaceAreaHeuristic)

	expCount = 4
	if cbCount != expCount {
		t.Fatalf("expected leaf callback to be called %d times; called %d", expCount, cbCount)
	}
	expCount = 7
	if len(treeNodes) != expCount {
		t.Fatalf("expected bvh tree to have %d nodes; got %d", expCount, len(treeNodes))
	}
	if stats.Nodes != expCount || stats.Leafs != 4 {
		t.Fatalf("expected stats to report 7 nodes and 4 leafs; got %d and %d", stats.Nodes, stats.Leafs)
	}

	// Partition two items in a single leaf
	cbCount = 0
	expItemListCount = 2
	treeNodes, _ = Build(itemList, 2, cb, SurfaceAreaHeuristic)

	expCount = 2
	if cbCount != expCount {
		t.Fatalf("expected leaf callback to be called %d times; called %d", expCount, cbCount)
	}
	expCount = 3
	if len(treeNodes) != expCount {
		t.Fatalf("expected bvh tree to have %d nodes; got %d", expCount, len(treeNodes))
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	itemList := make([]BoundedVolume, 200)
	for idx := range itemList {
		min := types.XYZ(rng.Float32()*10, rng.Float32()*10, rng.Float32()*10)
		itemList[idx] = box{[2]types.Vec3{min, min.Add(types.XYZ(0.5, 0.5, 0.5))}}
	}

	build := func() []Node {
		nextPrim := uint32(0)
		nodes, _ := Build(itemList, 2, func(leaf *Node, items []BoundedVolume) {
			leaf.SetPrimitives(nextPrim, uint32(len(items)))
			nextPrim += uint32(len(items))
		}, SurfaceAreaHeuristic)
		return nodes
	}

	first := build()
	if maxNodes := 2*len(itemList) - 1; len(first) > maxNodes {
		t.Fatalf("expected at most %d nodes; got %d", maxNodes, len(first))
	}
	for i := 0; i < 5; i++ {
		if next := build(); !reflect.DeepEqual(first, next) {
			t.Fatalf("expected repeated builds to produce identical trees")
		}
	}
}

func TestLeafPrimitivesCoverAllItems(t *testing.T) {
	itemList := make([]BoundedVolume, 64)
	for idx := range itemList {
		min := types.XYZ(float32(idx), 0, 0)
		itemList[idx] = box{[2]types.Vec3{min, min.Add(types.XYZ(1, 1, 1))}}
	}

	nextPrim := uint32(0)
	nodes, _ := Build(itemList, 4, func(leaf *Node, items []BoundedVolume) {
		leaf.SetPrimitives(nextPrim, uint32(len(items)))
		nextPrim += uint32(len(items))
	}, SurfaceAreaHeuristic)

	var covered uint32
	for _, node := range nodes {
		if !node.IsLeaf() {
			left, right := node.GetChildNodes()
			if left == 0 || right == 0 {
				t.Fatalf("expected interior node children to never point to the root")
			}
			continue
		}
		_, count := node.GetPrimitives()
		covered += count
	}

	if covered != uint32(len(itemList)) {
		t.Fatalf("expected leafs to cover %d items; got %d", len(itemList), covered)
	}
}
