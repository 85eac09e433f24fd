package devicecode

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"testing"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/types"
)

func TestManifestMatchesLaunchParams(t *testing.T) {
	var (
		paramsName string
		paramsSize int
		entries    []string
	)

	scanner := bufio.NewScanner(bytes.NewReader(Module))
	for scanner.Scan() {
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		switch tokens[0] {
		case ".params":
			paramsName = tokens[1]
			paramsSize, _ = strconv.Atoi(tokens[2])
		case ".entry":
			entries = append(entries, tokens[1])
		}
	}

	if paramsName != LaunchParamsVariable {
		t.Fatalf("expected manifest params variable %q; got %q", LaunchParamsVariable, paramsName)
	}
	if exp := binary.Size(LaunchParams{}); paramsSize != exp {
		t.Fatalf("expected manifest params size %d; got %d", exp, paramsSize)
	}
	if exp := len((&LaunchParams{}).Encode()); paramsSize != exp {
		t.Fatalf("expected encoded params size %d; got %d", paramsSize, exp)
	}

	registered, exists := rtx.LookupModule(ModuleName)
	if !exists {
		t.Fatalf("expected module %q to be registered", ModuleName)
	}
	if len(entries) != len(registered) {
		t.Fatalf("expected manifest to export %d entries; got %d", len(registered), len(entries))
	}
	for _, entry := range entries {
		if _, exists := registered[entry]; !exists {
			t.Errorf("expected entry %q to be registered", entry)
		}
	}
}

func TestHitgroupDataEncoding(t *testing.T) {
	mesh := HitgroupData{
		Kind:  GeometryMesh,
		Color: types.XYZ(0.2, 0.8, 0.2),
		Mesh:  MeshData{Vertex: 0x100000000, Index: 0x100000100},
	}
	sphere := HitgroupData{
		Kind:   GeometrySphere,
		Color:  types.XYZ(0, 0.5, 1),
		Sphere: SphereData{Radius: 1.5},
	}

	for _, exp := range []HitgroupData{mesh, sphere} {
		encoded := exp.Encode()
		if len(encoded) != HitgroupDataSize {
			t.Fatalf("expected encoded %s payload to be %d bytes; got %d", exp.Kind, HitgroupDataSize, len(encoded))
		}
		got, err := DecodeHitgroupData(encoded)
		if err != nil {
			t.Fatal(err)
		}
		if got != exp {
			t.Fatalf("expected decoded %s payload %+v; got %+v", exp.Kind, exp, got)
		}
	}

	// The union members share the same bytes
	encoded := sphere.Encode()
	if radius := getFloat(encoded[hitgroupHeaderSize:]); radius != 1.5 {
		t.Fatalf("expected radius at the start of the union; got %f", radius)
	}

	encoded[0] = 9
	if _, err := DecodeHitgroupData(encoded); err == nil {
		t.Fatal("expected decoding an unknown geometry kind to fail")
	}
	if _, err := DecodeHitgroupData(encoded[:8]); err == nil {
		t.Fatal("expected decoding a short payload to fail")
	}
}
