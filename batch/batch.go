// Package batch groups renderable sprites into per mesh and material instance
// batches ready for upload.
package batch

import (
	"unsafe"

	"github.com/edwinsyarief/mugen/transform"
)

// MeshID identifies a mesh held by the asset collaborator.
type MeshID uint32

// MaterialID identifies a material held by the asset collaborator.
type MaterialID uint32

// Color is a linear RGBA color.
type Color struct {
	R, G, B, A float32
}

// White is opaque white.
var White = Color{1, 1, 1, 1}

// Rect is a UV rectangle in texture space.
type Rect struct {
	U0, V0, U1, V1 float32
}

// FullRect covers the whole texture.
var FullRect = Rect{0, 0, 1, 1}

// Renderable marks an entity for drawing with a mesh and material.
type Renderable struct {
	Mesh     MeshID
	Material MaterialID
	Color    Color
	UV       Rect
}

// Key identifies one batch.
type Key struct {
	Mesh     MeshID
	Material MaterialID
}

// Instance is the per-instance record uploaded to the presenter. Its layout
// is fixed: six floats of model matrix, four of color, four of UV rect.
type Instance struct {
	Model transform.Affine
	Color Color
	UV    Rect
}

// InstanceSize is the size of one Instance in bytes.
const InstanceSize = int(unsafe.Sizeof(Instance{}))

// Batch holds every instance of one key in query order.
type Batch struct {
	Key       Key
	Instances []Instance
}

// Bytes views instances as raw bytes for upload. The result aliases the
// input and is only valid while the batch is.
func Bytes(instances []Instance) []byte {
	if len(instances) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&instances[0])), len(instances)*InstanceSize)
}
