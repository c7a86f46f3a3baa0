package core

import "encoding/binary"

// Slice serializers for buffer uploads. Each record keeps the layout of
// its ToBytes method; the helpers just concatenate.

func MeshesToBytes(meshes []Mesh) []byte {
	buf := make([]byte, 0, len(meshes)*MeshByteSize)
	for i := range meshes {
		buf = append(buf, meshes[i].ToBytes()...)
	}
	return buf
}

func MeshletsToBytes(meshlets []Meshlet) []byte {
	buf := make([]byte, 0, len(meshlets)*MeshletByteSize)
	for i := range meshlets {
		buf = append(buf, meshlets[i].ToBytes()...)
	}
	return buf
}

func ConesToBytes(cones []ConeCulling) []byte {
	buf := make([]byte, 0, len(cones)*ConeCullingByteSize)
	for i := range cones {
		buf = append(buf, cones[i].ToBytes()...)
	}
	return buf
}

func VerticesToBytes(vertices []Vertex) []byte {
	buf := make([]byte, 0, len(vertices)*VertexByteSize)
	for i := range vertices {
		buf = append(buf, vertices[i].ToBytes()...)
	}
	return buf
}

func CommandsToBytes(commands []DrawIndexedCommand) []byte {
	buf := make([]byte, 0, len(commands)*DrawIndexedCommandByteSize)
	for i := range commands {
		buf = append(buf, commands[i].ToBytes()...)
	}
	return buf
}

func MaterialsToBytes(materials []Material) []byte {
	buf := make([]byte, 0, len(materials)*MaterialByteSize)
	for i := range materials {
		buf = append(buf, materials[i].ToBytes()...)
	}
	return buf
}

func TexturesToBytes(textures []TextureData) []byte {
	buf := make([]byte, 0, len(textures)*TextureDataByteSize)
	for i := range textures {
		buf = append(buf, textures[i].ToBytes()...)
	}
	return buf
}

func LightsToBytes(lights []Light) []byte {
	buf := make([]byte, 0, len(lights)*LightByteSize)
	for i := range lights {
		buf = append(buf, lights[i].ToBytes()...)
	}
	return buf
}

// U32ToBytes serializes a raw u32 array (indices, packed attributes,
// culling words) little-endian.
func U32ToBytes(words []uint32) []byte {
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}
