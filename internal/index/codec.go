package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Vectors file layout: 4-byte magic, uint32 version, uint32 dimension,
// uint32 count, then count*dimension little-endian float32 values.
const (
	vectorsMagic   = "QVEC"
	vectorsVersion = 1
)

func writeVectors(path string, dimension int, vectors [][]float32) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(file)
	if _, err := w.WriteString(vectorsMagic); err != nil {
		file.Close()
		return err
	}
	header := []uint32{vectorsVersion, uint32(dimension), uint32(len(vectors))}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			file.Close()
			return err
		}
	}

	buf := make([]byte, 4)
	for _, vec := range vectors {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := w.Write(buf); err != nil {
				file.Close()
				return err
			}
		}
	}

	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readVectors(path string) (int, [][]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	magic := make([]byte, len(vectorsMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return 0, nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != vectorsMagic {
		return 0, nil, fmt.Errorf("bad magic %q", magic)
	}

	var version, dimension, count uint32
	for _, dst := range []*uint32{&version, &dimension, &count} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return 0, nil, fmt.Errorf("read header: %w", err)
		}
	}
	if version != vectorsVersion {
		return 0, nil, fmt.Errorf("unsupported vectors version %d", version)
	}
	if dimension == 0 {
		return 0, nil, fmt.Errorf("zero dimension")
	}

	vectors := make([][]float32, 0, count)
	buf := make([]byte, 4)
	for i := uint32(0); i < count; i++ {
		vec := make([]float32, dimension)
		for j := range vec {
			if _, err := io.ReadFull(r, buf); err != nil {
				return 0, nil, fmt.Errorf("read vector %d: %w", i, err)
			}
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
		}
		vectors = append(vectors, vec)
	}
	return int(dimension), vectors, nil
}
