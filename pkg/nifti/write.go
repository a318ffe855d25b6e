package nifti

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"lccnr/internal/models"
)

// WriteFile saves a volume as a single-file NIfTI-1 image. Paths ending in
// .gz are gzip-compressed. The affine is stored as the sform.
func WriteFile(path string, v *models.Volume, dt Datatype) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.Writer = file
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(file)
		defer func() {
			if cerr := gz.Close(); err == nil {
				err = cerr
			}
		}()
		w = gz
	}
	return Write(w, v, dt)
}

// Write encodes a volume as little-endian NIfTI-1
func Write(w io.Writer, v *models.Volume, dt Datatype) error {
	if dt.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedDatatype, dt)
	}
	if len(v.Data) != v.Width*v.Height*v.Depth {
		return fmt.Errorf("volume data length %d does not match %dx%dx%d",
			len(v.Data), v.Width, v.Height, v.Depth)
	}

	h := header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  int16(dt),
		Bitpix:    int16(dt.Size() * 8),
		VoxOffset: minVoxOffset,
		SclSlope:  1,
		SformCode: 1,
	}
	h.Dim[0] = 3
	h.Dim[1] = int16(v.Width)
	h.Dim[2] = int16(v.Height)
	h.Dim[3] = int16(v.Depth)
	h.Pixdim[0] = 1
	h.Pixdim[1] = float32(v.VoxelSize.X)
	h.Pixdim[2] = float32(v.VoxelSize.Y)
	h.Pixdim[3] = float32(v.VoxelSize.Z)
	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(v.Affine[0][j])
		h.SrowY[j] = float32(v.Affine[1][j])
		h.SrowZ[j] = float32(v.Affine[2][j])
	}
	h.XyztUnits = 2 // mm
	copy(h.Magic[:], "n+1\x00")

	bw := bufio.NewWriter(w)
	order := binary.LittleEndian
	if err := binary.Write(bw, order, &h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	// Extension flag: no extensions
	if _, err := bw.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}

	buf := make([]byte, dt.Size())
	for _, value := range v.Data {
		encodeVoxel(buf, dt, order, value)
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("write voxel data: %w", err)
		}
	}
	return bw.Flush()
}

func encodeVoxel(b []byte, dt Datatype, order binary.ByteOrder, value float64) {
	rounded := math.Round(value)
	switch dt {
	case Uint8:
		b[0] = uint8(rounded)
	case Int8:
		b[0] = byte(int8(rounded))
	case Int16:
		order.PutUint16(b, uint16(int16(rounded)))
	case Uint16:
		order.PutUint16(b, uint16(rounded))
	case Int32:
		order.PutUint32(b, uint32(int32(rounded)))
	case Uint32:
		order.PutUint32(b, uint32(rounded))
	case Int64:
		order.PutUint64(b, uint64(int64(rounded)))
	case Uint64:
		order.PutUint64(b, uint64(rounded))
	case Float32:
		order.PutUint32(b, math.Float32bits(float32(value)))
	case Float64:
		order.PutUint64(b, math.Float64bits(value))
	}
}
