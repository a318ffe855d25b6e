package nifti

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"lccnr/internal/models"
)

// Image is a decoded NIfTI-1 file in its stored voxel orientation
type Image struct {
	Header Header
	Volume *models.Volume
}

// ReadFile reads a .nii or .nii.gz file without reorienting it
func ReadFile(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return img, nil
}

// Load reads a NIfTI file and returns its volume in canonical RAS+ orientation.
// Voxel coordinates of the result are x = left to right, y = posterior to
// anterior, z = inferior to superior.
func Load(path string) (*models.Volume, error) {
	img, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Canonical(img.Volume)
}

// Read decodes a NIfTI-1 stream. Gzip compression is detected from the
// leading magic bytes, not the file name.
func Read(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotNIfTI, err)
	}

	var src io.Reader = br
	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(src, raw); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrNotNIfTI, err)
	}

	order, err := byteOrder(raw)
	if err != nil {
		return nil, err
	}

	var h header
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if err := h.validate(); err != nil {
		return nil, err
	}

	// Skip the extension flag and any extensions
	offset := int64(h.VoxOffset)
	if offset < minVoxOffset {
		offset = minVoxOffset
	}
	if _, err := io.CopyN(io.Discard, src, offset-headerSize); err != nil {
		return nil, fmt.Errorf("skip to voxel data: %w", err)
	}

	// The buffer grows with the data actually present, so a truncated body
	// fails before the volume is allocated.
	want := h.voxelBytes()
	buf, err := io.ReadAll(io.LimitReader(src, want))
	if err != nil {
		return nil, fmt.Errorf("read voxel data: %w", err)
	}
	if int64(len(buf)) < want {
		return nil, fmt.Errorf("read voxel data: %w: got %d of %d bytes",
			io.ErrUnexpectedEOF, len(buf), want)
	}

	width, height, depth := h.dims()
	vol := models.NewVolume(width, height, depth)
	vol.VoxelSize.X = float64(h.Pixdim[1])
	vol.VoxelSize.Y = float64(h.Pixdim[2])
	vol.VoxelSize.Z = float64(h.Pixdim[3])
	vol.Affine = bestAffine(&h)
	decodeVoxels(buf, Datatype(h.Datatype), order, vol.Data)

	if slope, inter, ok := h.scaling(); ok {
		for i, v := range vol.Data {
			vol.Data[i] = v*slope + inter
		}
	}

	return &Image{Header: h.public(), Volume: vol}, nil
}

// byteOrder detects endianness from sizeof_hdr, which must read as 348
func byteOrder(raw []byte) (binary.ByteOrder, error) {
	if int32(binary.LittleEndian.Uint32(raw[:4])) == headerSize {
		return binary.LittleEndian, nil
	}
	if int32(binary.BigEndian.Uint32(raw[:4])) == headerSize {
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("%w: sizeof_hdr is not %d", ErrNotNIfTI, headerSize)
}

func decodeVoxels(buf []byte, dt Datatype, order binary.ByteOrder, dst []float64) {
	size := dt.Size()
	for i := range dst {
		b := buf[i*size : (i+1)*size]
		switch dt {
		case Uint8:
			dst[i] = float64(b[0])
		case Int8:
			dst[i] = float64(int8(b[0]))
		case Int16:
			dst[i] = float64(int16(order.Uint16(b)))
		case Uint16:
			dst[i] = float64(order.Uint16(b))
		case Int32:
			dst[i] = float64(int32(order.Uint32(b)))
		case Uint32:
			dst[i] = float64(order.Uint32(b))
		case Int64:
			dst[i] = float64(int64(order.Uint64(b)))
		case Uint64:
			dst[i] = float64(order.Uint64(b))
		case Float32:
			dst[i] = float64(math.Float32frombits(order.Uint32(b)))
		case Float64:
			dst[i] = math.Float64frombits(order.Uint64(b))
		}
	}
}
