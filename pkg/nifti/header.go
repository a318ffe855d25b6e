// Package nifti reads and writes single-file NIfTI-1 volumes and reorients
// them to the closest canonical (RAS+) voxel orientation.
package nifti

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	headerSize = 348

	// minVoxOffset is the header plus the 4-byte extension flag
	minVoxOffset = 352

	// MaxVoxelBytes caps the voxel data a header may declare
	MaxVoxelBytes = 1 << 30
)

// Datatype is the NIfTI-1 voxel datatype code
type Datatype int16

const (
	Uint8   Datatype = 2
	Int16   Datatype = 4
	Int32   Datatype = 8
	Float32 Datatype = 16
	Float64 Datatype = 64
	Int8    Datatype = 256
	Uint16  Datatype = 512
	Uint32  Datatype = 768
	Int64   Datatype = 1024
	Uint64  Datatype = 1280
)

var (
	ErrNotNIfTI            = errors.New("not a single-file NIfTI-1 image")
	ErrUnsupportedDatatype = errors.New("unsupported NIfTI datatype")
	ErrNotVolume           = errors.New("image is not a 3-D volume")
)

// Size returns the number of bytes per voxel, or 0 for unsupported types
func (d Datatype) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

func (d Datatype) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	}
	return fmt.Sprintf("datatype(%d)", int16(d))
}

// header mirrors the 348-byte NIfTI-1 header field for field.
type header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DbName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// Header is the subset of NIfTI-1 header fields callers care about
type Header struct {
	Dim         [3]int
	Pixdim      [3]float64
	Datatype    Datatype
	QformCode   int
	SformCode   int
	Description string
}

func (h *header) public() Header {
	out := Header{
		Datatype:    Datatype(h.Datatype),
		QformCode:   int(h.QformCode),
		SformCode:   int(h.SformCode),
		Description: strings.TrimRight(string(bytes.TrimRight(h.Descrip[:], "\x00")), " "),
	}
	for i := 0; i < 3; i++ {
		out.Dim[i] = int(h.Dim[i+1])
		out.Pixdim[i] = float64(h.Pixdim[i+1])
	}
	return out
}

// validate checks the fields the reader depends on
func (h *header) validate() error {
	if string(h.Magic[:3]) != "n+1" {
		if string(h.Magic[:3]) == "ni1" {
			return fmt.Errorf("%w: paired .hdr/.img files are not supported", ErrNotNIfTI)
		}
		return fmt.Errorf("%w: bad magic %q", ErrNotNIfTI, h.Magic[:3])
	}

	ndim := int(h.Dim[0])
	if ndim < 1 || ndim > 7 {
		return fmt.Errorf("%w: dim[0]=%d", ErrNotNIfTI, ndim)
	}
	if ndim > 3 {
		for i := 4; i <= ndim; i++ {
			if h.Dim[i] > 1 {
				return fmt.Errorf("%w: dim[%d]=%d", ErrNotVolume, i, h.Dim[i])
			}
		}
	}
	for i := 1; i <= 3; i++ {
		if i <= ndim && h.Dim[i] < 1 {
			return fmt.Errorf("%w: dim[%d]=%d", ErrNotNIfTI, i, h.Dim[i])
		}
	}

	if Datatype(h.Datatype).Size() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedDatatype, Datatype(h.Datatype))
	}
	if n := h.voxelBytes(); n > MaxVoxelBytes {
		w, ht, d := h.dims()
		return fmt.Errorf("%w: %dx%dx%d %s needs %d bytes, limit is %d",
			ErrNotVolume, w, ht, d, Datatype(h.Datatype), n, MaxVoxelBytes)
	}
	return nil
}

// voxelBytes is the size of the voxel data declared by the header
func (h *header) voxelBytes() int64 {
	w, ht, d := h.dims()
	return int64(w) * int64(ht) * int64(d) * int64(Datatype(h.Datatype).Size())
}

// dims returns the three spatial dimensions, treating missing ones as 1
func (h *header) dims() (int, int, int) {
	d := [3]int{1, 1, 1}
	for i := 1; i <= 3 && i <= int(h.Dim[0]); i++ {
		d[i-1] = int(h.Dim[i])
	}
	return d[0], d[1], d[2]
}

// scaling returns the slope and intercept to apply, following the
// convention that a zero or non-finite slope disables scaling.
func (h *header) scaling() (slope, inter float64, ok bool) {
	slope = float64(h.SclSlope)
	inter = float64(h.SclInter)
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) || math.IsNaN(inter) {
		return 1, 0, false
	}
	if slope == 1 && inter == 0 {
		return 1, 0, false
	}
	return slope, inter, true
}
