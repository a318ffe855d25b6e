package validation

// Protocol holds the numeric constants of the marking protocol
type Protocol struct {
	// Slices is the number of axial slices every label must be marked on
	Slices int

	// LCVoxels is the required voxel count of each LC ROI per slice
	LCVoxels int

	// PTVoxels is the required voxel count of the PT ROI per slice
	PTVoxels int

	// PTVentralOffset is the distance in voxels between the centre of the
	// most ventral LC ROI and the first row of the PT
	PTVentralOffset int
}

// DefaultProtocol returns the values from Clewett et al. (2016)
func DefaultProtocol() Protocol {
	return Protocol{
		Slices:          3,
		LCVoxels:        5,
		PTVoxels:        100,
		PTVentralOffset: 6,
	}
}
