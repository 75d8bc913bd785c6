package lineage

// DeviceClass is the host's coarse device signal used to size the cache.
type DeviceClass string

const (
	DeviceMobile  DeviceClass = "mobile"
	DeviceDesktop DeviceClass = "desktop"
)

// Sizing holds the per-device cache capacities.
type Sizing struct {
	// MobileCapacity is used when the viewport is narrower than MobileViewportThreshold.
	// Default: 3
	MobileCapacity int

	// DesktopCapacity is used otherwise.
	// Default: 6
	DesktopCapacity int

	// MobileViewportThreshold is the viewport width in CSS pixels below which
	// a device is mobile-class.
	// Default: 768
	MobileViewportThreshold int
}

// DefaultSizing returns the standard capacities.
func DefaultSizing() Sizing {
	return Sizing{
		MobileCapacity:          3,
		DesktopCapacity:         6,
		MobileViewportThreshold: 768,
	}
}

// Normalize replaces unset fields with defaults.
func (s *Sizing) Normalize() {
	d := DefaultSizing()
	if s.MobileCapacity < 1 {
		s.MobileCapacity = d.MobileCapacity
	}
	if s.DesktopCapacity < 1 {
		s.DesktopCapacity = d.DesktopCapacity
	}
	if s.MobileViewportThreshold < 1 {
		s.MobileViewportThreshold = d.MobileViewportThreshold
	}
}

// Classify maps a viewport width to a device class. A non-positive width
// means the host did not report one and is treated as desktop.
func (s Sizing) Classify(viewportWidth int) DeviceClass {
	s.Normalize()
	if viewportWidth > 0 && viewportWidth < s.MobileViewportThreshold {
		return DeviceMobile
	}
	return DeviceDesktop
}

// CapacityFor returns the cache capacity for a device class.
func (s Sizing) CapacityFor(class DeviceClass) int {
	s.Normalize()
	if class == DeviceMobile {
		return s.MobileCapacity
	}
	return s.DesktopCapacity
}
