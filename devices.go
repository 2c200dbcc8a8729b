package depthcam

// DeviceInfo identifies one attached physical device.
type DeviceInfo struct {
	Serial string
	Name   string
}

// Devices lists the currently attached devices. The result reflects the
// hardware at call time; it is never cached. An empty slice, not an
// error, means nothing is attached. Order is whatever the driver
// reports, with index 0 treated as "first available" for fallback.
func (c *Camera) Devices() ([]DeviceInfo, error) {
	if err := c.resolveDriver(); err != nil {
		return nil, err
	}
	devices, err := c.drv.Devices()
	if err != nil {
		return nil, err
	}
	infos := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		infos[i] = DeviceInfo{Serial: d.Serial, Name: d.Name}
	}
	return infos, nil
}

// EnumerateDevices lists attached devices without building a
// connection.
func EnumerateDevices(opts ...Option) ([]DeviceInfo, error) {
	return New(Config{}, opts...).Devices()
}
