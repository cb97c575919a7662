package qmi

import "context"

// WithVersionProbe makes Open issue CTL get_version_info up front and cache
// the result on the Device, so later Client.CheckVersion calls do not each
// re-query the modem. Independent of WithSkipSync: a caller can request
// either, both, or neither.
func WithVersionProbe() OpenOption {
	return func(o *openOptions) { o.versionProbe = true }
}

// Versions returns the service versions collected during Open's version
// probe. Returns nil if the device was not opened with WithVersionProbe.
func (d *Device) Versions() []serviceVersion {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]serviceVersion(nil), d.versions...)
}

func (d *Device) probeVersions(ctx context.Context) error {
	versions, err := d.getVersionInfo(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.versions = versions
	d.mu.Unlock()
	return nil
}
