package config

import "time"

// Registry is the top-level configuration document.
type Registry struct {
	// Version is the config schema version (currently 1).
	Version int `yaml:"version"`

	// Devices maps device UDN to remembered metadata.
	Devices map[string]*Device `yaml:"devices"`

	// Preferences holds user-level discovery defaults.
	Preferences *Preferences `yaml:"preferences"`
}

// Device is the remembered metadata for one discovered device.
type Device struct {
	// Nickname is the user-assigned name, if any.
	Nickname string `yaml:"nickname,omitempty"`

	// FriendlyName is the device-reported name from its description.
	FriendlyName string `yaml:"friendly_name,omitempty"`

	// DeviceType is the urn device type string.
	DeviceType string `yaml:"device_type,omitempty"`

	// LastLocation is the most recent description document URL.
	LastLocation string `yaml:"last_location,omitempty"`

	// LastSeen is when the device last appeared in a search or
	// announcement.
	LastSeen time.Time `yaml:"last_seen,omitempty"`
}

// Preferences holds user-level defaults applied by the CLI.
type Preferences struct {
	// ResponseWait is the default search wait in seconds.
	ResponseWait int `yaml:"response_wait"`

	// BroadcastSearch also runs the non-standard broadcast searcher.
	BroadcastSearch bool `yaml:"broadcast_search"`

	// MDNSFallback also runs the mDNS fallback scanner.
	MDNSFallback bool `yaml:"mdns_fallback"`
}

// NewRegistry creates an empty registry with defaults.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Devices: make(map[string]*Device),
		Preferences: &Preferences{
			ResponseWait: 5,
		},
	}
}

// Remember records or refreshes a device entry, preserving any nickname
// the user assigned earlier.
func (r *Registry) Remember(udn, friendlyName, deviceType, location string) {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	entry, ok := r.Devices[udn]
	if !ok {
		entry = &Device{}
		r.Devices[udn] = entry
	}
	entry.FriendlyName = friendlyName
	entry.DeviceType = deviceType
	entry.LastLocation = location
	entry.LastSeen = time.Now()
}

// Forget removes a device entry. Returns true when it existed.
func (r *Registry) Forget(udn string) bool {
	if _, ok := r.Devices[udn]; !ok {
		return false
	}
	delete(r.Devices, udn)
	return true
}

// Lookup finds a device by UDN or nickname.
func (r *Registry) Lookup(key string) (string, *Device) {
	if entry, ok := r.Devices[key]; ok {
		return key, entry
	}
	for udn, entry := range r.Devices {
		if entry.Nickname != "" && entry.Nickname == key {
			return udn, entry
		}
	}
	return "", nil
}
