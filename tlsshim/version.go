package tlsshim

// Version information for the TLS emulation layer.
const (
	// Version is the current version of the TLS emulation layer.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides runtime information about the TLS emulation layer.
type Info struct {
	// Version is the layer version string.
	Version string

	// Target is the guest target OS the shim is configured for, which
	// selects the draining protocol.
	Target string

	// Keys is the number of live TLS keys in the registry.
	Keys int
}

// GetInfo returns information about a shim's configuration and state.
//
// Example:
//
//	info := shim.GetInfo()
//	fmt.Printf("TLS shim %s (target %s, %d keys)\n", info.Version, info.Target, info.Keys)
func (s *Shim) GetInfo() Info {
	return Info{
		Version: Version,
		Target:  s.target,
		Keys:    s.data.KeyCount(),
	}
}
