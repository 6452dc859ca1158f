package packet

import (
	"fmt"
	"slices"
)

// Version is a protocol version number as sent in the handshake.
type Version int32

// Supported protocol versions.
const (
	V1_20_5 Version = 766 // 1.20.5, 1.20.6
	V1_21   Version = 767 // 1.21, 1.21.1
	V1_21_2 Version = 768 // 1.21.2, 1.21.3
)

// Latest is the newest supported version. Status responses advertise it.
const Latest = V1_21_2

var versionNames = map[Version]string{
	V1_20_5: "1.20.6",
	V1_21:   "1.21.1",
	V1_21_2: "1.21.3",
}

// SupportedVersions returns the supported versions, oldest first.
func SupportedVersions() []Version {
	vs := make([]Version, 0, len(versionNames))
	for v := range versionNames {
		vs = append(vs, v)
	}
	slices.Sort(vs)
	return vs
}

// Supported reports whether v has a packet table.
func (v Version) Supported() bool {
	_, ok := versionNames[v]
	return ok
}

// Name returns the game release name of v, such as "1.21.1".
func (v Version) Name() string {
	if n, ok := versionNames[v]; ok {
		return n
	}
	return fmt.Sprintf("protocol %d", int32(v))
}

// Range returns a human readable range of supported releases.
func Range() string {
	vs := SupportedVersions()
	return fmt.Sprintf("1.20.5-%s", vs[len(vs)-1].Name())
}

func (v Version) String() string {
	return fmt.Sprintf("%d (%s)", int32(v), v.Name())
}
