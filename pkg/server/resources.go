package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/packet"
)

// ResourceProvider supplies the data sent during configuration.
type ResourceProvider interface {
	// KnownPacks lists the data packs offered to the client.
	KnownPacks() []packet.KnownPack

	// Registries returns the registry contents for a protocol version, in
	// send order.
	Registries(v packet.Version) []packet.RegistryData

	// FeatureFlags lists the enabled feature sets.
	FeatureFlags() []string
}

// StaticResources serves fixed resources to every version.
type StaticResources struct {
	Packs []packet.KnownPack
	Data  []packet.RegistryData
	Flags []string
}

// DefaultResources offers the core pack and the vanilla feature set with
// no registry data.
func DefaultResources() *StaticResources {
	return &StaticResources{
		Packs: []packet.KnownPack{packet.CorePack},
		Flags: []string{packet.VanillaFeature},
	}
}

func (r *StaticResources) KnownPacks() []packet.KnownPack { return r.Packs }

func (r *StaticResources) Registries(packet.Version) []packet.RegistryData { return r.Data }

func (r *StaticResources) FeatureFlags() []string { return r.Flags }

// LoadRegistryFile reads a registry dump from path. See ParseRegistryJSON.
func LoadRegistryFile(path string) ([]packet.RegistryData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRegistryJSON(data)
}

// ParseRegistryJSON converts a registry dump of the form
//
//	{"dimension_type": {"minecraft:overworld": {...}}, ...}
//
// into RegistryData packets. Registry names without a namespace get
// "minecraft:". Every entry is sent with its data as network NBT. Order
// follows the document.
func ParseRegistryJSON(data []byte) ([]packet.RegistryData, error) {
	v, err := nbt.FromJSON(data)
	if err != nil {
		return nil, err
	}
	root, ok := v.(nbt.Compound)
	if !ok {
		return nil, fmt.Errorf("server: registry document is %s, want an object", nbt.TagName(v.TagID()))
	}

	out := make([]packet.RegistryData, 0, len(root))
	for _, reg := range root {
		entries, ok := reg.Value.(nbt.Compound)
		if !ok {
			return nil, fmt.Errorf("server: registry %q is not an object", reg.Name)
		}
		rd := packet.RegistryData{
			RegistryID: qualify(reg.Name),
			Entries:    make([]packet.RegistryEntry, 0, len(entries)),
		}
		for _, e := range entries {
			if _, ok := e.Value.(nbt.Compound); !ok {
				return nil, fmt.Errorf("server: registry %s entry %q is not an object", rd.RegistryID, e.Name)
			}
			raw, err := nbt.Marshal(e.Value)
			if err != nil {
				return nil, fmt.Errorf("server: registry %s entry %q: %w", rd.RegistryID, e.Name, err)
			}
			rd.Entries = append(rd.Entries, packet.RegistryEntry{ID: qualify(e.Name), HasData: true, Data: raw})
		}
		out = append(out, rd)
	}
	return out, nil
}

func qualify(id string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return "minecraft:" + id
}
