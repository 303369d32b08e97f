package core

import "github.com/hashicorp/go-version"

// CompatibleProtocol reports whether remote's advertised wire-protocol
// version is compatible with this node's, defined as sharing the same
// major version (spec's Non-goal excludes cross-version migration, so
// anything else is simply rejected rather than bridged).
func CompatibleProtocol(local, remote string) bool {
	lv, err := version.NewVersion(local)
	if err != nil {
		return false
	}
	rv, err := version.NewVersion(remote)
	if err != nil {
		return false
	}
	return lv.Segments()[0] == rv.Segments()[0]
}
