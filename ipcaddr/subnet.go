// Package ipcaddr implements subnet and cross-subnet addressing: the ordered
// path of addresses from the root network down to a leaf subnet, and the
// (subnet, raw address) pair that names an actor inside the hierarchy.
//
// The upstream go-ipc-types/sdk package defines an SubnetID type with the same
// purpose, but the routing operations this package needs (Down, CommonParent)
// are not demonstrated anywhere in the examples this module was grounded on, so
// they are implemented locally here rather than guessed on an external type -
// the same approach sa8-eudico takes with its own hierarchical.SubnetID
// wrapper.
package ipcaddr

import (
	"strings"

	"golang.org/x/xerrors"

	address "github.com/filecoin-project/go-address"
)

// PathSeparator matches the "/root/f01/f02" notation used throughout the
// reference implementation and its tests.
const PathSeparator = "/"

// SubnetID is the ordered path of identifiers from the root network to a
// leaf subnet. path[0] is the root network name; path[1:] are the string
// forms of the subnet actor addresses of each subsequent hop.
type SubnetID struct {
	path []string
}

// NewRootSubnetID returns the SubnetID of the root network itself.
func NewRootSubnetID(networkName string) SubnetID {
	return SubnetID{path: []string{networkName}}
}

// NewSubnetID extends parent with a child hop identified by actor.
func NewSubnetID(parent SubnetID, actor address.Address) SubnetID {
	path := make([]string, len(parent.path)+1)
	copy(path, parent.path)
	path[len(parent.path)] = actor.String()
	return SubnetID{path: path}
}

// ParseSubnetID parses the "/root/f01/f02" string form.
func ParseSubnetID(s string) (SubnetID, error) {
	trimmed := strings.TrimPrefix(s, PathSeparator)
	if trimmed == "" {
		return SubnetID{}, xerrors.Errorf("empty subnet id")
	}
	return SubnetID{path: strings.Split(trimmed, PathSeparator)}, nil
}

// String renders the "/root/f01/f02" form.
func (id SubnetID) String() string {
	return PathSeparator + strings.Join(id.path, PathSeparator)
}

// IsEmpty reports whether id is the zero value (no root set).
func (id SubnetID) IsEmpty() bool {
	return len(id.path) == 0
}

// Equals reports whether id and other denote the same path.
func (id SubnetID) Equals(other SubnetID) bool {
	return id.String() == other.String()
}

// NetworkName returns the root network name (path[0]).
func (id SubnetID) NetworkName() string {
	if len(id.path) == 0 {
		return ""
	}
	return id.path[0]
}

// Actor returns the address of the subnet actor at the leaf of this path. It
// errors for the root subnet, which has no actor of its own.
func (id SubnetID) Actor() (address.Address, error) {
	if len(id.path) < 2 {
		return address.Undef, xerrors.Errorf("root subnet has no actor address")
	}
	return address.NewFromString(id.path[len(id.path)-1])
}

// Parent returns the SubnetID one hop up, and false if id is already the
// root.
func (id SubnetID) Parent() (SubnetID, bool) {
	if len(id.path) < 2 {
		return SubnetID{}, false
	}
	path := make([]string, len(id.path)-1)
	copy(path, id.path[:len(id.path)-1])
	return SubnetID{path: path}, true
}

// CommonParent returns the longest common path prefix of id and other - the
// lowest common ancestor subnet of the two.
func (id SubnetID) CommonParent(other SubnetID) SubnetID {
	n := len(id.path)
	if len(other.path) < n {
		n = len(other.path)
	}
	i := 0
	for ; i < n; i++ {
		if id.path[i] != other.path[i] {
			break
		}
	}
	path := make([]string, i)
	copy(path, id.path[:i])
	return SubnetID{path: path}
}

// Down returns the immediate child of id that lies on the path toward to. It
// errors if id is not a strict ancestor of to.
func (id SubnetID) Down(to SubnetID) (SubnetID, error) {
	if len(to.path) <= len(id.path) {
		return SubnetID{}, xerrors.Errorf("%s is not a strict ancestor of %s", id, to)
	}
	for i := range id.path {
		if id.path[i] != to.path[i] {
			return SubnetID{}, xerrors.Errorf("%s is not an ancestor of %s", id, to)
		}
	}
	path := make([]string, len(id.path)+1)
	copy(path, to.path[:len(id.path)+1])
	return SubnetID{path: path}, nil
}

// IsBottomUp reports whether a message travelling from -> to starts its
// journey moving toward the root (i.e. from is strictly below the two
// subnets' common ancestor). Ported from original_source/src/cross.rs's
// is_bottomup.
func IsBottomUp(from, to SubnetID) bool {
	common := from.CommonParent(to)
	return len(from.path) > len(common.path)
}

// IPCAddress pairs a SubnetID with a raw address inside that subnet.
type IPCAddress struct {
	Subnet SubnetID
	Raw    address.Address
}

// NewIPCAddress builds an IPCAddress.
func NewIPCAddress(subnet SubnetID, raw address.Address) IPCAddress {
	return IPCAddress{Subnet: subnet, Raw: raw}
}

// String renders the "subnet:raw" form used by original_source/sdk/src/address.rs.
func (a IPCAddress) String() string {
	return a.Subnet.String() + ":" + a.Raw.String()
}

// ParseIPCAddress parses the "subnet:raw" form.
func ParseIPCAddress(s string) (IPCAddress, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return IPCAddress{}, xerrors.Errorf("malformed IPC address %q", s)
	}
	subnet, err := ParseSubnetID(s[:idx])
	if err != nil {
		return IPCAddress{}, xerrors.Errorf("parsing subnet of IPC address: %w", err)
	}
	raw, err := address.NewFromString(s[idx+1:])
	if err != nil {
		return IPCAddress{}, xerrors.Errorf("parsing raw address of IPC address: %w", err)
	}
	return IPCAddress{Subnet: subnet, Raw: raw}, nil
}

// Equals reports whether a and other denote the same (subnet, raw) pair.
func (a IPCAddress) Equals(other IPCAddress) bool {
	return a.Subnet.Equals(other.Subnet) && a.Raw == other.Raw
}
