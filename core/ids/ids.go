// Package ids defines the opaque identifiers used by the node runtime.
//
// All identifiers are 16-byte UUIDs. A [NodeID] is never random: it is
// derived from the instance and the application it serves, so the same
// application restarted on the same instance keeps its address.
package ids

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

type (
	// InstanceID identifies one physical worker instance.
	InstanceID uuid.UUID
	// ApplicationID identifies an application hosted by workers.
	ApplicationID uuid.UUID
	// NodeID identifies the node serving one application on one instance.
	NodeID uuid.UUID
)

// MasterApplication is the application id used by an instance's master node.
var MasterApplication = ApplicationID(uuid.Nil)

func NewInstanceID() InstanceID       { return InstanceID(uuid.New()) }
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

func (id InstanceID) String() string    { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id NodeID) String() string        { return uuid.UUID(id).String() }

// UUID returns the raw UUID, as carried in a routing header.
func (id NodeID) UUID() uuid.UUID { return uuid.UUID(id) }

// IsMaster reports whether id is the master application id.
func (id ApplicationID) IsMaster() bool { return id == MasterApplication }

func (id InstanceID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id ApplicationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id NodeID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }

func (id *InstanceID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ApplicationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *NodeID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }

func ParseInstanceID(s string) (InstanceID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return InstanceID{}, fmt.Errorf("invalid instance id %q: %w", s, err)
	}
	return InstanceID(u), nil
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ApplicationID{}, fmt.Errorf("invalid application id %q: %w", s, err)
	}
	return ApplicationID(u), nil
}

func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return NodeID(u), nil
}

// ApplicationFromName maps a symbolic application name to a stable id.
// Configuration files name applications; the wire only knows UUIDs.
func ApplicationFromName(name string) ApplicationID {
	return ApplicationID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("clstr:application:"+name)))
}

// NodeFor derives the node id for app on instance.
func NodeFor(instance InstanceID, app ApplicationID) NodeID {
	h, _ := blake2b.New(16, nil)
	h.Write(instance[:])
	h.Write([]byte{0})
	h.Write(app[:])

	var id NodeID
	copy(id[:], h.Sum(nil))
	id[6] = (id[6] & 0x0f) | 0x80 // version 8 (custom)
	id[8] = (id[8] & 0x3f) | 0x80 // RFC 4122 variant
	return id
}
