package membership

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Well-known attribute keys attached to every member at join time.
const (
	AttrNodeName    = "NODE_NAME"
	AttrProcessRole = "PROCESS_ROLE"
	AttrRPCAddr     = "RPC_ADDR"
	AttrJoinedAt    = "JOINED_AT"
)

// MetaMaxSize mirrors the gossip layer limit on per-node metadata.
const MetaMaxSize = 512

var ErrMetaTooLarge = errors.New("member attributes exceed metadata limit")

// Role is the kind of process a member runs.
type Role string

const (
	RoleApp           Role = "app"
	RoleWeb           Role = "web"
	RoleComputeEngine Role = "ce"
	RoleSearch        Role = "search"
)

// Clusterable reports whether processes of this role may join the cluster.
// Search nodes form their own cluster and never join this one.
func (r Role) Clusterable() bool {
	switch r {
	case RoleApp, RoleWeb, RoleComputeEngine:
		return true
	default:
		return false
	}
}

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleApp, RoleWeb, RoleComputeEngine, RoleSearch:
		return r, nil
	default:
		return "", fmt.Errorf("unknown process role %q", s)
	}
}

type Attribute struct {
	Key   string
	Value string
}

// Attributes is an ordered set of member attributes. Keys are unique and kept
// sorted, so that encoded metadata is stable.
type Attributes []Attribute

func NewAttributes(kv map[string]string) Attributes {
	attrs := make(Attributes, 0, len(kv))
	for k, v := range kv {
		attrs = append(attrs, Attribute{Key: k, Value: v})
	}

	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].Key < attrs[j].Key
	})

	return attrs
}

func (a Attributes) Get(key string) (string, bool) {
	i := sort.Search(len(a), func(i int) bool {
		return a[i].Key >= key
	})

	if i < len(a) && a[i].Key == key {
		return a[i].Value, true
	}

	return "", false
}

// Member is a single clustered process as seen in the membership view.
// Attributes are fixed when the member joins.
type Member struct {
	ID         uuid.UUID
	Addr       string
	Attributes Attributes
}

// Name returns the display name of the member.
func (m Member) Name() string {
	name, _ := m.Attributes.Get(AttrNodeName)
	return name
}

func (m Member) Role() Role {
	role, _ := m.Attributes.Get(AttrProcessRole)
	return Role(role)
}

// RPCAddr returns the address of the member's node-to-node RPC server.
func (m Member) RPCAddr() string {
	addr, _ := m.Attributes.Get(AttrRPCAddr)
	return addr
}

// JoinedAt returns the time the member joined, as reported by itself.
func (m Member) JoinedAt() time.Time {
	v, ok := m.Attributes.Get(AttrJoinedAt)
	if !ok {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}

	return t
}

func (m Member) String() string {
	if name := m.Name(); name != "" {
		return fmt.Sprintf("%s (%s)", name, m.ID)
	}

	return m.ID.String()
}

// EncodeMeta serialises attributes into gossip node metadata.
func EncodeMeta(attrs Attributes) ([]byte, error) {
	buf := bytes.Buffer{}

	if err := gob.NewEncoder(&buf).Encode(attrs); err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}

	if buf.Len() > MetaMaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMetaTooLarge, buf.Len())
	}

	return buf.Bytes(), nil
}

func DecodeMeta(data []byte) (Attributes, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var attrs Attributes

	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}

	return attrs, nil
}
