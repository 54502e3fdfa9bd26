// Package model holds the data-model types shared across the auth
// pipeline, picker, metadata client, and MPU state machine (spec.md §3).
package model

import "time"

// Account is immutable within a request; fetched on entry (spec.md §3).
type Account struct {
	UUID                    string
	Login                   string
	ApprovedForProvisioning bool
	IsOperator              bool
	Groups                  map[string]struct{}
	Keys                    map[string]string // keyId -> PEM public key
}

// HasGroup reports whether name is one of a's groups.
func (a *Account) HasGroup(name string) bool {
	if a == nil {
		return false
	}
	_, ok := a.Groups[name]
	return ok
}

// User is a subuser of an Account.
type User struct {
	UUID         string
	AccountUUID  string
	Login        string
	Keys         map[string]string
	Roles        map[string]struct{} // role uuid set
	DefaultRoles map[string]struct{}
}

// Role is referenced by name within an account or by uuid globally.
type Role struct {
	UUID     string
	Name     string
	Policies map[string]struct{}
}

// Caller is the result of identity resolution for a request.
type Caller struct {
	Account   *Account
	User      *User // nil for account-direct callers
	Roles     map[string]*Role
	Anonymous bool
}

// Keyset returns the keyring verification should search: the user's keys
// if this caller is a subuser, otherwise the account's.
func (c *Caller) Keyset() map[string]string {
	if c.User != nil {
		return c.User.Keys
	}
	if c.Account != nil {
		return c.Account.Keys
	}
	return nil
}

// ResourceRef names the owner and key of the resource under evaluation.
type ResourceRef struct {
	Owner *Account
	Key   string
	Roles []string // role uuids tagged on the resource's metadata
}

// AuthContext is built during the auth pipeline and read only by the
// authorizer (spec.md §3).
type AuthContext struct {
	Principal  Caller
	Action     string
	Resource   ResourceRef
	Conditions map[string]interface{}
}

// Condition keys written by gatherContext/storageContext (spec.md §4.3).
const (
	ConditionOwner       = "owner"
	ConditionMethod      = "method"
	ConditionActiveRoles = "activeRoles"
	ConditionDate        = "date"
	ConditionDay         = "day"
	ConditionTime        = "time"
	ConditionSourceIP    = "sourceip"
	ConditionUserAgent   = "user-agent"
	ConditionFromJob     = "fromjob"
	ConditionOverwrite   = "overwrite"
)

// StorageNode is one back-end storage daemon record (spec.md §3).
type StorageNode struct {
	Datacenter     string
	MantaStorageID string
	AvailableMB    uint64
	PercentUsed    uint32
	Timestamp      time.Time
}

// ObjectMetadata mirrors the persisted metadata record (spec.md §3).
type ObjectMetadata struct {
	Key           string
	Type          string // "object" | "directory" | "bucketobject"
	OwnerUUID     string
	Etag          string
	ContentMD5    string
	ContentLength int64
	ContentType   string
	Headers       map[string]string // only "m-"-prefixed entries are durable
	Roles         []string
	Modified      time.Time
	Sharks        []Shark

	// PartsMD5Summary is md5(concat(partsEtags)) in submission order; set
	// only on an object that was finalized from a committed multipart
	// upload (spec.md §3, testable property 7).
	PartsMD5Summary string `json:"partsMD5Summary,omitempty"`
}

// Shark identifies one replica location.
type Shark struct {
	Datacenter     string
	MantaStorageID string
}

// IsDirectory reports whether m is a directory-shaped entry.
func (m *ObjectMetadata) IsDirectory() bool {
	return m != nil && m.Type == "directory"
}
