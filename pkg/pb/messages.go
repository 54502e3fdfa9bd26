// Package pb holds the wire messages exchanged with the two external
// collaborators reached over gRPC: the identity service and the metadata
// service. Both are treated as black boxes (spec.md §1); only the
// request/response shapes this front end needs are modeled here, by hand,
// in the style gogo/protobuf codegen would produce — reflection-marshaled
// via struct tags, no custom Marshal/Unmarshal methods.
package pb

import "github.com/gogo/protobuf/proto"

// Message is the minimal gogo/protobuf proto.Message contract; every
// message below satisfies it so protoString can share gogo/protobuf's
// text marshaler instead of each type rolling its own String.
type Message = proto.Message

// KeyEntry is one {fingerprint: publicKeyPEM} pair from an account or user
// keyring.
type KeyEntry struct {
	Fingerprint string `protobuf:"bytes,1,opt,name=fingerprint,proto3" json:"fingerprint,omitempty"`
	PublicKey   string `protobuf:"bytes,2,opt,name=public_key,json=publicKey,proto3" json:"public_key,omitempty"`
}

func (m *KeyEntry) Reset()         { *m = KeyEntry{} }
func (m *KeyEntry) String() string { return protoString(m) }
func (*KeyEntry) ProtoMessage()    {}

// RoleRecord mirrors the data-model Role.
type RoleRecord struct {
	Uuid     string   `protobuf:"bytes,1,opt,name=uuid,proto3" json:"uuid,omitempty"`
	Name     string   `protobuf:"bytes,2,opt,name=name,proto3" json:"name,omitempty"`
	Policies []string `protobuf:"bytes,3,rep,name=policies,proto3" json:"policies,omitempty"`
}

func (m *RoleRecord) Reset()         { *m = RoleRecord{} }
func (m *RoleRecord) String() string { return protoString(m) }
func (*RoleRecord) ProtoMessage()    {}

// AccountRecord mirrors the data-model Account.
type AccountRecord struct {
	Uuid                     string      `protobuf:"bytes,1,opt,name=uuid,proto3" json:"uuid,omitempty"`
	Login                    string      `protobuf:"bytes,2,opt,name=login,proto3" json:"login,omitempty"`
	ApprovedForProvisioning  bool        `protobuf:"varint,3,opt,name=approved_for_provisioning,json=approvedForProvisioning,proto3" json:"approved_for_provisioning,omitempty"`
	IsOperator               bool        `protobuf:"varint,4,opt,name=is_operator,json=isOperator,proto3" json:"is_operator,omitempty"`
	Groups                   []string    `protobuf:"bytes,5,rep,name=groups,proto3" json:"groups,omitempty"`
	Keys                     []*KeyEntry `protobuf:"bytes,6,rep,name=keys,proto3" json:"keys,omitempty"`
}

func (m *AccountRecord) Reset()         { *m = AccountRecord{} }
func (m *AccountRecord) String() string { return protoString(m) }
func (*AccountRecord) ProtoMessage()    {}

// UserRecord mirrors the data-model User (subuser).
type UserRecord struct {
	Uuid         string      `protobuf:"bytes,1,opt,name=uuid,proto3" json:"uuid,omitempty"`
	AccountUuid  string      `protobuf:"bytes,2,opt,name=account_uuid,json=accountUuid,proto3" json:"account_uuid,omitempty"`
	Login        string      `protobuf:"bytes,3,opt,name=login,proto3" json:"login,omitempty"`
	Keys         []*KeyEntry `protobuf:"bytes,4,rep,name=keys,proto3" json:"keys,omitempty"`
	Roles        []string    `protobuf:"bytes,5,rep,name=roles,proto3" json:"roles,omitempty"`
	DefaultRoles []string    `protobuf:"bytes,6,rep,name=default_roles,json=defaultRoles,proto3" json:"default_roles,omitempty"`
}

func (m *UserRecord) Reset()         { *m = UserRecord{} }
func (m *UserRecord) String() string { return protoString(m) }
func (*UserRecord) ProtoMessage()    {}

// ResolveIdentityRequest asks the identity service for the caller matching
// one of account/user/accountid/userid (spec.md §4.3 step 8 priority
// order: (user,account) > userid > account > accountid).
type ResolveIdentityRequest struct {
	Account   string `protobuf:"bytes,1,opt,name=account,proto3" json:"account,omitempty"`
	User      string `protobuf:"bytes,2,opt,name=user,proto3" json:"user,omitempty"`
	AccountId string `protobuf:"bytes,3,opt,name=account_id,json=accountId,proto3" json:"account_id,omitempty"`
	UserId    string `protobuf:"bytes,4,opt,name=user_id,json=userId,proto3" json:"user_id,omitempty"`
}

func (m *ResolveIdentityRequest) Reset()         { *m = ResolveIdentityRequest{} }
func (m *ResolveIdentityRequest) String() string { return protoString(m) }
func (*ResolveIdentityRequest) ProtoMessage()    {}

// ResolveIdentityResponse carries the resolved account/user plus the
// full Role records for every uuid the user (or account) can assume.
type ResolveIdentityResponse struct {
	Account *AccountRecord `protobuf:"bytes,1,opt,name=account,proto3" json:"account,omitempty"`
	User    *UserRecord    `protobuf:"bytes,2,opt,name=user,proto3" json:"user,omitempty"`
	Roles   []*RoleRecord  `protobuf:"bytes,3,rep,name=roles,proto3" json:"roles,omitempty"`
}

func (m *ResolveIdentityResponse) Reset()         { *m = ResolveIdentityResponse{} }
func (m *ResolveIdentityResponse) String() string { return protoString(m) }
func (*ResolveIdentityResponse) ProtoMessage()    {}

// Shark is one replica location (datacenter + storage node id).
type Shark struct {
	Datacenter      string `protobuf:"bytes,1,opt,name=datacenter,proto3" json:"datacenter,omitempty"`
	MantaStorageId  string `protobuf:"bytes,2,opt,name=manta_storage_id,json=mantaStorageId,proto3" json:"manta_storage_id,omitempty"`
}

func (m *Shark) Reset()         { *m = Shark{} }
func (m *Shark) String() string { return protoString(m) }
func (*Shark) ProtoMessage()    {}

// ObjectMetadataRecord mirrors the data-model Object metadata.
type ObjectMetadataRecord struct {
	Key           string            `protobuf:"bytes,1,opt,name=key,proto3" json:"key,omitempty"`
	Type          string            `protobuf:"bytes,2,opt,name=type,proto3" json:"type,omitempty"`
	OwnerUuid     string            `protobuf:"bytes,3,opt,name=owner_uuid,json=ownerUuid,proto3" json:"owner_uuid,omitempty"`
	Etag          string            `protobuf:"bytes,4,opt,name=etag,proto3" json:"etag,omitempty"`
	ContentMd5    string            `protobuf:"bytes,5,opt,name=content_md5,json=contentMd5,proto3" json:"content_md5,omitempty"`
	ContentLength int64             `protobuf:"varint,6,opt,name=content_length,json=contentLength,proto3" json:"content_length,omitempty"`
	ContentType   string            `protobuf:"bytes,7,opt,name=content_type,json=contentType,proto3" json:"content_type,omitempty"`
	Headers       map[string]string `protobuf:"bytes,8,rep,name=headers,proto3" json:"headers,omitempty"`
	Roles         []string          `protobuf:"bytes,9,rep,name=roles,proto3" json:"roles,omitempty"`
	ModifiedMs    int64             `protobuf:"varint,10,opt,name=modified_ms,json=modifiedMs,proto3" json:"modified_ms,omitempty"`
	Sharks        []*Shark          `protobuf:"bytes,11,rep,name=sharks,proto3" json:"sharks,omitempty"`
}

func (m *ObjectMetadataRecord) Reset()         { *m = ObjectMetadataRecord{} }
func (m *ObjectMetadataRecord) String() string { return protoString(m) }
func (*ObjectMetadataRecord) ProtoMessage()    {}

// FindObjectsRequest looks up metadata by exact key or by directory prefix.
type FindObjectsRequest struct {
	Key        string `protobuf:"bytes,1,opt,name=key,proto3" json:"key,omitempty"`
	PrefixScan bool   `protobuf:"varint,2,opt,name=prefix_scan,json=prefixScan,proto3" json:"prefix_scan,omitempty"`
}

func (m *FindObjectsRequest) Reset()         { *m = FindObjectsRequest{} }
func (m *FindObjectsRequest) String() string { return protoString(m) }
func (*FindObjectsRequest) ProtoMessage()    {}

// FindObjectsResponse carries zero or more matches; zero is not itself
// an error, the caller decides what "not found" means.
type FindObjectsResponse struct {
	Objects []*ObjectMetadataRecord `protobuf:"bytes,1,rep,name=objects,proto3" json:"objects,omitempty"`
}

func (m *FindObjectsResponse) Reset()         { *m = FindObjectsResponse{} }
func (m *FindObjectsResponse) String() string { return protoString(m) }
func (*FindObjectsResponse) ProtoMessage()    {}

// PutMetadataRequest persists (or replaces) metadata for key.
type PutMetadataRequest struct {
	Object *ObjectMetadataRecord `protobuf:"bytes,1,opt,name=object,proto3" json:"object,omitempty"`
	// IfMatchEtag, when non-empty, makes the put conditional (spec.md's
	// conditional PUT semantics); empty means unconditional overwrite.
	IfMatchEtag string `protobuf:"bytes,2,opt,name=if_match_etag,json=ifMatchEtag,proto3" json:"if_match_etag,omitempty"`
}

func (m *PutMetadataRequest) Reset()         { *m = PutMetadataRequest{} }
func (m *PutMetadataRequest) String() string { return protoString(m) }
func (*PutMetadataRequest) ProtoMessage()    {}

// PutMetadataResponse echoes the etag assigned by the metadata service.
type PutMetadataResponse struct {
	Etag string `protobuf:"bytes,1,opt,name=etag,proto3" json:"etag,omitempty"`
}

func (m *PutMetadataResponse) Reset()         { *m = PutMetadataResponse{} }
func (m *PutMetadataResponse) String() string { return protoString(m) }
func (*PutMetadataResponse) ProtoMessage()    {}

// DeleteMetadataRequest removes a single key, optionally conditioned on
// IfMatchEtag the same way PutMetadataRequest is.
type DeleteMetadataRequest struct {
	Key         string `protobuf:"bytes,1,opt,name=key,proto3" json:"key,omitempty"`
	IfMatchEtag string `protobuf:"bytes,2,opt,name=if_match_etag,json=ifMatchEtag,proto3" json:"if_match_etag,omitempty"`
}

func (m *DeleteMetadataRequest) Reset()         { *m = DeleteMetadataRequest{} }
func (m *DeleteMetadataRequest) String() string { return protoString(m) }
func (*DeleteMetadataRequest) ProtoMessage()    {}

// DeleteMetadataResponse is empty; absence of an error is the signal.
type DeleteMetadataResponse struct{}

func (m *DeleteMetadataResponse) Reset()         { *m = DeleteMetadataResponse{} }
func (m *DeleteMetadataResponse) String() string { return protoString(m) }
func (*DeleteMetadataResponse) ProtoMessage()    {}

// StorageNodeRecord mirrors the data-model storage node record
// (spec.md §3); ListStorageNodes returns these to the picker a page at a
// time.
type StorageNodeRecord struct {
	Datacenter     string `protobuf:"bytes,1,opt,name=datacenter,proto3" json:"datacenter,omitempty"`
	MantaStorageId string `protobuf:"bytes,2,opt,name=manta_storage_id,json=mantaStorageId,proto3" json:"manta_storage_id,omitempty"`
	AvailableMb    uint64 `protobuf:"varint,3,opt,name=available_mb,json=availableMb,proto3" json:"available_mb,omitempty"`
	PercentUsed    uint32 `protobuf:"varint,4,opt,name=percent_used,json=percentUsed,proto3" json:"percent_used,omitempty"`
	TimestampMs    int64  `protobuf:"varint,5,opt,name=timestamp_ms,json=timestampMs,proto3" json:"timestamp_ms,omitempty"`
	Id             string `protobuf:"bytes,6,opt,name=id,proto3" json:"id,omitempty"`
}

func (m *StorageNodeRecord) Reset()         { *m = StorageNodeRecord{} }
func (m *StorageNodeRecord) String() string { return protoString(m) }
func (*StorageNodeRecord) ProtoMessage()    {}

// ListStorageNodesRequest is one page of the cursor-paginated scan
// described in spec.md §4.5.
type ListStorageNodesRequest struct {
	MaxPercentUsed uint32 `protobuf:"varint,1,opt,name=max_percent_used,json=maxPercentUsed,proto3" json:"max_percent_used,omitempty"`
	MinTimestampMs int64  `protobuf:"varint,2,opt,name=min_timestamp_ms,json=minTimestampMs,proto3" json:"min_timestamp_ms,omitempty"`
	AfterId        string `protobuf:"bytes,3,opt,name=after_id,json=afterId,proto3" json:"after_id,omitempty"`
	PageSize       uint32 `protobuf:"varint,4,opt,name=page_size,json=pageSize,proto3" json:"page_size,omitempty"`
}

func (m *ListStorageNodesRequest) Reset()         { *m = ListStorageNodesRequest{} }
func (m *ListStorageNodesRequest) String() string { return protoString(m) }
func (*ListStorageNodesRequest) ProtoMessage()    {}

// ListStorageNodesResponse is one page of results, returned by a unary
// call; HasMore false means the cursor scan is complete.
type ListStorageNodesResponse struct {
	Nodes   []*StorageNodeRecord `protobuf:"bytes,1,rep,name=nodes,proto3" json:"nodes,omitempty"`
	HasMore bool                 `protobuf:"varint,2,opt,name=has_more,json=hasMore,proto3" json:"has_more,omitempty"`
}

func (m *ListStorageNodesResponse) Reset()         { *m = ListStorageNodesResponse{} }
func (m *ListStorageNodesResponse) String() string { return protoString(m) }
func (*ListStorageNodesResponse) ProtoMessage()    {}

// EvaluateRolesRequest asks the identity service to evaluate a built
// authContext against the policy language it owns (spec.md §4.4 — the
// rule language itself is not re-specified here).
type EvaluateRolesRequest struct {
	AccountUuid  string            `protobuf:"bytes,1,opt,name=account_uuid,json=accountUuid,proto3" json:"account_uuid,omitempty"`
	UserUuid     string            `protobuf:"bytes,2,opt,name=user_uuid,json=userUuid,proto3" json:"user_uuid,omitempty"`
	OwnerUuid    string            `protobuf:"bytes,3,opt,name=owner_uuid,json=ownerUuid,proto3" json:"owner_uuid,omitempty"`
	Action       string            `protobuf:"bytes,4,opt,name=action,proto3" json:"action,omitempty"`
	ActiveRoles  []string          `protobuf:"bytes,5,rep,name=active_roles,json=activeRoles,proto3" json:"active_roles,omitempty"`
	ResourceRoles []string         `protobuf:"bytes,6,rep,name=resource_roles,json=resourceRoles,proto3" json:"resource_roles,omitempty"`
	Conditions   map[string]string `protobuf:"bytes,7,rep,name=conditions,proto3" json:"conditions,omitempty"`
}

func (m *EvaluateRolesRequest) Reset()         { *m = EvaluateRolesRequest{} }
func (m *EvaluateRolesRequest) String() string { return protoString(m) }
func (*EvaluateRolesRequest) ProtoMessage()    {}

// EvaluateRolesResponse carries the evaluator's verdict. Allowed is only
// meaningful when DenyReason is empty.
type EvaluateRolesResponse struct {
	Allowed    bool   `protobuf:"varint,1,opt,name=allowed,proto3" json:"allowed,omitempty"`
	DenyReason string `protobuf:"bytes,2,opt,name=deny_reason,json=denyReason,proto3" json:"deny_reason,omitempty"`
}

func (m *EvaluateRolesResponse) Reset()         { *m = EvaluateRolesResponse{} }
func (m *EvaluateRolesResponse) String() string { return protoString(m) }
func (*EvaluateRolesResponse) ProtoMessage()    {}

func protoString(m Message) string {
	return proto.CompactTextString(m)
}
