// Package mpu implements the multipart-upload state machine (spec.md
// §4.6): create, upload-part validation, and commit/abort finalization.
// Upload records are persisted through the metadata client as ordinary
// metadata entries, using PutObject's ifMatchEtag for the compare-and-swap
// that makes commit and abort idempotent under retry.
package mpu

import (
	"context"
	"crypto/md5" //nolint:gosec // composing Manta's well-known multipart digest, not for security
	"encoding/base64"
	"encoding/json"
	"mime"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/mantafront/pkg/apierrors"
	"storj.io/mantafront/pkg/model"
)

var mon = monkit.Package()

// State is one node of the MPU state graph (spec.md §4.6).
type State string

const (
	StateCreated       State = "created"
	StateDoneCommitted State = "done/committed"
	StateDoneAborted   State = "done/aborted"
)

const (
	MinPartNum = 0
	MaxPartNum = 9999
	MaxNumParts = MaxPartNum + 1
)

// emptyObjectMD5 is the content-MD5 of a zero-byte object.
var emptyObjectMD5 = md5b64(nil)

// Config holds the tunable limits spec.md §4.6 leaves as named constants.
type Config struct {
	MinCopies   int
	MaxCopies   int
	MinPartSize int64
}

func (c Config) withDefaults() Config {
	if c.MinCopies == 0 {
		c.MinCopies = 1
	}
	if c.MaxCopies == 0 {
		c.MaxCopies = 9
	}
	if c.MinPartSize == 0 {
		c.MinPartSize = 5 * (1 << 20)
	}
	return c
}

// disallowedCreateHeaders are meaningful only for conditional PUT, not for
// an MPU's eventual commit (spec.md §4.6).
var disallowedCreateHeaders = map[string]struct{}{
	"if-match":            {},
	"if-none-match":       {},
	"if-modified-since":   {},
	"if-unmodified-since": {},
}

// Upload is the persisted record for one multipart upload.
type Upload struct {
	ID               string
	Account          string
	OwnerUUID        string
	TargetObjectPath string
	PartsDirectory   string
	Headers          map[string]string
	ContentLength    int64 // -1 if unset at create time
	ContentMD5       string
	NumCopies        int
	State            State
	CreationTimeMs   int64
	CommittedParts   []string
	ComputedMD5      string

	// PartsMD5Summary is md5(concat(partsEtags)) in submission order; set
	// only once this upload reaches done/committed (spec.md §3, testable
	// property 7). Distinct from ComputedMD5, which is the composed
	// object's content-md5 (hashed from the parts' content digests, not
	// their ETag strings).
	PartsMD5Summary string `json:"partsMD5Summary,omitempty"`

	// StateEtag is the metadata etag of this record as last loaded; it is
	// used as the ifMatchEtag for the next commit/abort write, so two
	// concurrent finalizers race safely instead of double-applying.
	StateEtag string `json:"-"`
}

// MetadataClient is the subset of the metadata client the MPU manager
// needs — a local, consumer-defined interface, so pkg/mpu has no
// dependency on pkg/metadata or pkg/chain.
type MetadataClient interface {
	FindObject(ctx context.Context, key string) (*model.ObjectMetadata, error)
	FindChildren(ctx context.Context, directoryKey string) ([]model.ObjectMetadata, error)
	PutObject(ctx context.Context, obj *model.ObjectMetadata, ifMatchEtag string) (etag string, err error)
}

// Manager owns the MPU state machine.
type Manager struct {
	metadata MetadataClient
	cfg      Config
	newID    func() string
	now      func() time.Time
}

// New builds a Manager. newID and now default to uuid.NewV4 and time.Now
// when nil, letting tests inject deterministic values.
func New(metadata MetadataClient, cfg Config, newID func() string, now func() time.Time) *Manager {
	if newID == nil {
		newID = func() string { return uuid.NewV4().String() }
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{metadata: metadata, cfg: cfg.withDefaults(), newID: newID, now: now}
}

// stateKey is the metadata key an Upload's bookkeeping record lives at:
// the directory entry for the upload itself (spec.md §6's "GET .../state").
func stateKey(account, partsDirectory, id string) string {
	return "/" + account + "/uploads/" + partsDirectory + "/" + id
}

// Create validates and persists a new upload (spec.md §4.6 "Create").
func (m *Manager) Create(ctx context.Context, account, ownerUUID, objectPath string, headers map[string]string, contentLength int64, numCopies int) (up *Upload, err error) {
	defer mon.Task()(&ctx)(&err)

	if objectPath == "" || objectPath == "/" {
		return nil, apierrors.New(apierrors.CodeInvalidResource, "multipart upload target must not be the root directory")
	}
	for name := range headers {
		if _, bad := disallowedCreateHeaders[strings.ToLower(name)]; bad {
			return nil, invalidArgument("header " + name + " is only meaningful for conditional PUT, not multipart upload")
		}
	}
	if contentLength < -1 {
		return nil, apierrors.New(apierrors.CodeBadRequest, "content-length must be >= 0")
	}
	if numCopies < m.cfg.MinCopies || numCopies > m.cfg.MaxCopies {
		return nil, apierrors.New(apierrors.CodeInvalidDurabilityLevel, "durability-level out of range")
	}
	if cd, ok := headers["content-disposition"]; ok {
		if _, _, err := mime.ParseMediaType(cd); err != nil {
			return nil, apierrors.New(apierrors.CodeBadRequest, "content-disposition is not parseable")
		}
	}

	id := m.newID()
	partsDirectory := DerivePartsDirectory(id)

	up = &Upload{
		ID:               id,
		Account:          account,
		OwnerUUID:        ownerUUID,
		TargetObjectPath: objectPath,
		PartsDirectory:   partsDirectory,
		Headers:          headers,
		ContentLength:    contentLength,
		NumCopies:        numCopies,
		State:            StateCreated,
		CreationTimeMs:   m.now().UnixNano() / int64(time.Millisecond),
	}

	if _, err := m.save(ctx, up, ""); err != nil {
		return nil, err
	}
	return up, nil
}

// DerivePartsDirectory buckets an upload's parts under a prefix of the
// upload id itself (dashes removed), whose length of 1-4 characters is
// the value of the id's last hex digit mod 4, plus one, so uploads
// spread across many directories rather than all landing in one hot
// directory. It is a pure
// function of id, so callers that only have the id (the GET
// /:account/uploads/:id redirect route) can recompute it without a
// metadata lookup.
func DerivePartsDirectory(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	last := compact[len(compact)-1]
	prefixLen := (hexDigitValue(last) % 4) + 1
	return compact[:prefixLen]
}

func hexDigitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return 0
	}
}

// ValidatePartNum checks partNum against spec.md §4.6's MIN_PART_NUM/MAX_PART_NUM.
func ValidatePartNum(partNum int) error {
	if partNum < MinPartNum || partNum > MaxPartNum {
		return apierrors.New(apierrors.CodeMultipartUploadPartNum, "part number out of range")
	}
	return nil
}

// Load fetches an Upload's current state.
func (m *Manager) Load(ctx context.Context, account, partsDirectory, id string) (up *Upload, err error) {
	defer mon.Task()(&ctx)(&err)

	rec, err := m.metadata.FindObject(ctx, stateKey(account, partsDirectory, id))
	if err != nil {
		return nil, err
	}
	up, err = fromRecord(rec)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	return up, nil
}

// Commit finalizes an upload against an ordered list of part ETags
// (spec.md §4.6 "Finalize" / "Commit semantics").
func (m *Manager) Commit(ctx context.Context, up *Upload, etags []string) (computedMD5 string, err error) {
	defer mon.Task()(&ctx)(&err)

	switch up.State {
	case StateDoneAborted:
		return "", apierrors.New(apierrors.CodeInvalidMultipartUploadState, "upload was already aborted")
	case StateDoneCommitted:
		if sameParts(up.CommittedParts, etags) {
			return up.ComputedMD5, nil
		}
		return "", invalidArgument("upload already committed with a different part set")
	case StateCreated:
		// proceeds below
	default:
		return "", apierrors.New(apierrors.CodeInvalidMultipartUploadState, "upload is not in a committable state")
	}

	if len(etags) > MaxNumParts {
		return "", invalidArgument("too many parts")
	}
	seen := map[string]struct{}{}
	for _, etag := range etags {
		if strings.TrimSpace(etag) == "" {
			return "", invalidArgument("empty or malformed part ETag")
		}
		if _, dup := seen[etag]; dup {
			return "", invalidArgument("duplicate part ETag")
		}
		seen[etag] = struct{}{}
	}

	var (
		totalLength int64
		hasher      = md5.New() //nolint:gosec
	)

	if len(etags) == 0 {
		computedMD5 = emptyObjectMD5
	} else {
		byEtag, err := m.partsByEtag(ctx, up)
		if err != nil {
			return "", err
		}
		for i, etag := range etags {
			part, ok := byEtag[etag]
			if !ok {
				return "", invalidArgument("part ETag does not match any uploaded part")
			}
			isFinal := i == len(etags)-1
			if !isFinal && part.ContentLength < m.cfg.MinPartSize {
				return "", invalidArgument("non-final part is smaller than the minimum part size")
			}
			totalLength += part.ContentLength
			raw, decodeErr := decodeMD5(part.ContentMD5)
			if decodeErr != nil {
				return "", apierrors.Internal(decodeErr)
			}
			hasher.Write(raw)
		}
		computedMD5 = encodeMD5(hasher.Sum(nil))
	}

	// partsMD5Summary (spec.md §3 / testable property 7) hashes the part
	// ETag strings themselves, in submission order — distinct from
	// computedMD5, which hashes the parts' content-md5 digests.
	summaryHasher := md5.New() //nolint:gosec
	for _, etag := range etags {
		summaryHasher.Write([]byte(etag))
	}
	partsMD5Summary := encodeMD5(summaryHasher.Sum(nil))

	if up.ContentLength >= 0 && up.ContentLength != totalLength {
		return "", invalidArgument("sum of part sizes does not match the content-length given at create")
	}
	if up.ContentMD5 != "" && up.ContentMD5 != computedMD5 {
		return "", invalidArgument("composed object content-md5 does not match the value given at create")
	}

	finalObj := &model.ObjectMetadata{
		Key:             up.TargetObjectPath,
		Type:            "object",
		OwnerUUID:       up.OwnerUUID,
		ContentMD5:      computedMD5,
		ContentLength:   totalLength,
		Headers:         up.Headers,
		PartsMD5Summary: partsMD5Summary,
	}
	if _, err := m.metadata.PutObject(ctx, finalObj, ""); err != nil {
		return "", err
	}

	up.State = StateDoneCommitted
	up.CommittedParts = etags
	up.ComputedMD5 = computedMD5
	up.PartsMD5Summary = partsMD5Summary
	if _, err := m.save(ctx, up, up.StateEtag); err != nil {
		return "", err
	}
	return computedMD5, nil
}

// Abort cancels an upload (spec.md §4.6 "Abort semantics").
func (m *Manager) Abort(ctx context.Context, up *Upload) (err error) {
	defer mon.Task()(&ctx)(&err)

	switch up.State {
	case StateDoneAborted:
		return nil
	case StateDoneCommitted:
		return apierrors.New(apierrors.CodeInvalidMultipartUploadState, "upload was already committed")
	case StateCreated:
		up.State = StateDoneAborted
		_, err := m.save(ctx, up, up.StateEtag)
		return err
	default:
		return apierrors.New(apierrors.CodeInvalidMultipartUploadState, "upload is not in an abortable state")
	}
}

func (m *Manager) partsByEtag(ctx context.Context, up *Upload) (map[string]model.ObjectMetadata, error) {
	children, err := m.metadata.FindChildren(ctx, "/"+up.Account+"/uploads/"+up.PartsDirectory+"/"+up.ID)
	if err != nil {
		return nil, err
	}
	byEtag := make(map[string]model.ObjectMetadata, len(children))
	for _, child := range children {
		byEtag[child.Etag] = child
	}
	return byEtag, nil
}

func (m *Manager) save(ctx context.Context, up *Upload, ifMatchEtag string) (etag string, err error) {
	raw, err := json.Marshal(up)
	if err != nil {
		return "", apierrors.Internal(err)
	}
	rec := &model.ObjectMetadata{
		Key:       stateKey(up.Account, up.PartsDirectory, up.ID),
		Type:      "upload",
		OwnerUUID: up.OwnerUUID,
		Headers:   map[string]string{"x-upload-state": string(raw)},
	}
	etag, err = m.metadata.PutObject(ctx, rec, ifMatchEtag)
	if err != nil {
		return "", err
	}
	up.StateEtag = etag
	return etag, nil
}

func fromRecord(rec *model.ObjectMetadata) (*Upload, error) {
	raw, ok := rec.Headers["x-upload-state"]
	if !ok {
		return nil, invalidArgument("upload record missing state blob")
	}
	var up Upload
	if err := json.Unmarshal([]byte(raw), &up); err != nil {
		return nil, err
	}
	up.StateEtag = rec.Etag
	return &up, nil
}

func sameParts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func invalidArgument(msg string) error {
	return apierrors.New(apierrors.CodeMultipartUploadInvalidArgument, msg)
}

func md5b64(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec
	return encodeMD5(sum[:])
}

// DeleteOverrideAllowed implements the MPU namespace protection's
// administrative override (spec.md §4.6): only operators, and only with
// the query parameter's value exactly "true", may delete an MPU path.
func DeleteOverrideAllowed(account *model.Account, allowMpuDeletesQueryValue string) error {
	if !account.IsOperator {
		return apierrors.New(apierrors.CodeMethodNotAllowed, "DELETE is not allowed on multipart upload paths")
	}
	if allowMpuDeletesQueryValue != "true" {
		return apierrors.New(apierrors.CodeUnprocessableEntity, "allowMpuDeletes must be exactly \"true\"")
	}
	return nil
}

func encodeMD5(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}

func decodeMD5(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
