package medauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	requestKeyPrefix      = "agr"
	doctorIndexKeyPrefix  = "agdx"
	patientIndexKeyPrefix = "agpx"
	permissionKeyPrefix   = "agp"
	grantIndexKeyPrefix   = "agpd"
)

var (
	errGrantRequestNotFound = errors.New("access request not found")
	errGrantNotPending      = errors.New("access request not pending")
	errGrantWrongPatient    = errors.New("access request patient mismatch")
	errGrantOTPMismatch     = errors.New("consent otp mismatch")
	errGrantOTPExpired      = errors.New("consent otp expired")
	errGrantBackend         = errors.New("access grant backend unavailable")
)

// accessRequestRecord is the stored form of an [AccessRequest]. The consent
// OTP lives only here; it never appears on the public type or in audit
// output.
type accessRequestRecord struct {
	AccessRequest
	OTPCode   string    `json:"otp_code,omitempty"`
	OTPExpiry time.Time `json:"otp_expiry,omitzero"`
}

// accessGrantStore owns request records and the per-(patient,doctor)
// permission history. The newest permission is the head of a Redis list;
// checks read only the head, so a revoked or expired head means no access
// even when older grants exist below it.
type accessGrantStore struct {
	redis     *redis.Client
	retention time.Duration
}

func newAccessGrantStore(redisClient *redis.Client, cfg AccessConfig) *accessGrantStore {
	return &accessGrantStore{
		redis:     redisClient,
		retention: cfg.RequestRetention,
	}
}

func (s *accessGrantStore) requestKey(id string) string {
	return requestKeyPrefix + ":" + id
}

func (s *accessGrantStore) doctorIndexKey(doctorID string) string {
	return doctorIndexKeyPrefix + ":" + doctorID
}

func (s *accessGrantStore) patientIndexKey(patientID string) string {
	return patientIndexKeyPrefix + ":" + patientID
}

func (s *accessGrantStore) permissionKey(patientID, doctorID string) string {
	return permissionKeyPrefix + ":" + patientID + ":" + doctorID
}

func (s *accessGrantStore) grantIndexKey(patientID string) string {
	return grantIndexKeyPrefix + ":" + patientID
}

// CreateRequest persists a new request and registers it in both listing
// indexes.
func (s *accessGrantStore) CreateRequest(ctx context.Context, record *accessRequestRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", errGrantBackend, err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.requestKey(record.ID), encoded, s.retention)
	pipe.SAdd(ctx, s.doctorIndexKey(record.DoctorID), record.ID)
	pipe.Expire(ctx, s.doctorIndexKey(record.DoctorID), s.retention)
	pipe.SAdd(ctx, s.patientIndexKey(record.PatientID), record.ID)
	pipe.Expire(ctx, s.patientIndexKey(record.PatientID), s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", errGrantBackend, err)
	}
	return nil
}

// GetRequest loads a request record by ID.
func (s *accessGrantStore) GetRequest(ctx context.Context, requestID string) (*accessRequestRecord, error) {
	data, err := s.redis.Get(ctx, s.requestKey(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errGrantRequestNotFound
		}
		return nil, fmt.Errorf("%w: %v", errGrantBackend, err)
	}

	record := &accessRequestRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("%w: %v", errGrantBackend, err)
	}
	return record, nil
}

// ApproveRequest validates the consent OTP and, in one optimistic
// transaction, transitions the request to APPROVED and pushes the new
// permission to the head of the pair's history. Only one concurrent caller
// can win; the rest retry against the updated record and fail the pending
// check.
func (s *accessGrantStore) ApproveRequest(
	ctx context.Context,
	requestID string,
	patientID string,
	otp string,
	permission *AccessPermission,
	now time.Time,
) (*accessRequestRecord, error) {
	const maxRetries = 4
	key := s.requestKey(requestID)

	for i := 0; i < maxRetries; i++ {
		var approved *accessRequestRecord
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record := &accessRequestRecord{}
			if err := json.Unmarshal(data, record); err != nil {
				return fmt.Errorf("%w: %v", errGrantBackend, err)
			}
			if record.PatientID != patientID {
				return errGrantWrongPatient
			}
			if record.Status != RequestPending {
				return errGrantNotPending
			}
			if !record.OTPExpiry.IsZero() && now.After(record.OTPExpiry) {
				return errGrantOTPExpired
			}
			if subtle.ConstantTimeCompare([]byte(record.OTPCode), []byte(otp)) != 1 {
				return errGrantOTPMismatch
			}

			record.Status = RequestApproved
			record.GrantedAt = now
			record.ExpiresAt = permission.ValidUntil
			record.OTPCode = ""
			record.OTPExpiry = time.Time{}

			// The caller only knows the doctor after the record loads;
			// the stored grant must carry it.
			permission.DoctorID = record.DoctorID

			updated, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("%w: %v", errGrantBackend, err)
			}
			encodedPerm, err := json.Marshal(permission)
			if err != nil {
				return fmt.Errorf("%w: %v", errGrantBackend, err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, s.retention)
				pipe.LPush(ctx, s.permissionKey(record.PatientID, record.DoctorID), encodedPerm)
				pipe.Expire(ctx, s.permissionKey(record.PatientID, record.DoctorID), s.retention)
				pipe.SAdd(ctx, s.grantIndexKey(record.PatientID), record.DoctorID)
				pipe.Expire(ctx, s.grantIndexKey(record.PatientID), s.retention)
				return nil
			})
			if err != nil {
				return err
			}
			approved = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, errGrantRequestNotFound
			}
			if errors.Is(err, errGrantWrongPatient) ||
				errors.Is(err, errGrantNotPending) ||
				errors.Is(err, errGrantOTPExpired) ||
				errors.Is(err, errGrantOTPMismatch) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", errGrantBackend, err)
		}
		return approved, nil
	}

	return nil, errGrantRequestNotFound
}

// DenyRequest transitions a pending request to DENIED. Terminal: a denied
// request never becomes approvable again.
func (s *accessGrantStore) DenyRequest(ctx context.Context, requestID, patientID string, now time.Time) error {
	const maxRetries = 4
	key := s.requestKey(requestID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record := &accessRequestRecord{}
			if err := json.Unmarshal(data, record); err != nil {
				return fmt.Errorf("%w: %v", errGrantBackend, err)
			}
			if record.PatientID != patientID {
				return errGrantWrongPatient
			}
			if record.Status != RequestPending {
				return errGrantNotPending
			}

			record.Status = RequestDenied
			record.OTPCode = ""
			record.OTPExpiry = time.Time{}

			updated, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("%w: %v", errGrantBackend, err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, s.retention)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errGrantRequestNotFound
			}
			if errors.Is(err, errGrantWrongPatient) || errors.Is(err, errGrantNotPending) {
				return err
			}
			return fmt.Errorf("%w: %v", errGrantBackend, err)
		}
		return nil
	}

	return errGrantRequestNotFound
}

// PushPermission inserts a permission at the head of the pair's history
// without a consent request (emergency path).
func (s *accessGrantStore) PushPermission(ctx context.Context, permission *AccessPermission) error {
	encoded, err := json.Marshal(permission)
	if err != nil {
		return fmt.Errorf("%w: %v", errGrantBackend, err)
	}

	pipe := s.redis.TxPipeline()
	pipe.LPush(ctx, s.permissionKey(permission.PatientID, permission.DoctorID), encoded)
	pipe.Expire(ctx, s.permissionKey(permission.PatientID, permission.DoctorID), s.retention)
	pipe.SAdd(ctx, s.grantIndexKey(permission.PatientID), permission.DoctorID)
	pipe.Expire(ctx, s.grantIndexKey(permission.PatientID), s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", errGrantBackend, err)
	}
	return nil
}

// HeadPermission returns the newest permission for the pair, or nil when
// the pair has no history at all.
func (s *accessGrantStore) HeadPermission(ctx context.Context, patientID, doctorID string) (*AccessPermission, error) {
	data, err := s.redis.LIndex(ctx, s.permissionKey(patientID, doctorID), 0).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", errGrantBackend, err)
	}

	permission := &AccessPermission{}
	if err := json.Unmarshal([]byte(data), permission); err != nil {
		return nil, fmt.Errorf("%w: %v", errGrantBackend, err)
	}
	return permission, nil
}

// RevokeHead flags the newest permission for the pair as revoked. The flag
// is one-way; revoking an already revoked or absent permission reports
// whether anything changed.
func (s *accessGrantStore) RevokeHead(ctx context.Context, patientID, doctorID string) (bool, error) {
	const maxRetries = 4
	key := s.permissionKey(patientID, doctorID)

	for i := 0; i < maxRetries; i++ {
		var changed bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.LIndex(ctx, key, 0).Result()
			if err != nil {
				return err
			}

			permission := &AccessPermission{}
			if err := json.Unmarshal([]byte(data), permission); err != nil {
				return fmt.Errorf("%w: %v", errGrantBackend, err)
			}
			if permission.Revoked {
				return nil
			}
			permission.Revoked = true

			updated, err := json.Marshal(permission)
			if err != nil {
				return fmt.Errorf("%w: %v", errGrantBackend, err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LSet(ctx, key, 0, updated)
				return nil
			})
			if err != nil {
				return err
			}
			changed = true
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, nil
			}
			return false, fmt.Errorf("%w: %v", errGrantBackend, err)
		}
		return changed, nil
	}

	return false, nil
}

// RequestsForDoctor loads every request raised by the doctor.
func (s *accessGrantStore) RequestsForDoctor(ctx context.Context, doctorID string) ([]*accessRequestRecord, error) {
	return s.requestsByIndex(ctx, s.doctorIndexKey(doctorID))
}

// RequestsForPatient loads every request targeting the patient.
func (s *accessGrantStore) RequestsForPatient(ctx context.Context, patientID string) ([]*accessRequestRecord, error) {
	return s.requestsByIndex(ctx, s.patientIndexKey(patientID))
}

func (s *accessGrantStore) requestsByIndex(ctx context.Context, indexKey string) ([]*accessRequestRecord, error) {
	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errGrantBackend, err)
	}

	records := make([]*accessRequestRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.GetRequest(ctx, id)
		if err != nil {
			if errors.Is(err, errGrantRequestNotFound) {
				// Record aged out of retention; the index entry is stale.
				continue
			}
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// GrantsForPatient returns the newest permission for every doctor that ever
// held one against the patient.
func (s *accessGrantStore) GrantsForPatient(ctx context.Context, patientID string) ([]AccessPermission, error) {
	doctorIDs, err := s.redis.SMembers(ctx, s.grantIndexKey(patientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errGrantBackend, err)
	}

	grants := make([]AccessPermission, 0, len(doctorIDs))
	for _, doctorID := range doctorIDs {
		head, err := s.HeadPermission(ctx, patientID, doctorID)
		if err != nil {
			return nil, err
		}
		if head == nil {
			continue
		}
		grants = append(grants, *head)
	}
	return grants, nil
}
