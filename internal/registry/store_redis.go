package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	platformredis "velos/internal/platform/redis"
	"velos/pkg/platform/sentinel"
)

const revocationKeyPrefix = "velos:revocation:"

// RedisRevocationStore keeps the revocation list in Redis so multiple
// instances agree on revoked credentials. Records are written with SETNX;
// a concurrent revocation of the same credential keeps the first record.
type RedisRevocationStore struct {
	client *platformredis.Client
}

func NewRedisRevocationStore(client *platformredis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func (s *RedisRevocationStore) Put(ctx context.Context, rec RevocationRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal revocation record: %w", err)
	}
	if err := s.client.SetNX(ctx, revocationKeyPrefix+rec.CredentialID, payload, 0).Err(); err != nil {
		return fmt.Errorf("store revocation record: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) Get(ctx context.Context, credentialID string) (RevocationRecord, error) {
	payload, err := s.client.Get(ctx, revocationKeyPrefix+credentialID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return RevocationRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return RevocationRecord{}, fmt.Errorf("load revocation record: %w", err)
	}

	var rec RevocationRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return RevocationRecord{}, fmt.Errorf("unmarshal revocation record: %w", err)
	}
	return rec, nil
}
