package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medshare/internal/disclosure/models"
	"medshare/internal/sentinel"
)

const (
	sessionKeyPrefix   = "disclosure:session:"
	sessionIDKeyPrefix = "disclosure:session_id:"

	// maxTxRetries bounds optimistic transaction retries under contention.
	maxTxRetries = 16
	scanBatch    = 100
)

// sessionJSON is the stored representation. Timestamps are unix nanos.
type sessionJSON struct {
	ID            string   `json:"id"`
	SubjectID     string   `json:"subject_id"`
	Token         string   `json:"token"`
	Categories    []string `json:"categories"`
	Purpose       string   `json:"purpose"`
	Status        string   `json:"status"`
	CreatedAt     int64    `json:"created_at"`
	ExpiresAt     int64    `json:"expires_at"`
	ConsumedAt    *int64   `json:"consumed_at,omitempty"`
	ConsumedBy    string   `json:"consumed_by,omitempty"`
	SealedPayload []byte   `json:"sealed_payload,omitempty"`
}

func sessionToJSON(s *models.Session) *sessionJSON {
	j := &sessionJSON{
		ID:            s.ID,
		SubjectID:     s.SubjectID,
		Token:         s.Token,
		Categories:    s.Categories,
		Purpose:       s.Purpose,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt.UnixNano(),
		ExpiresAt:     s.ExpiresAt.UnixNano(),
		ConsumedBy:    s.ConsumedBy,
		SealedPayload: s.SealedPayload,
	}
	if s.ConsumedAt != nil {
		ts := s.ConsumedAt.UnixNano()
		j.ConsumedAt = &ts
	}
	return j
}

func sessionFromJSON(j *sessionJSON) (*models.Session, error) {
	status := models.Status(j.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("unknown session status %q", j.Status)
	}
	s := &models.Session{
		ID:            j.ID,
		SubjectID:     j.SubjectID,
		Token:         j.Token,
		Categories:    j.Categories,
		Purpose:       j.Purpose,
		Status:        status,
		CreatedAt:     time.Unix(0, j.CreatedAt).UTC(),
		ExpiresAt:     time.Unix(0, j.ExpiresAt).UTC(),
		ConsumedBy:    j.ConsumedBy,
		SealedPayload: j.SealedPayload,
	}
	if j.ConsumedAt != nil {
		t := time.Unix(0, *j.ConsumedAt).UTC()
		s.ConsumedAt = &t
	}
	return s, nil
}

func decodeSession(data string) (*models.Session, error) {
	var j sessionJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return sessionFromJSON(&j)
}

// RedisStore persists sessions in Redis so any instance can consume a token
// issued by another. Per-token atomicity comes from WATCH/MULTI on the
// session key. Keys carry no TTL: the store never consults a clock, and
// Reclaim only strips payloads.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}

func sessionIDKey(sessionID string) string {
	return sessionIDKeyPrefix + sessionID
}

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	data, err := json.Marshal(sessionToJSON(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := sessionKey(session.Token)
	idKey := sessionIDKey(session.ID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key, idKey).Result()
		if err != nil {
			return fmt.Errorf("check session exists: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("session token or id taken: %w", sentinel.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.Set(ctx, idKey, session.Token, 0)
			return nil
		})
		return err
	}, key, idKey)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("concurrent session create: %w", sentinel.ErrConflict)
	}
	if err != nil && !errors.Is(err, sentinel.ErrConflict) {
		return fmt.Errorf("create session: %w", err)
	}
	return err
}

func (s *RedisStore) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session by token: %w", err)
	}
	return decodeSession(data)
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID string) (*models.Session, error) {
	token, err := s.client.Get(ctx, sessionIDKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return s.FindByToken(ctx, token)
}

// Update applies fn under an optimistic lock on the session key, retrying
// when another writer commits first. fn may run more than once.
func (s *RedisStore) Update(ctx context.Context, token string, fn UpdateFunc) (*models.Session, error) {
	key := sessionKey(token)
	var result *models.Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get session for update: %w", err)
		}
		session, err := decodeSession(data)
		if err != nil {
			return err
		}

		changed, fnErr := fn(session)
		if changed {
			newData, err := json.Marshal(sessionToJSON(session))
			if err != nil {
				return fmt.Errorf("marshal session: %w", err)
			}
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, newData, 0)
				return nil
			}); err != nil {
				return err
			}
		}
		if fnErr != nil {
			return fnErr
		}
		result = session
		return nil
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("update session: too much contention: %w", sentinel.ErrConflict)
}

// Reclaim expires elapsed ACTIVE sessions and drops payloads of terminal
// ones. Nothing is deleted.
func (s *RedisStore) Reclaim(ctx context.Context, now time.Time) (models.ReclaimResult, error) {
	var res models.ReclaimResult
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return res, fmt.Errorf("scan sessions: %w", err)
		}
		for _, key := range keys {
			var expired, purged bool
			_, err := s.Update(ctx, key[len(sessionKeyPrefix):], func(session *models.Session) (bool, error) {
				expired = session.Elapsed(now) && session.Expire()
				purged = session.PurgePayload()
				return expired || purged, nil
			})
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return res, err
			}
			if expired {
				res.Expired++
			}
			if purged {
				res.Purged++
			}
		}
		cursor = next
		if cursor == 0 {
			return res, nil
		}
	}
}
