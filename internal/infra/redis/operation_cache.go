package redis

import (
	"context"
	"encoding/json"
	"time"

	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/repository"
	"weekly-snippets/internal/infra/metrics"

	"github.com/rs/zerolog"
)

type kv interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// CachedOperationRepo serves terminal operations from Redis. Terminal rows
// never change again, so entries are only written once and simply expire.
type CachedOperationRepo struct {
	repository.OperationRepository
	cache  kv
	ttl    time.Duration
	logger *zerolog.Logger
}

var _ repository.OperationRepository = (*CachedOperationRepo)(nil)

func NewCachedOperationRepo(inner repository.OperationRepository, cache kv, ttl time.Duration, logger *zerolog.Logger) *CachedOperationRepo {
	l := logger.With().Str("component", "operation_cache").Logger()
	return &CachedOperationRepo{OperationRepository: inner, cache: cache, ttl: ttl, logger: &l}
}

func operationKey(id string) string { return "operation:" + id }

func (r *CachedOperationRepo) FindByIDForOwner(ctx context.Context, ownerID, id string) (*model.Operation, error) {
	if raw, err := r.cache.Get(ctx, operationKey(id)); err == nil {
		var op model.Operation
		if jerr := json.Unmarshal([]byte(raw), &op); jerr == nil && op.OwnerID == ownerID {
			metrics.IncCacheRequest("operation", "hit")
			if string(op.Result) == "null" {
				op.Result = nil
			}
			return &op, nil
		}
	} else if !IsNil(err) {
		r.logger.Warn().Err(err).Str("operation_id", id).Msg("cache read failed")
	}
	metrics.IncCacheRequest("operation", "miss")

	op, err := r.OperationRepository.FindByIDForOwner(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if op.Status.IsTerminal() {
		if data, jerr := json.Marshal(op); jerr == nil {
			if serr := r.cache.Set(ctx, operationKey(id), data, r.ttl); serr != nil {
				r.logger.Warn().Err(serr).Str("operation_id", id).Msg("cache write failed")
			}
		}
	}
	return op, nil
}
