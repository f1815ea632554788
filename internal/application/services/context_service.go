package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/repositories"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/validation"
)

const referenceCachePrefix = "refctx:"

// ContextService turns extracted keywords into reference context lines
type ContextService struct {
	refs  repositories.ReferenceCodeRepository
	cache providers.CacheProvider
	ttl   time.Duration
	limit int
}

// NewContextService creates a context service. cache may be nil.
func NewContextService(refs repositories.ReferenceCodeRepository, cache providers.CacheProvider, ttl time.Duration, limit int) *ContextService {
	if limit <= 0 {
		limit = 20
	}
	return &ContextService{refs: refs, cache: cache, ttl: ttl, limit: limit}
}

// Retrieve returns formatted reference context for keywords. Cache failures
// fall back to the database; an empty keyword set yields no context.
func (s *ContextService) Retrieve(ctx context.Context, keywords []string) (string, error) {
	if len(keywords) == 0 || s.refs == nil {
		return "", nil
	}

	key := cacheKey(keywords)
	if s.cache != nil {
		data, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var codes []entities.ReferenceCode
			if jsonErr := json.Unmarshal(data, &codes); jsonErr == nil {
				return validation.FormatReferenceContext(codes), nil
			}
			log.Warn().Str("key", key).Msg("discarding corrupt reference cache entry")
		case !errors.Is(err, providers.ErrCacheMiss):
			log.Warn().Err(err).Msg("reference cache read failed, querying database")
		}
	}

	codes, err := s.refs.SearchByKeywords(ctx, keywords, s.limit)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if data, err := json.Marshal(codes); err == nil {
			if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
				log.Warn().Err(err).Msg("reference cache write failed")
			}
		}
	}
	return validation.FormatReferenceContext(codes), nil
}

func cacheKey(keywords []string) string {
	sorted := append([]string(nil), keywords...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return referenceCachePrefix + hex.EncodeToString(sum[:16])
}
