package schedule

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/usecase/planning"
)

// Pools - подписи, разделённые на платные и бесплатные.
type Pools struct {
	PPV  []domain.Caption
	Bump []domain.Caption
}

// Empty сообщает, что подписей нет совсем.
func (p Pools) Empty() bool {
	return len(p.PPV) == 0 && len(p.Bump) == 0
}

// Allocator запрашивает подписи у внешнего сервиса и готовит пулы для планировщика.
type Allocator struct {
	selector domain.CaptionSelector
	log      zerolog.Logger
}

// NewAllocator создаёт распределитель подписей.
func NewAllocator(selector domain.CaptionSelector, logger zerolog.Logger) *Allocator {
	return &Allocator{selector: selector, log: logger}
}

// Allocate запрашивает PPV по уровням и bump-подписи, затем делит их на пулы.
func (a *Allocator) Allocate(ctx context.Context, creatorID string, segment domain.BehavioralSegment, split planning.TierSplit, bumpCount int) (Pools, error) {
	query := domain.CaptionQuery{
		CreatorID:  creatorID,
		Segment:    segment,
		NumBudget:  split.Budget,
		NumMid:     split.Mid,
		NumPremium: split.Premium,
		NumBump:    bumpCount,
	}
	captions, err := a.selector.SelectCaptions(ctx, query)
	if err != nil {
		return Pools{}, fmt.Errorf("выбор подписей: %w", err)
	}
	pools := SplitPools(captions)
	if pools.Empty() {
		return Pools{}, fmt.Errorf("автор %s: %w", creatorID, domain.ErrNoCandidates)
	}
	a.log.Debug().
		Str("creator", creatorID).
		Int("requested_ppv", split.Total()).
		Int("requested_bump", bumpCount).
		Int("ppv", len(pools.PPV)).
		Int("bump", len(pools.Bump)).
		Msg("allocator: подписи получены")
	return pools, nil
}

// SplitPools убирает повторяющиеся подписи и делит их по ценовому уровню.
// Порядок сервиса выбора сохраняется.
func SplitPools(captions []domain.Caption) Pools {
	seen := make(map[int64]struct{}, len(captions))
	var pools Pools
	for _, c := range captions {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		if domain.IsBumpTier(c.PriceTier) {
			pools.Bump = append(pools.Bump, c)
			continue
		}
		pools.PPV = append(pools.PPV, c)
	}
	return pools
}
