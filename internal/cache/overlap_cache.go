package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/cleanroom/internal/model"
)

// overlapKey はオーバーラップ結果を保存するキー。
// 比較対象のセグメントは固定のため、キーは1つだけ使用する。
const overlapKey = "cleanroom:overlap:current"

// OverlapService はオーバーラップ計算サービスのインターフェース。
type OverlapService interface {
	ComputeOverlap(ctx context.Context) (model.OverlapResult, error)
	RefreshAndRecord(ctx context.Context) (model.OverlapResult, error)
	GetHistory(ctx context.Context) ([]*model.OverlapSnapshot, error)
}

// HitRecorder はキャッシュヒット率のメトリクス記録インターフェース。
type HitRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// cachedResult はキャッシュに保存する計算結果のJSON表現。
type cachedResult struct {
	OverlapCount   int     `json:"overlap_count"`
	TotalA         int     `json:"total_a"`
	TotalB         int     `json:"total_b"`
	PercentOverlap float64 `json:"percent_overlap"`
}

// CachedService はOverlapServiceをラップし、ComputeOverlapの結果をキャッシュする。
// RefreshAndRecordの後はキャッシュを無効化する。
type CachedService struct {
	next   OverlapService
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger

	// mu はgenerationの確認とキャッシュへの書き込み・削除を直列化する。
	mu sync.Mutex
	// generation は無効化のたびに増える。計算中に無効化された結果は書き込まない。
	generation uint64

	// Metrics が設定されている場合、ヒット・ミスを記録する。
	Metrics HitRecorder
}

// NewCachedService はCachedServiceを生成する。
func NewCachedService(next OverlapService, store Store, ttl time.Duration, logger *slog.Logger) *CachedService {
	return &CachedService{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// ComputeOverlap はキャッシュ済みの結果があればそれを返し、なければ計算して保存する。
// 同時に発生したミスはsingleflightで1回の計算にまとめる。
// 共有の計算は呼び出し元のキャンセルに影響されず、キャンセルした呼び出し元だけが先に戻る。
func (c *CachedService) ComputeOverlap(ctx context.Context) (model.OverlapResult, error) {
	if result, ok := c.get(ctx); ok {
		c.recordHit(true)
		return result, nil
	}
	c.recordHit(false)

	ch := c.group.DoChan(overlapKey, func() (any, error) {
		sharedCtx := context.WithoutCancel(ctx)
		gen := c.currentGeneration()
		result, err := c.next.ComputeOverlap(sharedCtx)
		if err != nil {
			return nil, err
		}
		c.setIfCurrent(sharedCtx, gen, result)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return model.OverlapResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.OverlapResult{}, res.Err
		}
		return res.Val.(model.OverlapResult), nil
	}
}

// RefreshAndRecord は下位サービスに委譲し、結果にかかわらずキャッシュを無効化する。
// スナップショットの追記に失敗しても取り込み済みの識別子はコミットされているため。
func (c *CachedService) RefreshAndRecord(ctx context.Context) (model.OverlapResult, error) {
	result, err := c.next.RefreshAndRecord(ctx)
	c.Invalidate(context.WithoutCancel(ctx))
	return result, err
}

// GetHistory は下位サービスにそのまま委譲する。
func (c *CachedService) GetHistory(ctx context.Context) ([]*model.OverlapSnapshot, error) {
	return c.next.GetHistory(ctx)
}

// Invalidate はキャッシュ済みの結果を削除する。失敗はログに留める。
// 実行中の計算の結果は、この呼び出しより前に読み出したものとして破棄される。
func (c *CachedService) Invalidate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if err := c.store.Del(ctx, overlapKey); err != nil {
		c.logger.Warn("failed to invalidate overlap cache", slog.String("error", err.Error()))
	}
}

func (c *CachedService) get(ctx context.Context) (model.OverlapResult, bool) {
	data, err := c.store.Get(ctx, overlapKey)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("overlap cache get failed", slog.String("error", err.Error()))
		}
		return model.OverlapResult{}, false
	}

	var cached cachedResult
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		c.logger.Warn("overlap cache entry is corrupt", slog.String("error", err.Error()))
		return model.OverlapResult{}, false
	}
	return model.OverlapResult{
		OverlapCount:   cached.OverlapCount,
		TotalA:         cached.TotalA,
		TotalB:         cached.TotalB,
		PercentOverlap: cached.PercentOverlap,
	}, true
}

func (c *CachedService) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// setIfCurrent は計算開始後に無効化されていない場合のみ結果を保存する。
func (c *CachedService) setIfCurrent(ctx context.Context, gen uint64, result model.OverlapResult) {
	data, err := json.Marshal(cachedResult{
		OverlapCount:   result.OverlapCount,
		TotalA:         result.TotalA,
		TotalB:         result.TotalB,
		PercentOverlap: result.PercentOverlap,
	})
	if err != nil {
		c.logger.Warn("overlap cache marshal failed", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		c.logger.Debug("discarding overlap result computed before invalidation")
		return
	}
	if err := c.store.Set(ctx, overlapKey, string(data), c.ttl); err != nil {
		c.logger.Warn("overlap cache set failed", slog.String("error", err.Error()))
	}
}

func (c *CachedService) recordHit(hit bool) {
	if c.Metrics == nil {
		return
	}
	if hit {
		c.Metrics.RecordCacheHit()
	} else {
		c.Metrics.RecordCacheMiss()
	}
}
