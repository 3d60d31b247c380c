// Package ingest はセグメントA・Bへ識別子を取り込むインジェスト処理を提供する。
//
// Generator はデモ・テスト用の合成データを生成する。
// セグメントAに追加した識別子の約半数を同じ識別子でセグメントBにも追加し、
// 残りは別のランダムな識別子をセグメントBに追加することでオーバーラップを作る。
package ingest

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/hitoshi/cleanroom/internal/hasher"
	"github.com/hitoshi/cleanroom/internal/model"
)

// DefaultAttributeTags は合成データに付与する興味カテゴリ。
var DefaultAttributeTags = []string{"sports", "tech", "music", "finance", "health"}

// DefaultBatchSize は1回のインジェストで生成するペア数のデフォルト値。
const DefaultBatchSize = 10

const (
	minUserNumber = 1000
	maxUserNumber = 9999
	// sharedRatio はセグメントBにも同じ識別子を追加する確率。
	sharedRatio = 0.5
)

// Generator はランダムな識別子レコードのバッチを生成する。
// 内部の乱数源を保護するため、並行呼び出しに対して安全。
type Generator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	batchSize int
	tags      []string
}

// NewGenerator はGeneratorを生成する。
// rngがnilの場合は時刻ベースのシードを使用し、batchSizeが0以下の場合はDefaultBatchSizeを使用する。
func NewGenerator(rng *rand.Rand, batchSize int) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Generator{
		rng:       rng,
		batchSize: batchSize,
		tags:      DefaultAttributeTags,
	}
}

// BatchSize は1バッチあたりのペア数を返す。
func (g *Generator) BatchSize() int {
	return g.batchSize
}

// Generate はセグメントA・Bに追加するレコードをそれぞれbatchSize件ずつ生成する。
func (g *Generator) Generate() (a, b []*model.IdentifierRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()

	a = make([]*model.IdentifierRecord, 0, g.batchSize)
	b = make([]*model.IdentifierRecord, 0, g.batchSize)

	for i := 0; i < g.batchSize; i++ {
		email := g.randomEmail()
		tag := g.tags[g.rng.IntN(len(g.tags))]

		rec := g.newRecord(email, tag)
		a = append(a, rec)

		if g.rng.Float64() < sharedRatio {
			shared := *rec
			b = append(b, &shared)
		} else {
			b = append(b, g.newRecord(g.randomEmail(), tag))
		}
	}

	return a, b
}

func (g *Generator) randomEmail() string {
	n := minUserNumber + g.rng.IntN(maxUserNumber-minUserNumber+1)
	return fmt.Sprintf("user%d@example.com", n)
}

func (g *Generator) newRecord(raw, tag string) *model.IdentifierRecord {
	return &model.IdentifierRecord{
		RawIdentifier:    raw,
		HashedIdentifier: hasher.HashIdentifier(raw),
		AttributeTag:     tag,
	}
}
