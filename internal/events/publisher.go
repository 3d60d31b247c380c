// Package events は記録済みオーバーラップスナップショットをKafkaへ配信する。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hitoshi/cleanroom/internal/model"
	"github.com/hitoshi/cleanroom/internal/overlap"
)

// MessageWriter はkafka.Writerのうち配信に必要な操作を抽象化する。
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SnapshotEvent はスナップショット記録イベントのペイロード。
type SnapshotEvent struct {
	SnapshotID     int64     `json:"snapshot_id"`
	CapturedAt     time.Time `json:"captured_at"`
	CountA         int       `json:"count_a"`
	CountB         int       `json:"count_b"`
	CountOverlap   int       `json:"count_overlap"`
	PercentOverlap float64   `json:"percent_overlap"`
}

// NewSnapshotEvent はスナップショットからイベントペイロードを組み立てる。
func NewSnapshotEvent(s *model.OverlapSnapshot) SnapshotEvent {
	return SnapshotEvent{
		SnapshotID:     s.ID,
		CapturedAt:     s.CapturedAt,
		CountA:         s.CountA,
		CountB:         s.CountB,
		CountOverlap:   s.CountOverlap,
		PercentOverlap: overlap.PercentOverlap(s.CountOverlap, s.UnionCount()),
	}
}

// KafkaPublisher はスナップショットイベントをKafkaトピックへ同期的に書き込む。
type KafkaPublisher struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewKafkaWriter は指定ブローカー・トピック向けのkafka.Writerを生成する。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
}

// NewKafkaPublisher はKafkaPublisherを生成する。
func NewKafkaPublisher(writer MessageWriter, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}
}

// PublishSnapshot はスナップショットをJSONにシリアライズして配信する。
// キーには取得時刻を使用し、同一時刻のイベントが同じパーティションに入るようにする。
func (p *KafkaPublisher) PublishSnapshot(ctx context.Context, snapshot *model.OverlapSnapshot) error {
	value, err := json.Marshal(NewSnapshotEvent(snapshot))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(snapshot.CapturedAt.UTC().Format(time.RFC3339Nano)),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish snapshot event: %w", err)
	}

	p.logger.Debug("snapshot event published",
		slog.Int64("snapshot_id", snapshot.ID),
		slog.Int("value_size", len(value)),
	)
	return nil
}

// Close は未送信のメッセージをフラッシュしてライターを閉じる。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
