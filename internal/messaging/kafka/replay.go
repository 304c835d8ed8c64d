package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// HeaderReplayedFrom помечает событие, возвращённое из DLQ.
const HeaderReplayedFrom = "x-replayed-from"

// ReplayConfig описывает один прогон переотправки DLQ.
type ReplayConfig struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

// DefaultReplayConfig возвращает dry-run по стандартным топикам.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		SourceTopic: TopicDeadLetterQueue,
		TargetTopic: TopicOrderEvents,
		Limit:       100,
		IdleTimeout: 2 * time.Second,
	}
}

// Validate проверяет параметры прогона.
func (c ReplayConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SourceTopic) == "" {
		errs = append(errs, errors.New("source topic is required"))
	}
	if strings.TrimSpace(c.TargetTopic) == "" {
		errs = append(errs, errors.New("target topic is required"))
	}
	if c.SourceTopic == c.TargetTopic && c.SourceTopic != "" {
		errs = append(errs, errors.New("source and target topics must differ"))
	}
	if c.Limit <= 0 {
		errs = append(errs, errors.New("limit must be > 0"))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, errors.New("idle timeout must be > 0"))
	}
	return errors.Join(errs...)
}

type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

// OffsetReader — часть sarama.Client, нужная для определения границ партиций.
type OffsetReader interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

// PartitionConsumer покрывает используемую часть sarama.PartitionConsumer.
type PartitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type PartitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error)
}

type saramaPartitions struct {
	consumer sarama.Consumer
}

func (s saramaPartitions) ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

// Replayer читает DLQ и возвращает события в основной топик.
// Без producer работает только в режиме dry-run.
type Replayer struct {
	offsets  OffsetReader
	consumer PartitionSource
	producer *Producer
	logger   *log.Entry
	closers  []func() error
}

// NewReplayer подключается к брокерам. Producer создаётся только для execute.
func NewReplayer(brokers []string, execute bool, logger *log.Entry) (*Replayer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}

	config := NewConfig()
	config.Consumer.Return.Errors = true
	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	var producer *Producer
	if execute {
		if producer, err = NewProducer(brokers, logger); err != nil {
			_ = consumer.Close()
			_ = client.Close()
			return nil, err
		}
	}

	r := NewReplayerFrom(client, saramaPartitions{consumer: consumer}, producer, logger)
	r.closers = append(r.closers, consumer.Close, client.Close)
	if producer != nil {
		r.closers = append([]func() error{producer.Close}, r.closers...)
	}
	return r, nil
}

// NewReplayerFrom собирает Replayer из готовых зависимостей (в тестах заглушки).
func NewReplayerFrom(offsets OffsetReader, consumer PartitionSource, producer *Producer, logger *log.Entry) *Replayer {
	if logger == nil {
		logger = log.WithField("component", "dlq-replay")
	}
	return &Replayer{offsets: offsets, consumer: consumer, producer: producer, logger: logger}
}

// Close освобождает соединения, созданные NewReplayer.
func (r *Replayer) Close() error {
	var errs []error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Run просматривает до cfg.Limit сообщений DLQ по всем партициям.
// В dry-run кандидаты только логируются.
func (r *Replayer) Run(ctx context.Context, cfg ReplayConfig) (ReplayStats, error) {
	var total ReplayStats
	if err := cfg.Validate(); err != nil {
		return total, err
	}
	if cfg.Execute && r.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := r.offsets.Partitions(cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.SourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", cfg.SourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		if total.Processed >= cfg.Limit {
			break
		}
		stats, err := r.replayPartition(ctx, cfg, partition, cfg.Limit-total.Processed)
		total.Processed += stats.Processed
		total.Replayed += stats.Replayed
		total.Skipped += stats.Skipped
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if cfg.Execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, cfg ReplayConfig, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.offsets.GetOffset(cfg.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(cfg.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.FromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.consumer.ConsumePartition(cfg.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.IdleTimeout)
	defer idle.Stop()

	errs := pc.Errors()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(cfg.IdleTimeout)

			stats.Processed++
			replayed, err := r.replayMessage(cfg, msg)
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.Replayed++
			} else {
				stats.Skipped++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// replayMessage возвращает false для сообщений, которые нельзя разобрать; они пропускаются.
func (r *Replayer) replayMessage(cfg ReplayConfig, msg *sarama.ConsumerMessage) (bool, error) {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	envelope, err := DecodeDeadLetter(msg.Value)
	if err != nil {
		entry.WithError(err).Warn("skip unsupported dlq message")
		return false, nil
	}

	if !cfg.Execute {
		entry.WithFields(log.Fields{
			"target_topic": cfg.TargetTopic,
			"event_id":     envelope.ID,
			"event_type":   envelope.EventType,
		}).Info("dlq replay candidate")
		return true, nil
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return false, fmt.Errorf("encode replay envelope: %w", err)
	}
	headers := envelope.Headers()
	headers[HeaderReplayedFrom] = cfg.SourceTopic
	if err := r.producer.Send(cfg.TargetTopic, envelope.Key(), body, headers); err != nil {
		return false, fmt.Errorf("publish replay message: %w", err)
	}
	return true, nil
}

type deadLetterBody struct {
	OutboxID      string          `json:"outboxId"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
}

// DecodeDeadLetter восстанавливает исходный конверт события из сообщения DLQ.
func DecodeDeadLetter(raw []byte) (Envelope, error) {
	var outer Envelope
	if err := json.Unmarshal(raw, &outer); err != nil {
		return Envelope{}, fmt.Errorf("decode dlq envelope: %w", err)
	}
	if len(outer.Payload) == 0 {
		return Envelope{}, errors.New("dlq envelope has no payload")
	}

	var letter deadLetterBody
	if err := json.Unmarshal(outer.Payload, &letter); err != nil {
		return Envelope{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(letter.Payload) == 0 {
		return Envelope{}, errors.New("dead letter does not contain original payload")
	}

	return Envelope{
		ID:            firstNonEmpty(letter.OutboxID, outer.ID),
		AggregateType: firstNonEmpty(letter.AggregateType, outer.AggregateType),
		AggregateID:   firstNonEmpty(letter.AggregateID, outer.AggregateID),
		EventType:     firstNonEmpty(letter.EventType, outer.EventType),
		Payload:       letter.Payload,
		PublishedAt:   time.Now().UTC(),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
