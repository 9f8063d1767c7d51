package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// KafkaSink publishes audit events as JSON onto a Kafka topic. Messages are
// keyed by identity digest so one identity's events keep their order within
// a partition.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	log      zerolog.Logger
	failed   atomic.Uint64
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewKafkaProducer builds an async producer tuned for audit traffic.
func NewKafkaProducer(brokers []string) (sarama.AsyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	return sarama.NewAsyncProducer(brokers, cfg)
}

// NewKafkaSink wraps producer. The sink drains producer errors until Close.
func NewKafkaSink(producer sarama.AsyncProducer, topic string, log zerolog.Logger) *KafkaSink {
	s := &KafkaSink{
		producer: producer,
		topic:    topic,
		log:      log,
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.drainErrors()
	return s
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.producer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("action"), Value: []byte(event.Action)},
		},
	}
	if event.IdentityDigest != "" {
		msg.Key = sarama.StringEncoder(event.IdentityDigest)
	}

	select {
	case s.producer.Input() <- msg:
	case <-ctx.Done():
		s.failed.Add(1)
	case <-s.done:
		s.failed.Add(1)
	}
}

// Failed returns how many events could not be handed to the producer or
// were rejected by the broker.
func (s *KafkaSink) Failed() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

// Close stops error draining and closes the producer.
func (s *KafkaSink) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.producer.Close()
	})
	return err
}

func (s *KafkaSink) drainErrors() {
	defer s.wg.Done()
	errs := s.producer.Errors()
	for {
		select {
		case perr, ok := <-errs:
			if !ok {
				return
			}
			if perr == nil {
				continue
			}
			s.failed.Add(1)
			s.log.Error().Err(perr.Err).Str("topic", s.topic).Msg("audit publish failed")
		case <-s.done:
			return
		}
	}
}
