package broadcast

import (
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const kafkaQueueLen = 256

// KafkaSink forwards hub events to a Kafka topic through an internal
// queue so a slow broker never backs up into Publish.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	queue    chan Event
	done     chan struct{}
	log      *zap.Logger
}

func NewKafkaSink(brokers []string, topic string, log *zap.Logger) (*KafkaSink, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = 3
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	sink := &KafkaSink{
		producer: producer,
		topic:    topic,
		queue:    make(chan Event, kafkaQueueLen),
		done:     make(chan struct{}),
		log:      log,
	}
	go sink.run()
	return sink, nil
}

func (s *KafkaSink) Publish(event Event) {
	select {
	case s.queue <- event:
	default:
		s.log.Warn("kafka sink queue full, dropping event", zap.String("event_type", string(event.Type)))
	}
}

func (s *KafkaSink) run() {
	defer close(s.done)
	for event := range s.queue {
		value, err := json.Marshal(event)
		if err != nil {
			s.log.Warn("kafka event marshal failed", zap.Error(err))
			continue
		}
		msg := &sarama.ProducerMessage{
			Topic: s.topic,
			Key:   sarama.StringEncoder(event.Type),
			Value: sarama.ByteEncoder(value),
		}
		if _, _, err := s.producer.SendMessage(msg); err != nil {
			s.log.Warn("kafka publish failed", zap.Error(err))
		}
	}
}

// Close drains the queue and releases the producer.
func (s *KafkaSink) Close() error {
	close(s.queue)
	<-s.done
	return s.producer.Close()
}
