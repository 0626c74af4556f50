// Package kafka exports aggregates and events to Kafka topics for
// downstream pipelines. Export is optional; a nil Producer is a no-op.
package kafka

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/IBM/sarama"

	"upswatch/models"
)

// Producer publishes telemetry to the configured topics.
type Producer struct {
	producer    sarama.AsyncProducer
	sampleTopic string
	eventTopic  string
}

// NewProducer connects to the brokers. Returns nil without error when no
// brokers are configured, so callers can treat export as disabled.
func NewProducer(brokers []string, sampleTopic, eventTopic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %v", err)
	}

	p := &Producer{
		producer:    producer,
		sampleTopic: sampleTopic,
		eventTopic:  eventTopic,
	}

	go func() {
		for err := range producer.Errors() {
			log.Printf("Kafka publish error: %v", err)
		}
	}()

	return p, nil
}

// PublishAggregate exports one averaged record.
func (p *Producer) PublishAggregate(rec *models.AggregateRecord) {
	if p == nil {
		return
	}
	p.publish(p.sampleTopic, rec.TimestampTZ.UTC().Format("2006-01-02T15:04:05Z"), rec.Fields())
}

// PublishEvent exports one UPS event.
func (p *Producer) PublishEvent(event *models.Event) {
	if p == nil {
		return
	}
	p.publish(p.eventTopic, string(event.EventType), event)
}

func (p *Producer) publish(topic, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("Failed to marshal kafka message: %v", err)
		return
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(raw),
	}
}

// Close flushes pending messages and shuts the producer down.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
