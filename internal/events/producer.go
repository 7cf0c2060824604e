package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/logger"
)

// 事件类型
const (
	TypeDocumentIngested = "document.ingested"
	TypeDocumentDeleted  = "document.deleted"
	TypeTicketCreated    = "ticket.created"
)

// Event 领域事件信封
type Event struct {
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// Producer Kafka生产者
// 事件发布尽力而为，失败只记日志，不影响主流程
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer 创建Kafka生产者
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return &Producer{producer: producer, topic: topic}, nil
}

// Publish 发送一个事件
func (p *Producer) Publish(eventType string, payload map[string]interface{}) {
	if p == nil || p.producer == nil {
		return
	}

	data, err := json.Marshal(Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(eventType),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		logger.Error("failed to publish event", zap.String("type", eventType), zap.Error(err))
		return
	}

	logger.Debug("event published",
		zap.String("type", eventType),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
}

// DocumentIngested 文档摄取完成事件
func (p *Producer) DocumentIngested(documentID uint, filename string, chunks int) {
	p.Publish(TypeDocumentIngested, map[string]interface{}{
		"document_id": documentID,
		"filename":    filename,
		"chunks":      chunks,
	})
}

// DocumentDeleted 文档删除事件
func (p *Producer) DocumentDeleted(documentID uint) {
	p.Publish(TypeDocumentDeleted, map[string]interface{}{
		"document_id": documentID,
	})
}

// TicketCreated 工单创建事件
func (p *Producer) TicketCreated(employeeID uint, deviceID uint, text string) {
	p.Publish(TypeTicketCreated, map[string]interface{}{
		"employee_id": employeeID,
		"device_id":   deviceID,
		"text":        text,
	})
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
