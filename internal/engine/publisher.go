package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskInvoke   MessageType = "task.invoke"
	MessageTypeTaskResult   MessageType = "task.result"
	MessageTypeStateSync    MessageType = "coordination.state_sync"
	MessageTypeEventProp    MessageType = "coordination.event_propagation"
	MessageTypeResourceHand MessageType = "coordination.resource_handoff"
	MessageTypeCompletion   MessageType = "coordination.completion_signal"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskInvokePayload — payload вызова task от engine.
type TaskInvokePayload struct {
	// InvocationID — идентификатор вызова (для корреляции результата).
	InvocationID string `json:"invocation_id"`

	// TaskName — имя вызываемого task.
	TaskName string `json:"task_name"`

	// Input — вход task.
	Input map[string]any `json:"input"`

	// Context — workflow-контекст вызова.
	Context *domain.WorkflowContext `json:"context,omitempty"`
}

// TaskResultPayload — payload результата task для engine.
type TaskResultPayload struct {
	// InvocationID — идентификатор вызова.
	InvocationID string `json:"invocation_id"`

	// TaskName — имя task.
	TaskName string `json:"task_name"`

	// WorkflowID — workflow instance, если известен.
	WorkflowID string `json:"workflow_id,omitempty"`

	// Envelope — результат выполнения. Всегда заполнен: handler
	// никогда не возвращает ошибку через границу engine.
	Envelope *domain.TaskEnvelope `json:"envelope"`
}

// CoordinationPayload — payload cross-workflow сообщения.
type CoordinationPayload struct {
	// SourceWorkflowID — инициатор.
	SourceWorkflowID string `json:"source_workflow_id"`

	// TargetWorkflowID — адресат.
	TargetWorkflowID string `json:"target_workflow_id"`

	// ResourceID — для resource_handoff.
	ResourceID string `json:"resource_id,omitempty"`

	// Payload — передаваемые данные.
	Payload map[string]any `json:"payload,omitempty"`
}

// Publisher публикует сообщения в engine.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт engine
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishTaskResult публикует envelope результата task.
// Потребитель: workflow engine.
func (p *Publisher) PublishTaskResult(ctx context.Context, payload TaskResultPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskResult,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeResults, RoutingKeyCompleted, msg)
}

// publishCoordination публикует cross-workflow сообщение.
// Routing key — тип координации: engine маршрутизирует по нему.
func (p *Publisher) publishCoordination(ctx context.Context, msgType MessageType, coordType domain.CoordinationType, payload CoordinationPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeCoordination, RoutingKey(coordType), msg)
}

// PublishWorkflowState публикует state_sync в другой workflow.
func (p *Publisher) PublishWorkflowState(ctx context.Context, source, target string, state map[string]any) error {
	return p.publishCoordination(ctx, MessageTypeStateSync, domain.CoordStateSync, CoordinationPayload{
		SourceWorkflowID: source,
		TargetWorkflowID: target,
		Payload:          state,
	})
}

// PublishWorkflowEvent публикует event_propagation в другой workflow.
func (p *Publisher) PublishWorkflowEvent(ctx context.Context, source, target string, event map[string]any) error {
	return p.publishCoordination(ctx, MessageTypeEventProp, domain.CoordEventPropagation, CoordinationPayload{
		SourceWorkflowID: source,
		TargetWorkflowID: target,
		Payload:          event,
	})
}

// TransferResource передаёт владение ресурсом другому workflow.
func (p *Publisher) TransferResource(ctx context.Context, source, target, resourceID string, meta map[string]any) error {
	return p.publishCoordination(ctx, MessageTypeResourceHand, domain.CoordResourceHandoff, CoordinationPayload{
		SourceWorkflowID: source,
		TargetWorkflowID: target,
		ResourceID:       resourceID,
		Payload:          meta,
	})
}

// SignalCompletion сигналит другому workflow о завершении.
func (p *Publisher) SignalCompletion(ctx context.Context, source, target string, result map[string]any) error {
	return p.publishCoordination(ctx, MessageTypeCompletion, domain.CoordCompletionSignal, CoordinationPayload{
		SourceWorkflowID: source,
		TargetWorkflowID: target,
		Payload:          result,
	})
}
