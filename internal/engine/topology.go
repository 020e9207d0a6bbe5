package engine

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks        Exchange = "conveyor.tasks"
	ExchangeResults      Exchange = "conveyor.results"
	ExchangeCoordination Exchange = "conveyor.coordination"
	ExchangeDLQ          Exchange = "conveyor.dlq"
)

// Queues — имена статических очередей.
// Очереди task-вызовов (tasks.<name>) объявляются при регистрации handler'а.
const (
	QueueResults  Queue = "results.completed"
	QueueDLQTasks Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQTasks  RoutingKey = "tasks"
)

// TaskQueue возвращает имя очереди вызовов для task.
func TaskQueue(taskName string) Queue {
	return Queue("tasks." + taskName)
}

// SetupTopology объявляет статическую часть топологии.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareStaticQueues(ch); err != nil {
			return err
		}
		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, "direct"},
		{ExchangeResults, "direct"},
		{ExchangeCoordination, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareStaticQueues создаёт статические очереди и их bindings.
func declareStaticQueues(ch *amqp.Channel) error {
	queues := []struct {
		name       Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueResults, RoutingKeyCompleted, ExchangeResults},
		{QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ},
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			nil,            // arguments
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}

		if err := ch.QueueBind(
			string(q.name),
			string(q.routingKey),
			string(q.exchange),
			false,
			nil,
		); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", q.name, q.exchange, err)
		}
	}

	return nil
}

// DeclareTaskQueue объявляет очередь вызовов для task и привязывает её
// к conveyor.tasks по имени task. Упавшие вызовы уходят в DLQ.
func DeclareTaskQueue(conn *Connection, taskName string) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		queue := TaskQueue(taskName)

		args := amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
		}

		if _, err := ch.QueueDeclare(
			string(queue), // name
			true,          // durable
			false,         // delete when unused
			false,         // exclusive
			false,         // no-wait
			args,          // arguments
		); err != nil {
			return fmt.Errorf("declare task queue %s: %w", queue, err)
		}

		if err := ch.QueueBind(
			string(queue),
			taskName, // routing key = имя task
			string(ExchangeTasks),
			false,
			nil,
		); err != nil {
			return fmt.Errorf("bind task queue %s: %w", queue, err)
		}

		return nil
	})
}
