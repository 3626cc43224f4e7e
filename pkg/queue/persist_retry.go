package queue

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"

	"github.com/streadway/amqp"
)

// 持久化重试队列：slot 已经出图成功但结果落库失败时，把写库动作丢进这里重试。
// 生成不会被重新触发（生成和落库是两个独立的关注点），重试的只有那条 INSERT。

// PersistRetryMessage 待重试的落库动作
type PersistRetryMessage struct {
	TaskID    string `json:"task_id"`
	UserID    uint64 `json:"user_id"`
	SlotIndex int    `json:"slot_index"`
	ImageURL  string `json:"image_url"`
	Backend   string `json:"backend"`
}

// PersistFunc 真正执行落库的回调，由启动方注入（避免 queue 反向依赖存储层的装配细节）
type PersistFunc func(msg PersistRetryMessage) error

// PersistRetryQueue 队列最小接口
type PersistRetryQueue interface {
	PublishRetry(msg PersistRetryMessage) error
	Consume(handler PersistFunc) error
	Close() error
}

var (
	retryOnce     sync.Once
	retryInstance PersistRetryQueue
	retryInitErr  error
)

// InitPersistRetryQueue 使用单例模式初始化（首次调用生效，后续调用忽略）
func InitPersistRetryQueue(dsn string) error {
	retryOnce.Do(func() {
		inst, err := newPersistRetryAMQPQueue(dsn)
		if err != nil {
			retryInitErr = err
			log.Printf("failed to init persist retry AMQP queue: %v", err)
			return
		}
		retryInstance = inst
	})
	return retryInitErr
}

// GetPersistRetryQueue 返回单例，未初始化或初始化失败会返回错误
func GetPersistRetryQueue() (PersistRetryQueue, error) {
	if retryInstance == nil {
		if retryInitErr != nil {
			return nil, retryInitErr
		}
		return nil, errors.New("persist retry queue not initialized; call InitPersistRetryQueue")
	}
	return retryInstance, nil
}

// --- AMQP 实现 ---------------------------------------------------------
type persistRetryAMQPQueue struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queueName string
}

func newPersistRetryAMQPQueue(dsn string) (PersistRetryQueue, error) {
	conn, err := amqp.Dial(dsn)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	// 死信交换机和队列：超过重试上限的消息进这里人工排查
	dlxName := "persist_dlq_exchange"
	dlqName := "persist_dlq"

	if err := ch.ExchangeDeclare(dlxName, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.QueueBind(dlqName, dlqName, dlxName, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	// 主队列参数，设置死信路由
	args := amqp.Table{
		"x-dead-letter-exchange":    dlxName,
		"x-dead-letter-routing-key": dlqName,
	}
	q, err := ch.QueueDeclare(
		"persist_retry_tasks", // name
		true,                  // durable
		false,                 // delete when unused
		false,                 // exclusive
		false,                 // no-wait
		args,                  // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	// basic QoS: 落库重试是轻量操作，prefetch 配合消费并发数即可
	_ = ch.Qos(10, 0, false)
	return &persistRetryAMQPQueue{conn: conn, ch: ch, queueName: q.Name}, nil
}

// PublishRetry 投递一条待重试的落库动作
func (q *persistRetryAMQPQueue) PublishRetry(msg PersistRetryMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"", q.queueName, false, false,
		amqp.Publishing{ContentType: "application/json", Body: b, DeliveryMode: amqp.Persistent},
	)
}

// publishWithHeaders 带header发布（用于重试计数）
func (q *persistRetryAMQPQueue) publishWithHeaders(b []byte, headers amqp.Table) error {
	return q.ch.Publish("", q.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         b,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
	})
}

// Consume 消费重试消息。handler 返回 nil 表示落库成功 Ack；
// 失败时按 x-attempts 计数重新投递，超过上限送 DLQ。
func (q *persistRetryAMQPQueue) Consume(handler PersistFunc) error {
	deliveries, err := q.ch.Consume(q.queueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	// 并发控制（与上面 ch.Qos 的值配合使用）
	concurrency := 10
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for d := range deliveries {
		sem <- struct{}{}
		wg.Add(1)
		go func(del amqp.Delivery) {
			defer func() { <-sem; wg.Done() }()

			var msg PersistRetryMessage
			if err := json.Unmarshal(del.Body, &msg); err != nil {
				log.Printf("Invalid persist retry payload: %v", err)
				// 非法消息，送 DLQ
				_ = del.Nack(false, false)
				return
			}

			if err := handler(msg); err == nil {
				_ = del.Ack(false)
				log.Printf("Persist retry succeeded, task id: %s slot: %d", msg.TaskID, msg.SlotIndex)
				return
			} else {
				log.Printf("Persist retry failed, task id: %s slot: %d: %v", msg.TaskID, msg.SlotIndex, err)
			}

			// 检查重试次数
			attempts := 0
			if h, ok := del.Headers["x-attempts"]; ok {
				switch v := h.(type) {
				case int:
					attempts = v
				case int32:
					attempts = int(v)
				case int64:
					attempts = int(v)
				case string:
					if n, err := strconv.Atoi(v); err == nil {
						attempts = n
					}
				}
			}

			maxRetries := 3
			if attempts >= maxRetries {
				log.Printf("Persist retry exceeded retries, sending to DLQ, task id: %s slot: %d", msg.TaskID, msg.SlotIndex)
				_ = del.Nack(false, false)
				return
			}

			newHeaders := amqp.Table{"x-attempts": attempts + 1}
			for k, v := range del.Headers {
				if k != "x-attempts" {
					newHeaders[k] = v
				}
			}
			if err := q.publishWithHeaders(del.Body, newHeaders); err != nil {
				log.Printf("Failed to republish persist retry message, task id: %s: %v", msg.TaskID, err)
				_ = del.Nack(false, false)
				return
			}
			_ = del.Ack(false)
		}(d)
	}

	wg.Wait()
	return nil
}

func (q *persistRetryAMQPQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
