// Package queue carries campaign send requests from the admin API to the
// worker over a durable RabbitMQ queue, keeping audience enumeration and
// bulk job insertion out of the HTTP request path.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/sendhawk/bulkmail-backend/internal/config"
)

const maxDeliveries = 3

// SendRequest asks the worker to enqueue jobs for one campaign.
type SendRequest struct {
	CampaignID int `json:"campaign_id"`
}

// Publisher is the producer side used by the API.
type Publisher interface {
	PublishSendRequest(campaignID int) error
}

type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	name string
	log  zerolog.Logger
}

// Dial connects, retrying while the broker comes up, and declares the
// durable queue.
func Dial(cfg config.AMQPConfig, log zerolog.Logger) (*AMQPQueue, error) {
	var conn *amqp.Connection
	dial := func() error {
		var err error
		conn, err = amqp.Dial(cfg.URL)
		return err
	}
	if err := backoff.Retry(dial, backoff.NewExponentialBackOff()); err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		cfg.SendQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &AMQPQueue{conn: conn, ch: ch, name: cfg.SendQueue, log: log}, nil
}

func (q *AMQPQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}

func (q *AMQPQueue) PublishSendRequest(campaignID int) error {
	body, err := json.Marshal(SendRequest{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return q.publish(body, 0)
}

func (q *AMQPQueue) publish(body []byte, retryCount int32) error {
	return q.ch.Publish(
		"", q.name, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Headers:      amqp.Table{"x-retry-count": retryCount},
		},
	)
}

// Consume delivers send requests to handler until ctx is done. A failed
// request is republished with a bumped retry header and dropped after
// maxDeliveries attempts.
func (q *AMQPQueue) Consume(ctx context.Context, handler func(SendRequest) error) error {
	deliveries, err := q.ch.Consume(
		q.name,
		"",    // consumer tag
		false, // autoAck off for reliability
		false, false, false, nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("amqp deliveries channel closed")
			}
			q.handleDelivery(d, handler)
		}
	}
}

func (q *AMQPQueue) handleDelivery(d amqp.Delivery, handler func(SendRequest) error) {
	var req SendRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		q.log.Warn().Err(err).Msg("invalid send request payload, dropping")
		d.Ack(false)
		return
	}

	if err := handler(req); err != nil {
		retryCount := retriesOf(d)
		if retryCount+1 < maxDeliveries {
			if pubErr := q.publish(d.Body, retryCount+1); pubErr != nil {
				q.log.Error().Err(pubErr).Int("campaign_id", req.CampaignID).Msg("requeue send request failed")
				d.Nack(false, true)
				return
			}
		} else {
			q.log.Error().Err(err).
				Int("campaign_id", req.CampaignID).
				Int32("retries", retryCount).
				Msg("send request permanently failed")
		}
	}
	d.Ack(false)
}

func retriesOf(d amqp.Delivery) int32 {
	if d.Headers == nil {
		return 0
	}
	if v, ok := d.Headers["x-retry-count"].(int32); ok {
		return v
	}
	return 0
}
