// Package notification fans engine events out to push and real-time channel
// transports. Delivery is best effort and at most once: failures are logged,
// nothing is retried, and a full queue drops events rather than blocking the
// mutation that produced them.
package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/SherClockHolmes/webpush-go"

	"queue-ticketing-backend/internal/engine"
	"queue-ticketing-backend/internal/model"
	"queue-ticketing-backend/internal/store"
)

// Publisher delivers a payload to a real-time channel topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// NopPublisher discards everything; used when no channel backend is
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte) error { return nil }

// Dispatcher manages a pool of workers delivering engine events.
type Dispatcher struct {
	size    int
	jobs    chan engine.Event
	store   store.Store
	webpush *webpush.Options
	sender  PushSender
	pub     Publisher
}

// NewDispatcher creates a dispatcher with the given worker count.
func NewDispatcher(size int, st store.Store, webpushOptions *webpush.Options, pub Publisher) *Dispatcher {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Dispatcher{
		size:    size,
		jobs:    make(chan engine.Event, size*16),
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		pub:     pub,
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		go d.worker(ctx, i)
	}
}

// Notify enqueues an event without blocking. Events are dropped when the
// buffer is full; callers already committed their state change.
func (d *Dispatcher) Notify(ev engine.Event) {
	select {
	case d.jobs <- ev:
	default:
		log.Printf("notification buffer full, dropping %s event for ticket %s", ev.Kind, ev.TicketID)
	}
}

// Jobs returns the jobs channel for testing.
func (d *Dispatcher) Jobs() chan engine.Event {
	return d.jobs
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case ev := <-d.jobs:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// channelPayload is the wire shape published to real-time topics.
type channelPayload struct {
	Kind     string            `json:"kind"`
	QueueID  string            `json:"queue_id,omitempty"`
	TicketID string            `json:"ticket_id,omitempty"`
	UserID   string            `json:"user_id,omitempty"`
	Message  string            `json:"message"`
	Data     map[string]string `json:"data,omitempty"`
}

func (d *Dispatcher) deliver(ctx context.Context, ev engine.Event) {
	payload, err := json.Marshal(channelPayload{
		Kind:     string(ev.Kind),
		QueueID:  ev.QueueID,
		TicketID: ev.TicketID,
		UserID:   ev.UserID,
		Message:  ev.Message,
		Data:     ev.Data,
	})
	if err != nil {
		log.Printf("encoding %s event: %v", ev.Kind, err)
		return
	}

	if ev.QueueID != "" {
		if err := d.pub.Publish(ctx, "queue:"+ev.QueueID, payload); err != nil {
			log.Printf("publishing %s event for queue %s: %v", ev.Kind, ev.QueueID, err)
		}
	}
	if ev.UserID != "" && ev.UserID != model.WalkInUserID {
		if err := d.pub.Publish(ctx, "user:"+ev.UserID, payload); err != nil {
			log.Printf("publishing %s event for user %s: %v", ev.Kind, ev.UserID, err)
		}
		d.sendPush(ctx, ev)
	}
}

// sendPush delivers the event message to every push subscription of the
// user, dropping subscriptions the push service reports as expired.
func (d *Dispatcher) sendPush(ctx context.Context, ev engine.Event) {
	subs, err := d.store.SubscriptionsFor(ctx, ev.UserID)
	if err != nil {
		log.Printf("fetching subscriptions for user %s: %v", ev.UserID, err)
		return
	}
	for _, sub := range subs {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256DH,
				Auth:   sub.Auth,
			},
		}

		resp, err := d.sender.Send([]byte(ev.Message), wpSub, d.webpush)
		if err != nil {
			log.Printf("sending push to %s: %v", sub.Endpoint, err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == 410 {
			log.Printf("subscription %s expired, deleting", sub.Endpoint)
			if err := d.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
				log.Printf("deleting expired subscription %s: %v", sub.Endpoint, err)
			}
		}
	}
}
