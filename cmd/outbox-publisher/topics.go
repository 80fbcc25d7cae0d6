package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// broker is the slice of pkg/pubsub the relay needs.
type broker interface {
	Ping(context.Context) error
	OrderedPublisher(topic string) *gcppubsub.Publisher
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicSet keeps one publisher per topic for the life of the relay so
// ordering and batching state carry across batches.
type topicSet struct {
	open func(topic string) publisher
	mu   sync.Mutex
	pubs map[string]publisher
}

func newTopicSet(b broker) *topicSet {
	return &topicSet{
		open: func(topic string) publisher {
			p := b.OrderedPublisher(topic)
			if p == nil {
				return nil
			}
			return gcpPublisher{p}
		},
		pubs: map[string]publisher{},
	}
}

func (t *topicSet) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.pubs[topic]; ok {
		return pub
	}
	pub := t.open(topic)
	if pub != nil {
		t.pubs[topic] = pub
	}
	return pub
}

// resume clears the paused state Pub/Sub puts an ordering key in after a
// failed publish.
func (t *topicSet) resume(topic, key string) {
	t.mu.Lock()
	pub, ok := t.pubs[topic]
	t.mu.Unlock()
	if ok && key != "" {
		pub.ResumePublish(key)
	}
}

func (t *topicSet) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, pub := range t.pubs {
		pub.Stop()
		delete(t.pubs, topic)
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{p.Publisher.Publish(ctx, msg)}
}

type gcpResult struct {
	*gcppubsub.PublishResult
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
