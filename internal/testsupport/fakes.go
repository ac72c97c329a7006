package testsupport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"mediarelay/internal/objectstore"
	"mediarelay/internal/pubsub"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// ObjectStore wraps a filesystem object store with call counters and
// per-operation failure injection.
type ObjectStore struct {
	*objectstore.Filesystem

	mu        sync.Mutex
	puts      int
	existsErr error
	listErr   error
	putErr    error
	deleteErr error
}

// NewObjectStore creates a filesystem-backed object store under a temp dir.
func NewObjectStore(t testing.TB, dir string) *ObjectStore {
	t.Helper()
	fs, err := objectstore.NewFilesystem(dir)
	if err != nil {
		t.Fatalf("objectstore.NewFilesystem: %v", err)
	}
	return &ObjectStore{Filesystem: fs}
}

// FailExists makes every Exists call return err (nil clears).
func (o *ObjectStore) FailExists(err error) { o.set(&o.existsErr, err) }

// FailList makes every List call return err (nil clears).
func (o *ObjectStore) FailList(err error) { o.set(&o.listErr, err) }

// FailPut makes every Put call return err (nil clears).
func (o *ObjectStore) FailPut(err error) { o.set(&o.putErr, err) }

// FailDelete makes every Delete call report err per key (nil clears).
func (o *ObjectStore) FailDelete(err error) { o.set(&o.deleteErr, err) }

func (o *ObjectStore) set(target *error, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	*target = err
}

func (o *ObjectStore) get(target *error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return *target
}

// Puts returns the number of successful Put calls.
func (o *ObjectStore) Puts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.puts
}

func (o *ObjectStore) Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error {
	if err := o.get(&o.putErr); err != nil {
		return err
	}
	if err := o.Filesystem.Put(ctx, key, body, metadata); err != nil {
		return err
	}
	o.mu.Lock()
	o.puts++
	o.mu.Unlock()
	return nil
}

func (o *ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := o.get(&o.existsErr); err != nil {
		return false, err
	}
	return o.Filesystem.Exists(ctx, key)
}

func (o *ObjectStore) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	if err := o.get(&o.listErr); err != nil {
		return nil, err
	}
	return o.Filesystem.List(ctx, prefix)
}

func (o *ObjectStore) Delete(ctx context.Context, keys ...string) []objectstore.DeleteResult {
	if err := o.get(&o.deleteErr); err != nil {
		results := make([]objectstore.DeleteResult, 0, len(keys))
		for _, key := range keys {
			results = append(results, objectstore.DeleteResult{Key: key, Err: err})
		}
		return results
	}
	return o.Filesystem.Delete(ctx, keys...)
}

// PutString stores body at key, failing the test on error.
func (o *ObjectStore) PutString(t testing.TB, key, body string) {
	t.Helper()
	if err := o.Filesystem.Put(context.Background(), key, strings.NewReader(body), nil); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

// Publisher records trigger messages and can be told to fail per language.
type Publisher struct {
	mu       sync.Mutex
	messages []pubsub.TriggerMessage
	failFor  map[string]error
	next     int
}

// NewPublisher returns an empty recording publisher.
func NewPublisher() *Publisher {
	return &Publisher{failFor: make(map[string]error)}
}

// FailLanguage makes publishes for lang return err (nil clears).
func (p *Publisher) FailLanguage(lang string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failFor, lang)
		return
	}
	p.failFor[lang] = err
}

func (p *Publisher) Publish(_ context.Context, _ string, msg pubsub.TriggerMessage) (pubsub.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failFor[msg.Language]; ok {
		return pubsub.PublishResult{}, err
	}
	p.messages = append(p.messages, msg)
	p.next++
	return pubsub.PublishResult{MessageID: fmt.Sprintf("msg-%d", p.next)}, nil
}

// Messages returns a copy of the recorded trigger messages.
func (p *Publisher) Messages() []pubsub.TriggerMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pubsub.TriggerMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
