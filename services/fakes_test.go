package services

import (
	"context"
	"sync"

	"docker-monitor/internal/config"
	"docker-monitor/internal/dockerhost"
	"docker-monitor/internal/models"
)

// fakeHost 可控的HostConnection
type fakeHost struct {
	mu         sync.Mutex
	name       string
	connectErr error
	testOK     bool
	ip         string
	records    []models.ContainerRecord
	connects   int
	closed     bool
	events     chan models.ContainerEvent
	streaming  chan struct{}
}

func newFakeHost(name string) *fakeHost {
	return &fakeHost{
		name:      name,
		testOK:    true,
		ip:        "192.168.1.10",
		events:    make(chan models.ContainerEvent, 16),
		streaming: make(chan struct{}, 16),
	}
}

func (f *fakeHost) Name() string { return f.name }
func (f *fakeHost) Kind() string { return config.KindRemote }

func (f *fakeHost) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeHost) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeHost) setRecords(records ...models.ContainerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func (f *fakeHost) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeHost) TestConnection(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.testOK
}

func (f *fakeHost) ListContainers(ctx context.Context) ([]models.ContainerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ContainerRecord(nil), f.records...), nil
}

func (f *fakeHost) GetContainerDetail(ctx context.Context, id string) (*models.ContainerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

func (f *fakeHost) StreamEvents(ctx context.Context, onEvent func(models.ContainerEvent)) error {
	f.streaming <- struct{}{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.events:
			onEvent(ev)
		}
	}
}

func (f *fakeHost) ResolveIP(ctx context.Context) string { return f.ip }

func (f *fakeHost) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeFactory 按主机名返回预先准备好的fakeHost
func fakeFactory(hosts ...*fakeHost) HostFactory {
	byName := make(map[string]*fakeHost)
	for _, h := range hosts {
		byName[h.name] = h
	}
	return func(spec config.HostSpec, onLost func(*dockerhost.ConnError)) (dockerhost.HostConnection, error) {
		h, ok := byName[spec.Name]
		if !ok {
			return nil, config.ErrHostNotFound
		}
		return h, nil
	}
}

func labeledRecord(host, id, domain string) models.ContainerRecord {
	return models.ContainerRecord{
		ID:       id,
		ShortID:  id,
		Name:     "c-" + id,
		Status:   "running",
		HostName: host,
		Labels: map[string]string{
			"snadboy.revp.domain": domain,
			"snadboy.revp.port":   "80",
		},
	}
}
