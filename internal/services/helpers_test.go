package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dataflux/dataflux-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&types.Asset{}, &types.Segment{}, &types.Feature{}, &types.Embedding{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

type fakeBucket struct {
	mu           sync.Mutex
	objects      map[string][]byte
	failUpload   bool
	failDownload bool
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (b *fakeBucket) UploadFile(ctx context.Context, key string, file io.Reader) error {
	if b.failUpload {
		return fmt.Errorf("bucket unavailable")
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *fakeBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	if b.failDownload {
		return nil, fmt.Errorf("bucket unavailable")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBucket) DeleteFile(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeBucket) GetPublicURL(key string) string {
	return "https://blobs.test/" + key
}

func (b *fakeBucket) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type fakeQueue struct {
	mu          sync.Mutex
	published   []WorkMessage
	failPublish bool
	reclaims    int
}

func (q *fakeQueue) Publish(ctx context.Context, msg WorkMessage) error {
	if q.failPublish {
		return fmt.Errorf("broker unavailable")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, msg)
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context) (*WorkDelivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.published) == 0 {
		return nil, fmt.Errorf("queue drained")
	}
	msg := q.published[0]
	q.published = q.published[1:]
	return &WorkDelivery{Message: msg, Ack: func(context.Context) error { return nil }}, nil
}

func (q *fakeQueue) Reclaim(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reclaims++
	return 0, nil
}

func (q *fakeQueue) reclaimCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reclaims
}

func (q *fakeQueue) messages() []WorkMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]WorkMessage, len(q.published))
	copy(out, q.published)
	return out
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]CachedStatus
	failSet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[uuid.UUID]CachedStatus{}}
}

func (c *fakeCache) Get(ctx context.Context, assetID uuid.UUID) (*CachedStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[assetID]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (c *fakeCache) Set(ctx context.Context, assetID uuid.UUID, status CachedStatus) error {
	if c.failSet {
		return fmt.Errorf("cache unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[assetID] = status
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, assetID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, assetID)
	return nil
}

func (c *fakeCache) get(assetID uuid.UUID) (CachedStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[assetID]
	return entry, ok
}

type fakeVectors struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	failUpsert bool
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{vectors: map[string][]float32{}}
}

func (v *fakeVectors) Upsert(ctx context.Context, id uuid.UUID, vector []float32) (string, error) {
	if v.failUpsert {
		return "", fmt.Errorf("vector store unavailable")
	}
	ref := "test://vec/" + id.String()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vectors[ref] = vector
	return ref, nil
}

func (v *fakeVectors) Delete(ctx context.Context, ref string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.vectors, ref)
	return nil
}

func (v *fakeVectors) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.vectors)
}
