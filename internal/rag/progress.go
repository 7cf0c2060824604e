package rag

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/logger"
)

// UploadStatus 一次摄取任务的当前状态
type UploadStatus struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Stage      string    `json:"stage"`
	Percent    int       `json:"percent"`
	Done       bool      `json:"done"`
	Error      string    `json:"error,omitempty"`
	DocumentID uint      `json:"document_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// ProgressTracker 摄取进度登记表
// 内存表为权威来源，配置了Redis时镜像一份供多实例查询
type ProgressTracker struct {
	mu       sync.RWMutex
	statuses map[string]*UploadStatus
	redis    *redis.Client
	ttl      time.Duration
}

func NewProgressTracker(redisClient *redis.Client) *ProgressTracker {
	return &ProgressTracker{
		statuses: make(map[string]*UploadStatus),
		redis:    redisClient,
		ttl:      time.Hour,
	}
}

// Start 登记新的摄取任务并返回任务ID
func (t *ProgressTracker) Start(filename string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)

	status := &UploadStatus{
		ID:        id,
		Filename:  filename,
		Stage:     "Загрузка файла...",
		Percent:   0,
		StartedAt: time.Now(),
	}

	t.mu.Lock()
	t.sweepLocked(time.Now())
	t.statuses[id] = status
	t.mu.Unlock()

	t.mirror(status)
	return id
}

// sweepLocked 清理超过TTL的旧记录，与Redis镜像的过期策略保持一致
func (t *ProgressTracker) sweepLocked(now time.Time) {
	for id, status := range t.statuses {
		if now.Sub(status.StartedAt) > t.ttl {
			delete(t.statuses, id)
		}
	}
}

// Update 推进任务进度
func (t *ProgressTracker) Update(id, stage string, percent int) {
	t.mu.Lock()
	status, ok := t.statuses[id]
	if ok {
		status.Stage = stage
		status.Percent = percent
	}
	t.mu.Unlock()
	if ok {
		t.mirror(status)
	}
}

// Finish 标记任务成功完成
func (t *ProgressTracker) Finish(id string, documentID uint) {
	t.mu.Lock()
	status, ok := t.statuses[id]
	if ok {
		status.Done = true
		status.Percent = 100
		status.Stage = "Готово!"
		status.DocumentID = documentID
	}
	t.mu.Unlock()
	if ok {
		t.mirror(status)
	}
}

// Fail 标记任务失败
func (t *ProgressTracker) Fail(id string, err error) {
	t.mu.Lock()
	status, ok := t.statuses[id]
	if ok {
		status.Done = true
		status.Error = err.Error()
	}
	t.mu.Unlock()
	if ok {
		t.mirror(status)
	}
}

// Get 查询任务状态
func (t *ProgressTracker) Get(id string) (*UploadStatus, bool) {
	t.mu.RLock()
	status, ok := t.statuses[id]
	if ok {
		copied := *status
		t.mu.RUnlock()
		return &copied, true
	}
	t.mu.RUnlock()

	if t.redis == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := t.redis.Get(ctx, "upload:"+id).Bytes()
	if err != nil {
		return nil, false
	}
	var restored UploadStatus
	if err := json.Unmarshal(data, &restored); err != nil {
		return nil, false
	}
	return &restored, true
}

func (t *ProgressTracker) mirror(status *UploadStatus) {
	if t.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := t.redis.Set(ctx, "upload:"+status.ID, data, t.ttl).Err(); err != nil {
		logger.Debug("failed to mirror upload status to redis", zap.Error(err))
	}
}
