package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	taskKeyPrefix     = "task:"
	documentTasksKey  = "document_tasks:"
	taskStatusChannel = "task_status:"

	// 任务数据保留7天
	taskRecordTTL = 7 * 24 * time.Hour
)

var queueFactories = make(map[string]Factory)

// RegisterQueueFactory 按名称注册队列实现
func RegisterQueueFactory(name string, factory Factory) {
	queueFactories[name] = factory
}

// NewQueue 按名称创建已注册的队列实现
func NewQueue(name string, cfg *Config) (Queue, error) {
	factory, ok := queueFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown queue implementation: %s", name)
	}
	return factory(cfg)
}

func init() {
	RegisterQueueFactory("redis", func(cfg *Config) (Queue, error) {
		return NewRedisQueue(cfg)
	})
}

// RedisQueue 基于asynq的Redis任务队列
// asynq负责调度和重试，任务元数据单独存在Redis里供查询
type RedisQueue struct {
	client      *asynq.Client
	inspector   *asynq.Inspector
	redisClient *redis.Client
	cfg         *Config
	logger      *logrus.Logger
}

// NewRedisQueue 创建Redis任务队列
func NewRedisQueue(cfg *Config) (Queue, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &RedisQueue{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Enqueue 将任务加入队列
func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error) {
	task, err := q.storeNewTask(ctx, taskType, documentID, payload)
	if err != nil {
		return "", err
	}

	if _, err := q.client.EnqueueContext(ctx, asynq.NewTask(string(taskType), []byte(task.ID))); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   taskType,
		"document_id": documentID,
	}).Info("Task enqueued successfully")

	return task.ID, nil
}

// EnqueueAt 在指定时间点执行任务
func (q *RedisQueue) EnqueueAt(ctx context.Context, taskType TaskType, documentID string, payload interface{}, processAt time.Time) (string, error) {
	task, err := q.storeNewTask(ctx, taskType, documentID, payload)
	if err != nil {
		return "", err
	}

	asynqTask := asynq.NewTask(string(taskType), []byte(task.ID))
	if _, err := q.client.EnqueueContext(ctx, asynqTask, asynq.ProcessAt(processAt)); err != nil {
		return "", fmt.Errorf("failed to enqueue task with delay: %w", err)
	}

	return task.ID, nil
}

// EnqueueIn 延迟指定时长后执行任务
func (q *RedisQueue) EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error) {
	return q.EnqueueAt(ctx, taskType, documentID, payload, time.Now().Add(delay))
}

// storeNewTask 生成任务记录并落到Redis，asynq消息里只携带任务ID
func (q *RedisQueue) storeNewTask(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (*Task, error) {
	payloadBytes, err := MarshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	task := &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		DocumentID: documentID,
		Status:     StatusPending,
		Payload:    payloadBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: q.cfg.RetryLimit,
	}

	if err := q.saveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task to redis: %w", err)
	}
	return task, nil
}

// GetTask 查询任务详情
func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.redisClient.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task from redis: %w", err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task data: %w", err)
	}
	return &task, nil
}

// GetTasksByDocument 查询文档关联的全部任务
func (q *RedisQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error) {
	taskIDs, err := q.redisClient.SMembers(ctx, documentTasksKey+documentID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			// 任务记录可能已过期，集合里的引用照常跳过
			if errors.Is(err, ErrTaskNotFound) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// WaitForTask 阻塞等待任务进入终态
func (q *RedisQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return task, nil
	}

	// 订阅状态变更通知，同时兜底轮询
	pubsub := q.redisClient.Subscribe(ctx, taskStatusChannel+taskID)
	defer pubsub.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ErrTaskTimeout
		case <-pubsub.Channel():
		case <-ticker.C:
		}

		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status.Terminal() {
			return task, nil
		}
	}
}

// DeleteTask 删除任务记录
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.DocumentID != "" {
		if err := q.redisClient.SRem(ctx, documentTasksKey+task.DocumentID, taskID).Err(); err != nil {
			return fmt.Errorf("failed to remove task from document tasks: %w", err)
		}
	}

	if err := q.redisClient.Del(ctx, taskKeyPrefix+taskID).Err(); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	// 处理中的任务asynq可能删不掉，只记日志
	if err := q.inspector.DeleteTask("default", taskID); err != nil {
		q.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to delete task from asynq queue")
	}
	return nil
}

// UpdateTaskStatus 更新任务状态和结果
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = status
	task.UpdatedAt = now

	if status == StatusProcessing && task.StartedAt == nil {
		task.StartedAt = &now
	}
	if status.Terminal() {
		task.CompletedAt = &now
	}

	if result != nil {
		resultBytes, err := MarshalPayload(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		task.Result = resultBytes
	}
	if errMsg != "" {
		task.Error = errMsg
	}

	return q.saveTask(ctx, task)
}

// NotifyTaskUpdate 广播任务状态变更
func (q *RedisQueue) NotifyTaskUpdate(ctx context.Context, taskID string) error {
	return q.redisClient.Publish(ctx, taskStatusChannel+taskID, "updated").Err()
}

// Close 关闭队列连接
func (q *RedisQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.redisClient.Close()
}

// saveTask 写入任务记录并维护文档到任务的索引集合
func (q *RedisQueue) saveTask(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.redisClient.Set(ctx, taskKeyPrefix+task.ID, data, taskRecordTTL).Err(); err != nil {
		return fmt.Errorf("failed to save task data: %w", err)
	}

	if task.DocumentID != "" {
		docKey := documentTasksKey + task.DocumentID
		if err := q.redisClient.SAdd(ctx, docKey, task.ID).Err(); err != nil {
			return fmt.Errorf("failed to add task to document tasks: %w", err)
		}
		q.redisClient.Expire(ctx, docKey, taskRecordTTL)
	}
	return nil
}

// RedisWorker 基于asynq的任务消费者
type RedisWorker struct {
	server   *asynq.Server
	queue    *RedisQueue
	handlers map[TaskType]Handler
	logger   *logrus.Logger
}

// NewRedisWorker 创建任务消费者，cfg为nil时沿用队列的配置
func NewRedisWorker(queue *RedisQueue, cfg *Config) Worker {
	if cfg == nil {
		cfg = queue.cfg
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return cfg.RetryDelay
			},
			Logger: queue.logger,
		},
	)

	return &RedisWorker{
		server:   server,
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   queue.logger,
	}
}

// RegisterHandler 注册任务处理器
func (w *RedisWorker) RegisterHandler(taskType TaskType, handler Handler) {
	w.handlers[taskType] = handler
}

// Start 启动消费者，非阻塞
func (w *RedisWorker) Start() error {
	mux := asynq.NewServeMux()
	for taskType, handler := range w.handlers {
		mux.HandleFunc(string(taskType), w.dispatch(handler))
		w.logger.WithField("task_type", taskType).Info("Registered handler for task type")
	}
	return w.server.Start(mux)
}

// Stop 停止消费者
func (w *RedisWorker) Stop() {
	w.server.Shutdown()
}

// dispatch 把asynq回调接到Handler上，并维护任务状态流转
func (w *RedisWorker) dispatch(handler Handler) asynq.HandlerFunc {
	return func(ctx context.Context, asynqTask *asynq.Task) error {
		taskID := string(asynqTask.Payload())

		task, err := w.queue.GetTask(ctx, taskID)
		if err != nil {
			w.logger.WithError(err).WithField("task_id", taskID).Error("Failed to get task info")
			return err
		}

		w.setTaskStatus(ctx, taskID, StatusProcessing, "")

		if err := handler.ProcessTask(ctx, task); err != nil {
			w.setTaskStatus(ctx, taskID, StatusFailed, err.Error())
			return err
		}

		w.setTaskStatus(ctx, taskID, StatusCompleted, "")
		return nil
	}
}

// setTaskStatus 更新任务状态并广播，更新失败不中断任务流程
func (w *RedisWorker) setTaskStatus(ctx context.Context, taskID string, status TaskStatus, errMsg string) {
	if err := w.queue.UpdateTaskStatus(ctx, taskID, status, nil, errMsg); err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"task_id": taskID,
			"status":  status,
		}).Error("Failed to update task status")
	}
	w.queue.NotifyTaskUpdate(ctx, taskID)
}
