package detection

import (
	"context"
	"sync"
	"time"

	"llm-sentinel-api/pkg/logger"
)

// Scheduler 固定周期触发检测任务。
// 显式持有定时器，测试可以绕过它直接调用 Job.Run。
type Scheduler struct {
	job      *Job
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler 创建检测调度器
func NewScheduler(job *Job, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		job:      job,
		interval: interval,
	}
}

// Start 启动调度循环；重复调用无效果
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	logger.Info(ctx, "detection scheduler started", "interval", s.interval.String())

	go s.loop(ctx)
}

// Stop 停止调度循环并等待当前一轮结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			logger.Info(ctx, "detection scheduler stopped")
			return
		case <-ctx.Done():
			logger.Info(ctx, "detection scheduler context cancelled")
			return
		case <-ticker.C:
			s.job.Run(ctx)
		}
	}
}
