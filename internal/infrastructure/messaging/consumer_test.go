package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableClient 指向不可达地址，命令立即失败。
// ack 与 pending 查询失败只记录日志，不影响分发逻辑的验证。
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func xMessage(t *testing.T, msg *Message) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"data": string(data)},
	}
}

func TestNewConsumerDefaults(t *testing.T) {
	c := NewConsumer(unreachableClient(), ConsumerConfig{
		Stream:       StreamDetectionRuns,
		Group:        ConsumerGroupDetector,
		ConsumerName: "detector-test",
	})

	assert.Equal(t, 5*time.Second, c.blockTimeout)
	assert.Equal(t, 30*time.Second, c.claimInterval)
	assert.Equal(t, 3, c.retryLimit)
}

func TestConsumerDispatchesByType(t *testing.T) {
	c := NewConsumer(unreachableClient(), ConsumerConfig{
		Stream:       StreamDetectionRuns,
		Group:        ConsumerGroupDetector,
		ConsumerName: "detector-test",
	})

	var got *Message
	c.RegisterHandler(MsgTypeDetectionRun, func(ctx context.Context, msg *Message) error {
		got = msg
		return nil
	})

	msg, err := NewMessage("m1", MsgTypeDetectionRun, "p1", DetectionRunMessage{ProjectID: "p1"})
	require.NoError(t, err)

	c.processMessage(context.Background(), xMessage(t, msg))

	require.NotNil(t, got)
	assert.Equal(t, "p1", got.ProjectID)

	var run DetectionRunMessage
	require.NoError(t, got.UnmarshalPayload(&run))
	assert.Equal(t, "p1", run.ProjectID)
}

func TestConsumerIgnoresUnknownType(t *testing.T) {
	c := NewConsumer(unreachableClient(), ConsumerConfig{
		Stream:       StreamDetectionRuns,
		Group:        ConsumerGroupDetector,
		ConsumerName: "detector-test",
	})

	called := false
	c.RegisterHandler(MsgTypeDetectionRun, func(ctx context.Context, msg *Message) error {
		called = true
		return nil
	})

	msg, err := NewMessage("m1", MsgTypeIncidentCreated, "p1", IncidentEventMessage{IncidentID: "i1"})
	require.NoError(t, err)

	c.processMessage(context.Background(), xMessage(t, msg))
	assert.False(t, called)
}

func TestConsumerFailureLeavesMessagePending(t *testing.T) {
	c := NewConsumer(unreachableClient(), ConsumerConfig{
		Stream:       StreamDetectionRuns,
		Group:        ConsumerGroupDetector,
		ConsumerName: "detector-test",
	})

	calls := 0
	c.RegisterHandler(MsgTypeDetectionRun, func(ctx context.Context, msg *Message) error {
		calls++
		return errors.New("boom")
	})

	msg, err := NewMessage("m1", MsgTypeDetectionRun, "p1", DetectionRunMessage{ProjectID: "p1"})
	require.NoError(t, err)

	xmsg := xMessage(t, msg)
	c.processMessage(context.Background(), xmsg)
	assert.Equal(t, 1, calls)

	// 认领后重新投递同一条消息，处理器会被再次调用
	c.processMessage(context.Background(), xmsg)
	assert.Equal(t, 2, calls)
}
