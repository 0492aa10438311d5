package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"retail-service/internal/models"
	"retail-service/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func message(t *testing.T, v interface{}) kafka.Message {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestEventHandler_RoutesOrderEvents(t *testing.T) {
	util.SetLogger(zap.NewNop())
	eh := NewEventHandler()

	var got []*models.OrderEvent
	eh.OnOrderEvent(func(ctx context.Context, e *models.OrderEvent) error {
		got = append(got, e)
		return nil
	})

	event := &models.OrderEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderProductIncluded, Timestamp: time.Now().UTC()},
		OrderID:   3,
		Items:     []models.OrderItemData{{ProductID: 9, Quantity: 2}},
	}
	require.NoError(t, eh.HandleMessage(context.Background(), message(t, event)))
	require.NoError(t, eh.HandleMessage(context.Background(), message(t, models.BaseEvent{EventID: "e2", EventType: "PAYMENT_SUCCESS"})))

	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].OrderID)
	assert.Equal(t, []models.OrderItemData{{ProductID: 9, Quantity: 2}}, got[0].Items)
}

func TestEventHandler_Errors(t *testing.T) {
	util.SetLogger(zap.NewNop())
	eh := NewEventHandler()
	boom := errors.New("boom")
	eh.OnOrderEvent(func(ctx context.Context, e *models.OrderEvent) error { return boom })

	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")})
	assert.Error(t, err)

	err = eh.HandleMessage(context.Background(), message(t, models.BaseEvent{EventID: "e", EventType: models.EventTypeOrderDeleted}))
	assert.ErrorIs(t, err, boom)
}

func TestOrderKey(t *testing.T) {
	assert.Equal(t, "order-42", OrderKey(42))
}
