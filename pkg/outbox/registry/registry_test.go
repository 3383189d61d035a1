package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

func envelopeJSON(t *testing.T, data string) []byte {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(data),
	})
	require.NoError(t, err)
	return raw
}

func orderRow(t *testing.T, eventType enums.OutboxEventType, data string) models.OutboxEvent {
	return models.OutboxEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopeJSON(t, data),
	}
}

func TestResolveDecodesTypedPayload(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders"})
	require.NoError(t, err)

	orderID := uuid.New()
	row := orderRow(t, enums.EventOrderStatusChanged,
		`{"orderId":"`+orderID.String()+`","fromStatus":"pending_payment","toStatus":"expired","action":"expire"}`)

	resolved, err := reg.Resolve(row)
	require.NoError(t, err)
	require.Equal(t, "orders", resolved.Descriptor.Topic)
	require.Equal(t, 1, resolved.Envelope.Version)
	require.NotEmpty(t, resolved.Envelope.EventID)

	payload, ok := resolved.Payload.(*payloads.OrderStatusChangedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	require.Equal(t, orderID, payload.OrderID)
	require.Equal(t, enums.OrderStatusExpired, payload.ToStatus)
}

func TestIncidentsRouteToTheirOwnTopic(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders", IncidentsTopic: " ops "})
	require.NoError(t, err)
	require.Equal(t, []string{"ops", "orders"}, reg.Topics())

	resolved, err := reg.Resolve(orderRow(t, enums.EventOrderIncident, `{"orderId":"`+uuid.NewString()+`","reason":"late capture"}`))
	require.NoError(t, err)
	require.Equal(t, "ops", resolved.Descriptor.Topic)
	require.IsType(t, &payloads.OrderIncidentEvent{}, resolved.Payload)

	created, err := reg.Resolve(orderRow(t, enums.EventOrderCreated, `{"orderId":"`+uuid.NewString()+`"}`))
	require.NoError(t, err)
	require.Equal(t, "orders", created.Descriptor.Topic)
}

func TestIncidentsFallBackToOrdersTopic(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders"})
	require.NoError(t, err)
	require.Equal(t, []string{"orders"}, reg.Topics())
}

func TestNewEventRegistryRequiresOrdersTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "  ", IncidentsTopic: "ops"})
	require.Error(t, err)
}

func TestResolveRejectsBadRows(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders"})
	require.NoError(t, err)

	valid := func(mutate func(*models.OutboxEvent)) models.OutboxEvent {
		row := orderRow(t, enums.EventOrderCreated, `{"orderId":"`+uuid.NewString()+`"}`)
		mutate(&row)
		return row
	}
	cases := map[string]models.OutboxEvent{
		"unknown event type": valid(func(e *models.OutboxEvent) { e.EventType = "variant_restocked" }),
		"aggregate mismatch": valid(func(e *models.OutboxEvent) { e.AggregateType = "variant" }),
		"missing aggregate":  valid(func(e *models.OutboxEvent) { e.AggregateID = uuid.Nil }),
		"broken envelope":    valid(func(e *models.OutboxEvent) { e.Payload = []byte(`{"data":`) }),
		"null data":          valid(func(e *models.OutboxEvent) { e.Payload = envelopeJSON(t, `null`) }),
		"wrong data shape":   valid(func(e *models.OutboxEvent) { e.Payload = envelopeJSON(t, `{"orderId":42}`) }),
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(row)
			require.Error(t, err)
			var nonRetry NonRetryableError
			require.True(t, errors.As(err, &nonRetry), "got %T", err)
		})
	}
}

func TestNonRetryableErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := NewNonRetryableError(cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "boom", err.Error())
	require.Equal(t, "non-retryable error", NonRetryableError{}.Error())
}
