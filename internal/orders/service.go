package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
)

// Service is the reservation core plus the order lifecycle. Stock checks,
// decrements and the order insert happen in one transaction inside the repo;
// the cache write and event publish here run only after commit and are
// best-effort.
type Service struct {
	Repo            *Repo
	Redis           *redis.Client
	CreatedProducer *kafkax.Producer
	StatusProducer  *kafkax.Producer
	ServiceName     string
	StrictFlow      bool
	Log             zerolog.Logger
}

func (s *Service) PlaceOrder(ctx context.Context, userID string, items []ItemInput, addr Address) (Order, error) {
	if userID == "" {
		return Order{}, fmt.Errorf("%w: missing user", ErrValidation)
	}
	if len(items) == 0 {
		return Order{}, fmt.Errorf("%w: order must have at least one item", ErrValidation)
	}
	for _, it := range items {
		if it.ProductID == "" {
			return Order{}, fmt.Errorf("%w: missing product id", ErrValidation)
		}
		if it.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: invalid quantity for product %s", ErrValidation, it.ProductID)
		}
	}
	if !addr.Complete() {
		return Order{}, fmt.Errorf("%w: incomplete shipping address", ErrValidation)
	}

	order, err := s.Repo.PlaceOrderTx(ctx, userID, items, addr)
	if err != nil {
		return Order{}, err
	}

	s.cacheStatus(ctx, order.ID, order.Status)
	s.publishCreated(ctx, order)

	s.Log.Info().Str("order_id", order.ID).Str("user_id", userID).
		Str("total", order.TotalAmount.String()).Int("items", len(order.Items)).
		Msg("order placed")
	return order, nil
}

func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status) (Order, error) {
	if !status.Valid() {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	before, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	order, err := s.Repo.UpdateStatus(ctx, orderID, status, s.StrictFlow)
	if err != nil {
		return Order{}, err
	}

	s.cacheStatus(ctx, order.ID, order.Status)
	s.publishStatusChanged(ctx, order.ID, before.Status, order.Status)

	s.Log.Info().Str("order_id", order.ID).
		Str("from", string(before.Status)).Str("to", string(order.Status)).
		Msg("order status updated")
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.Repo.ListOrders(ctx, userID)
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return s.Repo.GetOrder(ctx, orderID)
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, status Status) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	val := fmt.Sprintf(`{"status":%q}`, status)
	if err := s.Redis.Set(ctx, key, val, redisx.TTLStatusCache).Err(); err != nil {
		s.Log.Warn().Err(err).Str("order_id", orderID).Msg("status cache write failed")
	}
}

func (s *Service) publishCreated(ctx context.Context, o Order) {
	if s.CreatedProducer == nil {
		return
	}
	items := make([]ItemSold, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemSold{ProductID: it.ProductID, Qty: it.Quantity, Price: it.Price})
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       traceID(ctx),
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(OrderCreatedPayload{
			OrderID: o.ID, UserID: o.UserID, Items: items, TotalAmount: o.TotalAmount,
		}),
	}
	s.CreatedProducer.Publish(PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) publishStatusChanged(ctx context.Context, orderID string, from, to Status) {
	if s.StatusProducer == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       traceID(ctx),
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(OrderStatusChangedPayload{
			OrderID: orderID, OldStatus: from, NewStatus: to,
		}),
	}
	s.StatusProducer.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderStatusChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

type traceKey struct{}

// WithTraceID stores the request id for event correlation.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
