package projector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/orders"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
)

// Service projects order events into Redis: the order-status cache stays
// warm after the TTL set by the API expires, and per-product sales counters
// feed the storefront's "units sold" numbers. Consuming the same event twice
// must not double a counter, hence the event-id dedup.
type Service struct {
	Redis       *redis.Client
	ServiceName string
	Log         zerolog.Logger
}

func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated {
		return nil // ignore
	}
	seen, err := s.markSeen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return err
	}

	for _, it := range p.Items {
		key := fmt.Sprintf(redisx.KeyProductSales, it.ProductID)
		if err := s.Redis.IncrBy(ctx, key, int64(it.Qty)).Err(); err != nil {
			return err
		}
	}
	s.cacheStatus(ctx, p.OrderID, orders.StatusOrdered)

	s.Log.Debug().Str("order_id", p.OrderID).Int("items", len(p.Items)).Msg("order created projected")
	return nil
}

func (s *Service) HandleStatusChanged(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil // ignore
	}
	seen, err := s.markSeen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		return err
	}
	s.cacheStatus(ctx, p.OrderID, p.NewStatus)

	s.Log.Debug().Str("order_id", p.OrderID).Str("status", string(p.NewStatus)).Msg("status change projected")
	return nil
}

// markSeen records the event id and reports whether it was already there.
func (s *Service) markSeen(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, eventID)
	ok, err := s.Redis.SetNX(ctx, key, "1", redisx.TTLDedup).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, status orders.Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	val := fmt.Sprintf(`{"status":%q}`, status)
	if err := s.Redis.Set(ctx, key, val, redisx.TTLStatusCache).Err(); err != nil {
		s.Log.Warn().Err(err).Str("order_id", orderID).Msg("status cache write failed")
	}
}
