package orders

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-shop-orders.git/internal/catalog"
	"github.com/ariefcatur/go-shop-orders.git/internal/postgres"
)

var testAddr = Address{
	City:               "Jakarta",
	Street:             "Jl. Sudirman 12",
	Building:           "Tower A",
	ContactPhoneNumber: "+62-811-000-111",
}

func TestPlaceOrderValidation(t *testing.T) {
	svc := &Service{Log: zerolog.Nop()}
	ctx := context.Background()

	_, err := svc.PlaceOrder(ctx, "", []ItemInput{{ProductID: "p", Quantity: 1}}, testAddr)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.PlaceOrder(ctx, "user-1", nil, testAddr)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.PlaceOrder(ctx, "user-1", []ItemInput{{ProductID: "p", Quantity: 0}}, testAddr)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.PlaceOrder(ctx, "user-1", []ItemInput{{ProductID: "p", Quantity: -2}}, testAddr)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.PlaceOrder(ctx, "user-1", []ItemInput{{ProductID: "p", Quantity: 1}}, Address{City: "Jakarta"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	svc := &Service{Log: zerolog.Nop()}

	_, err := svc.UpdateStatus(context.Background(), "any", Status("Pending"))
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := &InsufficientStockError{Shortages: []StockShortage{
		{ProductID: "p1", Requested: 3, Available: 1},
		{ProductID: "p2", Requested: 2, Available: 0},
	}}
	require.Contains(t, err.Error(), "p1 (requested 3, available 1)")
	require.Contains(t, err.Error(), "p2 (requested 2, available 0)")
}

// Integration suite against a real Postgres; set TEST_POSTGRES_DSN to run.
type ServiceTestSuite struct {
	suite.Suite
	db  *pgxpool.Pool
	svc *Service
}

func TestServiceTestSuite(t *testing.T) {
	if os.Getenv("TEST_POSTGRES_DSN") == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) SetupSuite() {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	require.NoError(s.T(), postgres.Migrate(dsn, "../../db/migrations"))

	db, err := postgres.Connect(context.Background(), dsn)
	require.NoError(s.T(), err)
	s.db = db

	catalogRepo := &catalog.Repo{DB: db}
	s.svc = &Service{
		Repo: &Repo{DB: db, Catalog: catalogRepo},
		Log:  zerolog.Nop(),
	}
}

func (s *ServiceTestSuite) SetupTest() {
	ctx := context.Background()
	_, _ = s.db.Exec(ctx, "DELETE FROM order_items")
	_, _ = s.db.Exec(ctx, "DELETE FROM orders")
	_, _ = s.db.Exec(ctx, "DELETE FROM products")
}

func (s *ServiceTestSuite) TearDownSuite() {
	s.db.Close()
}

func (s *ServiceTestSuite) seedProduct(name string, price string, qty int) string {
	id := uuid.NewString()
	_, err := s.db.Exec(context.Background(), `
		INSERT INTO products(id, name, description, price, image, quantity, category_id)
		VALUES ($1, $2, '', $3, 'https://img.example/p.jpg', $4, $5)`,
		id, name, price, qty, uuid.NewString())
	require.NoError(s.T(), err)
	return id
}

func (s *ServiceTestSuite) stockOf(productID string) int {
	var n int
	err := s.db.QueryRow(context.Background(), `SELECT quantity FROM products WHERE id=$1`, productID).Scan(&n)
	require.NoError(s.T(), err)
	return n
}

func (s *ServiceTestSuite) orderCount() int {
	var n int
	err := s.db.QueryRow(context.Background(), `SELECT COUNT(*) FROM orders`).Scan(&n)
	require.NoError(s.T(), err)
	return n
}

func (s *ServiceTestSuite) TestPlaceOrderDecrementsStock() {
	ctx := context.Background()
	p1 := s.seedProduct("keyboard", "10.00", 10)
	p2 := s.seedProduct("mouse", "5.00", 4)

	order, err := s.svc.PlaceOrder(ctx, "user-1", []ItemInput{
		{ProductID: p1, Quantity: 2},
		{ProductID: p2, Quantity: 1},
	}, testAddr)
	require.NoError(s.T(), err)

	require.Equal(s.T(), StatusOrdered, order.Status)
	require.Len(s.T(), order.Items, 2)
	require.True(s.T(), order.TotalAmount.Equal(decimal.NewFromInt(25)),
		"total %s, want 25", order.TotalAmount)
	require.Equal(s.T(), 8, s.stockOf(p1))
	require.Equal(s.T(), 3, s.stockOf(p2))

	got, err := s.svc.GetOrder(ctx, order.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), "user-1", got.UserID)
	require.Equal(s.T(), testAddr, got.ShippingAddress)
	require.Len(s.T(), got.Items, 2)
	for _, it := range got.Items {
		require.NotEmpty(s.T(), it.Name)
		require.NotEmpty(s.T(), it.Image)
	}
}

func (s *ServiceTestSuite) TestInsufficientStockLeavesEverythingUntouched() {
	ctx := context.Background()
	p1 := s.seedProduct("keyboard", "10.00", 10)
	p2 := s.seedProduct("mouse", "5.00", 1)

	_, err := s.svc.PlaceOrder(ctx, "user-1", []ItemInput{
		{ProductID: p1, Quantity: 2},
		{ProductID: p2, Quantity: 3},
	}, testAddr)

	var stockErr *InsufficientStockError
	require.ErrorAs(s.T(), err, &stockErr)
	require.Len(s.T(), stockErr.Shortages, 1)
	require.Equal(s.T(), p2, stockErr.Shortages[0].ProductID)
	require.Equal(s.T(), 3, stockErr.Shortages[0].Requested)
	require.Equal(s.T(), 1, stockErr.Shortages[0].Available)

	require.Equal(s.T(), 10, s.stockOf(p1), "no partial decrement")
	require.Equal(s.T(), 1, s.stockOf(p2))
	require.Equal(s.T(), 0, s.orderCount(), "no order persisted")
}

func (s *ServiceTestSuite) TestAllShortagesReported() {
	ctx := context.Background()
	p1 := s.seedProduct("keyboard", "10.00", 1)
	p2 := s.seedProduct("mouse", "5.00", 0)

	_, err := s.svc.PlaceOrder(ctx, "user-1", []ItemInput{
		{ProductID: p1, Quantity: 2},
		{ProductID: p2, Quantity: 1},
	}, testAddr)

	var stockErr *InsufficientStockError
	require.ErrorAs(s.T(), err, &stockErr)
	require.Len(s.T(), stockErr.Shortages, 2)
}

func (s *ServiceTestSuite) TestUnknownProductRejectsWholeOrder() {
	ctx := context.Background()
	p1 := s.seedProduct("keyboard", "10.00", 10)

	_, err := s.svc.PlaceOrder(ctx, "user-1", []ItemInput{
		{ProductID: p1, Quantity: 1},
		{ProductID: uuid.NewString(), Quantity: 1},
	}, testAddr)

	require.ErrorIs(s.T(), err, catalog.ErrNotFound)
	require.Equal(s.T(), 10, s.stockOf(p1))
	require.Equal(s.T(), 0, s.orderCount())
}

func (s *ServiceTestSuite) TestDuplicateLinesCollapse() {
	ctx := context.Background()
	p1 := s.seedProduct("keyboard", "10.00", 5)

	order, err := s.svc.PlaceOrder(ctx, "user-1", []ItemInput{
		{ProductID: p1, Quantity: 2},
		{ProductID: p1, Quantity: 1},
	}, testAddr)
	require.NoError(s.T(), err)
	require.Len(s.T(), order.Items, 1)
	require.Equal(s.T(), 3, order.Items[0].Quantity)
	require.Equal(s.T(), 2, s.stockOf(p1))
}

func (s *ServiceTestSuite) TestConcurrentOrdersCannotOversell() {
	ctx := context.Background()
	p1 := s.seedProduct("limited", "10.00", 5)

	results := make([]error, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		i := i
		g.Go(func() error {
			_, err := s.svc.PlaceOrder(ctx, "user-1", []ItemInput{{ProductID: p1, Quantity: 3}}, testAddr)
			results[i] = err
			return nil
		})
	}
	require.NoError(s.T(), g.Wait())

	var okCount, stockErrCount int
	for _, err := range results {
		var stockErr *InsufficientStockError
		switch {
		case err == nil:
			okCount++
		case errors.As(err, &stockErr):
			stockErrCount++
		default:
			s.T().Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(s.T(), 1, okCount, "exactly one order must win")
	require.Equal(s.T(), 1, stockErrCount)
	require.Equal(s.T(), 2, s.stockOf(p1))
	require.Equal(s.T(), 1, s.orderCount())
}

func (s *ServiceTestSuite) TestTotalIsSnapshotImmune() {
	ctx := context.Background()
	p1 := s.seedProduct("keyboard", "10.00", 10)
	p2 := s.seedProduct("mouse", "5.00", 10)

	order, err := s.svc.PlaceOrder(ctx, "user-1", []ItemInput{
		{ProductID: p1, Quantity: 2},
		{ProductID: p2, Quantity: 1},
	}, testAddr)
	require.NoError(s.T(), err)
	require.True(s.T(), order.TotalAmount.Equal(decimal.NewFromInt(25)))

	_, err = s.db.Exec(ctx, `UPDATE products SET price=20.00 WHERE id=$1`, p1)
	require.NoError(s.T(), err)

	got, err := s.svc.GetOrder(ctx, order.ID)
	require.NoError(s.T(), err)
	require.True(s.T(), got.TotalAmount.Equal(decimal.NewFromInt(25)), "total is a snapshot")
	for _, it := range got.Items {
		if it.ProductID == p1 {
			require.True(s.T(), it.Price.Equal(decimal.NewFromInt(10)))
		}
	}
}

func (s *ServiceTestSuite) TestUpdateStatus() {
	ctx := context.Background()
	p1 := s.seedProduct("keyboard", "10.00", 10)
	order, err := s.svc.PlaceOrder(ctx, "user-1", []ItemInput{{ProductID: p1, Quantity: 1}}, testAddr)
	require.NoError(s.T(), err)

	updated, err := s.svc.UpdateStatus(ctx, order.ID, StatusShipped)
	require.NoError(s.T(), err)
	require.Equal(s.T(), StatusShipped, updated.Status)
	require.False(s.T(), updated.UpdatedAt.Before(order.UpdatedAt))

	_, err = s.svc.UpdateStatus(ctx, order.ID, Status("refunded"))
	require.ErrorIs(s.T(), err, ErrInvalidStatus)
	got, err := s.svc.GetOrder(ctx, order.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), StatusShipped, got.Status, "order unchanged after invalid status")

	_, err = s.svc.UpdateStatus(ctx, uuid.NewString(), StatusShipped)
	require.ErrorIs(s.T(), err, ErrOrderNotFound)
}

func (s *ServiceTestSuite) TestStrictFlow() {
	ctx := context.Background()
	strict := &Service{Repo: s.svc.Repo, StrictFlow: true, Log: zerolog.Nop()}

	p1 := s.seedProduct("keyboard", "10.00", 10)
	order, err := strict.PlaceOrder(ctx, "user-1", []ItemInput{{ProductID: p1, Quantity: 1}}, testAddr)
	require.NoError(s.T(), err)

	// ordered -> delivered skips the flow
	_, err = strict.UpdateStatus(ctx, order.ID, StatusDelivered)
	require.ErrorIs(s.T(), err, ErrInvalidTransition)

	_, err = strict.UpdateStatus(ctx, order.ID, StatusProcessing)
	require.NoError(s.T(), err)
	_, err = strict.UpdateStatus(ctx, order.ID, StatusCancelled)
	require.NoError(s.T(), err)

	// terminal states are frozen
	_, err = strict.UpdateStatus(ctx, order.ID, StatusOrdered)
	require.ErrorIs(s.T(), err, ErrInvalidTransition)
}

func (s *ServiceTestSuite) TestListOrdersNewestFirst() {
	ctx := context.Background()
	p1 := s.seedProduct("keyboard", "10.00", 100)

	first, err := s.svc.PlaceOrder(ctx, "user-1", []ItemInput{{ProductID: p1, Quantity: 1}}, testAddr)
	require.NoError(s.T(), err)
	second, err := s.svc.PlaceOrder(ctx, "user-2", []ItemInput{{ProductID: p1, Quantity: 2}}, testAddr)
	require.NoError(s.T(), err)
	third, err := s.svc.PlaceOrder(ctx, "user-1", []ItemInput{{ProductID: p1, Quantity: 3}}, testAddr)
	require.NoError(s.T(), err)

	all, err := s.svc.ListOrders(ctx, "")
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 3)
	require.False(s.T(), all[0].CreatedAt.Before(all[1].CreatedAt))
	require.False(s.T(), all[1].CreatedAt.Before(all[2].CreatedAt))

	mine, err := s.svc.ListOrders(ctx, "user-1")
	require.NoError(s.T(), err)
	require.Len(s.T(), mine, 2)
	require.ElementsMatch(s.T(),
		[]string{first.ID, third.ID},
		[]string{mine[0].ID, mine[1].ID})
	require.NotContains(s.T(), []string{mine[0].ID, mine[1].ID}, second.ID)
}
