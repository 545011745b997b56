package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountGateway resolves buyer identities. Account management is a
// separate service; only the lookup is needed here.
type AccountGateway interface {
	FindByID(ctx context.Context, id string) (Account, error)
}

// InventoryGateway exposes the catalog lookup and the atomic
// check-and-decrement reservation primitive. Implementations must join the
// ambient transaction carried in ctx so reservations roll back with the order.
type InventoryGateway interface {
	FindByID(ctx context.Context, id string) (Product, error)
	DecrementStock(ctx context.Context, id string, qty int) error
}

// Store is the unit-of-work boundary around order persistence.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, items []OrderItem) error
	UpdateTotal(ctx context.Context, orderID string, totalCents int) error
	UpdateStatus(ctx context.Context, orderID string, status Status) error
	GetOrderStatusForUpdate(ctx context.Context, orderID string) (Status, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
}

type Publisher interface {
	PublishOrderCreated(ctx context.Context, o Order) error
}

type Service struct {
	store     Store
	accounts  AccountGateway
	inventory InventoryGateway
	publisher Publisher
	logger    *zap.Logger
}

func NewService(store Store, accounts AccountGateway, inventory InventoryGateway, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		accounts:  accounts,
		inventory: inventory,
		publisher: publisher,
		logger:    logger,
	}
}

// Create reserves stock and persists the order atomically: the order row,
// its items and every stock decrement commit together or not at all. The
// order_created event is published only after a successful commit; a
// publish failure does not undo the order.
func (s *Service) Create(ctx context.Context, buyerID string, inputs []ItemInput) (Order, error) {
	if buyerID == "" {
		return Order{}, ErrUnauthorized
	}

	buyer, err := s.accounts.FindByID(ctx, buyerID)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:      uuid.NewString(),
		BuyerID: buyer.ID,
		Status:  StatusPending,
	}

	err = s.store.WithTx(ctx, func(txCtx context.Context) error {
		// Insert first so items can reference the order id.
		if err := s.store.InsertOrder(txCtx, &order); err != nil {
			return err
		}

		items := make([]OrderItem, 0, len(inputs))
		for _, in := range inputs {
			product, err := s.inventory.FindByID(txCtx, in.ProductID)
			if err != nil {
				return err
			}
			if err := s.inventory.DecrementStock(txCtx, product.ID, in.Qty); err != nil {
				return err
			}
			items = append(items, OrderItem{
				ID:             uuid.NewString(),
				OrderID:        order.ID,
				ProductID:      product.ID,
				Qty:            in.Qty,
				LineTotalCents: product.PriceCents * in.Qty,
			})
		}

		if err := s.store.InsertItems(txCtx, items); err != nil {
			return err
		}

		total := 0
		for _, it := range items {
			total += it.LineTotalCents
		}
		if err := s.store.UpdateTotal(txCtx, order.ID, total); err != nil {
			return err
		}

		order.Items = items
		order.TotalCents = total
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
		// The order is committed; fulfillment just was not notified.
		s.logger.Warn("order created but event publish failed",
			zap.String("order_id", order.ID), zap.Error(err))
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.store.ListOrders(ctx)
}

// Transition applies a manual status change, e.g. marking a shipped order
// DELIVERED or cancelling one before it ships.
func (s *Service) Transition(ctx context.Context, orderID string, to Status) error {
	return s.store.WithTx(ctx, func(txCtx context.Context) error {
		from, err := s.store.GetOrderStatusForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		return s.store.UpdateStatus(txCtx, orderID, to)
	})
}
