//go:build db
// +build db

package orders

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TORQUEHUB_DB_DSN")
	if dsn == "" {
		t.Skip("TORQUEHUB_DB_DSN is not set")
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return conn
}

func seedActor(t *testing.T, conn *gorm.DB, role enums.ActorRole) uuid.UUID {
	t.Helper()

	actor := &models.Actor{
		Role:         role,
		Name:         "Repo Test",
		Email:        fmt.Sprintf("th_test_%s@example.com", uuid.NewString()),
		PasswordHash: "hash",
	}
	if err := conn.Create(actor).Error; err != nil {
		t.Fatalf("create actor: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Delete(&models.Actor{}, "id = ?", actor.ID).Error
	})
	return actor.ID
}

func seedOrder(t *testing.T, conn *gorm.DB, order *models.PartsOrder) *models.PartsOrder {
	t.Helper()

	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Delete(&models.PartsOrder{}, "id = ?", order.ID).Error
	})
	return order
}

func TestClaimInquiryConcurrentSuppliers(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	techID := seedActor(t, conn, enums.ActorRoleTechnician)
	supplierA := seedActor(t, conn, enums.ActorRoleSupplier)
	supplierB := seedActor(t, conn, enums.ActorRoleSupplier)
	order := seedOrder(t, conn, &models.PartsOrder{
		TechnicianID: &techID,
		Status:       enums.OrderStatusInquiry,
	})

	type claim struct {
		supplier uuid.UUID
		won      bool
	}
	results := make(chan claim, 2)
	var wg sync.WaitGroup
	for _, supplierID := range []uuid.UUID{supplierA, supplierB} {
		wg.Add(1)
		go func(supplierID uuid.UUID) {
			defer wg.Done()
			items := []models.OrderItem{
				{Name: "front brake pads", Quantity: 2, UnitPrice: decimal.RequireFromString("450.00")},
			}
			ok, err := repo.ClaimInquiry(ctx, order.ID, supplierID, items, decimal.RequireFromString("900.00"))
			if err != nil {
				t.Errorf("claim inquiry: %v", err)
			}
			results <- claim{supplier: supplierID, won: ok}
		}(supplierID)
	}
	wg.Wait()
	close(results)

	var winner *uuid.UUID
	for c := range results {
		if !c.won {
			continue
		}
		if winner != nil {
			t.Fatal("both suppliers claimed the inquiry")
		}
		id := c.supplier
		winner = &id
	}
	if winner == nil {
		t.Fatal("no supplier claimed the inquiry")
	}

	claimed, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if claimed.Status != enums.OrderStatusQuoted {
		t.Fatalf("expected status quoted, got %s", claimed.Status)
	}
	if claimed.SupplierID == nil || *claimed.SupplierID != *winner {
		t.Fatalf("expected supplier %s on the order", winner)
	}
}

func TestUpdateWherePaymentConcurrentSettles(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	techID := seedActor(t, conn, enums.ActorRoleTechnician)
	supplierID := seedActor(t, conn, enums.ActorRoleSupplier)
	order := seedOrder(t, conn, &models.PartsOrder{
		TechnicianID: &techID,
		SupplierID:   &supplierID,
		Status:       enums.OrderStatusConfirmed,
		TotalAmount:  decimal.RequireFromString("700.00"),
	})

	results := make(chan bool, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.UpdateWherePayment(ctx, order.ID, payableStatuses(), unsettledPaymentStatuses(), map[string]any{
				"payment_status": enums.PaymentStatusPaid,
				"payment_method": enums.PaymentMethodWallet,
			})
			if err != nil {
				t.Errorf("settle order: %v", err)
				results <- false
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one settlement to win, got %d", wins)
	}

	settled, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if settled.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected payment status paid, got %s", settled.PaymentStatus)
	}
}
