package tickets_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	tickets "ms-payments/internal/tickets/service"
)

type mockTicketDB struct {
	tickets map[string]*models.Ticket
}

func newMockTicketDB() *mockTicketDB {
	return &mockTicketDB{tickets: make(map[string]*models.Ticket)}
}

func (m *mockTicketDB) CreateTicket(_ context.Context, ticket *models.Ticket) error {
	m.tickets[ticket.TicketID] = ticket
	return nil
}

func (m *mockTicketDB) GetTicketByID(_ context.Context, ticketID string) (*models.Ticket, error) {
	if t, ok := m.tickets[ticketID]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, assert.AnError
}

func (m *mockTicketDB) GetTicketsByOrder(_ context.Context, orderID string) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range m.tickets {
		if t.OrderID == orderID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTicketDB) MarkUsed(_ context.Context, ticketID string, usedAt time.Time) error {
	t := m.tickets[ticketID]
	t.Status = models.TicketUsed
	t.UsedAt = usedAt
	return nil
}

func (m *mockTicketDB) DeleteTicket(_ context.Context, ticketID string) error {
	delete(m.tickets, ticketID)
	return nil
}

type mockOrders struct {
	order *models.Order
}

func (m *mockOrders) GetByID(_ context.Context, _ string) (*models.Order, error) {
	return m.order, nil
}

type mockUsage struct {
	referralCalls int
	discountCalls int
}

func (m *mockUsage) RecalculateReferral(_ context.Context, _ string) (int, error) {
	m.referralCalls++
	return 0, nil
}

func (m *mockUsage) RecalculateDiscount(_ context.Context, _ string) (int, error) {
	m.discountCalls++
	return 0, nil
}

func TestIssueTicketsCreatesPendingTickets(t *testing.T) {
	db := newMockTicketDB()
	order := &models.Order{ID: "order-1", OrderNumber: "ORD-1", Quantity: 3, ReferralCodeID: "rc-1"}
	usage := &mockUsage{}
	svc := tickets.NewTicketService(db, &mockOrders{order: order}, usage, logger.Discard())

	issued, err := svc.IssueTickets(context.Background(), order)
	require.NoError(t, err)
	assert.Len(t, issued, 3)
	for _, ticket := range issued {
		assert.Equal(t, models.TicketPending, ticket.Status)
		assert.NotEmpty(t, ticket.Serial)
	}
	assert.Equal(t, 1, usage.referralCalls)
	assert.Zero(t, usage.discountCalls)
}

func TestMarkUsedOnlyFromValid(t *testing.T) {
	db := newMockTicketDB()
	order := &models.Order{ID: "order-1", DiscountCodeID: "dc-1"}
	usage := &mockUsage{}
	svc := tickets.NewTicketService(db, &mockOrders{order: order}, usage, logger.Discard())

	db.tickets["t-valid"] = &models.Ticket{TicketID: "t-valid", OrderID: order.ID, Status: models.TicketValid}
	db.tickets["t-pending"] = &models.Ticket{TicketID: "t-pending", OrderID: order.ID, Status: models.TicketPending}

	err := svc.MarkUsed(context.Background(), "t-valid")
	assert.NoError(t, err)
	assert.Equal(t, models.TicketUsed, db.tickets["t-valid"].Status)
	assert.Equal(t, 1, usage.discountCalls)

	err = svc.MarkUsed(context.Background(), "t-pending")
	assert.Error(t, err)
	assert.Equal(t, models.TicketPending, db.tickets["t-pending"].Status)
}

func TestCancelTicketRecountsCodes(t *testing.T) {
	db := newMockTicketDB()
	order := &models.Order{ID: "order-1", ReferralCodeID: "rc-1", DiscountCodeID: "dc-1"}
	usage := &mockUsage{}
	svc := tickets.NewTicketService(db, &mockOrders{order: order}, usage, logger.Discard())

	db.tickets["t-1"] = &models.Ticket{TicketID: "t-1", OrderID: order.ID, Status: models.TicketValid}

	err := svc.CancelTicket(context.Background(), "t-1")
	assert.NoError(t, err)
	assert.NotContains(t, db.tickets, "t-1")
	assert.Equal(t, 1, usage.referralCalls)
	assert.Equal(t, 1, usage.discountCalls)
}
