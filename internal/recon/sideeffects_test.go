package recon_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/recon"
)

type mockTicketStore struct {
	tickets map[string][]models.Ticket
}

func newMockTicketStore() *mockTicketStore {
	return &mockTicketStore{tickets: make(map[string][]models.Ticket)}
}

func (m *mockTicketStore) CountByOrder(_ context.Context, orderID string) (int, error) {
	return len(m.tickets[orderID]), nil
}

func (m *mockTicketStore) CreateTicket(_ context.Context, ticket *models.Ticket) error {
	m.tickets[ticket.OrderID] = append(m.tickets[ticket.OrderID], *ticket)
	return nil
}

func (m *mockTicketStore) ActivateForOrder(_ context.Context, orderID string) (int, error) {
	changed := 0
	list := m.tickets[orderID]
	for i := range list {
		if list[i].Status != models.TicketValid && list[i].Status != models.TicketUsed {
			list[i].Status = models.TicketValid
			changed++
		}
	}
	return changed, nil
}

func (m *mockTicketStore) GetTicketsByOrder(_ context.Context, orderID string) ([]models.Ticket, error) {
	return m.tickets[orderID], nil
}

type mockUsage struct {
	referralCalls int
	discountCalls int
}

func (m *mockUsage) RecalculateReferral(_ context.Context, _ string) (int, error) {
	m.referralCalls++
	return 1, nil
}

func (m *mockUsage) RecalculateDiscount(_ context.Context, _ string) (int, error) {
	m.discountCalls++
	return 1, nil
}

type mockCodeLoader struct {
	referral *models.ReferralCode
	discount *models.DiscountCode
}

func (m *mockCodeLoader) GetReferralByID(_ context.Context, _ string) (*models.ReferralCode, error) {
	return m.referral, nil
}

func (m *mockCodeLoader) GetDiscountByID(_ context.Context, _ string) (*models.DiscountCode, error) {
	return m.discount, nil
}

type mockPublisher struct {
	events []models.OrderPaidEvent
	err    error
}

func (m *mockPublisher) PublishOrderPaid(_ context.Context, event models.OrderPaidEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func paidOrder() *models.Order {
	return &models.Order{
		ID:          "order-1",
		OrderNumber: "ORD-1700000000-000001",
		UserID:      "user123",
		Quantity:    2,
		GrossAmount: 100.0,
		FinalAmount: 100.0,
		Status:      models.StatusSettlement,
		PaidAt:      time.Now(),
		CreatedAt:   time.Now().Add(-time.Hour),
	}
}

func TestPipelineActivatesPendingTickets(t *testing.T) {
	order := paidOrder()
	tickets := newMockTicketStore()
	tickets.tickets[order.ID] = []models.Ticket{
		{TicketID: "t1", OrderID: order.ID, Status: models.TicketPending},
		{TicketID: "t2", OrderID: order.ID, Status: models.TicketValid},
	}
	publisher := &mockPublisher{}

	pipeline := recon.NewPipeline(tickets, &mockUsage{}, &mockCodeLoader{}, publisher, logger.Discard())

	err := pipeline.Run(context.Background(), order)
	assert.NoError(t, err)

	for _, ticket := range tickets.tickets[order.ID] {
		assert.Equal(t, models.TicketValid, ticket.Status)
	}
	require.Len(t, publisher.events, 1)
	assert.Equal(t, order.OrderNumber, publisher.events[0].Order.OrderNumber)
	assert.Len(t, publisher.events[0].Tickets, 2)
}

func TestPipelineIssuesTicketsWhenNoneExist(t *testing.T) {
	order := paidOrder()
	tickets := newMockTicketStore()
	publisher := &mockPublisher{}

	pipeline := recon.NewPipeline(tickets, &mockUsage{}, &mockCodeLoader{}, publisher, logger.Discard())

	err := pipeline.Run(context.Background(), order)
	assert.NoError(t, err)
	require.Len(t, tickets.tickets[order.ID], order.Quantity)
	for _, ticket := range tickets.tickets[order.ID] {
		assert.Equal(t, models.TicketValid, ticket.Status)
		assert.NotEmpty(t, ticket.Serial)
	}
}

func TestPipelineRecountsOnlyReferencedCodes(t *testing.T) {
	order := paidOrder()
	order.ReferralCodeID = "ref-1"
	usage := &mockUsage{}
	loader := &mockCodeLoader{referral: &models.ReferralCode{ID: "ref-1", Code: "FRIEND10"}}
	publisher := &mockPublisher{}

	pipeline := recon.NewPipeline(newMockTicketStore(), usage, loader, publisher, logger.Discard())

	err := pipeline.Run(context.Background(), order)
	assert.NoError(t, err)
	assert.Equal(t, 1, usage.referralCalls)
	assert.Zero(t, usage.discountCalls)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "FRIEND10", publisher.events[0].ReferralCode.Code)
}

func TestPipelineDispatchFailureKeepsTickets(t *testing.T) {
	order := paidOrder()
	tickets := newMockTicketStore()
	tickets.tickets[order.ID] = []models.Ticket{
		{TicketID: "t1", OrderID: order.ID, Status: models.TicketPending},
	}
	publisher := &mockPublisher{err: assert.AnError}

	pipeline := recon.NewPipeline(tickets, &mockUsage{}, &mockCodeLoader{}, publisher, logger.Discard())

	err := pipeline.Run(context.Background(), order)
	assert.Error(t, err)
	// Tickets stay valid; only the dispatch is retried later.
	assert.Equal(t, models.TicketValid, tickets.tickets[order.ID][0].Status)
}
