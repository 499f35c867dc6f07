package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"ms-payments/internal/auth"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	orderdb "ms-payments/internal/order/db"
	"ms-payments/internal/tickets/api"
	tickets "ms-payments/internal/tickets/service"
)

const adminRole = "payments-admin"

type mockTicketDB struct {
	tickets []models.Ticket
}

func (m *mockTicketDB) CreateTicket(_ context.Context, _ *models.Ticket) error { return nil }

func (m *mockTicketDB) GetTicketByID(_ context.Context, _ string) (*models.Ticket, error) {
	return nil, assert.AnError
}

func (m *mockTicketDB) GetTicketsByOrder(_ context.Context, orderID string) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range m.tickets {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTicketDB) MarkUsed(_ context.Context, _ string, _ time.Time) error { return nil }
func (m *mockTicketDB) DeleteTicket(_ context.Context, _ string) error          { return nil }

type mockOrderLoader struct {
	order *models.Order
}

func (m *mockOrderLoader) GetOrder(_ context.Context, id string) (*models.Order, error) {
	if m.order == nil || m.order.ID != id {
		return nil, orderdb.ErrNotFound
	}
	return m.order, nil
}

func (m *mockOrderLoader) GetByID(ctx context.Context, id string) (*models.Order, error) {
	return m.GetOrder(ctx, id)
}

type mockUsage struct{}

func (mockUsage) RecalculateReferral(_ context.Context, _ string) (int, error) { return 0, nil }
func (mockUsage) RecalculateDiscount(_ context.Context, _ string) (int, error) { return 0, nil }

func newTicketRouter(order *models.Order, ticketDB *mockTicketDB) *chi.Mux {
	loader := &mockOrderLoader{order: order}
	svc := tickets.NewTicketService(ticketDB, loader, mockUsage{}, logger.Discard())
	handler := &api.Handler{
		Tickets:   svc,
		Orders:    loader,
		AdminRole: adminRole,
		Logger:    logger.Discard(),
	}

	r := chi.NewRouter()
	r.Get("/api/v1/tickets/by-order/{orderId}", handler.OrderTickets)
	return r
}

func getTickets(router http.Handler, orderID string, ctx context.Context) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets/by-order/"+orderID, nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestOrderTicketsOwnerAllowed(t *testing.T) {
	order := &models.Order{ID: "order-1", OrderNumber: "ORD-1", UserID: "buyer"}
	router := newTicketRouter(order, &mockTicketDB{
		tickets: []models.Ticket{{TicketID: "t1", OrderID: "order-1", Status: models.TicketValid}},
	})

	rec := getTickets(router, "order-1", auth.WithUser(context.Background(), "buyer"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderTicketsStrangerForbidden(t *testing.T) {
	order := &models.Order{ID: "order-1", OrderNumber: "ORD-1", UserID: "buyer"}
	router := newTicketRouter(order, &mockTicketDB{})

	rec := getTickets(router, "order-1", auth.WithUser(context.Background(), "someone-else"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOrderTicketsAdminAllowed(t *testing.T) {
	order := &models.Order{ID: "order-1", OrderNumber: "ORD-1", UserID: "buyer"}
	router := newTicketRouter(order, &mockTicketDB{})

	rec := getTickets(router, "order-1", auth.WithUser(context.Background(), "support-agent", adminRole))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderTicketsUnknownOrder(t *testing.T) {
	router := newTicketRouter(nil, &mockTicketDB{})

	rec := getTickets(router, "order-missing", auth.WithUser(context.Background(), "buyer"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
