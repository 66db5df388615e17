package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestOrderPatch_ApplyTo_ShallowMerge(t *testing.T) {
	order := makeOrder()
	stepsBefore := len(order.Steps)

	notes := "rush order"
	status := domain.OrderStatusApproved
	qty := 25
	patch := domain.OrderPatch{
		Notes:    &notes,
		Status:   &status,
		Quantity: &qty,
	}
	patch.ApplyTo(&order)

	if order.Notes != notes || order.Status != status || order.Quantity != qty {
		t.Fatalf("patch not applied: %+v", order)
	}
	// Поля вне патча не трогаются, особенно Steps.
	if order.CustomerID != "customer-1" {
		t.Fatalf("untouched field changed: %s", order.CustomerID)
	}
	if len(order.Steps) != stepsBefore {
		t.Fatalf("steps changed by scalar patch: %d", len(order.Steps))
	}
}

func TestOrderPatch_ApplyTo_ExplicitSteps(t *testing.T) {
	order := makeOrder()
	steps := []domain.Step{{ID: "step-9", Name: "packing"}}
	patch := domain.OrderPatch{Steps: &steps}
	patch.ApplyTo(&order)

	if len(order.Steps) != 1 || order.Steps[0].ID != "step-9" {
		t.Fatalf("explicit steps patch not applied: %+v", order.Steps)
	}
}

func TestOrderPatch_IsEmpty(t *testing.T) {
	if !(domain.OrderPatch{}).IsEmpty() {
		t.Fatal("zero patch must be empty")
	}
	if (domain.OrderPatch{Notes: strPtr("x")}).IsEmpty() {
		t.Fatal("patch with notes must not be empty")
	}
}

func TestEventOrderID(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name  string
		event domain.Event
		want  string
	}{
		{"created", domain.OrderCreated{Order: domain.Order{ID: "o-1"}}, "o-1"},
		{"fields changed", domain.OrderFieldsChanged{OrderID: "o-2"}, "o-2"},
		{"status changed", domain.OrderStatusChanged{OrderID: "o-3", Status: domain.OrderStatusApproved, UpdatedAt: now}, "o-3"},
		{"priority changed", domain.OrderPriorityChanged{OrderID: "o-4", Priority: "high", UpdatedAt: now}, "o-4"},
		{"assignment changed", domain.AssignmentChanged{OrderID: "o-5", MachineID: strPtr("m-1")}, "o-5"},
		{"deleted", domain.OrderDeleted{OrderID: "o-6"}, "o-6"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.event.EventOrderID(); got != tc.want {
				t.Fatalf("EventOrderID() = %q, want %q", got, tc.want)
			}
		})
	}
}
