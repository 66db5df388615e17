package domain

import "time"

// Event — закрытое множество событий reconciliation, доставляемых push-каналом.
// Каждое событие несёт идентификатор заказа; остальные поля опциональны
// и вливаются в коллекцию поверхностным merge.
type Event interface {
	// EventOrderID возвращает идентификатор заказа, к которому относится событие.
	EventOrderID() string
}

// OrderCreated — на сервере появился новый заказ.
type OrderCreated struct {
	Order Order
}

func (e OrderCreated) EventOrderID() string { return e.Order.ID }

// OrderFieldsChanged — частичное обновление скалярных полей заказа.
type OrderFieldsChanged struct {
	OrderID string
	Patch   OrderPatch
}

func (e OrderFieldsChanged) EventOrderID() string { return e.OrderID }

// OrderStatusChanged — смена общего статуса заказа.
type OrderStatusChanged struct {
	OrderID   string
	Status    OrderStatus
	UpdatedAt time.Time
}

func (e OrderStatusChanged) EventOrderID() string { return e.OrderID }

// OrderPriorityChanged — смена приоритета заказа.
type OrderPriorityChanged struct {
	OrderID   string
	Priority  string
	UpdatedAt time.Time
}

func (e OrderPriorityChanged) EventOrderID() string { return e.OrderID }

// AssignmentChanged — изменение назначения станка/оператора.
// Если заданы StepID и AssignmentID, событие адресует конкретное назначение
// внутри этапа; иначе обновляются назначения уровня заказа.
type AssignmentChanged struct {
	OrderID      string
	StepID       string
	AssignmentID string
	MachineID    *string
	OperatorID   *string
	Status       *AssignmentStatus
	Note         *string
	Reason       *string
	UpdatedAt    time.Time
}

func (e AssignmentChanged) EventOrderID() string { return e.OrderID }

// OrderDeleted — заказ удалён на сервере.
type OrderDeleted struct {
	OrderID string
}

func (e OrderDeleted) EventOrderID() string { return e.OrderID }

// OrderPatch — частичное обновление заказа. Заполненные указатели означают
// "поле присутствует в событии"; nil-поля не трогаются при merge.
// Steps обновляются только когда явно присутствуют в патче.
type OrderPatch struct {
	OrderNumber *string      `json:"order_number,omitempty"`
	CustomerID  *string      `json:"customer_id,omitempty"`
	BranchID    *string      `json:"branch_id,omitempty"`
	ProductID   *string      `json:"product_id,omitempty"`
	MaterialIDs *[]string    `json:"material_ids,omitempty"`
	Quantity    *int         `json:"quantity,omitempty"`
	WidthMM     *float64     `json:"width_mm,omitempty"`
	HeightMM    *float64     `json:"height_mm,omitempty"`
	Priority    *string      `json:"priority,omitempty"`
	Notes       *string      `json:"notes,omitempty"`
	Status      *OrderStatus `json:"status,omitempty"`
	MachineID   *string      `json:"machine_id,omitempty"`
	OperatorID  *string      `json:"operator_id,omitempty"`
	Steps       *[]Step      `json:"steps,omitempty"`

	CompletedSteps     *int     `json:"completed_steps,omitempty"`
	TotalMachines      *int     `json:"total_machines,omitempty"`
	ProgressPercentage *float64 `json:"progress_percentage,omitempty"`

	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// IsEmpty сообщает, что патч не несёт ни одного поля.
func (p OrderPatch) IsEmpty() bool {
	return p.OrderNumber == nil && p.CustomerID == nil && p.BranchID == nil &&
		p.ProductID == nil && p.MaterialIDs == nil && p.Quantity == nil &&
		p.WidthMM == nil && p.HeightMM == nil && p.Priority == nil &&
		p.Notes == nil && p.Status == nil && p.MachineID == nil &&
		p.OperatorID == nil && p.Steps == nil && p.CompletedSteps == nil &&
		p.TotalMachines == nil && p.ProgressPercentage == nil && p.UpdatedAt == nil
}

// ApplyTo вливает патч в заказ поверхностным merge: затрагиваются только
// присутствующие поля, остальное (в том числе Steps) остаётся нетронутым.
func (p OrderPatch) ApplyTo(o *Order) {
	if p.OrderNumber != nil {
		o.OrderNumber = *p.OrderNumber
	}
	if p.CustomerID != nil {
		o.CustomerID = *p.CustomerID
	}
	if p.BranchID != nil {
		o.BranchID = *p.BranchID
	}
	if p.ProductID != nil {
		o.ProductID = *p.ProductID
	}
	if p.MaterialIDs != nil {
		o.MaterialIDs = append([]string(nil), (*p.MaterialIDs)...)
	}
	if p.Quantity != nil {
		o.Quantity = *p.Quantity
	}
	if p.WidthMM != nil {
		o.WidthMM = *p.WidthMM
	}
	if p.HeightMM != nil {
		o.HeightMM = *p.HeightMM
	}
	if p.Priority != nil {
		o.Priority = *p.Priority
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.MachineID != nil {
		o.MachineID = *p.MachineID
	}
	if p.OperatorID != nil {
		o.OperatorID = *p.OperatorID
	}
	if p.Steps != nil {
		o.Steps = append([]Step(nil), (*p.Steps)...)
	}
	if p.CompletedSteps != nil {
		o.CompletedSteps = *p.CompletedSteps
	}
	if p.TotalMachines != nil {
		o.TotalMachines = *p.TotalMachines
	}
	if p.ProgressPercentage != nil {
		o.ProgressPercentage = *p.ProgressPercentage
	}
	if p.UpdatedAt != nil {
		o.UpdatedAt = *p.UpdatedAt
	}
}
