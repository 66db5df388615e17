package domain

import (
	"encoding/json"
	"time"
)

// OrderStatus описывает общий статус производственного заказа.
// Статус носит координационный характер: клиент хранит то, что прислал сервер,
// и не навязывает собственную валидацию переходов (см. CanTransition).
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ожидает подтверждения.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusApproved — заказ подтверждён и готов к запуску в производство.
	OrderStatusApproved OrderStatus = "approved"
	// OrderStatusInProgress — заказ выполняется на производственных этапах.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusCompleted — все этапы производства завершены.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusIssue — при выполнении возникла проблема, требующая внимания.
	OrderStatusIssue OrderStatus = "issue"
	// OrderStatusDispatched — заказ отгружен заказчику (терминальный статус).
	OrderStatusDispatched OrderStatus = "dispatched"
	// OrderStatusCancelled — заказ отменён до завершения (терминальный статус).
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusOnHold — заказ приостановлен; возможен возврат в прежний статус.
	OrderStatusOnHold OrderStatus = "on_hold"
)

// Known сообщает, относится ли статус к известному клиенту набору.
// Сервер может расширять набор статусов; неизвестные значения принимаются как есть.
func (s OrderStatus) Known() bool {
	switch s {
	case OrderStatusPending, OrderStatusApproved, OrderStatusInProgress,
		OrderStatusCompleted, OrderStatusIssue, OrderStatusDispatched,
		OrderStatusCancelled, OrderStatusOnHold:
		return true
	default:
		return false
	}
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDispatched || s == OrderStatusCancelled
}

// orderTransitions — таблица допустимых переходов общего статуса.
// on_hold достижим из любого нетерминального статуса; клиент не хранит
// "откуда приостановили", поэтому возврат допускается в любой нетерминальный статус.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusApproved, OrderStatusCancelled, OrderStatusOnHold},
	OrderStatusApproved:   {OrderStatusInProgress, OrderStatusCancelled, OrderStatusOnHold},
	OrderStatusInProgress: {OrderStatusCompleted, OrderStatusIssue, OrderStatusOnHold},
	OrderStatusCompleted:  {OrderStatusDispatched, OrderStatusOnHold},
	OrderStatusIssue:      {OrderStatusInProgress, OrderStatusDispatched, OrderStatusOnHold},
	OrderStatusOnHold: {
		OrderStatusPending, OrderStatusApproved, OrderStatusInProgress,
		OrderStatusCompleted, OrderStatusIssue,
	},
}

// CanTransition проверяет переход по таблице статусов.
// Если хотя бы один из статусов неизвестен клиенту, переход считается допустимым:
// источником истины о расширенных статусах остаётся сервер.
func CanTransition(from, to OrderStatus) bool {
	if !from.Known() || !to.Known() {
		return true
	}
	if from == to {
		return true
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AssignmentStatus описывает жизненный цикл назначения станка внутри этапа.
type AssignmentStatus string

const (
	// AssignmentStatusPending — станок назначен, работа не начата.
	AssignmentStatusPending AssignmentStatus = "pending"
	// AssignmentStatusInProgress — станок выполняет работу по этапу.
	AssignmentStatusInProgress AssignmentStatus = "in-progress"
	// AssignmentStatusCompleted — работа на станке завершена успешно.
	AssignmentStatusCompleted AssignmentStatus = "completed"
	// AssignmentStatusFailed — работа на станке завершилась неудачей.
	AssignmentStatusFailed AssignmentStatus = "failed"
)

// Terminal сообщает, что статус назначения конечный и не должен откатываться.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentStatusCompleted || s == AssignmentStatusFailed
}

// MachineAssignment — назначение станка (и опционально оператора) на этап.
// Статус назначения живёт независимо от статусов соседних станков.
type MachineAssignment struct {
	ID          string           `json:"id"`
	MachineID   string           `json:"machine_id"`
	OperatorID  string           `json:"operator_id,omitempty"`
	Status      AssignmentStatus `json:"status"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Note        string           `json:"note,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

// ApplyStatus применяет новый статус назначения с учётом монотонности:
// терминальный статус не откатывается в pending устаревшим событием.
// При переходе в терминальный статус проставляется completedAt, если сервер
// его не прислал. Возвращает false, если смена статуса была отклонена.
func (a *MachineAssignment) ApplyStatus(status AssignmentStatus, at time.Time) bool {
	if a.Status.Terminal() && status == AssignmentStatusPending {
		return false
	}

	a.Status = status
	if status.Terminal() && a.CompletedAt == nil {
		if at.IsZero() {
			at = time.Now().UTC()
		}
		completed := at
		a.CompletedAt = &completed
	}
	return true
}

// Step — один этап производственной последовательности заказа.
type Step struct {
	ID       string              `json:"id"`
	Name     string              `json:"name,omitempty"`
	Sequence int                 `json:"sequence,omitempty"`
	Machines []MachineAssignment `json:"machines,omitempty"`
}

// FindAssignment возвращает назначение станка по идентификатору или nil.
func (s *Step) FindAssignment(id string) *MachineAssignment {
	for i := range s.Machines {
		if s.Machines[i].ID == id {
			return &s.Machines[i]
		}
	}
	return nil
}

// Order — производственный заказ со всей цепочкой этапов.
// Последовательность Steps семантически значима (порядок производства)
// и никогда не переупорядочивается при reconciliation.
type Order struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"order_number,omitempty"`
	CustomerID  string      `json:"customer_id,omitempty"`
	BranchID    string      `json:"branch_id,omitempty"`
	ProductID   string      `json:"product_id,omitempty"`
	MaterialIDs []string    `json:"material_ids,omitempty"`
	Quantity    int         `json:"quantity,omitempty"`
	WidthMM     float64     `json:"width_mm,omitempty"`
	HeightMM    float64     `json:"height_mm,omitempty"`
	Priority    string      `json:"priority,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	CreatedBy   string      `json:"created_by,omitempty"`
	CreatorRole string      `json:"creator_role,omitempty"`
	Status      OrderStatus `json:"status"`

	// Назначения уровня заказа — быстрый доступ к "текущему" станку/оператору.
	MachineID  string `json:"machine_id,omitempty"`
	OperatorID string `json:"operator_id,omitempty"`

	Steps []Step `json:"steps,omitempty"`

	// Агрегаты прогресса приходят от сервера и не пересчитываются клиентом.
	CompletedSteps     int     `json:"completed_steps,omitempty"`
	TotalMachines      int     `json:"total_machines,omitempty"`
	ProgressPercentage float64 `json:"progress_percentage,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// orderAlias нужен, чтобы UnmarshalJSON не зациклился на самом себе.
type orderAlias Order

type orderWire struct {
	orderAlias
	// Legacy-бэкенд присылает идентификатор в поле _id.
	LegacyID string `json:"_id,omitempty"`
}

// UnmarshalJSON принимает заказ как с полем id, так и с legacy-полем _id.
func (o *Order) UnmarshalJSON(data []byte) error {
	var wire orderWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.orderAlias.ID == "" && wire.LegacyID != "" {
		wire.orderAlias.ID = wire.LegacyID
	}
	*o = Order(wire.orderAlias)
	return nil
}

// FindStep возвращает этап по идентификатору или nil.
func (o *Order) FindStep(id string) *Step {
	for i := range o.Steps {
		if o.Steps[i].ID == id {
			return &o.Steps[i]
		}
	}
	return nil
}

// Clone возвращает глубокую копию заказа.
// Кэш и коллекция никогда не мутируют заказ на месте — только заменяют копию.
func (o Order) Clone() Order {
	cp := o
	if o.MaterialIDs != nil {
		cp.MaterialIDs = append([]string(nil), o.MaterialIDs...)
	}
	if o.Steps != nil {
		cp.Steps = make([]Step, len(o.Steps))
		for i, step := range o.Steps {
			cp.Steps[i] = step
			if step.Machines == nil {
				continue
			}
			cp.Steps[i].Machines = append([]MachineAssignment(nil), step.Machines...)
			for j := range cp.Steps[i].Machines {
				m := &cp.Steps[i].Machines[j]
				if m.StartedAt != nil {
					started := *m.StartedAt
					m.StartedAt = &started
				}
				if m.CompletedAt != nil {
					completed := *m.CompletedAt
					m.CompletedAt = &completed
				}
			}
		}
	}
	return cp
}

// Reference — справочная сущность для форм (филиал, клиент, станок, продукт,
// материал и таксономии их типов). Клиенту достаточно идентификатора и имени,
// остальные поля переносятся как есть.
type Reference struct {
	ID     string          `json:"id"`
	Name   string          `json:"name,omitempty"`
	TypeID string          `json:"type_id,omitempty"`
	Extra  json.RawMessage `json:"extra,omitempty"`
}

type referenceAlias Reference

type referenceWire struct {
	referenceAlias
	LegacyID string `json:"_id,omitempty"`
}

// UnmarshalJSON принимает справочник как с полем id, так и с legacy-полем _id.
func (r *Reference) UnmarshalJSON(data []byte) error {
	var wire referenceWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.referenceAlias.ID == "" && wire.LegacyID != "" {
		wire.referenceAlias.ID = wire.LegacyID
	}
	*r = Reference(wire.referenceAlias)
	return nil
}
