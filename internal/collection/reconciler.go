package collection

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
	"github.com/vladislavdragonenkov/mosync/internal/metrics"
)

// Причины отбрасывания событий (метка reason в метриках).
const (
	dropReasonAbsent     = "absent"
	dropReasonDuplicate  = "duplicate"
	dropReasonStale      = "stale"
	dropReasonIllegal    = "illegal_transition"
	dropReasonNoTarget   = "absent_assignment"
	dropReasonEmptyPatch = "empty_patch"
)

// Reconciler применяет push-события к коллекции заказов.
// Отсутствие целевого заказа — ожидаемое, частое состояние (заказ вне текущей
// страницы или фильтра), поэтому оно трактуется как no-op, а не как ошибка.
type Reconciler struct {
	store  *Store
	logger *log.Entry
	meter  *metrics.SyncMetrics

	// strict включает отклонение недопустимых переходов статуса.
	// По умолчанию переход принимается и только логируется: источником
	// истины о графе статусов остаётся сервер.
	strict bool
}

// ReconcilerOption настраивает Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger задаёт logger.
func WithReconcilerLogger(logger *log.Entry) ReconcilerOption {
	return func(r *Reconciler) { r.logger = logger }
}

// WithReconcilerMetrics задаёт метрики.
func WithReconcilerMetrics(m *metrics.SyncMetrics) ReconcilerOption {
	return func(r *Reconciler) { r.meter = m }
}

// WithStrictTransitions включает строгий режим проверки переходов статуса.
func WithStrictTransitions() ReconcilerOption {
	return func(r *Reconciler) { r.strict = true }
}

// NewReconciler создаёт reconciler поверх коллекции.
func NewReconciler(store *Store, options ...ReconcilerOption) *Reconciler {
	r := &Reconciler{store: store}
	for _, option := range options {
		option(r)
	}
	if r.logger == nil {
		r.logger = log.WithField("component", "reconciler")
	}
	return r
}

// EventType возвращает строковый тип события для логов и метрик.
func EventType(event domain.Event) string {
	switch event.(type) {
	case domain.OrderCreated:
		return "order.created"
	case domain.OrderFieldsChanged:
		return "order.fields_changed"
	case domain.OrderStatusChanged:
		return "order.status_changed"
	case domain.OrderPriorityChanged:
		return "order.priority_changed"
	case domain.AssignmentChanged:
		return "order.assignment_changed"
	case domain.OrderDeleted:
		return "order.deleted"
	default:
		return "unknown"
	}
}

// Apply применяет одно событие к коллекции. Событие без идентификатора или
// неизвестного типа возвращает ошибку; все остальные исходы (дубль,
// отсутствующая цель, устаревшее событие) — штатные no-op.
func (r *Reconciler) Apply(event domain.Event) error {
	if event == nil {
		return domain.ErrUnknownEventType
	}
	if event.EventOrderID() == "" {
		return domain.ErrOrderIDRequired
	}

	eventType := EventType(event)
	logger := r.logger.WithFields(log.Fields{
		"event_type": eventType,
		"order_id":   event.EventOrderID(),
	})

	switch ev := event.(type) {
	case domain.OrderCreated:
		r.applyCreated(ev, logger)
	case domain.OrderFieldsChanged:
		r.applyFieldsChanged(ev, logger)
	case domain.OrderStatusChanged:
		r.applyStatusChanged(ev, logger)
	case domain.OrderPriorityChanged:
		r.applyPriorityChanged(ev, logger)
	case domain.AssignmentChanged:
		r.applyAssignmentChanged(ev, logger)
	case domain.OrderDeleted:
		r.applyDeleted(ev, logger)
	default:
		return domain.ErrUnknownEventType
	}
	return nil
}

func (r *Reconciler) applyCreated(ev domain.OrderCreated, logger *log.Entry) {
	// Заказ мог успеть прийти в составе полной загрузки: дубль не вставляется,
	// существующая позиция сохраняется (merge на месте внутри Insert).
	if inserted := r.store.Insert(ev.Order); !inserted {
		logger.Debug("created event for existing order, merged in place")
		r.dropped("order.created", dropReasonDuplicate)
		return
	}
	r.applied("order.created")
}

func (r *Reconciler) applyFieldsChanged(ev domain.OrderFieldsChanged, logger *log.Entry) {
	if ev.Patch.IsEmpty() {
		r.dropped("order.fields_changed", dropReasonEmptyPatch)
		return
	}

	found, applied := r.store.Mutate(ev.OrderID, func(order *domain.Order) bool {
		if ev.Patch.UpdatedAt != nil && isStale(*ev.Patch.UpdatedAt, order.UpdatedAt) {
			return false
		}
		if ev.Patch.Status != nil && !domain.CanTransition(order.Status, *ev.Patch.Status) {
			logger.WithFields(log.Fields{
				"from": order.Status,
				"to":   *ev.Patch.Status,
			}).Warn("illegal status transition in field patch")
			if r.strict {
				return false
			}
		}
		ev.Patch.ApplyTo(order)
		return true
	})
	r.finish("order.fields_changed", found, applied, logger)
}

func (r *Reconciler) applyStatusChanged(ev domain.OrderStatusChanged, logger *log.Entry) {
	found, applied := r.store.Mutate(ev.OrderID, func(order *domain.Order) bool {
		if isStale(ev.UpdatedAt, order.UpdatedAt) {
			return false
		}
		if !domain.CanTransition(order.Status, ev.Status) {
			logger.WithFields(log.Fields{
				"from": order.Status,
				"to":   ev.Status,
			}).Warn("illegal status transition")
			if r.strict {
				return false
			}
		}
		order.Status = ev.Status
		if !ev.UpdatedAt.IsZero() {
			order.UpdatedAt = ev.UpdatedAt
		}
		return true
	})
	r.finish("order.status_changed", found, applied, logger)
}

func (r *Reconciler) applyPriorityChanged(ev domain.OrderPriorityChanged, logger *log.Entry) {
	found, applied := r.store.Mutate(ev.OrderID, func(order *domain.Order) bool {
		if isStale(ev.UpdatedAt, order.UpdatedAt) {
			return false
		}
		order.Priority = ev.Priority
		if !ev.UpdatedAt.IsZero() {
			order.UpdatedAt = ev.UpdatedAt
		}
		return true
	})
	r.finish("order.priority_changed", found, applied, logger)
}

func (r *Reconciler) applyAssignmentChanged(ev domain.AssignmentChanged, logger *log.Entry) {
	found, applied := r.store.Mutate(ev.OrderID, func(order *domain.Order) bool {
		if isStale(ev.UpdatedAt, order.UpdatedAt) {
			return false
		}

		changed := false
		if ev.StepID != "" || ev.AssignmentID != "" {
			// Адресное обновление назначения внутри этапа.
			asg := findAssignment(order, ev.StepID, ev.AssignmentID)
			if asg == nil {
				logger.WithFields(log.Fields{
					"step_id":       ev.StepID,
					"assignment_id": ev.AssignmentID,
				}).Debug("assignment event target not found")
				return false
			}
			if ev.MachineID != nil {
				asg.MachineID = *ev.MachineID
				changed = true
			}
			if ev.OperatorID != nil {
				asg.OperatorID = *ev.OperatorID
				changed = true
			}
			if ev.Note != nil {
				asg.Note = *ev.Note
				changed = true
			}
			if ev.Reason != nil {
				asg.Reason = *ev.Reason
				changed = true
			}
			if ev.Status != nil && asg.ApplyStatus(*ev.Status, ev.UpdatedAt) {
				changed = true
			}
		} else {
			// Назначения уровня заказа.
			if ev.MachineID != nil {
				order.MachineID = *ev.MachineID
				changed = true
			}
			if ev.OperatorID != nil {
				order.OperatorID = *ev.OperatorID
				changed = true
			}
		}

		if changed && !ev.UpdatedAt.IsZero() {
			order.UpdatedAt = ev.UpdatedAt
		}
		return changed
	})
	r.finish("order.assignment_changed", found, applied, logger)
}

func (r *Reconciler) applyDeleted(ev domain.OrderDeleted, logger *log.Entry) {
	if removed := r.store.Remove(ev.OrderID); !removed {
		r.dropped("order.deleted", dropReasonAbsent)
		return
	}
	r.applied("order.deleted")
}

// findAssignment ищет назначение по идентификаторам этапа и назначения.
// Если StepID пуст, назначение ищется по всем этапам.
func findAssignment(order *domain.Order, stepID, assignmentID string) *domain.MachineAssignment {
	if stepID != "" {
		step := order.FindStep(stepID)
		if step == nil {
			return nil
		}
		if assignmentID == "" {
			return nil
		}
		return step.FindAssignment(assignmentID)
	}
	for i := range order.Steps {
		if asg := order.Steps[i].FindAssignment(assignmentID); asg != nil {
			return asg
		}
	}
	return nil
}

// isStale сообщает, что событие старше уже применённого состояния заказа.
// События и заказы без серверного updatedAt сохраняют поведение
// "последняя запись побеждает".
func isStale(eventAt, orderAt time.Time) bool {
	if eventAt.IsZero() || orderAt.IsZero() {
		return false
	}
	return eventAt.Before(orderAt)
}

func (r *Reconciler) finish(eventType string, found, applied bool, logger *log.Entry) {
	switch {
	case !found:
		logger.Debug("event target outside current page, skipping")
		r.dropped(eventType, dropReasonAbsent)
	case !applied:
		r.dropped(eventType, dropReasonStale)
	default:
		r.applied(eventType)
	}
}

func (r *Reconciler) applied(eventType string) {
	if r.meter != nil {
		r.meter.RecordEventApplied(eventType)
	}
}

func (r *Reconciler) dropped(eventType, reason string) {
	if r.meter != nil {
		r.meter.RecordEventDropped(eventType, reason)
	}
}
