package notifier

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/sessiongate-go/pkg/log"
	"github.com/lk2023060901/sessiongate-go/pkg/metrics"
)

// Hub is the central observer set. It implements Notifier.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]Observer
}

var _ Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		observers: make(map[string]Observer),
	}
}

// Register attaches the observer. A later observer with the same id replaces
// the earlier one.
func (h *Hub) Register(obs Observer) {
	h.mu.Lock()
	h.observers[obs.ID()] = obs
	count := len(h.observers)
	h.mu.Unlock()

	metrics.ObserversConnected.Set(float64(count))
	log.Debug("observer attached", zap.String("observer", obs.ID()), zap.Int("total", count))
}

// Unregister detaches the observer by id. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	delete(h.observers, id)
	count := len(h.observers)
	h.mu.Unlock()

	metrics.ObserversConnected.Set(float64(count))
	log.Debug("observer detached", zap.String("observer", id), zap.Int("total", count))
}

// BroadcastAll delivers the event to every observer. Send failures are
// logged and skipped; the failing observer stays registered until its
// connection teardown unregisters it.
func (h *Hub) BroadcastAll(event string, payload any) {
	h.mu.RLock()
	observers := make([]Observer, 0, len(h.observers))
	for _, obs := range h.observers {
		observers = append(observers, obs)
	}
	h.mu.RUnlock()

	metrics.LifecycleEvents.WithLabelValues(event).Inc()
	for _, obs := range observers {
		if err := obs.Send(event, payload); err != nil {
			log.RatedWarn(10, "dropping event for observer",
				zap.String("observer", obs.ID()),
				zap.String(log.FieldNameEvent, event),
				zap.Error(err),
			)
		}
	}
}

// SendTo delivers the event to one observer.
func (h *Hub) SendTo(obs Observer, event string, payload any) {
	if err := obs.Send(event, payload); err != nil {
		log.RatedWarn(10, "dropping event for observer",
			zap.String("observer", obs.ID()),
			zap.String(log.FieldNameEvent, event),
			zap.Error(err),
		)
	}
}

// Count returns the number of attached observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.observers)
}
