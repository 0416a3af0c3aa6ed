// Package observe dispatches the model events to the registered subscribers.
package observe

// Kind is the type of model event.
type Kind int

const (
	ModelChanged Kind = iota + 1
	LayerAdded
	OutputsSet
	OptimizerSelected
	LossesSelected
	MetricsSelected
	CallbackAdded
	ModelCompiled
	ModelTrained
)

// Kinds lists all the event kinds.
var Kinds = []Kind{
	ModelChanged,
	LayerAdded,
	OutputsSet,
	OptimizerSelected,
	LossesSelected,
	MetricsSelected,
	CallbackAdded,
	ModelCompiled,
	ModelTrained,
}

func (k Kind) String() string {
	switch k {
	case ModelChanged:
		return "model_changed"
	case LayerAdded:
		return "layer_added"
	case OutputsSet:
		return "outputs_set"
	case OptimizerSelected:
		return "optimizer_selected"
	case LossesSelected:
		return "losses_selected"
	case MetricsSelected:
		return "metrics_selected"
	case CallbackAdded:
		return "callback_added"
	case ModelCompiled:
		return "model_compiled"
	case ModelTrained:
		return "model_trained"
	}
	return "unknown"
}

// Event is emitted after a successful mutation of the model.
type Event struct {
	Kind  Kind
	Model string
	// Detail names what changed e.g. the added layer.
	Detail string
}

// Subscriber receives the events it registered for.
type Subscriber func(e Event)

// Bus keeps the subscribers per event kind in registration order.
type Bus struct {
	subscribers map[Kind][]Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[Kind][]Subscriber)}
}

// Subscribe registers the subscriber for the given kinds.
func (b *Bus) Subscribe(fn Subscriber, kinds ...Kind) *Bus {
	for _, k := range kinds {
		b.subscribers[k] = append(b.subscribers[k], fn)
	}
	return b
}

// SubscribeAll registers the subscriber for every kind.
func (b *Bus) SubscribeAll(fn Subscriber) *Bus {
	return b.Subscribe(fn, Kinds...)
}

// Notify calls the subscribers of the event kind in registration order.
func (b *Bus) Notify(e Event) {
	if b == nil {
		return
	}
	for _, fn := range b.subscribers[e.Kind] {
		fn(e)
	}
}
