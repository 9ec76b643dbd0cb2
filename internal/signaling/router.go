package signaling

// HandlerFunc handles one incoming message.
type HandlerFunc func(msg *Message)

// Router is an explicit dispatch table from message type to handler. It is
// not safe for concurrent use; build it up front and dispatch from a single
// goroutine.
type Router struct {
	handlers map[string]HandlerFunc
	fallback HandlerFunc
}

// NewRouter returns an empty table.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// On registers h for msgType, replacing any previous handler.
func (r *Router) On(msgType string, h HandlerFunc) *Router {
	r.handlers[msgType] = h
	return r
}

// Otherwise sets the handler for types with no entry.
func (r *Router) Otherwise(h HandlerFunc) *Router {
	r.fallback = h
	return r
}

// Dispatch runs the handler for msg and reports whether one was registered.
func (r *Router) Dispatch(msg *Message) bool {
	if h, ok := r.handlers[msg.Type]; ok {
		h(msg)
		return true
	}
	if r.fallback != nil {
		r.fallback(msg)
	}
	return false
}

// Handles reports whether msgType has an entry.
func (r *Router) Handles(msgType string) bool {
	_, ok := r.handlers[msgType]
	return ok
}
