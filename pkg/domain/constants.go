package domain

// Sentinel node ids. They are always known to a graph and can never be registered.
const (
	// Start is the virtual entry node. Edges leaving Start define the first frontier.
	Start = "__start__"
	// End is the virtual exit node. A frontier that only points at End is complete.
	End = "__end__"
)

// IsSentinel reports whether id is one of the reserved node ids.
func IsSentinel(id string) bool {
	return id == Start || id == End
}
