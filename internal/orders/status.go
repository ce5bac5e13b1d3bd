package orders

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusReady     Status = "READY"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// validNext encodes the fulfillment lifecycle. Cancellation is only legal
// before the store confirms the order; after that the order rides the
// CONFIRMED -> READY -> COMPLETED rail.
var validNext = map[Status]map[Status]bool{
	StatusCreated: {
		StatusPending:   true,
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusReady: true,
	},
	StatusReady: {
		StatusCompleted: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	next, ok := validNext[from]
	if !ok {
		return false
	}
	return next[to]
}
