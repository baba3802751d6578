package orders

type Status string

const (
	StatusOrdered    Status = "ordered"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusFinished   Status = "finished"
)

var allStatuses = map[Status]bool{
	StatusOrdered:    true,
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
	StatusCancelled:  true,
	StatusFinished:   true,
}

func (s Status) Valid() bool { return allStatuses[s] }

// Transition graph used only when strict status flow is enabled. The default
// behavior allows any enumerated value to overwrite any other.
var validNext = map[Status]map[Status]bool{
	StatusOrdered:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:  {StatusFinished: true},
	StatusFinished:   {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}
