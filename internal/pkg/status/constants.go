package status

//Status represents an admission decision outcome
type Status int

const (
	// Queued - job accepted, worker busy
	Queued Status = iota + 1
	// Starting - job accepted, worker was idle
	Starting
	// Done - cached result returned, nothing queued
	Done
	// Rejected - request refused
	Rejected
)

var (
	statusName = map[Status]string{Queued: "QUEUED", Starting: "STARTING",
		Done: "DONE", Rejected: "REJECTED"}
	nameStatus = map[string]Status{"QUEUED": Queued, "STARTING": Starting,
		"DONE": Done, "REJECTED": Rejected}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}
