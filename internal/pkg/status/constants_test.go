package status

import (
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		name string
		st   Status
		want string
	}{
		{st: Queued, want: "QUEUED"},
		{st: Starting, want: "STARTING"},
		{st: Done, want: "DONE"},
		{st: Rejected, want: "REJECTED"},
		{st: 0, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.st.String(); got != tt.want {
				t.Errorf("Status.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrom(t *testing.T) {
	tests := []struct {
		name string
		args string
		want Status
	}{
		{args: "QUEUED", want: Queued},
		{args: "STARTING", want: Starting},
		{args: "DONE", want: Done},
		{args: "REJECTED", want: Rejected},
		{args: "olia", want: 0},
		{args: "", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			if got := From(tt.args); got != tt.want {
				t.Errorf("From() = %v, want %v", got, tt.want)
			}
		})
	}
}
