package persistence

import "errors"

// ErrDuplicate is returned by stores on a unique key conflict
var ErrDuplicate = errors.New("duplicate record")

type (

	//Job - queue table row
	Job struct {
		ID          int64
		SubmitterID int64
		MessageID   int64
		ChannelID   int64
		Locale      string
	}

	//Result - results table row
	Result struct {
		ID        int64
		MessageID int64
		ChannelID int64
		Text      string
		CreatedAt int64
	}
)
