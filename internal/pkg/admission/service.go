package admission

import (
	"context"
	"time"

	"github.com/airenas/voxy/internal/pkg/persistence"
	"github.com/airenas/voxy/internal/pkg/queue"
	"github.com/airenas/voxy/internal/pkg/status"
	"github.com/pkg/errors"
)

// Queue is the job queue side used by admission
type Queue interface {
	Enqueue(ctx context.Context, job *persistence.Job) error
	ExistsBySubmitter(ctx context.Context, submitterID int64) (bool, error)
	ExistsByMessage(ctx context.Context, messageID int64) (bool, error)
	Pending() int64
}

// Cache is the result cache side used by admission
type Cache interface {
	Get(ctx context.Context, messageID, channelID int64) (*persistence.Result, error)
}

// RejectReason tells why a submission was refused
type RejectReason string

const (
	// RejectedNoVoiceNote - the message has no voice note attachment
	RejectedNoVoiceNote RejectReason = "no voice note"
	// RejectedTooLong - the voice note exceeds the duration ceiling
	RejectedTooLong RejectReason = "too long"
	// RejectedSubmitterQueued - the submitter already has a queued job
	RejectedSubmitterQueued RejectReason = "submitter already queued"
	// RejectedMessageQueued - the message is already queued
	RejectedMessageQueued RejectReason = "message already queued"
)

// Submission is one transcription request from the gateway
type Submission struct {
	SubmitterID  int64
	MessageID    int64
	ChannelID    int64
	Locale       string
	DurationSecs float64
	VoiceNote    bool
}

// Decision is the admission outcome. Rejections are decisions, not errors,
// errors mean the store failed.
type Decision struct {
	Status   status.Status
	Position int64
	Result   *persistence.Result
	Reason   RejectReason
}

// Service applies the admission rules in order
type Service struct {
	queue       Queue
	cache       Cache
	maxDuration time.Duration
	owners      map[int64]bool
}

// NewService creates the admission service. Owners may hold several
// queued jobs at once, everyone else at most one.
func NewService(q Queue, cache Cache, maxDuration time.Duration, owners []int64) (*Service, error) {
	if q == nil {
		return nil, errors.New("no queue")
	}
	if cache == nil {
		return nil, errors.New("no cache")
	}
	if maxDuration <= 0 {
		return nil, errors.Errorf("wrong max duration %v", maxDuration)
	}
	res := &Service{queue: q, cache: cache, maxDuration: maxDuration, owners: map[int64]bool{}}
	for _, o := range owners {
		res.owners[o] = true
	}
	return res, nil
}

// Submit runs the rules and either rejects, returns a cached result
// or enqueues the job. The reported position is the queue size seen
// before the insert plus one, an estimate good enough for the reply.
func (s *Service) Submit(ctx context.Context, req *Submission) (*Decision, error) {
	if req == nil {
		return nil, errors.New("no submission")
	}
	if !req.VoiceNote {
		return rejected(RejectedNoVoiceNote), nil
	}
	if req.DurationSecs > s.maxDuration.Seconds() {
		return rejected(RejectedTooLong), nil
	}
	if !s.owners[req.SubmitterID] {
		ok, err := s.queue.ExistsBySubmitter(ctx, req.SubmitterID)
		if err != nil {
			return nil, err
		}
		if ok {
			return rejected(RejectedSubmitterQueued), nil
		}
	}
	ok, err := s.queue.ExistsByMessage(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if ok {
		return rejected(RejectedMessageQueued), nil
	}
	cached, err := s.cache.Get(ctx, req.MessageID, req.ChannelID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return &Decision{Status: status.Done, Result: cached}, nil
	}
	position := s.queue.Pending() + 1
	st := status.Queued
	if position == 1 {
		st = status.Starting
	}
	err = s.queue.Enqueue(ctx, &persistence.Job{SubmitterID: req.SubmitterID, MessageID: req.MessageID,
		ChannelID: req.ChannelID, Locale: req.Locale})
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			return rejected(RejectedMessageQueued), nil
		}
		return nil, err
	}
	return &Decision{Status: st, Position: position}, nil
}

func rejected(reason RejectReason) *Decision {
	return &Decision{Status: status.Rejected, Reason: reason}
}
