package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxy/internal/pkg/messenger"
	"github.com/airenas/voxy/internal/pkg/persistence"
	tapi "github.com/airenas/voxy/internal/pkg/transcriber/api"
	"github.com/pkg/errors"
)

// Queue provides jobs for the worker
type Queue interface {
	DequeueOldest(ctx context.Context) (*persistence.Job, error)
}

// ResultCache stores finished transcriptions
type ResultCache interface {
	Put(ctx context.Context, messageID, channelID int64, text string) (*persistence.Result, error)
}

// Normalizer converts audio for the transcriber
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte) ([]byte, error)
}

// TranscriberProvider selects the transcriber instance for a job
type TranscriberProvider interface {
	Get() (tapi.Transcriber, string, error)
}

// Filer archives normalized audio
type Filer interface {
	SaveFile(ctx context.Context, name string, r io.Reader, size int64) error
}

// ResultNotifier pushes completion events to subscribers
type ResultNotifier interface {
	ResultDone(res *persistence.Result)
}

// ServiceData keeps data required for the worker
type ServiceData struct {
	Queue       Queue
	Messenger   messenger.Messenger
	Normalizer  Normalizer
	Transcriber TranscriberProvider
	Results     ResultCache
	Filer       Filer          // optional
	Notifier    ResultNotifier // optional
	FailDelay   time.Duration  // pause after a dequeue failure
	JobTimeout  time.Duration
}

// StartWorkerService launches the single job consumer goroutine.
// One job is processed at a time, submissions are never blocked by it.
// Returns a channel closed when the loop exits.
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	if data.FailDelay <= 0 {
		data.FailDelay = time.Second * 3
	}
	if data.JobTimeout <= 0 {
		data.JobTimeout = time.Minute * 15
	}
	goapp.Log.Info().Msg("Starting transcription worker")
	res := make(chan struct{}, 1)
	go func() {
		defer close(res)
		serviceLoop(ctx, data)
		goapp.Log.Info().Msg("Worker finished")
	}()
	return res, nil
}

func serviceLoop(ctx context.Context, data *ServiceData) {
	for {
		job, err := data.Queue.DequeueOldest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			goapp.Log.Error().Err(err).Msg("can't dequeue")
			select {
			case <-time.After(data.FailDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		// the job is already removed from the store, a failure here drops it
		if err := processJob(ctx, job, data); err != nil {
			goapp.Log.Error().Err(err).Int64("ID", job.ID).Int64("messageID", job.MessageID).Msg("job failed")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func processJob(ctx context.Context, job *persistence.Job, data *ServiceData) error {
	goapp.Log.Info().Int64("ID", job.ID).Int64("messageID", job.MessageID).Msg("handling job")
	ctx, cancelF := context.WithTimeout(ctx, data.JobTimeout)
	defer cancelF()
	ch, err := data.Messenger.ResolveChannel(ctx, job.ChannelID)
	if err != nil {
		if errors.Is(err, messenger.ErrNotFound) {
			goapp.Log.Info().Int64("ID", job.ID).Int64("channelID", job.ChannelID).Msg("channel gone, skip job")
			return nil
		}
		return fmt.Errorf("can't resolve channel: %w", err)
	}
	msg, err := data.Messenger.FetchMessage(ctx, ch, job.MessageID)
	if err != nil {
		if errors.Is(err, messenger.ErrNotFound) {
			goapp.Log.Info().Int64("ID", job.ID).Int64("messageID", job.MessageID).Msg("message gone, skip job")
			return nil
		}
		return fmt.Errorf("can't fetch message: %w", err)
	}
	if len(msg.Attachments) == 0 {
		goapp.Log.Info().Int64("ID", job.ID).Int64("messageID", job.MessageID).Msg("no attachment, skip job")
		return nil
	}
	att := &msg.Attachments[0]
	raw, err := data.Messenger.ReadAttachment(ctx, att)
	if err != nil {
		if errors.Is(err, messenger.ErrNotFound) {
			goapp.Log.Info().Int64("ID", job.ID).Int64("messageID", job.MessageID).Msg("attachment gone, skip job")
			return nil
		}
		return fmt.Errorf("can't read attachment: %w", err)
	}
	wav, err := data.Normalizer.Normalize(ctx, raw)
	if err != nil {
		return fmt.Errorf("can't normalize audio: %w", err)
	}
	tr, trName, err := data.Transcriber.Get()
	if err != nil {
		return fmt.Errorf("can't get transcriber: %w", err)
	}
	start := time.Now()
	text, err := tr.Transcribe(ctx, wav)
	if err != nil {
		return fmt.Errorf("can't transcribe: %w", err)
	}
	goapp.Log.Info().Int64("ID", job.ID).Str("transcriber", trName).Dur("duration", time.Since(start)).
		Int("textLen", len(text)).Msg("transcribed")
	res, err := data.Results.Put(ctx, job.MessageID, job.ChannelID, text)
	if err != nil {
		return fmt.Errorf("can't save result: %w", err)
	}
	if data.Filer != nil {
		if err := data.Filer.SaveFile(ctx, fmt.Sprintf("%d.wav", res.ID),
			bytes.NewReader(wav), int64(len(wav))); err != nil {
			goapp.Log.Error().Err(err).Int64("ID", job.ID).Msg("can't archive audio")
		}
	}
	// the result is cached even if delivery fails, a resubmit returns it instantly
	if err := data.Messenger.Reply(ctx, msg, job.SubmitterID, job.Locale, res); err != nil {
		goapp.Log.Error().Err(err).Int64("ID", job.ID).Msg("can't deliver reply")
	}
	if data.Notifier != nil {
		data.Notifier.ResultDone(res)
	}
	goapp.Log.Info().Int64("ID", job.ID).Msg("job completed")
	return nil
}

func validate(data *ServiceData) error {
	if data.Queue == nil {
		return errors.New("no queue")
	}
	if data.Messenger == nil {
		return errors.New("no messenger")
	}
	if data.Normalizer == nil {
		return errors.New("no normalizer")
	}
	if data.Transcriber == nil {
		return errors.New("no transcriber provider")
	}
	if data.Results == nil {
		return errors.New("no result cache")
	}
	return nil
}
