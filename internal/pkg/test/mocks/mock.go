package mocks

import (
	"context"
	"io"
	"time"

	"github.com/airenas/voxy/internal/pkg/admission"
	"github.com/airenas/voxy/internal/pkg/messenger"
	"github.com/airenas/voxy/internal/pkg/persistence"
	"github.com/airenas/voxy/internal/pkg/transcriber/api"
	"github.com/stretchr/testify/mock"
)

// QueueStore is queue table access mock
type QueueStore struct{ mock.Mock }

func (m *QueueStore) InsertJob(ctx context.Context, job *persistence.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *QueueStore) PopOldestJob(ctx context.Context) (*persistence.Job, error) {
	args := m.Called(ctx)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

func (m *QueueStore) CountJobs(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return to[int64](args.Get(0)), args.Error(1)
}

func (m *QueueStore) ExistsJobBySubmitter(ctx context.Context, submitterID int64) (bool, error) {
	args := m.Called(ctx, submitterID)
	return args.Bool(0), args.Error(1)
}

func (m *QueueStore) ExistsJobByMessage(ctx context.Context, messageID int64) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

// ResultStore is results table access mock
type ResultStore struct{ mock.Mock }

func (m *ResultStore) InsertResult(ctx context.Context, item *persistence.Result) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *ResultStore) LoadResult(ctx context.Context, messageID, channelID int64) (*persistence.Result, error) {
	args := m.Called(ctx, messageID, channelID)
	return to[*persistence.Result](args.Get(0)), args.Error(1)
}

func (m *ResultStore) DeleteResultsBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return to[int64](args.Get(0)), args.Error(1)
}

// JobQueue is admission side queue mock
type JobQueue struct{ mock.Mock }

func (m *JobQueue) Enqueue(ctx context.Context, job *persistence.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *JobQueue) ExistsBySubmitter(ctx context.Context, submitterID int64) (bool, error) {
	args := m.Called(ctx, submitterID)
	return args.Bool(0), args.Error(1)
}

func (m *JobQueue) ExistsByMessage(ctx context.Context, messageID int64) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *JobQueue) Pending() int64 {
	args := m.Called()
	return to[int64](args.Get(0))
}

// WorkQueue is worker side queue mock
type WorkQueue struct{ mock.Mock }

func (m *WorkQueue) DequeueOldest(ctx context.Context) (*persistence.Job, error) {
	args := m.Called(ctx)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}

// ResultCache is result cache mock
type ResultCache struct{ mock.Mock }

func (m *ResultCache) Get(ctx context.Context, messageID, channelID int64) (*persistence.Result, error) {
	args := m.Called(ctx, messageID, channelID)
	return to[*persistence.Result](args.Get(0)), args.Error(1)
}

func (m *ResultCache) Put(ctx context.Context, messageID, channelID int64, text string) (*persistence.Result, error) {
	args := m.Called(ctx, messageID, channelID, text)
	return to[*persistence.Result](args.Get(0)), args.Error(1)
}

// Messenger is gateway client mock
type Messenger struct{ mock.Mock }

func (m *Messenger) ResolveChannel(ctx context.Context, channelID int64) (*messenger.Channel, error) {
	args := m.Called(ctx, channelID)
	return to[*messenger.Channel](args.Get(0)), args.Error(1)
}

func (m *Messenger) FetchMessage(ctx context.Context, channel *messenger.Channel, messageID int64) (*messenger.Message, error) {
	args := m.Called(ctx, channel, messageID)
	return to[*messenger.Message](args.Get(0)), args.Error(1)
}

func (m *Messenger) ReadAttachment(ctx context.Context, attachment *messenger.Attachment) ([]byte, error) {
	args := m.Called(ctx, attachment)
	return to[[]byte](args.Get(0)), args.Error(1)
}

func (m *Messenger) Reply(ctx context.Context, msg *messenger.Message, submitterID int64, locale string, res *persistence.Result) error {
	args := m.Called(ctx, msg, submitterID, locale, res)
	return args.Error(0)
}

// Transcriber is transcription client mock
type Transcriber struct{ mock.Mock }

func (m *Transcriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	args := m.Called(ctx, wav)
	return args.String(0), args.Error(1)
}

// TranscriberProvider is transcriber selector mock
type TranscriberProvider struct{ mock.Mock }

func (m *TranscriberProvider) Get() (api.Transcriber, string, error) {
	args := m.Called()
	return to[api.Transcriber](args.Get(0)), args.String(1), args.Error(2)
}

// Normalizer is audio converter mock
type Normalizer struct{ mock.Mock }

func (m *Normalizer) Normalize(ctx context.Context, raw []byte) ([]byte, error) {
	args := m.Called(ctx, raw)
	return to[[]byte](args.Get(0)), args.Error(1)
}

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	args := m.Called(ctx, name, r, size)
	return args.Error(0)
}

// ResultNotifier is ws push mock
type ResultNotifier struct{ mock.Mock }

func (m *ResultNotifier) ResultDone(res *persistence.Result) {
	m.Called(res)
}

// Admitter is admission service mock
type Admitter struct{ mock.Mock }

func (m *Admitter) Submit(ctx context.Context, req *admission.Submission) (*admission.Decision, error) {
	args := m.Called(ctx, req)
	return to[*admission.Decision](args.Get(0)), args.Error(1)
}

// QueueInfo is queue size mock
type QueueInfo struct{ mock.Mock }

func (m *QueueInfo) Size(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return to[int64](args.Get(0)), args.Error(1)
}

// Cleaner is result remover mock
type Cleaner struct{ mock.Mock }

func (m *Cleaner) DeleteResult(ctx context.Context, messageID, channelID int64) (bool, error) {
	args := m.Called(ctx, messageID, channelID)
	return args.Bool(0), args.Error(1)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
