package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/airenas/voxy/internal/pkg/messenger"
	"github.com/airenas/voxy/internal/pkg/persistence"
	"github.com/airenas/voxy/internal/pkg/test"
	"github.com/airenas/voxy/internal/pkg/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	queueMock    *mocks.WorkQueue
	msgMock      *mocks.Messenger
	normMock     *mocks.Normalizer
	trMock       *mocks.Transcriber
	trPrMock     *mocks.TranscriberProvider
	resMock      *mocks.ResultCache
	filerMock    *mocks.Filer
	notifierMock *mocks.ResultNotifier
	srvData      *ServiceData
)

func initTest(t *testing.T) {
	queueMock = &mocks.WorkQueue{}
	msgMock = &mocks.Messenger{}
	normMock = &mocks.Normalizer{}
	trMock = &mocks.Transcriber{}
	trPrMock = &mocks.TranscriberProvider{}
	resMock = &mocks.ResultCache{}
	filerMock = &mocks.Filer{}
	notifierMock = &mocks.ResultNotifier{}
	srvData = &ServiceData{Queue: queueMock, Messenger: msgMock, Normalizer: normMock,
		Transcriber: trPrMock, Results: resMock, Filer: filerMock, Notifier: notifierMock,
		JobTimeout: time.Second * 10}
	msgMock.On("ResolveChannel", mock.Anything, mock.Anything).Return(&messenger.Channel{ID: 5}, nil)
	msgMock.On("FetchMessage", mock.Anything, mock.Anything, mock.Anything).Return(testMsg(), nil)
	msgMock.On("ReadAttachment", mock.Anything, mock.Anything).Return([]byte("audio"), nil)
	msgMock.On("Reply", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	normMock.On("Normalize", mock.Anything, mock.Anything).Return([]byte("wav"), nil)
	trPrMock.On("Get").Return(trMock, "main", nil)
	trMock.On("Transcribe", mock.Anything, mock.Anything).Return("olia text", nil)
	resMock.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&persistence.Result{ID: 10, MessageID: 7, ChannelID: 5, Text: "olia text"}, nil)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	notifierMock.On("ResultDone", mock.Anything).Return()
}

func testJob() *persistence.Job {
	return &persistence.Job{ID: 1, SubmitterID: 3, MessageID: 7, ChannelID: 5, Locale: "lt"}
}

func testMsg() *messenger.Message {
	return &messenger.Message{ID: 7, ChannelID: 5, AuthorID: 3,
		Attachments: []messenger.Attachment{{ID: 11, URL: "http://olia/a.ogg", VoiceNote: true}}}
}

func Test_processJob(t *testing.T) {
	initTest(t)
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.Nil(t, err)
	require.Equal(t, 1, len(resMock.Calls))
	assert.Equal(t, int64(7), resMock.Calls[0].Arguments[1])
	assert.Equal(t, int64(5), resMock.Calls[0].Arguments[2])
	assert.Equal(t, "olia text", resMock.Calls[0].Arguments[3])
	require.Equal(t, 1, len(filerMock.Calls))
	assert.Equal(t, "10.wav", filerMock.Calls[0].Arguments[1])
	assert.Equal(t, int64(3), filerMock.Calls[0].Arguments[3])
	require.Equal(t, 1, len(notifierMock.Calls))
}

func Test_processJob_reply(t *testing.T) {
	initTest(t)
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.Nil(t, err)
	var replyArgs mock.Arguments
	for _, c := range msgMock.Calls {
		if c.Method == "Reply" {
			replyArgs = c.Arguments
		}
	}
	require.NotNil(t, replyArgs)
	assert.Equal(t, int64(3), replyArgs[2])
	assert.Equal(t, "lt", replyArgs[3])
	res := replyArgs[4].(*persistence.Result)
	assert.Equal(t, "olia text", res.Text)
}

func Test_processJob_channelGone_skips(t *testing.T) {
	initTest(t)
	msgMock.ExpectedCalls = nil
	msgMock.On("ResolveChannel", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("olia: %w", messenger.ErrNotFound))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.Nil(t, err)
	require.Equal(t, 0, len(resMock.Calls))
}

func Test_processJob_messageGone_skips(t *testing.T) {
	initTest(t)
	msgMock.ExpectedCalls = nil
	msgMock.On("ResolveChannel", mock.Anything, mock.Anything).Return(&messenger.Channel{ID: 5}, nil)
	msgMock.On("FetchMessage", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("olia: %w", messenger.ErrNotFound))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.Nil(t, err)
	require.Equal(t, 0, len(resMock.Calls))
}

func Test_processJob_attachmentGone_skips(t *testing.T) {
	initTest(t)
	msgMock.ExpectedCalls = nil
	msgMock.On("ResolveChannel", mock.Anything, mock.Anything).Return(&messenger.Channel{ID: 5}, nil)
	msgMock.On("FetchMessage", mock.Anything, mock.Anything, mock.Anything).Return(testMsg(), nil)
	msgMock.On("ReadAttachment", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("olia: %w", messenger.ErrNotFound))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.Nil(t, err)
	require.Equal(t, 0, len(resMock.Calls))
}

func Test_processJob_noAttachment_skips(t *testing.T) {
	initTest(t)
	msgMock.ExpectedCalls = nil
	msgMock.On("ResolveChannel", mock.Anything, mock.Anything).Return(&messenger.Channel{ID: 5}, nil)
	msgMock.On("FetchMessage", mock.Anything, mock.Anything, mock.Anything).
		Return(&messenger.Message{ID: 7, ChannelID: 5, AuthorID: 3}, nil)
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.Nil(t, err)
	require.Equal(t, 0, len(normMock.Calls))
	require.Equal(t, 0, len(resMock.Calls))
}

func Test_processJob_failResolve(t *testing.T) {
	initTest(t)
	msgMock.ExpectedCalls = nil
	msgMock.On("ResolveChannel", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia err"))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.NotNil(t, err)
}

func Test_processJob_failFetch(t *testing.T) {
	initTest(t)
	msgMock.ExpectedCalls = nil
	msgMock.On("ResolveChannel", mock.Anything, mock.Anything).Return(&messenger.Channel{ID: 5}, nil)
	msgMock.On("FetchMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia err"))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.NotNil(t, err)
}

func Test_processJob_failNormalize(t *testing.T) {
	initTest(t)
	normMock.ExpectedCalls = nil
	normMock.On("Normalize", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia err"))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.NotNil(t, err)
	require.Equal(t, 0, len(trMock.Calls))
}

func Test_processJob_failProvider(t *testing.T) {
	initTest(t)
	trPrMock.ExpectedCalls = nil
	trPrMock.On("Get").Return(nil, "", fmt.Errorf("olia err"))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.NotNil(t, err)
}

func Test_processJob_failTranscribe(t *testing.T) {
	initTest(t)
	trMock.ExpectedCalls = nil
	trMock.On("Transcribe", mock.Anything, mock.Anything).Return("", fmt.Errorf("olia err"))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.NotNil(t, err)
	require.Equal(t, 0, len(resMock.Calls))
}

func Test_processJob_failSave(t *testing.T) {
	initTest(t)
	resMock.ExpectedCalls = nil
	resMock.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia err"))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.NotNil(t, err)
	for _, c := range msgMock.Calls {
		assert.NotEqual(t, "Reply", c.Method)
	}
}

func Test_processJob_noSpeech(t *testing.T) {
	initTest(t)
	trMock.ExpectedCalls = nil
	trMock.On("Transcribe", mock.Anything, mock.Anything).Return("", nil)
	resMock.ExpectedCalls = nil
	resMock.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&persistence.Result{ID: 10, MessageID: 7, ChannelID: 5, Text: ""}, nil)
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.Nil(t, err)
	require.Equal(t, 1, len(resMock.Calls))
	assert.Equal(t, "", resMock.Calls[0].Arguments[3])
}

func Test_processJob_failReply_keepsResult(t *testing.T) {
	initTest(t)
	msgMock.ExpectedCalls = nil
	msgMock.On("ResolveChannel", mock.Anything, mock.Anything).Return(&messenger.Channel{ID: 5}, nil)
	msgMock.On("FetchMessage", mock.Anything, mock.Anything, mock.Anything).Return(testMsg(), nil)
	msgMock.On("ReadAttachment", mock.Anything, mock.Anything).Return([]byte("audio"), nil)
	msgMock.On("Reply", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(fmt.Errorf("olia err"))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.Nil(t, err)
	require.Equal(t, 1, len(resMock.Calls))
	require.Equal(t, 1, len(notifierMock.Calls))
}

func Test_processJob_failArchive_continues(t *testing.T) {
	initTest(t)
	filerMock.ExpectedCalls = nil
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("olia err"))
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.Nil(t, err)
	require.Equal(t, 1, len(notifierMock.Calls))
}

func Test_processJob_noFiler(t *testing.T) {
	initTest(t)
	srvData.Filer = nil
	srvData.Notifier = nil
	err := processJob(test.Ctx(t), testJob(), srvData)
	assert.Nil(t, err)
	require.Equal(t, 1, len(resMock.Calls))
}

func TestStartWorkerService(t *testing.T) {
	initTest(t)
	ctx, cancelF := context.WithCancel(context.Background())
	defer cancelF()
	queueMock.On("DequeueOldest", mock.Anything).Once().Return(testJob(), nil)
	queueMock.On("DequeueOldest", mock.Anything).Run(func(args mock.Arguments) { cancelF() }).
		Return(nil, context.Canceled)
	doneCh, err := StartWorkerService(ctx, srvData)
	require.Nil(t, err)
	select {
	case <-doneCh:
	case <-time.After(time.Second * 5):
		t.Fatal("timeout waiting for worker exit")
	}
	require.Equal(t, 1, len(resMock.Calls))
}

func TestStartWorkerService_dropsFailedJob(t *testing.T) {
	initTest(t)
	trMock.ExpectedCalls = nil
	trMock.On("Transcribe", mock.Anything, mock.Anything).Return("", fmt.Errorf("olia err"))
	ctx, cancelF := context.WithCancel(context.Background())
	defer cancelF()
	queueMock.On("DequeueOldest", mock.Anything).Once().Return(testJob(), nil)
	queueMock.On("DequeueOldest", mock.Anything).Run(func(args mock.Arguments) { cancelF() }).
		Return(nil, context.Canceled)
	doneCh, err := StartWorkerService(ctx, srvData)
	require.Nil(t, err)
	select {
	case <-doneCh:
	case <-time.After(time.Second * 5):
		t.Fatal("timeout waiting for worker exit")
	}
	// the failed job is dropped, loop keeps running until cancel
	require.Equal(t, 2, len(queueMock.Calls))
	require.Equal(t, 0, len(resMock.Calls))
}

func TestStartWorkerService_fail(t *testing.T) {
	initTest(t)
	srvData.Queue = nil
	_, err := StartWorkerService(context.Background(), srvData)
	assert.NotNil(t, err)
}

func Test_validate(t *testing.T) {
	initTest(t)
	type args struct {
		data *ServiceData
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{name: "OK", args: args{data: &ServiceData{Queue: queueMock, Messenger: msgMock, Normalizer: normMock,
			Transcriber: trPrMock, Results: resMock, Filer: filerMock, Notifier: notifierMock}}, wantErr: false},
		{name: "OK no optional", args: args{data: &ServiceData{Queue: queueMock, Messenger: msgMock,
			Normalizer: normMock, Transcriber: trPrMock, Results: resMock}}, wantErr: false},
		{name: "Fail no queue", args: args{data: &ServiceData{Messenger: msgMock, Normalizer: normMock,
			Transcriber: trPrMock, Results: resMock}}, wantErr: true},
		{name: "Fail no messenger", args: args{data: &ServiceData{Queue: queueMock, Normalizer: normMock,
			Transcriber: trPrMock, Results: resMock}}, wantErr: true},
		{name: "Fail no normalizer", args: args{data: &ServiceData{Queue: queueMock, Messenger: msgMock,
			Transcriber: trPrMock, Results: resMock}}, wantErr: true},
		{name: "Fail no transcriber", args: args{data: &ServiceData{Queue: queueMock, Messenger: msgMock,
			Normalizer: normMock, Results: resMock}}, wantErr: true},
		{name: "Fail no results", args: args{data: &ServiceData{Queue: queueMock, Messenger: msgMock,
			Normalizer: normMock, Transcriber: trPrMock}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.args.data); (err != nil) != tt.wantErr {
				t.Errorf("StartWorkerService() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
