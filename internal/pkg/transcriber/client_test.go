package transcriber

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/airenas/voxy/internal/pkg/test"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

type testResp struct {
	code int
	resp string
}

type testReq struct {
	resp string
	URL  string
}

func newTestR(code int, resp string) testResp {
	return testResp{code: code, resp: resp}
}

func newTestReq(req *http.Request) testReq {
	b, _ := io.ReadAll(req.Body)
	return testReq{URL: req.URL.String(), resp: string(b)}
}

func initTestServer(t *testing.T, rData map[string]testResp) (*Client, *httptest.Server, *[]testReq) {
	t.Helper()
	resRequest := make([]testReq, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		resRequest = append(resRequest, newTestReq(req))
		resp, f := rData[req.URL.String()]
		if f {
			rw.WriteHeader(resp.code)
			_, _ = rw.Write([]byte(resp.resp))
		} else {
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	// Use Client & URL from our local test server
	api := Client{}
	api.httpclient = server.Client()
	api.url = server.URL + "/inference"
	api.timeout = time.Second
	api.backoff = func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}
	t.Cleanup(func() { server.Close() })
	return &api, server, &resRequest
}

func testCalled(t *testing.T, URL string, tReq []testReq) {
	assert.GreaterOrEqual(t, len(tReq), 1)
	str := ""
	for _, r := range tReq {
		str = r.URL
		if str == URL {
			return
		}
	}
	assert.Equal(t, URL, str)
}

func TestTranscribe(t *testing.T) {
	client, _, tReq := initTestServer(t, map[string]testResp{"/inference": newTestR(200, `{"text":" olia olia "}`)})

	r, err := client.Transcribe(test.Ctx(t), []byte("__wav_olia__"))

	assert.Nil(t, err)
	assert.Equal(t, "olia olia", r)
	testCalled(t, "/inference", *tReq)
	bs := (*tReq)[0].resp
	assert.Contains(t, bs, "audio.wav")
	assert.Contains(t, bs, "__wav_olia__")
	assert.Contains(t, bs, "response_format")
}

func TestTranscribe_NoSpeech(t *testing.T) {
	client, _, tReq := initTestServer(t, map[string]testResp{"/inference": newTestR(200, `{"text":""}`)})

	r, err := client.Transcribe(test.Ctx(t), []byte("olia"))

	assert.Nil(t, err)
	assert.Equal(t, "", r)
	testCalled(t, "/inference", *tReq)
}

func TestTranscribe_WrongCode_Fails(t *testing.T) {
	client, _, tReq := initTestServer(t, map[string]testResp{"/inference": newTestR(400, "err")})
	client.backoff = newSimpleBackoff

	_, err := client.Transcribe(test.Ctx(t), []byte("olia"))

	assert.NotNil(t, err)
	assert.Equal(t, 1, len(*tReq))
}

func TestTranscribe_WrongJSON_Fails(t *testing.T) {
	client, _, tReq := initTestServer(t, map[string]testResp{"/inference": newTestR(200, "olia")})

	_, err := client.Transcribe(test.Ctx(t), []byte("olia"))

	assert.NotNil(t, err)
	testCalled(t, "/inference", *tReq)
}

func TestTranscribe_Backoff(t *testing.T) {
	client, _, tReq := initTestServer(t, map[string]testResp{"/inference": newTestR(http.StatusTooManyRequests, "err")})
	client.backoff = newSimpleBackoff

	_, err := client.Transcribe(test.Ctx(t), []byte("olia"))

	assert.NotNil(t, err)
	assert.Equal(t, 4, len(*tReq))
}

func TestTranscribe_Canceled(t *testing.T) {
	client, _, tReq := initTestServer(t, map[string]testResp{"/inference": newTestR(200, `{"text":"olia"}`)})
	client.backoff = newSimpleBackoff

	ctx, cf := context.WithCancel(context.Background())
	cf()

	_, err := client.Transcribe(ctx, []byte("olia"))

	assert.NotNil(t, err)
	assert.Equal(t, 0, len(*tReq))
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{name: "OK", args: "http://olia", wantErr: false},
		{name: "Empty", args: "", wantErr: true},
		{name: "Wrong scheme", args: "ops://olia", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewClient(tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == nil {
				t.Errorf("NewClient() = nil, want object")
			}
		})
	}
}
