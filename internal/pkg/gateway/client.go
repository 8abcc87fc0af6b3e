package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxy/internal/pkg/messenger"
	"github.com/airenas/voxy/internal/pkg/persistence"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const maxAttachmentBytes = 25 << 20

// Client communicates with the chat gateway service.
// The gateway owns the chat platform session, voxy only asks it
// for channels, messages, attachment bytes and posts replies.
type Client struct {
	httpclient *http.Client
	url        string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a gateway client
func NewClient(url string) (*Client, error) {
	res := Client{}
	if url == "" {
		return nil, fmt.Errorf("no url")
	}
	if !strings.HasPrefix(url, "http") {
		return nil, fmt.Errorf("no http in url")
	}
	res.url = strings.TrimSuffix(url, "/")
	res.timeout = time.Second * 50
	res.httpclient = gatewayHTTPClient()
	res.backoff = newSimpleBackoff
	return &res, nil
}

// ResolveChannel returns the channel or messenger.ErrNotFound
func (sp *Client) ResolveChannel(ctx context.Context, channelID int64) (*messenger.Channel, error) {
	return getJSON[*messenger.Channel](ctx, sp, fmt.Sprintf("%s/channels/%d", sp.url, channelID))
}

// FetchMessage returns the message with attachments or messenger.ErrNotFound
func (sp *Client) FetchMessage(ctx context.Context, channel *messenger.Channel, messageID int64) (*messenger.Message, error) {
	if channel == nil {
		return nil, fmt.Errorf("no channel")
	}
	return getJSON[*messenger.Message](ctx, sp, fmt.Sprintf("%s/channels/%d/messages/%d", sp.url, channel.ID, messageID))
}

// ReadAttachment downloads the attachment content
func (sp *Client) ReadAttachment(ctx context.Context, attachment *messenger.Attachment) ([]byte, error) {
	if attachment == nil || attachment.URL == "" {
		return nil, fmt.Errorf("no attachment url")
	}
	return goapp.InvokeWithBackoff(ctx, func() ([]byte, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodGet, attachment.URL, nil)
		if err != nil {
			return nil, false, err
		}
		req = req.WithContext(ctx)
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if resp.StatusCode == http.StatusNotFound {
			return nil, false, fmt.Errorf("'%s': %w", req.URL.String(), messenger.ErrNotFound)
		}
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		br, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't read body: %w", err)
		}
		return br, false, nil
	}, sp.backoff())
}

type replyPayload struct {
	To        int64  `json:"to"`
	ResultID  int64  `json:"resultId"`
	Text      string `json:"text"`
	NoSpeech  bool   `json:"noSpeech,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	Locale    string `json:"locale,omitempty"`
}

// Reply posts the transcription back to the source message thread.
// Delivery is at least once, the idempotency key is kept stable across
// retries so the gateway can drop duplicates.
func (sp *Client) Reply(ctx context.Context, msg *messenger.Message, submitterID int64, locale string, res *persistence.Result) error {
	if msg == nil {
		return fmt.Errorf("no message")
	}
	if res == nil {
		return fmt.Errorf("no result")
	}
	key := uuid.NewString()
	urlStr := fmt.Sprintf("%s/channels/%d/messages/%d/replies", sp.url, msg.ChannelID, msg.ID)
	pl := replyPayload{To: submitterID, ResultID: res.ID, Text: res.Text, NoSpeech: res.Text == "",
		CreatedAt: res.CreatedAt, Locale: locale}
	b, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("can't marshal reply: %w", err)
	}
	_, err = goapp.InvokeWithBackoff(ctx, func() (interface{}, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, urlStr, bytes.NewReader(b))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-idempotency-key", key)
		req = req.WithContext(ctx)
		goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if resp.StatusCode == http.StatusNotFound {
			return nil, false, fmt.Errorf("'%s': %w", req.URL.String(), messenger.ErrNotFound)
		}
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		return nil, false, nil
	}, sp.backoff())
	return err
}

func getJSON[T any](ctx context.Context, sp *Client, urlStr string) (T, error) {
	return goapp.InvokeWithBackoff(ctx, func() (T, bool, error) {
		var res T
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodGet, urlStr, nil)
		if err != nil {
			return res, false, err
		}
		req = req.WithContext(ctx)
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return res, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if resp.StatusCode == http.StatusNotFound {
			return res, false, fmt.Errorf("'%s': %w", req.URL.String(), messenger.ErrNotFound)
		}
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return res, goapp.IsRetryableCode(resp.StatusCode), err
		}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return res, goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		return res, false, nil
	}, sp.backoff())
}

func gatewayHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
