package submitservice

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"

	"github.com/airenas/voxy/internal/pkg/admission"
	"github.com/airenas/voxy/internal/pkg/persistence"
	"github.com/airenas/voxy/internal/pkg/status"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Admitter decides what happens to a submission
type Admitter interface {
	Submit(ctx context.Context, req *admission.Submission) (*admission.Decision, error)
}

// ResultProvider loads cached transcriptions
type ResultProvider interface {
	Get(ctx context.Context, messageID, channelID int64) (*persistence.Result, error)
}

// QueueInfo exposes the real queue size
type QueueInfo interface {
	Size(ctx context.Context) (int64, error)
}

// WSConnHandler is the websocket connection registry
type WSConnHandler interface {
	HandleConnection(WsConn) error
	GetConnections(key string) ([]WsConn, bool)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	Admitter  Admitter
	Results   ResultProvider
	Queue     QueueInfo
	WSHandler WSConnHandler
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP VOXY submit service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Admitter == nil {
		return fmt.Errorf("no admitter")
	}
	if data.Results == nil {
		return fmt.Errorf("no result provider")
	}
	if data.Queue == nil {
		return fmt.Errorf("no queue")
	}
	if data.WSHandler == nil {
		return fmt.Errorf("no WSHandler")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("voxy_submit", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/transcribe", transcribe(data))
	e.GET("/result/:channelID/:messageID", result(data))
	e.GET("/status", queueStatus(data))
	e.GET("/live", live(data))
	e.GET("/subscribe", subscribe(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type transcribeRequest struct {
	SubmitterID  int64   `json:"submitterId"`
	MessageID    int64   `json:"messageId"`
	ChannelID    int64   `json:"channelId"`
	Locale       string  `json:"locale,omitempty"`
	DurationSecs float64 `json:"durationSecs"`
	VoiceNote    bool    `json:"voiceNote"`
}

type transcribeResponse struct {
	Status   string      `json:"status"`
	Position int64       `json:"position,omitempty"`
	Result   *resultData `json:"result,omitempty"`
}

type resultData struct {
	ID        int64  `json:"id"`
	MessageID int64  `json:"messageId"`
	ChannelID int64  `json:"channelId"`
	Text      string `json:"text"`
	NoSpeech  bool   `json:"noSpeech,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

func transcribe(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("transcribe method")()
		ctx := c.Request().Context()

		var req transcribeRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if req.SubmitterID <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no submitterId")
		}
		if req.MessageID <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no messageId")
		}
		if req.ChannelID <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no channelId")
		}
		d, err := data.Admitter.Submit(ctx, &admission.Submission{SubmitterID: req.SubmitterID,
			MessageID: req.MessageID, ChannelID: req.ChannelID, Locale: req.Locale,
			DurationSecs: req.DurationSecs, VoiceNote: req.VoiceNote})
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if d.Status == status.Rejected {
			return echo.NewHTTPError(rejectCode(d.Reason), string(d.Reason))
		}
		res := transcribeResponse{Status: d.Status.String(), Position: d.Position}
		if d.Result != nil {
			res.Result = mapResult(d.Result)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func rejectCode(reason admission.RejectReason) int {
	switch reason {
	case admission.RejectedSubmitterQueued, admission.RejectedMessageQueued:
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func mapResult(res *persistence.Result) *resultData {
	return &resultData{ID: res.ID, MessageID: res.MessageID, ChannelID: res.ChannelID,
		Text: res.Text, NoSpeech: res.Text == "", CreatedAt: res.CreatedAt}
}

func result(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("result method")()

		channelID, err := strconv.ParseInt(c.Param("channelID"), 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong channelID")
		}
		messageID, err := strconv.ParseInt(c.Param("messageID"), 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong messageID")
		}
		res, err := data.Results.Get(c.Request().Context(), messageID, channelID)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		if res == nil {
			return echo.NewHTTPError(http.StatusNotFound, "no result")
		}
		return c.JSON(http.StatusOK, mapResult(res))
	}
}

type queueInfo struct {
	Pending int64 `json:"pending"`
}

func queueStatus(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		size, err := data.Queue.Size(c.Request().Context())
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusOK, queueInfo{Pending: size})
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribe(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}
