package submitservice

import (
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxy/internal/pkg/persistence"
	"github.com/pkg/errors"
)

// Notifier pushes finished transcriptions to subscribed ws clients
type Notifier struct {
	ws WSConnHandler
}

// NewNotifier creates the ws result notifier
func NewNotifier(ws WSConnHandler) (*Notifier, error) {
	if ws == nil {
		return nil, errors.New("no WSHandler")
	}
	return &Notifier{ws: ws}, nil
}

// ResultDone sends the result to connections subscribed to its message key
func (h *Notifier) ResultDone(res *persistence.Result) {
	if res == nil {
		return
	}
	key := makeKey(res.ChannelID, res.MessageID)
	conns, found := h.ws.GetConnections(key)
	if !found {
		goapp.Log.Debug().Str("key", key).Msg("no connections found")
		return
	}
	data := mapResult(res)
	for _, c := range conns {
		if err := sendMsg(c, data); err != nil {
			goapp.Log.Error().Err(err).Send()
		}
	}
}

func sendMsg(c WsConn, res *resultData) error {
	if err := c.WriteJSON(res); err != nil {
		return fmt.Errorf("can't write to websocket: %w", err)
	}
	return nil
}
