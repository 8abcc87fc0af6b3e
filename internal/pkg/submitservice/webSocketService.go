package submitservice

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// WsConn is the websocket connection surface used by the service
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// WSConnKeeper tracks which connection waits for which message result.
// A client subscribes by sending "<channelID>:<messageID>" as a text frame.
type WSConnKeeper struct {
	keyConnectionMap map[string]map[WsConn]struct{}
	connectionKeyMap map[WsConn]string
	mapLock          *sync.Mutex
	timeOut          time.Duration
}

// NewWSConnKeeper creates manager
func NewWSConnKeeper() *WSConnKeeper {
	res := &WSConnKeeper{}
	res.keyConnectionMap = make(map[string]map[WsConn]struct{})
	res.connectionKeyMap = make(map[WsConn]string)
	res.mapLock = &sync.Mutex{}
	res.timeOut = time.Minute * 30 // max connection lifetime
	return res
}

func makeKey(channelID, messageID int64) string {
	return fmt.Sprintf("%d:%d", channelID, messageID)
}

func parseKey(s string) (string, error) {
	ch, msg, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return "", fmt.Errorf("no ':' in key")
	}
	chID, err := strconv.ParseInt(ch, 10, 64)
	if err != nil {
		return "", fmt.Errorf("wrong channel id '%s'", ch)
	}
	msgID, err := strconv.ParseInt(msg, 10, 64)
	if err != nil {
		return "", fmt.Errorf("wrong message id '%s'", msg)
	}
	return makeKey(chID, msgID), nil
}

// HandleConnection reads subscription keys until the connection dies or times out
func (kp *WSConnKeeper) HandleConnection(conn WsConn) error {
	defer kp.deleteConnection(conn)
	defer conn.Close()
	readCh := make(chan string)
	go func() {
		defer close(readCh)
		defer goapp.Log.Debug().Msg("read routine ended")
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Debug().Err(err).Msg("ws read finished")
				return
			}
			key, err := parseKey(string(message))
			if err != nil {
				goapp.Log.Warn().Err(err).Str("msg", goapp.Sanitize(string(message))).Msg("wrong subscribe key")
				continue
			}
			readCh <- key
		}
	}()

	ta := time.After(kp.timeOut)
loop:
	for {
		select {
		case <-ta:
			goapp.Log.Debug().Msg("conn timeouted")
			break loop
		case key, ok := <-readCh:
			if !ok {
				break loop
			}
			kp.saveConnection(conn, key)
			ta = time.After(kp.timeOut)
		}
	}
	return nil
}

func (kp *WSConnKeeper) deleteConnection(conn WsConn) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	kp.deleteConnectionNoSync(conn)
}

func (kp *WSConnKeeper) deleteConnectionNoSync(conn WsConn) {
	key, found := kp.connectionKeyMap[conn]
	if found {
		conns, found := kp.keyConnectionMap[key]
		if found {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(kp.keyConnectionMap, key)
			}
		}
	}
	delete(kp.connectionKeyMap, conn)
	goapp.Log.Debug().Int("active", len(kp.connectionKeyMap)).Msg("dropped ws connection")
}

func (kp *WSConnKeeper) saveConnection(conn WsConn, key string) {
	goapp.Log.Info().Str("key", key).Msg("subscribe")
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	kp.deleteConnectionNoSync(conn)
	kp.connectionKeyMap[conn] = key
	conns, found := kp.keyConnectionMap[key]
	if !found {
		conns = map[WsConn]struct{}{}
		kp.keyConnectionMap[key] = conns
	}
	conns[conn] = struct{}{}
	goapp.Log.Debug().Int("active", len(kp.connectionKeyMap)).Msg("saved ws connection")
}

// GetConnections returns subscribed connections for the key
func (kp *WSConnKeeper) GetConnections(key string) ([]WsConn, bool) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	cm, found := kp.keyConnectionMap[key]
	if found {
		res := []WsConn{}
		for c := range cm {
			res = append(res, c)
		}
		return res, true
	}
	return nil, false
}
