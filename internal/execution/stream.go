package execution

import (
	"github.com/gorilla/websocket"
)

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// dialVenueStream opens the venue websocket and subscribes the address to
// the positions channel.
func dialVenueStream(wsURL, address string) (StreamConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}

	subscribe := map[string]interface{}{
		"action":   "subscribe",
		"address":  address,
		"channels": []string{"positions"},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		conn.Close()
		return nil, err
	}

	return &wsConn{conn: conn}, nil
}
