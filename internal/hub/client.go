package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	// 也充当空闲超时：超过这个时间没有任何入站流量（包括 pong）的连接
	// 会被读取超时关闭，走与客户端主动断开相同的离开路径。
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// 每个连接出站队列的缓冲大小。
	sendBufferSize = 256
)

// Client 把一个 WebSocket 连接包装成 Hub 的 EventSink。
// 每个连接一个读协程（入站事件 → Hub.Dispatch）和一个写协程
//（出站队列 → WebSocket），连接失败时恰好通知 Hub 一次。
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	roomID   uint
	identity Identity
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	log      *logrus.Entry
}

// NewClient 创建 Client。调用方随后应先 Join 再 Start。
func NewClient(h *Hub, conn *websocket.Conn, roomID uint, id Identity) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		roomID:   roomID,
		identity: id,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": id.UserID,
		}),
	}
}

// Identity 返回连接的参与者身份。
func (c *Client) Identity() Identity { return c.identity }

// RoomID 返回连接所属的房间。
func (c *Client) RoomID() uint { return c.roomID }

// Send 非阻塞地把一条出站事件入队。队列满返回 false，
// 由慢客户端自己承担丢失，不阻塞房间广播。
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close 幂等地关闭连接：尽力发送关闭帧，然后走 terminate。
// WriteControl 允许并发写，Hub 可以在 write pump 运行时安全调用。
func (c *Client) Close(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.terminate()
}

// Start 启动读写协程。
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// terminate 标记连接终止并恰好一次通知 Hub 走离开路径。
func (c *Client) terminate() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
		c.hub.Leave(c.roomID, c.identity.UserID)
		c.log.Info("Connection terminated")
	})
}

// readPump 把入站消息泵送给 Hub，直到连接关闭或出错。
func (c *Client) readPump() {
	defer c.terminate()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("WebSocket read error")
			} else {
				c.log.Debug("WebSocket connection closed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.log.Debugf("Ignoring non-text message type %d", messageType)
			continue
		}
		// 读取成功也刷新空闲超时
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.Dispatch(c.roomID, c.identity, message)
	}
}

// writePump 把出站队列泵送到 WebSocket，并定期发送 ping 保活。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.terminate()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.WithError(err).Debug("Failed to send ping, closing connection")
				return
			}
		case <-c.done:
			return
		}
	}
}
