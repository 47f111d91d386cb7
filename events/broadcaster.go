package events

import (
	"context"
	"entity-store/core"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// Broadcaster pushes record events to socket.io clients. A client joins a
// collection's room with "join-entity" and leaves with "leave-entity".
type Broadcaster struct {
	io *socketio.Server
}

func NewBroadcaster(allowedOrigins []string, maxBufferSize int64) *Broadcaster {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(maxBufferSize)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	origins := make([]any, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins = append(origins, origin)
	}
	opts.SetCors(&types.Cors{
		Origin:      origins,
		Credentials: true,
	})
	ioo := socketio.NewServer(nil, opts)

	ioo.On("connection", func(clients ...any) {
		socket := clients[0].(*socketio.Socket)
		log := logrus.WithField("socket_id", socket.Id())
		log.Debug("Socket connected")

		socket.On("join-entity", func(datas ...any) {
			if room, ok := roomOf(datas); ok {
				log.WithField("room", room).Debug("Socket joined")
				socket.Join(room)
			}
		})
		socket.On("leave-entity", func(datas ...any) {
			if room, ok := roomOf(datas); ok {
				socket.Leave(room)
			}
		})
		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
		})
	})

	return &Broadcaster{io: ioo}
}

func roomOf(datas []any) (socketio.Room, bool) {
	if len(datas) == 0 {
		return "", false
	}
	name, ok := datas[0].(string)
	if !ok || name == "" {
		return "", false
	}
	return socketio.Room(name), true
}

func (b *Broadcaster) Handler() http.Handler {
	return b.io.ServeHandler(nil)
}

func (b *Broadcaster) Notify(ctx context.Context, event core.Event) error {
	b.io.To(socketio.Room(event.Collection)).Emit(string(event.Type), payload(event))
	return nil
}

func (b *Broadcaster) Close() {
	b.io.Close(nil)
}
