package ingress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
)

func deviceType(agent string) string {
	ua := useragent.Parse(agent)
	switch {
	case ua.Bot:
		return "bot"
	case ua.Tablet:
		return "tablet"
	case ua.Mobile:
		return "mobile"
	default:
		return "desktop"
	}
}

func (l *Listener) serveWS(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	l.wsAddr = listener.Addr()

	server := &http.Server{Handler: l}
	l.closers = append(l.closers, server)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("websocket ingress stopped")
		}
	}()

	return nil
}

// ServeHTTP upgrades the request and keeps the handler alive for as long
// as the game holds the connection.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("error accepting websocket client")
		return
	}

	// We use nginx for ingress everywhere, so check this first
	hostname := r.RemoteAddr
	if original, ok := r.Header["X-Forwarded-For"]; ok {
		hostname = original[0]
	} else if host, _, err := net.SplitHostPort(hostname); err == nil {
		hostname = host
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := newConnection(
		websocket.NetConn(ctx, c, websocket.MessageText),
		ClientTypeWS,
		hostname,
		deviceType(r.UserAgent()),
	)

	// Closing the listener leaves accepted connections alone. offer closes
	// the ones nobody took.
	l.offer(conn)
	<-conn.Done()
}
