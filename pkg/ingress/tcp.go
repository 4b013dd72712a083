package ingress

import (
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

func (l *Listener) serveTCP(listener net.Listener) {
	defer l.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			log.Warn().Err(err).Msg("failed to accept tcp connection")
			select {
			case <-l.closed:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		l.offer(newConnection(conn, ClientTypeTCP, hostOf(conn.RemoteAddr()), "desktop"))
	}
}
