package ingress

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	port := addr.(*net.TCPAddr).Port
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectionLines(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConnection(server)
	defer conn.Close()

	go func() {
		io.WriteString(client, "12\r\nQ\nlast")
		client.Close()
	}()

	for _, expected := range []string{"12", "Q", "last"} {
		line, err := conn.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, expected, line)
	}

	_, err := conn.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestConnectionLongLine(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConnection(server)
	defer conn.Close()
	defer client.Close()

	longest := strings.Repeat("7", MAX_LINE_LENGTH-1)
	go func() {
		io.WriteString(client, longest+"\n")
		// The writer stays blocked once the reader gives up; closing the
		// pipe lets it return.
		io.WriteString(client, strings.Repeat("8", 1<<20)+"\n")
	}()

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, longest, line)

	_, err = conn.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestConnectionCloseTwice(t *testing.T) {
	server, _ := net.Pipe()
	conn := NewConnection(server)

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())

	select {
	case <-conn.Done():
	default:
		t.Fatal("done not closed")
	}

	assert.Error(t, conn.WriteLine("hello"))
}

func TestListenerTCP(t *testing.T) {
	l, err := Listen(0, Options{WriteTimeout: time.Second})
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()

	_, err = l.Accept(ctx, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	client := dial(t, l.Addr())

	conn, err := l.Accept(ctx, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, ClientType(ClientTypeTCP), conn.Type())
	assert.Equal(t, "127.0.0.1", conn.Host())

	_, err = fmt.Fprintln(client, "7")
	require.NoError(t, err)
	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "7", line)

	require.NoError(t, conn.WriteLine("welcome"))
	reply, err := bufio.NewReader(client).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "welcome\n", reply)

	require.NoError(t, l.Close())
	_, err = l.Accept(ctx, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestListenerRate(t *testing.T) {
	var rejected atomic.Int32

	l, err := Listen(0, Options{
		AcceptRate:  0.001,
		AcceptBurst: 1,
		OnReject: func(reason string) {
			assert.Equal(t, "rate", reason)
			rejected.Add(1)
		},
	})
	require.NoError(t, err)
	defer l.Close()

	dial(t, l.Addr())
	conn, err := l.Accept(context.Background(), 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	second := dial(t, l.Addr())
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = second.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Equal(t, int32(1), rejected.Load())
}

func TestListenerWebSocket(t *testing.T) {
	l, err := Listen(0, Options{WebSocket: true})
	require.NoError(t, err)
	defer l.Close()
	require.NotNil(t, l.WebSocketAddr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, _, err := websocket.Dial(
		ctx,
		fmt.Sprintf("ws://127.0.0.1:%d/", l.WebSocketAddr().(*net.TCPAddr).Port),
		&websocket.DialOptions{
			HTTPHeader: map[string][]string{
				"User-Agent": {"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"},
			},
		},
	)
	require.NoError(t, err)
	defer client.Close(websocket.StatusNormalClosure, "")

	conn, err := l.Accept(ctx, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, ClientType(ClientTypeWS), conn.Type())
	assert.Equal(t, "mobile", conn.DeviceType())

	require.NoError(t, client.Write(ctx, websocket.MessageText, []byte("Q\n")))
	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "Q", line)

	require.NoError(t, conn.WriteLine("bye"))
	_, data, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bye\n", string(data))
}

func TestListenerCloseKeepsWebSocket(t *testing.T) {
	l, err := Listen(0, Options{WebSocket: true})
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, _, err := websocket.Dial(
		ctx,
		fmt.Sprintf("ws://127.0.0.1:%d/", l.WebSocketAddr().(*net.TCPAddr).Port),
		nil,
	)
	require.NoError(t, err)
	defer client.Close(websocket.StatusNormalClosure, "")

	conn, err := l.Accept(ctx, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, l.Close())

	select {
	case <-conn.Done():
		t.Fatal("accepted connection was closed with the listener")
	default:
	}

	require.NoError(t, conn.WriteLine("still here"))
	_, data, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "still here\n", string(data))

	require.NoError(t, client.Write(ctx, websocket.MessageText, []byte("12\n")))
	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "12", line)
}

func TestDeviceType(t *testing.T) {
	assert.Equal(t, "desktop", deviceType("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"))
	assert.Equal(t, "bot", deviceType("Googlebot/2.1 (+http://www.google.com/bot.html)"))
}
