package responders

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/models"
)

// fakeFTPServer scripts just enough of the control dialogue to accept
// one upload, in either transfer mode.
type fakeFTPServer struct {
	addr     *net.TCPAddr
	received chan []byte
}

func startFakeFTPServer(t *testing.T) *fakeFTPServer {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	s := &fakeFTPServer{addr: l.Addr().(*net.TCPAddr), received: make(chan []byte, 1)}
	go s.serve(l)
	return s
}

func (s *fakeFTPServer) serve(l net.Listener) {
	conn, err := l.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	reply := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }
	reply("220 fake ftp ready")

	var dataListener net.Listener
	var activeAddr string
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "USER"):
			reply("331 need password")
		case strings.HasPrefix(line, "PASS"):
			reply("230 logged in")
		case strings.HasPrefix(line, "TYPE"):
			reply("200 type set")
		case strings.HasPrefix(line, "PASV"):
			dataListener, _ = net.Listen("tcp4", "127.0.0.1:0")
			port := dataListener.Addr().(*net.TCPAddr).Port
			reply(fmt.Sprintf("227 Entering Passive Mode (127,0,0,1,%d,%d).", port/256, port%256))
		case strings.HasPrefix(line, "PORT"):
			var a, b, c, d, p1, p2 int
			fmt.Sscanf(strings.TrimPrefix(line, "PORT "), "%d,%d,%d,%d,%d,%d", &a, &b, &c, &d, &p1, &p2)
			activeAddr = fmt.Sprintf("%d.%d.%d.%d:%d", a, b, c, d, p1*256+p2)
			reply("200 port accepted")
		case strings.HasPrefix(line, "STOR"):
			reply("150 opening data connection")
			var data net.Conn
			var err error
			if activeAddr != "" {
				data, err = net.Dial("tcp4", activeAddr)
			} else {
				data, err = dataListener.Accept()
			}
			if err != nil {
				reply("425 cannot open data connection")
				continue
			}
			buf, _ := io.ReadAll(data)
			data.Close()
			s.received <- buf
			reply("226 transfer complete")
		case strings.HasPrefix(line, "QUIT"):
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func deliverViaFakeServer(t *testing.T, passive bool) {
	t.Helper()
	srv := startFakeFTPServer(t)

	src := filepath.Join(t.TempDir(), "clip123.mp4")
	require.NoError(t, os.WriteFile(src, []byte("clip-bytes"), 0o644))

	d := &FTPDeliverer{Settings: func() models.FtpSettings {
		return models.FtpSettings{
			Host:      "127.0.0.1",
			Port:      srv.addr.Port,
			User:      "u",
			Password:  "p",
			IsPassive: passive,
		}
	}}

	require.NoError(t, d.Deliver(context.Background(), models.PendingClip{RuleName: "Doorbell"}, src))

	select {
	case got := <-srv.received:
		require.Equal(t, "clip-bytes", string(got))
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the upload")
	}
}

func TestDeliverPassiveMode(t *testing.T) { deliverViaFakeServer(t, true) }

func TestDeliverActiveMode(t *testing.T) { deliverViaFakeServer(t, false) }

func TestParsePasvResponse(t *testing.T) {
	host, port, err := parsePasvResponse("227 Entering Passive Mode (127,0,0,1,200,10).")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", host)
	require.Equal(t, 200*256+10, port)
}

func TestParsePasvResponseMalformed(t *testing.T) {
	_, _, err := parsePasvResponse("227 no parens here")
	require.Error(t, err)
}
