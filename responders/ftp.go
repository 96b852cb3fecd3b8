package responders

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"path"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/nvrengine/core/models"
)

// ftpSocketTimeout applies to every FTP control and data socket
// operation (connect/login/cwd/STOR).
const ftpSocketTimeout = 30 * time.Second

// ftpConnectAttempts bounds the quick connect-and-transfer retries for
// a single Deliver call (a dropped control connection or refused PASV
// dial, not the supervisor's own multi-minute backoff schedule, which
// only re-dispatches the whole SendClip job from a fresh sender-thread
// poll).
const ftpConnectAttempts = 3

// FTPDeliverer implements the "ftp" clip-transport protocol: connect,
// login, cwd into the configured directory, STOR the file. A small
// hand-rolled client over net/textproto; the data connection is
// passive (PASV) or active (PORT) per FtpSettings.IsPassive.
type FTPDeliverer struct {
	Settings func() models.FtpSettings
}

// Deliver retries the connect-login-STOR sequence a few times with a
// short backoff before giving up; it does not retry a partially
// completed transfer, since deliverOnce opens a fresh control and data
// connection on every attempt.
func (f *FTPDeliverer) Deliver(ctx context.Context, job models.PendingClip, tempFile string) error {
	return retry.Do(
		func() error { return f.deliverOnce(job, tempFile) },
		retry.Attempts(ftpConnectAttempts),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

func (f *FTPDeliverer) deliverOnce(job models.PendingClip, tempFile string) error {
	settings := f.Settings()
	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)

	conn, err := net.DialTimeout("tcp", addr, ftpSocketTimeout)
	if err != nil {
		return fmt.Errorf("ftp dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ftpSocketTimeout))

	text := textproto.NewConn(conn)

	if _, _, err := text.ReadResponse(220); err != nil {
		return fmt.Errorf("ftp greeting: %w", err)
	}

	if err := ftpCommand(text, "USER "+settings.User, 331, 230); err != nil {
		return fmt.Errorf("ftp user: %w", err)
	}
	if err := ftpCommand(text, "PASS "+settings.Password, 230); err != nil {
		return fmt.Errorf("ftp pass: %w", err)
	}
	if settings.Directory != "" {
		if err := ftpCommand(text, "CWD "+settings.Directory, 250); err != nil {
			return fmt.Errorf("ftp cwd %s: %w", settings.Directory, err)
		}
	}
	if err := ftpCommand(text, "TYPE I", 200); err != nil {
		return fmt.Errorf("ftp type: %w", err)
	}

	var dataConn net.Conn
	var listener *net.TCPListener
	if settings.IsPassive {
		dataConn, err = ftpPassive(text)
		if err != nil {
			return fmt.Errorf("ftp pasv: %w", err)
		}
		defer dataConn.Close()
	} else {
		listener, err = ftpActive(text, conn)
		if err != nil {
			return fmt.Errorf("ftp port: %w", err)
		}
		defer listener.Close()
	}

	remoteName := path.Base(tempFile)
	id, err := text.Cmd("STOR %s", remoteName)
	if err != nil {
		return fmt.Errorf("ftp stor: %w", err)
	}
	text.StartResponse(id)
	_, _, err = text.ReadCodeLine(150)
	text.EndResponse(id)
	if err != nil {
		return fmt.Errorf("ftp stor not accepted: %w", err)
	}

	if listener != nil {
		listener.SetDeadline(time.Now().Add(ftpSocketTimeout))
		dataConn, err = listener.Accept()
		if err != nil {
			return fmt.Errorf("ftp active data connection: %w", err)
		}
		defer dataConn.Close()
	}

	if err := f.copyFile(dataConn, tempFile); err != nil {
		dataConn.Close()
		return err
	}
	dataConn.Close()

	if _, _, err := text.ReadResponse(226); err != nil {
		return fmt.Errorf("ftp transfer confirmation: %w", err)
	}

	ftpCommand(text, "QUIT", 221)
	return nil
}

func (f *FTPDeliverer) copyFile(w net.Conn, tempFile string) error {
	fh, err := os.Open(tempFile)
	if err != nil {
		return fmt.Errorf("opening temp clip: %w", err)
	}
	defer fh.Close()

	buf := bufio.NewWriter(w)
	if _, err := buf.ReadFrom(fh); err != nil {
		return fmt.Errorf("streaming clip to ftp: %w", err)
	}
	return buf.Flush()
}

func ftpCommand(text *textproto.Conn, cmd string, expectCodes ...int) error {
	id, err := text.Cmd("%s", cmd)
	if err != nil {
		return err
	}
	text.StartResponse(id)
	defer text.EndResponse(id)
	code, msg, err := text.ReadCodeLine(0)
	if err != nil {
		return err
	}
	for _, want := range expectCodes {
		if code == want {
			return nil
		}
	}
	return fmt.Errorf("unexpected reply %d %s", code, msg)
}

// ftpActive opens a local listener and announces it to the server
// with PORT; the server dials back once the transfer command is
// accepted. IPv4 only, matching the PORT wire format.
func ftpActive(text *textproto.Conn, ctrl net.Conn) (*net.TCPListener, error) {
	host, _, err := net.SplitHostPort(ctrl.LocalAddr().String())
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	if ip != nil {
		ip = ip.To4()
	}
	if ip == nil {
		return nil, fmt.Errorf("active mode needs an IPv4 control address, have %q", host)
	}

	addr, err := net.ResolveTCPAddr("tcp4", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, err
	}
	l, err := net.ListenTCP("tcp4", addr)
	if err != nil {
		return nil, err
	}
	port := l.Addr().(*net.TCPAddr).Port

	cmd := fmt.Sprintf("PORT %d,%d,%d,%d,%d,%d", ip[0], ip[1], ip[2], ip[3], port/256, port%256)
	if err := ftpCommand(text, cmd, 200); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// ftpPassive establishes a PASV data connection.
func ftpPassive(text *textproto.Conn) (net.Conn, error) {
	id, err := text.Cmd("PASV")
	if err != nil {
		return nil, err
	}
	text.StartResponse(id)
	_, line, err := text.ReadCodeLine(227)
	text.EndResponse(id)
	if err != nil {
		return nil, err
	}

	host, port, err := parsePasvResponse(line)
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	return net.DialTimeout("tcp", addr, ftpSocketTimeout)
}

// parsePasvResponse extracts (h1,h2,h3,h4,p1,p2) from a PASV 227 reply
// like "Entering Passive Mode (127,0,0,1,200,10)." into a host:port.
func parsePasvResponse(line string) (string, int, error) {
	var a, b, c, d, p1, p2 int
	idx := -1
	for i, r := range line {
		if r == '(' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed PASV reply: %q", line)
	}
	_, err := fmt.Sscanf(line[idx:], "(%d,%d,%d,%d,%d,%d)", &a, &b, &c, &d, &p1, &p2)
	if err != nil {
		return "", 0, fmt.Errorf("parsing PASV reply %q: %w", line, err)
	}
	return fmt.Sprintf("%d.%d.%d.%d", a, b, c, d), p1*256 + p2, nil
}
