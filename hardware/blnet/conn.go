package blnet

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/blnet/helpers"
	"github.com/temoto/blnet/log2"
)

// Conn is one TCP connection to bootloader. Not safe for concurrent use.
type Conn struct {
	c       net.Conn
	log     *log2.Log
	timeout time.Duration
}

// Dial resolves address into candidate IPs and connects to first that accepts.
// timeout applies to every subsequent read and write.
func Dial(ctx context.Context, dialer *net.Dialer, address string, port int, timeout time.Duration) (*Conn, error) {
	const op = "connect"
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	resolver := dialer.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ips, err := resolver.LookupIPAddr(ctx, address)
	if err != nil {
		return nil, connError(op, errors.Annotatef(err, "resolve address=%s", address))
	}
	sport := strconv.Itoa(port)
	errs := make([]error, 0, len(ips))
	for _, ip := range ips {
		target := net.JoinHostPort(ip.String(), sport)
		c, err := dialer.DialContext(ctx, "tcp", target)
		if err == nil {
			return &Conn{c: c, timeout: timeout}, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, connError(op, err)
	}
	return nil, connError(op, errors.NotFoundf("address=%s", address))
}

func (self *Conn) SetLog(l *log2.Log) { self.log = l }

// Close is idempotent and nil-safe.
func (self *Conn) Close() error {
	if self == nil || self.c == nil {
		return nil
	}
	err := self.c.Close()
	self.c = nil
	return errors.Trace(err)
}

// Query sends cmd and reads response until it is a short frame or reaches expect bytes.
func (self *Conn) Query(cmd []byte, expect int) ([]byte, error) {
	if self == nil || self.c == nil {
		return nil, connError("query", errors.New("not connected"))
	}
	if expect < 1 {
		expect = 1
	}
	buf := make([]byte, 0, expect)
	err := self.query(cmd, expect, &buf)
	self.log.Debugf("blnet.Query (multi-line)\n> (%02d) %x\n< (%02d) %x\nerr=%v",
		len(cmd), cmd, len(buf), buf, err)
	return buf, err
}

func (self *Conn) query(cmd []byte, expect int, buf *[]byte) error {
	if err := self.deadline(self.c.SetWriteDeadline); err != nil {
		return connError("write", err)
	}
	n, err := self.c.Write(cmd)
	if err != nil {
		return connError("write", err)
	}
	if n != len(cmd) {
		return connError("write", errors.Errorf("short write %d/%d", n, len(cmd)))
	}

	chunk := make([]byte, expect)
	for {
		if err := self.deadline(self.c.SetReadDeadline); err != nil {
			return connError("read", err)
		}
		want := expect - len(*buf)
		if want < 1 {
			want = 1
		}
		n, err := self.c.Read(chunk[:want])
		*buf = append(*buf, chunk[:n]...)
		if l := len(*buf); l > 0 && (l <= shortFrame || l >= expect) {
			return nil
		}
		if err != nil {
			return connError("read", errors.Annotatef(err, "received=%d expected=%d", len(*buf), expect))
		}
	}
}

func (self *Conn) deadline(set func(time.Time) error) error {
	if self.timeout <= 0 {
		return nil
	}
	return set(time.Now().Add(self.timeout))
}
