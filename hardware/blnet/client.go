package blnet

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/juju/errors"
	blnet_config "github.com/temoto/blnet/hardware/blnet/config"
	"github.com/temoto/blnet/helpers"
	"github.com/temoto/blnet/log2"
)

type Client struct {
	Config blnet_config.Config
	Log    *log2.Log
	Dialer *net.Dialer

	sleep func(ctx context.Context, d time.Duration) error
}

// Device is resolved mode and memory geometry. Immutable.
type Device struct {
	Variant  *Variant
	Header   Header
	Geometry Geometry
}

func (self *Device) String() string {
	return fmt.Sprintf("mode=%s %s start=%06x end=%06x count=%d",
		self.Variant, self.Geometry.String(), self.Header.Start, self.Header.End, self.Header.Count)
}

func NewClient(conf blnet_config.Config, log *log2.Log) *Client {
	if !conf.LogDebug && log.Enabled(log2.LDebug) {
		log = log.Clone(log2.LInfo)
	}
	return &Client{
		Config: conf,
		Log:    log,
		Dialer: &net.Dialer{Timeout: conf.DialTimeout(), KeepAlive: -1},
		sleep:  helpers.SleepContext,
	}
}

func (self *Client) Dial(ctx context.Context) (*Conn, error) {
	if self.Config.Address == "" {
		return nil, errors.NotValidf("blnet address empty")
	}
	c, err := Dial(ctx, self.Dialer, self.Config.Address, self.Config.PortOrDefault(), self.Config.IOTimeout())
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.SetLog(self.Log)
	return c, nil
}

// withConn scopes one connection, released on every path.
func (self *Client) withConn(ctx context.Context, f func(*Conn) error) error {
	c, err := self.Dial(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer c.Close()
	return f(c)
}

func (self *Client) DetectMode(ctx context.Context) (*Variant, error) {
	var v *Variant
	err := self.withConn(ctx, func(c *Conn) error {
		b, err := c.Query([]byte{CmdGetMode}, 1)
		if err != nil {
			return errors.Annotate(err, "mode")
		}
		if len(b) != 1 {
			return connError("mode", errors.NotValidf("response=%x", b))
		}
		v, err = VariantByMode(b[0])
		return err
	})
	return v, errors.Trace(err)
}

func (self *Client) ReadHeader(ctx context.Context, v *Variant) (Header, Geometry, error) {
	var h Header
	var g Geometry
	err := self.withConn(ctx, func(c *Conn) error {
		b, err := c.Query([]byte{CmdGetHeader}, headerSize)
		if err != nil {
			return errors.Annotate(err, "header")
		}
		h, g, err = v.ParseHeader(b)
		return err
	})
	return h, g, errors.Trace(err)
}

// Resolve is required before any data fetch.
func (self *Client) Resolve(ctx context.Context) (*Device, error) {
	v, err := self.DetectMode(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	h, g, err := self.ReadHeader(ctx, v)
	if err != nil {
		return nil, errors.Trace(err)
	}
	dev := &Device{Variant: v, Header: h, Geometry: g}
	self.Log.Debugf("blnet resolved %s", dev.String())
	return dev, nil
}

// endRead sends END_READ and optional RESET_DATA on open connection.
func (self *Client) endRead(c *Conn, reset bool) error {
	if err := echo(c, CmdEndRead); err != nil {
		return errors.Trace(err)
	}
	if reset {
		if err := echo(c, CmdResetData); err != nil {
			return errors.Trace(err)
		}
		self.Log.Infof("blnet memory reset")
	}
	return nil
}

func echo(c *Conn, cmd byte) error {
	b, err := c.Query([]byte{cmd}, 1)
	if err != nil {
		return errors.Trace(err)
	}
	if len(b) != 1 || b[0] != cmd {
		return EchoMismatch{Command: cmd, Received: b}
	}
	return nil
}

// Raw sends cmd unchanged on fresh connection.
// Response is complete when it is a short frame or reaches expect bytes.
func (self *Client) Raw(ctx context.Context, cmd []byte, expect int) ([]byte, error) {
	if len(cmd) == 0 {
		return nil, errors.NotValidf("blnet raw command empty")
	}
	var b []byte
	err := self.withConn(ctx, func(c *Conn) (err error) {
		b, err = c.Query(cmd, expect)
		return err
	})
	return b, errors.Trace(err)
}

// EndRead releases device outside of session, e.g. after aborted foreign client.
func (self *Client) EndRead(ctx context.Context, reset bool) error {
	return errors.Trace(self.withConn(ctx, func(c *Conn) error {
		return self.endRead(c, reset)
	}))
}
