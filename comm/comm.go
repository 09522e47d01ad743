/*Package comm provides connection management for serial and TCP attached
register bridges.

Most usages of this package will boil down to:
	1.  build a CreationFunc with SerialConnMaker or TCPConnMaker
	2.  wrap it in a Pool so the connection is opened on demand and closed
		after a period of inactivity
	3.  Get a connection, do one transaction, and hand it back with
		ReturnWithError so a connection that produced an error is discarded
		instead of reused

	maker := comm.SerialConnMaker(&serial.Config{Name: "/dev/ttyUSB0", Baud: 115200})
	pool := comm.NewPool(1, time.Minute, maker)
	conn, err := pool.Get()
	if err != nil {
		return err
	}
	defer func() { pool.ReturnWithError(conn, err) }()
	_, err = conn.Write(frame)
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrNoSerialConf is generated when a serial maker is built without a config
	ErrNoSerialConf = errors.New("comm: serial connection requested without a serial.Config")

	// ErrNotConnected is generated when a nil connection is used
	ErrNotConnected = errors.New("comm: conn is nil, not connected to remote")
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// openBackoff is the retry policy used when establishing a connection.
// Bridges tend to reject connections for a moment after a previous client
// disconnects, so a short exponential backoff is used rather than failing
// on the first refusal.
func openBackoff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock}
}

// withBackoff wraps a CreationFunc so that transient failures are retried.
// errors that contain "refused" or "no such" are permanent and returned at once
func withBackoff(addr string, open CreationFunc) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn io.ReadWriteCloser
		op := func() error {
			c, err := open()
			if err != nil {
				errS := strings.ToLower(err.Error())
				if strings.Contains(errS, "refused") || strings.Contains(errS, "no such") {
					return backoff.Permanent(err)
				}
				return err
			}
			conn = c
			return nil
		}
		err := backoff.Retry(op, openBackoff())
		if err != nil {
			return nil, fmt.Errorf("comm: unable to open %s: %w", addr, err)
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc that opens a serial port
func SerialConnMaker(conf *serial.Config) CreationFunc {
	if conf == nil {
		return func() (io.ReadWriteCloser, error) { return nil, ErrNoSerialConf }
	}
	return withBackoff(conf.Name, func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(conf)
	})
}

// TCPConnMaker returns a CreationFunc that dials addr, giving up on a single
// attempt after timeout.  Read and write deadlines are the caller's business,
// since pooled connections outlive any one transaction
func TCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return withBackoff(addr, func() (io.ReadWriteCloser, error) {
		return net.DialTimeout("tcp", addr, timeout)
	})
}
