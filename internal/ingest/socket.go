package ingest

import (
	"errors"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

// ErrTimeout is returned by Recv when no message arrived within the receive
// timeout. It lets the loop observe cancellation.
var ErrTimeout = errors.New("receive timeout")

// Socket is a ZeroMQ SUB socket subscribed to every topic.
type Socket struct {
	sock *zmq4.Socket
}

func Connect(endpoint string, hwm int, timeout time.Duration) (*Socket, error) {
	sock, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, err
	}
	if hwm > 0 {
		if err := sock.SetRcvhwm(hwm); err != nil {
			_ = sock.Close()
			return nil, err
		}
	}
	if timeout > 0 {
		if err := sock.SetRcvtimeo(timeout); err != nil {
			_ = sock.Close()
			return nil, err
		}
	}
	if err := sock.SetSubscribe(""); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.Connect(endpoint); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return &Socket{sock: sock}, nil
}

func (s *Socket) Recv() ([]byte, error) {
	msg, err := s.sock.RecvBytes(0)
	if err != nil {
		if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return msg, nil
}

func (s *Socket) Close() error {
	return s.sock.Close()
}
