package publisher

import (
	"errors"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

var ErrWouldBlock = errors.New("send would block")

// Socket is a bound ZeroMQ PUB socket. Sends never block.
//
// A PUB socket at its high-water mark discards messages itself and still
// reports success, so Send does not return ErrWouldBlock in that case and
// the publisher's dropped counter stays at zero. Those drops are invisible
// to the producer; ErrWouldBlock remains mapped for any EAGAIN libzmq does
// report.
type Socket struct {
	sock *zmq4.Socket
}

func Bind(endpoint string, hwm int) (*Socket, error) {
	sock, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, err
	}
	if hwm > 0 {
		if err := sock.SetSndhwm(hwm); err != nil {
			_ = sock.Close()
			return nil, err
		}
	}
	if err := sock.SetLinger(0); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.Bind(endpoint); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return &Socket{sock: sock}, nil
}

func (s *Socket) Send(msg []byte) error {
	_, err := s.sock.SendBytes(msg, zmq4.DONTWAIT)
	if err == nil {
		return nil
	}
	if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
		return ErrWouldBlock
	}
	return err
}

func (s *Socket) Close() error {
	return s.sock.Close()
}

// settle gives subscribers a moment to connect before the first send, so a
// viewer started first does not miss tick 1.
func settle() {
	time.Sleep(200 * time.Millisecond)
}
