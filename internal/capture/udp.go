package capture

import (
	"fmt"
	"net"
	"sync"
)

const maxDatagramSize = 64 * 1024

// UDPSource binds the two game transport ports and delivers every
// datagram as one frame. It serves replay and loopback setups where the
// traffic is mirrored to the local host; a kernel-level capture driver
// can be swapped in behind the same Source interface.
type UDPSource struct{}

func (UDPSource) OpenFiltered(portA, portB uint16) (Handle, error) {
	conns := make([]*net.UDPConn, 0, 2)
	for _, port := range []uint16{portA, portB} {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(port)})
		if err != nil {
			for _, open := range conns {
				open.Close() //nolint:errcheck
			}
			return nil, fmt.Errorf("bind udp port %d: %w", port, err)
		}
		conns = append(conns, conn)
	}
	return newUDPHandle(conns), nil
}

type udpHandle struct {
	conns  []*net.UDPConn
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func newUDPHandle(conns []*net.UDPConn) *udpHandle {
	h := &udpHandle{
		conns:  conns,
		frames: make(chan []byte),
		done:   make(chan struct{}),
	}
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *net.UDPConn) {
			defer wg.Done()
			h.read(conn)
		}(conn)
	}
	go func() {
		// Once every reader is gone the stream has terminated.
		wg.Wait()
		h.close()
	}()
	return h
}

func (h *udpHandle) read(conn *net.UDPConn) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		select {
		case h.frames <- frame:
		case <-h.done:
			return
		}
	}
}

func (h *udpHandle) NextFrame() ([]byte, error) {
	select {
	case frame := <-h.frames:
		return frame, nil
	case <-h.done:
		return nil, ErrClosed
	}
}

func (h *udpHandle) Close() error {
	h.close()
	return nil
}

func (h *udpHandle) close() {
	h.once.Do(func() {
		close(h.done)
		for _, conn := range h.conns {
			conn.Close() //nolint:errcheck
		}
	})
}
