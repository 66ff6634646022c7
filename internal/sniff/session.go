// Package sniff turns raw captured payloads into classified game commands.
package sniff

import (
	"encoding/binary"

	"github.com/sorayoru/reliquary/internal/model"
)

const (
	headMagic = 0x4567
	tailMagic = 0x89AB

	headerSize  = 8 // magic(2) + id(2) + body length(4)
	trailerSize = 2

	// MaxBodySize bounds a single command body. A larger length field means
	// the stream is desynchronized and the pending buffer is discarded.
	MaxBodySize = 4 << 20
)

// Session owns the decode state for one capture session. A command may be
// split across frames; the undecoded tail is kept between Decode calls.
// Sessions are not safe for concurrent use: the monitor goroutine is the
// sole caller.
type Session struct {
	keys    map[uint16][]byte
	pending []byte
}

func NewSession(keys map[uint16][]byte) *Session {
	return &Session{keys: keys}
}

// Decode consumes one raw payload and returns the commands it completes.
// Payloads that neither continue a pending command nor start with the
// session magic (keep-alives, unrelated traffic) yield no commands; that
// is a normal ignore path, not an error.
func (s *Session) Decode(payload []byte) []model.Command {
	if len(payload) == 0 {
		return nil
	}
	var buf []byte
	if len(s.pending) > 0 {
		buf = append(s.pending, payload...)
	} else {
		if len(payload) < 2 || binary.BigEndian.Uint16(payload) != headMagic {
			return nil
		}
		buf = payload
	}
	s.pending = nil

	var commands []model.Command
	for len(buf) > 0 {
		if len(buf) < headerSize {
			s.pending = buf
			break
		}
		if binary.BigEndian.Uint16(buf) != headMagic {
			// Desynchronized; drop the rest of the stream.
			break
		}
		id := binary.BigEndian.Uint16(buf[2:])
		bodyLen := binary.BigEndian.Uint32(buf[4:])
		if bodyLen > MaxBodySize {
			break
		}
		total := headerSize + int(bodyLen) + trailerSize
		if len(buf) < total {
			s.pending = buf
			break
		}
		if binary.BigEndian.Uint16(buf[headerSize+int(bodyLen):]) != tailMagic {
			break
		}
		if key, ok := s.keys[id]; ok {
			commands = append(commands, model.Command{
				ID:   id,
				Data: decrypt(buf[headerSize:headerSize+int(bodyLen)], key),
			})
		}
		buf = buf[total:]
	}
	return commands
}

func decrypt(body, key []byte) []byte {
	out := make([]byte, len(body))
	for i, b := range body {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}
