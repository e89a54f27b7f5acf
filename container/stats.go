package container

import (
	"github.com/c2h5oh/datasize"

	"github.com/PowerDNS/pbz/frame"
)

// Stats are counters kept per Reader or Writer for logging
type Stats struct {
	Frames       int64
	Messages     int64
	Schemas      int64
	TypeSwitches int64
	Versions     int64
	PayloadSize  datasize.ByteSize // uncompressed payload bytes
}

func (s *Stats) add(t frame.Type, payloadLen int) {
	s.Frames++
	s.PayloadSize += datasize.ByteSize(payloadLen)
	switch t {
	case frame.TypeMessage:
		s.Messages++
	case frame.TypeFileDescriptor:
		s.Schemas++
	case frame.TypeDescriptorName:
		s.TypeSwitches++
	case frame.TypeProtobufVersion:
		s.Versions++
	}
}
