package platform

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Frame envelope on the session link. Client-initiated jobs use odd ids,
// server-initiated jobs even ones, so reply routing never collides.
const (
	frameFieldType  = 1 // varint, MsgType
	frameFieldJobID = 2 // varint, 0 when the message is not part of a job
	frameFieldBody  = 3 // length-delimited JSON body
)

// EncodeFrame packs a message into the wire envelope.
func EncodeFrame(t MsgType, jobID uint64, body []byte) []byte {
	buf := make([]byte, 0, len(body)+16)
	buf = protowire.AppendTag(buf, frameFieldType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(t))
	if jobID != 0 {
		buf = protowire.AppendTag(buf, frameFieldJobID, protowire.VarintType)
		buf = protowire.AppendVarint(buf, jobID)
	}
	if len(body) > 0 {
		buf = protowire.AppendTag(buf, frameFieldBody, protowire.BytesType)
		buf = protowire.AppendBytes(buf, body)
	}
	return buf
}

// DecodeFrame unpacks a wire envelope, skipping unknown fields.
func DecodeFrame(data []byte) (t MsgType, jobID uint64, body []byte, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, 0, nil, fmt.Errorf("decoding frame tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == frameFieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, 0, nil, fmt.Errorf("decoding message type: %w", protowire.ParseError(n))
			}
			t = MsgType(v)
			data = data[n:]
		case num == frameFieldJobID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, 0, nil, fmt.Errorf("decoding job id: %w", protowire.ParseError(n))
			}
			jobID = v
			data = data[n:]
		case num == frameFieldBody && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return 0, 0, nil, fmt.Errorf("decoding body: %w", protowire.ParseError(n))
			}
			body = b
			data = data[n:]
		default:
			// Unknown fields are skipped for forward compatibility.
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return 0, 0, nil, fmt.Errorf("skipping frame field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if t == MsgInvalid {
		return 0, 0, nil, errors.New("frame carries no message type")
	}
	return t, jobID, body, nil
}
