package rfc8291

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// salt(16) + rs(4) + idlen(1)
const HeaderLen = 21

var ErrShortHeader = errors.New("rfc8291: data is too short")

// Payload is an aes128gcm content-coding header followed by a single record.
type Payload struct {
	RS         uint32
	Salt       []byte
	KeyID      []byte
	CipherText []byte
}

func Marshal(p Payload) []byte {
	rs := make([]byte, 4)
	binary.BigEndian.PutUint32(rs, p.RS)
	return bytes.Join([][]byte{
		p.Salt,
		rs,
		{uint8(len(p.KeyID))},
		p.KeyID,
		p.CipherText,
	}, nil)
}

func Unmarshal(data []byte) (p Payload, err error) {
	if len(data) < HeaderLen {
		return p, ErrShortHeader
	}

	p.Salt = data[:SaltLen]
	p.RS = binary.BigEndian.Uint32(data[SaltLen:20])

	idlen := int(data[20])
	if len(data) < HeaderLen+idlen {
		return p, ErrShortHeader
	}
	if idlen > 0 {
		p.KeyID = data[HeaderLen : HeaderLen+idlen]
	}
	p.CipherText = data[HeaderLen+idlen:]

	return p, nil
}
