package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	tokenRecordVersionV1   = 1
	accountRecordVersionV1 = 1
)

var (
	errRecordVersion = errors.New("invalid record version")
	errFieldTooLong  = errors.New("record field too long")
)

// TokenRecord is the persisted form of a recovery token. Times are unix nanoseconds.
type TokenRecord struct {
	ID        string
	AccountID string
	CreatedAt int64
	ExpiresAt int64
	Used      bool
}

// AccountRecord is the persisted form of an account. LockoutUntil is unix
// nanoseconds, zero when not locked.
type AccountRecord struct {
	ID             string
	Email          string
	PasswordHash   string
	Active         bool
	FailedAttempts uint32
	LockoutUntil   int64
}

func EncodeTokenRecord(record *TokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenRecordVersionV1)
	buf.WriteByte(boolByte(record.Used))
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.ID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.AccountID); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func DecodeTokenRecord(data []byte) (*TokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersionV1 {
		return nil, errRecordVersion
	}

	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record := &TokenRecord{Used: used == 1}

	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.ID, err = readString(reader); err != nil {
		return nil, err
	}
	if record.AccountID, err = readString(reader); err != nil {
		return nil, err
	}

	return record, nil
}

func EncodeAccountRecord(record *AccountRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(accountRecordVersionV1)
	buf.WriteByte(boolByte(record.Active))
	if err := binary.Write(&buf, binary.BigEndian, record.FailedAttempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.LockoutUntil); err != nil {
		return nil, err
	}
	for _, field := range []string{record.ID, record.Email, record.PasswordHash} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func DecodeAccountRecord(data []byte) (*AccountRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != accountRecordVersionV1 {
		return nil, errRecordVersion
	}

	active, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record := &AccountRecord{Active: active == 1}

	if err := binary.Read(reader, binary.BigEndian, &record.FailedAttempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.LockoutUntil); err != nil {
		return nil, err
	}
	if record.ID, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Email, err = readString(reader); err != nil {
		return nil, err
	}
	if record.PasswordHash, err = readString(reader); err != nil {
		return nil, err
	}

	return record, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errFieldTooLong
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", err
	}
	return string(out), nil
}
