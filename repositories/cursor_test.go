package repositories

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursor_EncodeDecode_RoundTrip(t *testing.T) {
	req := require.New(t)
	cursor := Cursor{UnixNano: time.Now().UnixNano(), ID: uuid.New()}

	decoded := DecodeCursor(cursor.Encode())

	req.NotNil(decoded)
	req.Equal(cursor.UnixNano, decoded.UnixNano)
	req.Equal(cursor.ID, decoded.ID)
}

func TestCursor_Decode_Malformed_ReturnsNil(t *testing.T) {
	req := require.New(t)

	// Malformed tokens degrade to a nil cursor (first page), never an error
	req.Nil(DecodeCursor(""))
	req.Nil(DecodeCursor("not-base64!!"))
	req.Nil(DecodeCursor("aGVsbG8"))                // valid base64, no separator
	req.Nil(DecodeCursor("bm90YW51bWJlcjppZA"))     // bad timestamp
	req.Nil(DecodeCursor("MTIzNDU2Nzg5Om5vdHV1aWQ")) // bad uuid
}

func TestCursor_EncodeCursor_NilSafe(t *testing.T) {
	req := require.New(t)

	req.Empty(EncodeCursor(nil))

	cursor := &Cursor{UnixNano: 42, ID: uuid.New()}
	req.Equal(cursor.Encode(), EncodeCursor(cursor))
}
