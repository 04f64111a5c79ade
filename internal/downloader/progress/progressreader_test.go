package progress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReportsEveryInterval(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 1000)

	var reports []int64

	r := NewReader(bytes.NewReader(data), int64(len(data)), 300, func(read, total int64) {
		assert.EqualValues(t, len(data), total)

		reports = append(reports, read)
	})

	buf := make([]byte, 100)

	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			break
		}

		require.NoError(t, err)
	}

	assert.Equal(t, []int64{300, 600, 900, 1000}, reports)
	assert.EqualValues(t, 1000, r.BytesRead())
}

func TestReader_NoCallback(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("abc")), 3, 1, nil)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))
}
