package helpers

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))

	e1 := errors.New("timeout")
	assert.Equal(t, e1, errors.Cause(FoldErrors([]error{nil, e1})))

	err := FoldErrors([]error{e1, nil, errors.New("closed")})
	assert.EqualError(t, err, "timeout\nclosed")
}

func TestMustHex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0xba, 0x01, 0xbb}, MustHex("ba 01 bb"))
	assert.Equal(t, []byte{0x81}, MustHex("81"))
	assert.Panics(t, func() { MustHex("zz") })
}
