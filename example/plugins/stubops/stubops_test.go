package stubops

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlers(t *testing.T) {
	handlers := Handlers()
	for _, name := range Names {
		_, ok := handlers[name]
		assert.True(t, ok, name)
	}

	resp, isErr := handlers["parse"]([]byte(`{"source":"let x = 1;"}`))
	assert.False(t, isErr)
	assert.JSONEq(t, `{"type":"Module","body":[]}`, string(resp))

	_, isErr = handlers["print"]([]byte(`not json`))
	assert.True(t, isErr)
}

func TestDispatch(t *testing.T) {
	assert.JSONEq(t, `[]`, string(Dispatch(2, []byte(`{"source":""}`))))
	assert.Nil(t, Dispatch(3, []byte(`{}`)))
	assert.Contains(t, string(Dispatch(0, []byte(`[`))), "error")
}
