package helpers

import (
	// Go Internal Packages
	"bytes"
	"testing"

	// External Packages
	"github.com/stretchr/testify/assert"
)

func TestFprintStruct(t *testing.T) {
	var buf bytes.Buffer
	FprintStruct(&buf, struct {
		Sent int `json:"sent"`
	}{Sent: 3})
	assert.Equal(t, "{\n  \"sent\": 3\n}\n", buf.String())

	buf.Reset()
	FprintStruct(&buf, make(chan int))
	assert.NotEmpty(t, buf.String())
}
