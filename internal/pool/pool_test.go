package pool

import (
	"bytes"
	"testing"
)

func TestGetBufferIsEmpty(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("leftover")
	PutBuffer(buf)

	if got := GetBuffer(); got.Len() != 0 {
		t.Errorf("GetBuffer returned %d bytes, want empty", got.Len())
	}
}

func TestPutBufferDropsOversized(t *testing.T) {
	big := bytes.NewBuffer(make([]byte, 0, MaxBufferCap+1))
	big.WriteString("x")
	PutBuffer(big)

	// 버려진 버퍼는 Reset 되지 않는다.
	if big.Len() != 1 {
		t.Errorf("oversized buffer was reset, len = %d", big.Len())
	}
}
