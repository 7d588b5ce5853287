package pool

import (
	"bytes"
	"sync"
)

// ---------------------------------------------------------------
// Pool 구성 목적
//
// 버킷 하나를 fetch 할 때 페이지마다 이벤트를 포맷해 버퍼에 이어 붙인다.
// 버킷마다 새 버퍼를 만들면 큰 버킷에서 grow 가 반복되므로
// 누적 버퍼를 재사용한다. 완성된 바이트는 복사해서 캐시에 넣고
// 버퍼는 풀로 돌려준다.
// ---------------------------------------------------------------

// BufferPool:
//   - fetch 누적 버퍼
//   - 초기 용량 64KB (1분 버킷 대부분을 수용)
//   - MaxBufferCap 초과 버퍼는 풀에 넣지 않음
var BufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

// Pool에 되돌려줄 최대 버퍼 용량
// 이보다 큰 버퍼는 Pool에 넣지 않고 GC에게 위임해
// 메모리 폭발을 예방.
const MaxBufferCap = 4 * 1024 * 1024 // 4MB

// GetBuffer 는 비어 있는 누적 버퍼를 꺼낸다.
func GetBuffer() *bytes.Buffer {
	buf := BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer:
//   - 누적 버퍼 반환
//   - MaxBufferCap 이하이면 풀에 재사용
//   - 초대형 버킷 버퍼는 풀로 돌리지 않음
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}
