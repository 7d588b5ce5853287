// internal/model/event.go
package model

import "time"

// Event
// ------------------------------------------------------------
// CloudWatch Logs FilterLogEvents 가 돌려주는 단일 로그 이벤트.
// fetch 루프 → Template → bucket 버퍼까지 그대로 전달되며,
// 한 줄을 렌더링하는 용도로만 쓰이고 이후에는 버려진다.
//
// Message 는 원문 그대로이며 개행을 포함할 수 있다.
// 시간 값은 모두 UTC epoch milliseconds.
type Event struct {
	LogGroupName  string `json:"log_group_name"`
	LogStreamName string `json:"log_stream_name"`
	EventID       string `json:"event_id"`
	IngestionTime int64  `json:"ingestion_time"` // 수집 시각 (epoch ms)
	Timestamp     int64  `json:"timestamp"`      // 이벤트 발생 시각 (epoch ms)
	Message       string `json:"message"`
}

// LogGroup
// ------------------------------------------------------------
// 마운트 대상 로그 그룹. 프로세스 수명 동안 불변.
// CreationTime 은 루트 디렉토리에서 연도 목록을 시작하는 기본 epoch 로 쓰인다.
type LogGroup struct {
	Name         string    `json:"name"`
	CreationTime time.Time `json:"creation_time"`
	StoredBytes  int64     `json:"stored_bytes"`
}
