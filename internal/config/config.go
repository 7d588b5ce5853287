// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// EnvPrefix 는 환경 변수 prefix. 예: CWL_MOUNT_LOG_GROUP_NAME
const EnvPrefix = "CWL_MOUNT"

// viper key 목록. cobra flag 이름과 동일하게 맞춘다.
const (
	KeyRegion        = "region"
	KeyTPS           = "tps"
	KeyVerbosity     = "verbose"
	KeyLogLevel      = "log-level"
	KeyLogPretty     = "log-pretty"
	KeyLogSampleN    = "log-sample-n"
	KeyLogGroupName  = "log-group-name"
	KeyEpoch         = "epoch"
	KeyBucketWidth   = "bucket-width"
	KeyFileSize      = "file-size"
	KeyFormat        = "format"
	KeyCacheBytes    = "cache-bytes"
	KeyCacheIdleTTL  = "cache-idle-ttl"
	KeyCacheSweep    = "cache-sweep-interval"
	KeyCacheCompress = "cache-compress"
	KeySettleDelay   = "settle-delay"
	KeyRecentTTL     = "recent-ttl"
	KeyPageRetries   = "page-retries"
	KeyPageTimeout   = "page-timeout"
	KeyPageSize      = "page-size"
	KeyAllowOther    = "allow-other"
	KeyMetricsAddr   = "metrics-addr"
)

// Epoch 결정 방식.
const (
	EpochExplicit   = "explicit"    // --epoch 에 날짜를 직접 지정
	EpochCreation   = "creation"    // 로그 그룹 생성 시각 (기본)
	EpochFirstEvent = "first-event" // 가장 이른 이벤트 시각
)

// 기본값.
const (
	DefaultTPS          = 5
	DefaultBucketWidth  = time.Minute
	DefaultFileSize     = int64(1<<31 - 1)
	DefaultCacheBytes   = int64(256 << 20)
	DefaultCacheIdleTTL = 10 * time.Minute
	DefaultCacheSweep   = 30 * time.Second
	DefaultSettleDelay  = 5 * time.Minute
	DefaultRecentTTL    = 30 * time.Second
	DefaultPageRetries  = 5
	DefaultPageTimeout  = 30 * time.Second
	DefaultPageSize     = int32(10000)
	DefaultLineFormat   = "[$log_group_name] [$log_stream_name] $timestamp - $message"
	DefaultServiceName  = "cwl-mount"
	maxPageSize         = 10000
)

// Config
//
// 마운트 실행 시 필요한 모든 설정 값을 보관하는 구조체.
// 프로세스 시작 시점에 Load() 로 한 번 만들어지고,
// 이후에는 변경되지 않는 불변(read-only) 값이다.
type Config struct {

	// ---------------------------
	// AWS / CloudWatch Logs
	// ---------------------------

	AWSRegion    string // AWS 리전. 비어 있으면 SDK 기본 체인 (AWS_REGION, profile)
	LogGroupName string // 마운트할 로그 그룹
	TPS          int    // 원격 호출 초당 상한 (0 이하 = 무제한)

	// ---------------------------
	// 마운트 / 디렉토리 모델
	// ---------------------------

	MountPoint  string
	Epoch       time.Time     // EpochSource == explicit 일 때만 의미 있음
	EpochSource string        // explicit | creation | first-event
	BucketWidth time.Duration // 파일 하나가 덮는 시간 (분 단위, 24h 의 약수)
	FileSize    int64         // 파일 크기로 보고하는 값 (실제 내용 길이와 무관)
	LineFormat  string        // 라인 템플릿
	AllowOther  bool

	// ---------------------------
	// 버킷 캐시
	// ---------------------------

	CacheMaxBytes      int64         // Ready 엔트리 총 바이트 상한
	CacheIdleTTL       time.Duration // 이 시간 동안 접근 없으면 제거 (0 = 끔)
	CacheSweepInterval time.Duration // idle sweeper 주기
	CacheCompress      bool          // Ready 바이트를 s2 로 압축 보관

	// 끝난 지 SettleDelay 가 안 된 버킷은 아직 이벤트가 들어오는 중이므로
	// RecentTTL 이 지나면 다시 가져온다.
	SettleDelay time.Duration
	RecentTTL   time.Duration

	// ---------------------------
	// 페이지 fetch
	// ---------------------------
	// SDK retry 는 client 에서 끄고, 재시도 횟수는 PageRetries 하나만 쓴다.

	PageRetries int           // 페이지 하나당 transient 재시도 횟수 (시도 = PageRetries+1)
	PageTimeout time.Duration // 호출 1회 timeout
	PageSize    int32         // FilterLogEvents limit

	// ---------------------------
	// 관측
	// ---------------------------

	MetricsAddr string // "" 이면 HTTP listener 를 띄우지 않는다
	LogLevel    string // 지정 시 Verbosity 보다 우선
	Verbosity   int    // -v 개수
	LogPretty   bool
	LogSampleN  uint32
	ServiceName string
	InstanceID  string // 호스트명 기반, 실패 시 랜덤 hex
}

// SetDefaults 는 viper 에 기본값을 등록한다.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyTPS, DefaultTPS)
	v.SetDefault(KeyEpoch, EpochCreation)
	v.SetDefault(KeyBucketWidth, DefaultBucketWidth)
	v.SetDefault(KeyFileSize, DefaultFileSize)
	v.SetDefault(KeyFormat, DefaultLineFormat)
	v.SetDefault(KeyCacheBytes, DefaultCacheBytes)
	v.SetDefault(KeyCacheIdleTTL, DefaultCacheIdleTTL)
	v.SetDefault(KeyCacheSweep, DefaultCacheSweep)
	v.SetDefault(KeySettleDelay, DefaultSettleDelay)
	v.SetDefault(KeyRecentTTL, DefaultRecentTTL)
	v.SetDefault(KeyPageRetries, DefaultPageRetries)
	v.SetDefault(KeyPageTimeout, DefaultPageTimeout)
	v.SetDefault(KeyPageSize, DefaultPageSize)
	v.SetDefault(KeyLogSampleN, 0)
}

// BindEnv 는 CWL_MOUNT_* 환경 변수를 key 에 연결한다.
// flag 이름의 '-' 는 '_' 로 바꾼다 (log-group-name → CWL_MOUNT_LOG_GROUP_NAME).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load
//
// viper(flag + env + 설정 파일)에서 Config 를 만든다.
// 형식 오류나 범위 밖 값은 에러로 돌려준다 (호출 측에서 fail-fast).
func Load(v *viper.Viper) (Config, error) {
	epoch, source, err := ParseEpoch(v.GetString(KeyEpoch))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AWSRegion:    v.GetString(KeyRegion),
		LogGroupName: v.GetString(KeyLogGroupName),
		TPS:          v.GetInt(KeyTPS),

		Epoch:       epoch,
		EpochSource: source,
		BucketWidth: v.GetDuration(KeyBucketWidth),
		FileSize:    v.GetInt64(KeyFileSize),
		LineFormat:  v.GetString(KeyFormat),
		AllowOther:  v.GetBool(KeyAllowOther),

		CacheMaxBytes:      v.GetInt64(KeyCacheBytes),
		CacheIdleTTL:       v.GetDuration(KeyCacheIdleTTL),
		CacheSweepInterval: v.GetDuration(KeyCacheSweep),
		CacheCompress:      v.GetBool(KeyCacheCompress),
		SettleDelay:        v.GetDuration(KeySettleDelay),
		RecentTTL:          v.GetDuration(KeyRecentTTL),

		PageRetries: v.GetInt(KeyPageRetries),
		PageTimeout: v.GetDuration(KeyPageTimeout),
		PageSize:    v.GetInt32(KeyPageSize),

		MetricsAddr: v.GetString(KeyMetricsAddr),
		LogLevel:    v.GetString(KeyLogLevel),
		Verbosity:   v.GetInt(KeyVerbosity),
		LogPretty:   v.GetBool(KeyLogPretty),
		LogSampleN:  v.GetUint32(KeyLogSampleN),
		ServiceName: DefaultServiceName,
		InstanceID:  fallbackInstanceID(),
	}
	return cfg, nil
}

// ParseEpoch 는 --epoch 값을 해석한다.
//
//   - "" / "creation": 로그 그룹 생성 시각
//   - "first-event":   가장 이른 이벤트 시각
//   - RFC3339 또는 YYYY-MM-DD: 그 시각 (UTC)
func ParseEpoch(s string) (time.Time, string, error) {
	switch s = strings.TrimSpace(s); s {
	case "", EpochCreation:
		return time.Time{}, EpochCreation, nil
	case EpochFirstEvent:
		return time.Time{}, EpochFirstEvent, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), EpochExplicit, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), EpochExplicit, nil
	}
	return time.Time{}, "", fmt.Errorf("invalid --epoch %q: want RFC3339, YYYY-MM-DD, %q or %q", s, EpochCreation, EpochFirstEvent)
}

// ValidateMount 는 mount 명령에 필요한 값들을 검사한다.
// 여러 문제가 있으면 모두 모아서 돌려준다.
func (c Config) ValidateMount() error {
	var errs []error

	if c.MountPoint == "" {
		errs = append(errs, errors.New("mount point is required"))
	}
	if c.LogGroupName == "" {
		errs = append(errs, errors.New("--log-group-name is required"))
	}
	if c.BucketWidth < time.Minute || c.BucketWidth%time.Minute != 0 || (24*time.Hour)%c.BucketWidth != 0 {
		errs = append(errs, fmt.Errorf("--bucket-width %s must be a whole number of minutes dividing 24h", c.BucketWidth))
	}
	if c.FileSize < 0 {
		errs = append(errs, fmt.Errorf("--file-size %d must be >= 0", c.FileSize))
	}
	if c.CacheMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("--cache-bytes %d must be > 0", c.CacheMaxBytes))
	}
	if c.CacheIdleTTL < 0 {
		errs = append(errs, fmt.Errorf("--cache-idle-ttl %s must be >= 0", c.CacheIdleTTL))
	}
	if c.CacheIdleTTL > 0 && c.CacheSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("--cache-sweep-interval %s must be > 0", c.CacheSweepInterval))
	}
	if c.SettleDelay < 0 || c.RecentTTL < 0 {
		errs = append(errs, errors.New("--settle-delay and --recent-ttl must be >= 0"))
	}
	if c.PageRetries < 0 {
		errs = append(errs, fmt.Errorf("--page-retries %d must be >= 0", c.PageRetries))
	}
	if c.PageTimeout < 0 {
		errs = append(errs, fmt.Errorf("--page-timeout %s must be >= 0", c.PageTimeout))
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("--page-size %d must be in [1, %d]", c.PageSize, maxPageSize))
	}

	return errors.Join(errs...)
}

// fallbackInstanceID
//
// 이 마운트 프로세스를 식별하는 고유 값.
//   - 기본: hostname
//   - fallback: 랜덤 UUID 앞 12자리
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
