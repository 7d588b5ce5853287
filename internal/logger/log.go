// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"cwl-mount/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 프로세스 시작 시 한 번만 호출되는 로거 초기화 함수.
//
//  1. 레벨: LogLevel 이 있으면 그 값, 없으면 -v 개수로 결정
//     (0: warn, 1: info, 2: debug, 3+: trace)
//  2. 출력: LogPretty 면 터미널용 ConsoleWriter, 아니면 JSON.
//     stdout 은 list-log-groups 결과가 쓰므로 로그는 항상 stderr 로 보낸다.
//  3. 공통 필드: service, instance
//  4. 샘플링: Debug/Info 만 1/N, Warn/Error 는 100% 기록
//
// 사용 예:
//
//	logger.Init(cfg)
//	log.Info().Msg("mounted")
func Init(cfg config.Config) {
	InitWriter(cfg, os.Stderr)
}

// InitWriter 는 출력 대상을 지정하는 Init. 테스트에서 버퍼로 받을 때 쓴다.
func InitWriter(cfg config.Config, out io.Writer) {
	level := Level(cfg)
	zerolog.SetGlobalLevel(level)

	var w io.Writer = out
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	logger := base
	if cfg.LogSampleN > 1 {
		logger = base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}

	zlog.Logger = logger

	// go-fuse 등 표준 log 패키지를 쓰는 라이브러리도 zerolog 로 보낸다.
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// Level 은 설정에서 최소 로그 레벨을 고른다.
func Level(cfg config.Config) zerolog.Level {
	if s := strings.ToLower(strings.TrimSpace(cfg.LogLevel)); s != "" {
		if l, err := zerolog.ParseLevel(s); err == nil {
			return l
		}
	}

	switch {
	case cfg.Verbosity <= 0:
		return zerolog.WarnLevel
	case cfg.Verbosity == 1:
		return zerolog.InfoLevel
	case cfg.Verbosity == 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}
