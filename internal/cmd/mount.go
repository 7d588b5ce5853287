// internal/cmd/mount.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cwl-mount/internal/config"
	"cwl-mount/internal/cwl"
	"cwl-mount/internal/cwlfs"
	"cwl-mount/internal/format"
	"cwl-mount/internal/logger"
	"cwl-mount/internal/metrics"
	"cwl-mount/internal/model"
	"cwl-mount/internal/partition"
	"cwl-mount/internal/server"
	"cwl-mount/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 종료 시 부가 listener 를 닫을 때 기다리는 최대 시간.
const shutdownTimeout = 5 * time.Second

func newMountCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount <mount-point>",
		Short: "Mount a log group at the given directory",
		Long: `Mount one CloudWatch Logs log group read-only at <mount-point>.

The tree is YYYY/MM/DD/HH-MM. Directory listings are computed locally;
a bucket file is fetched from CloudWatch Logs on its first read and cached.
The command blocks until the filesystem is unmounted or SIGINT/SIGTERM.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMount(cmd.Context(), v, args[0])
		},
	}

	f := cmd.Flags()
	f.StringP(config.KeyLogGroupName, "g", "", "CloudWatch Logs log group name (required)")
	f.String(config.KeyEpoch, config.EpochCreation, `first year shown: "creation", "first-event", or a date (YYYY-MM-DD / RFC3339)`)
	f.Duration(config.KeyBucketWidth, config.DefaultBucketWidth, "time covered by one file; whole minutes dividing 24h")
	f.Int64(config.KeyFileSize, config.DefaultFileSize, "size reported for every bucket file")
	f.StringP(config.KeyFormat, "f", config.DefaultLineFormat, "line template; fields: $"+strings.Join(format.Fields(), " $"))
	f.Int64(config.KeyCacheBytes, config.DefaultCacheBytes, "max bytes of cached bucket contents")
	f.Duration(config.KeyCacheIdleTTL, config.DefaultCacheIdleTTL, "drop cached buckets not read for this long (0 = never)")
	f.Duration(config.KeyCacheSweep, config.DefaultCacheSweep, "idle sweep interval")
	f.Bool(config.KeyCacheCompress, false, "keep cached buckets s2 compressed")
	f.Duration(config.KeySettleDelay, config.DefaultSettleDelay, "buckets ending within this of now are treated as still filling")
	f.Duration(config.KeyRecentTTL, config.DefaultRecentTTL, "how long a still-filling bucket stays cached")
	f.Int(config.KeyPageRetries, config.DefaultPageRetries, "retries per page on transient errors (0 = no retry)")
	f.Duration(config.KeyPageTimeout, config.DefaultPageTimeout, "timeout for one remote call")
	f.Int32(config.KeyPageSize, config.DefaultPageSize, "events per FilterLogEvents page (1-10000)")
	f.Bool(config.KeyAllowOther, false, "allow other users to access the mount (needs user_allow_other)")
	f.String(config.KeyMetricsAddr, "", "serve /metrics and /health on this address, e.g. 127.0.0.1:9090")
	cobra.CheckErr(v.BindPFlags(f))

	return cmd
}

// epochSource 는 epoch 결정에 필요한 원격 조회 (cwl.AWSClient).
type epochSource interface {
	FirstEventTime(ctx context.Context, logGroup string, now time.Time) (time.Time, bool, error)
}

// resolveEpoch 는 루트 연도 목록이 시작할 시각을 정한다.
//
//   - explicit:    --epoch 로 받은 값
//   - creation:    로그 그룹 생성 시각
//   - first-event: 가장 이른 이벤트. 없으면 생성 시각
//
// 어느 값도 없으면 now 를 쓴다 (빈 로그 그룹).
func resolveEpoch(ctx context.Context, cfg config.Config, src epochSource, group model.LogGroup, now time.Time) (time.Time, error) {
	switch cfg.EpochSource {
	case config.EpochExplicit:
		return cfg.Epoch, nil
	case config.EpochFirstEvent:
		t, ok, err := src.FirstEventTime(ctx, group.Name, now)
		if err != nil {
			return time.Time{}, fmt.Errorf("finding first event: %w", err)
		}
		if ok {
			return t, nil
		}
		log.Info().Str("log_group", group.Name).Msg("no events found, falling back to creation time")
	}

	if !group.CreationTime.IsZero() {
		return group.CreationTime, nil
	}
	return now.UTC(), nil
}

func runMount(ctx context.Context, v *viper.Viper, mountPoint string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg.MountPoint = mountPoint
	logger.Init(cfg)

	if err := cfg.ValidateMount(); err != nil {
		return err
	}
	if err := cwl.ValidateLogGroupName(cfg.LogGroupName); err != nil {
		return err
	}
	tmpl, err := format.Compile(cfg.LineFormat)
	if err != nil {
		return fmt.Errorf("--format: %w", err)
	}

	m := metrics.New()

	client, err := cwl.NewAWSClient(ctx, cfg, m)
	if err != nil {
		return err
	}

	// 마운트 전에 로그 그룹 존재를 확인한다. 없는 그룹은 빈 트리가 아니라 시작 실패.
	group, ok, err := client.LookupLogGroup(ctx, cfg.LogGroupName)
	if err != nil {
		return fmt.Errorf("describing log group %s: %w", cfg.LogGroupName, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", cwl.ErrLogGroupNotFound, cfg.LogGroupName)
	}

	epoch, err := resolveEpoch(ctx, cfg, client, group, time.Now())
	if err != nil {
		return err
	}

	layout, err := partition.NewLayout(partition.Options{
		Epoch:       epoch,
		BucketWidth: cfg.BucketWidth,
		FileSize:    cfg.FileSize,
	})
	if err != nil {
		return err
	}
	first, last := layout.Years()

	log.Info().
		Str("log_group", group.Name).
		Str("mount_point", cfg.MountPoint).
		Time("epoch", epoch).
		Str("epoch_source", cfg.EpochSource).
		Int("first_year", first).
		Int("last_year", last).
		Dur("bucket_width", layout.BucketWidth()).
		Msg("mounting")

	coord := worker.NewCoordinator(cfg, m, client, tmpl)
	coord.Start()
	defer coord.Shutdown()

	var metricsSrv *server.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = server.New(cfg.MetricsAddr, server.NewHandler(cfg, m, coord))
		metricsSrv.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := metricsSrv.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("metrics listener shutdown")
			}
		}()
	}

	fsrv, err := cwlfs.Mount(cwlfs.Options{
		MountPoint: cfg.MountPoint,
		Adapter:    cwlfs.NewAdapter(layout, coord, m),
		FsName:     cfg.LogGroupName,
		AllowOther: cfg.AllowOther,
		Debug:      cfg.Verbosity >= 3,
	})
	if err != nil {
		return err
	}

	// SIGINT / SIGTERM → unmount. 사용 중이면 실패하므로 다음 signal 을 기다린다.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go unmountOnSignal(ctx, sigCh, done, fsrv.Unmount)

	fsrv.Wait()
	close(done)

	log.Info().Msg("filesystem unmounted")
	log.Debug().Msg("final metrics\n" + m.String())
	return nil
}

// unmountOnSignal 은 signal 또는 ctx 취소 시 unmount 를 시도한다.
// 실패하면 (사용 중) 다음 signal 을 기다린다. ctx 는 한 번만 본다.
// done 이 닫히면 (이미 unmount 됨) 끝난다.
func unmountOnSignal(ctx context.Context, sigCh <-chan os.Signal, done <-chan struct{}, unmount func() error) {
	ctxDone := ctx.Done()
	for {
		select {
		case <-done:
			return
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutdown signal received, unmounting")
		case <-ctxDone:
			ctxDone = nil
			log.Info().Msg("context canceled, unmounting")
		}
		if err := unmount(); err != nil {
			log.Error().Err(err).Msg("unmount failed (filesystem busy?), send the signal again")
			continue
		}
		return
	}
}
