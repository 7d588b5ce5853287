// internal/cmd/root.go
package cmd

import (
	"errors"
	"fmt"
	"os"

	"cwl-mount/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version 은 빌드 시 -ldflags "-X cwl-mount/internal/cmd.version=..." 로 덮어쓴다.
var version = "dev"

// NewRootCommand 는 cwl-mount 최상위 명령을 만든다.
// 명령마다 자기 viper 를 가지므로 테스트에서 여러 번 만들어도 서로 섞이지 않는다.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	var cfgFile string

	root := &cobra.Command{
		Use:   "cwl-mount",
		Short: "Mount AWS CloudWatch Logs as a read-only filesystem",
		Long: `cwl-mount exposes one CloudWatch Logs log group as a read-only directory tree.
Each file covers one time bucket (YYYY/MM/DD/HH-MM) and its contents are fetched
on first read, rendered one event per line.

Examples:
  cwl-mount list-log-groups --region us-west-2
  cwl-mount mount /mnt/logs --log-group-name /aws/lambda/my-fn
  cwl-mount mount /mnt/logs -g /aws/app --epoch 2024-01-01 -vv`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cfgFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.cwl-mount.yaml)")
	pf.String(config.KeyRegion, "", "AWS region, e.g. us-west-2 (default: SDK chain)")
	pf.Int(config.KeyTPS, config.DefaultTPS, "CloudWatch Logs calls per second")
	pf.CountP(config.KeyVerbosity, "v", "verbose output; repeat for more (-vvv = trace)")
	pf.String(config.KeyLogLevel, "", "log level (trace|debug|info|warn|error); overrides -v")
	pf.Bool(config.KeyLogPretty, false, "human readable console logs instead of JSON")
	cobra.CheckErr(v.BindPFlags(pf))

	root.AddCommand(newMountCommand(v))
	root.AddCommand(newListLogGroupsCommand(v))
	return root
}

// Execute 는 최상위 명령을 실행한다. 실패하면 stderr 에 출력하고 1 로 종료한다.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cwl-mount:", err)
		os.Exit(1)
	}
}

// initConfig 는 설정 파일 → 환경 변수 순으로 viper 를 채운다.
// flag 가 가장 우선이고 설정 파일이 없어도 된다.
func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".cwl-mount")
		v.SetConfigType("yaml")
	}

	config.BindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}
