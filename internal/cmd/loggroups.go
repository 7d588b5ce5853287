// internal/cmd/loggroups.go
package cmd

import (
	"fmt"
	"io"
	"strings"

	"cwl-mount/internal/config"
	"cwl-mount/internal/cwl"
	"cwl-mount/internal/logger"
	"cwl-mount/internal/metrics"
	"cwl-mount/internal/model"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	outputText = "text"
	outputJSON = "json"
)

func newListLogGroupsCommand(v *viper.Viper) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list-log-groups",
		Short: "List CloudWatch Logs log groups then quit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validOutput(output); err != nil {
				return err
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger.Init(cfg)

			client, err := cwl.NewAWSClient(cmd.Context(), cfg, metrics.New())
			if err != nil {
				return err
			}

			log.Info().Str("region", cfg.AWSRegion).Msg("listing log groups")
			groups, err := client.ListLogGroups(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing log groups: %w", err)
			}
			return writeLogGroups(cmd.OutOrStdout(), groups, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json")
	return cmd
}

func validOutput(s string) error {
	switch strings.ToLower(s) {
	case outputText, outputJSON:
		return nil
	}
	return fmt.Errorf("invalid --output %q: want %s or %s", s, outputText, outputJSON)
}

// writeLogGroups 는 text 면 한 줄에 이름 하나, json 이면 배열로 쓴다.
func writeLogGroups(w io.Writer, groups []model.LogGroup, output string) error {
	if strings.ToLower(output) == outputJSON {
		if groups == nil {
			groups = []model.LogGroup{}
		}
		b, err := json.MarshalIndent(groups, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	for _, g := range groups {
		if _, err := fmt.Fprintln(w, g.Name); err != nil {
			return err
		}
	}
	return nil
}
