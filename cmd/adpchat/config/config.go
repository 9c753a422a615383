// Package configcmder provides the config command for managing persistent
// adpchat configuration stored in the .adpchat/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TencentCloudADP/adp-chat-client/pkg/cliui"
	"github.com/TencentCloudADP/adp-chat-client/pkg/config"
)

const configLongDesc string = `Manage persistent adpchat configuration.

Configuration is stored as config.toml in the .adpchat/ directory and provides
default values for command flags. CLI flags and ADPCHAT_* environment
variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  relay.listen, relay.upstream, relay.workers, relay.log_file,
  client.relay_target, client.application_id,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  mock.listen

Use subcommands to get, set, or list configuration values:
  adpchat config set <key> <value>    Set a configuration value
  adpchat config get <key>            Get a configuration value
  adpchat config list                 List all configuration values

Examples:
  adpchat config set relay.upstream https://adp.example.com
  adpchat config set eventstream.brokers broker-1:9092,broker-2:9092
  adpchat config get client.application_id
  adpchat config list`

const configShortDesc string = "Manage persistent adpchat configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validateKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
