// Package adpchatcmder is the root of the adpchat command tree.
package adpchatcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/TencentCloudADP/adp-chat-client/cmd/adpchat/chat"
	configcmder "github.com/TencentCloudADP/adp-chat-client/cmd/adpchat/config"
	initcmder "github.com/TencentCloudADP/adp-chat-client/cmd/adpchat/init"
	mockcmder "github.com/TencentCloudADP/adp-chat-client/cmd/adpchat/mock"
	replaycmder "github.com/TencentCloudADP/adp-chat-client/cmd/adpchat/replay"
	servecmder "github.com/TencentCloudADP/adp-chat-client/cmd/adpchat/serve"
	versioncmder "github.com/TencentCloudADP/adp-chat-client/cmd/version"
)

const adpchatLongDesc string = `adpchat streams ADP assistant turns and reconciles them into records.

Talk to an ADP chat server:
  adpchat chat            Interactive chat in the terminal
  adpchat replay <file>   Reconcile a recorded stream

Run services:
  adpchat serve           Relay clients to an ADP chat server
  adpchat mock            Serve scripted turns for local development`

const adpchatShortDesc string = "adpchat - ADP chat streaming client"

func NewAdpchatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "adpchat",
		Short:         adpchatShortDesc,
		Long:          adpchatLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .adpchat/ directory")

	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(mockcmder.NewMockCmd())
	cmd.AddCommand(replaycmder.NewReplayCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
