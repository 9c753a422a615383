package main

import (
	"os"

	adpchatcmder "github.com/TencentCloudADP/adp-chat-client/cmd/adpchat"
)

func main() {
	cmd := adpchatcmder.NewAdpchatCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
