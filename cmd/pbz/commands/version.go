package commands

import (
	"fmt"
	runtimedebug "runtime/debug"

	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number and the protobuf runtime version",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Just override the root one for this command and do nothing
		// (no config loading)
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
		fmt.Printf("protobuf %s\n", protobufVersion())
	},
}

const protobufModule = "google.golang.org/protobuf"

// protobufVersion is written into containers as the producer version
func protobufVersion() string {
	bi, ok := runtimedebug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range bi.Deps {
		if dep.Path == protobufModule {
			return dep.Version
		}
	}
	return "unknown"
}
