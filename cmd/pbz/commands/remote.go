package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/PowerDNS/simpleblob"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PowerDNS/pbz/storage"
)

func init() {
	rootCmd.AddCommand(remoteCmd)

	remoteCmd.AddCommand(remoteListCmd)
	remoteListCmd.Flags().StringP("prefix", "p", "", "Prefix filter")
	remoteListCmd.Flags().BoolP("long", "l", false, "Add extra information, like size")
	remoteListCmd.Flags().BoolP("all", "a", false, "Include blobs without the container extension")

	remoteCmd.AddCommand(remoteRemoveCmd)

	remoteCmd.AddCommand(remoteGetCmd)
	remoteGetCmd.Flags().StringP("output", "o", "",
		"Output filename, if not the same as the remote name")

	remoteCmd.AddCommand(remotePutCmd)
	remotePutCmd.Flags().StringP("name", "n", "",
		"Name to store the container as, if different from the local name")
	remotePutCmd.Flags().Bool("force", false, "Skip name and content validation")
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Remote container operations (list, get, put, remove)",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var remoteListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List containers",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := storageContext()
		defer cancel()

		prefix, err := cmd.Flags().GetString("prefix")
		if err != nil {
			return err
		}
		long, err := cmd.Flags().GetBool("long")
		if err != nil {
			return err
		}
		all, err := cmd.Flags().GetBool("all")
		if err != nil {
			return err
		}

		st, err := storage.Open(ctx, conf.Storage)
		if err != nil {
			return err
		}
		var list simpleblob.BlobList
		if all {
			list, err = st.List(ctx, prefix)
		} else {
			list, err = storage.List(ctx, st, prefix)
		}
		if err != nil {
			return err
		}
		sort.Slice(list, func(i, j int) bool {
			return list[i].Name < list[j].Name
		})

		for _, blob := range list {
			if long {
				fmt.Printf("%12d\t%s\n", blob.Size, blob.Name)
			} else {
				fmt.Printf("%s\n", blob.Name)
			}
		}
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:          "remove NAME...",
	Short:        "Remove containers",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := storageContext()
		defer cancel()

		st, err := storage.Open(ctx, conf.Storage)
		if err != nil {
			return err
		}
		for _, name := range lo.Uniq(args) {
			if err := st.Delete(ctx, name); err != nil {
				return err
			}
			logrus.WithField("container", name).Info("Removed")
		}
		return nil
	},
}

var remoteGetCmd = &cobra.Command{
	Use:          "get NAME",
	Short:        "Download a container",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := storageContext()
		defer cancel()

		name := args[0]
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}
		if output == "" {
			output = filepath.Base(name)
		}

		st, err := storage.Open(ctx, conf.Storage)
		if err != nil {
			return err
		}
		data, err := st.Load(ctx, name)
		if err != nil {
			return err
		}
		if output == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"container": name,
			"output":    output,
			"size":      len(data),
		}).Info("Downloaded")
		return nil
	},
}

var remotePutCmd = &cobra.Command{
	Use:   "put PATH",
	Short: "Upload a container",
	Long: `Upload a container.

The container is fully read and validated before it is stored, unless
--force is given.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := storageContext()
		defer cancel()

		path := args[0]
		name, err := cmd.Flags().GetString("name")
		if err != nil {
			return err
		}
		if name == "" {
			name = filepath.Base(path)
		}
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		st, err := storage.Open(ctx, conf.Storage)
		if err != nil {
			return err
		}
		if force {
			err = st.Store(ctx, name, data)
		} else {
			err = storage.Store(ctx, st, name, data, conf.ReaderOptions()...)
		}
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"container": name,
			"size":      len(data),
		}).Info("Uploaded")
		return nil
	},
}
