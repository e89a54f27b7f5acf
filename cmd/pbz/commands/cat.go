package commands

import (
	"bufio"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PowerDNS/pbz/jsonl"
	"github.com/PowerDNS/pbz/selector"
)

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().StringP("selector", "x", "",
		"Only output the value selected by a JSON path (starting with '$') or JSON pointer (starting with '/')")
	catCmd.Flags().IntP("skip", "s", 0, "Number of messages to skip")
	catCmd.Flags().IntP("take", "t", 0, "Number of messages to output, 0 for all")
	catCmd.Flags().BoolP("pretty", "p", false, "Pretty print the JSON")
	catCmd.Flags().BoolP("remote", "r", false, "Read the container from the configured storage")
}

var catCmd = &cobra.Command{
	Use:   "cat PATH",
	Short: "Print the messages of a container as JSON lines",
	Long: `Print the messages of a container as JSON lines.

Every message is decoded with the schemas found in the container itself,
no generated code or .proto files are needed. Use '-' to read from stdin.
Null values and values not matched by the selector are not printed.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		selStr, err := cmd.Flags().GetString("selector")
		if err != nil {
			return err
		}
		skip, err := cmd.Flags().GetInt("skip")
		if err != nil {
			return err
		}
		take, err := cmd.Flags().GetInt("take")
		if err != nil {
			return err
		}
		pretty, err := cmd.Flags().GetBool("pretty")
		if err != nil {
			return err
		}
		remote, err := cmd.Flags().GetBool("remote")
		if err != nil {
			return err
		}
		if skip < 0 || take < 0 {
			return fmt.Errorf("skip and take must not be negative")
		}
		sel, err := selector.Parse(selStr)
		if err != nil {
			return err
		}

		ctx, cancel := storageContext()
		defer cancel()
		r, err := openContainer(ctx, args[0], remote)
		if err != nil {
			return err
		}
		defer r.Close()

		// Buffered output speeds things up
		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()

		l := logrus.WithField("container", args[0])
		res, err := jsonl.Dump(rootCtx, r, out, jsonl.Options{
			Selector: sel,
			Skip:     skip,
			Take:     take,
			Pretty:   pretty,
			Logger:   l,
		})
		l.WithFields(logrus.Fields{
			"messages":      res.Messages,
			"written":       res.Written,
			"decode_errors": res.DecodeErrors,
		}).Debug("Done")
		if err != nil {
			return err
		}
		if res.DecodeErrors > 0 {
			return fmt.Errorf("%d messages could not be decoded", res.DecodeErrors)
		}
		return nil
	},
}
