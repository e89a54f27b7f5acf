package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bufbuild/protocompile"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PowerDNS/pbz/container"
	"github.com/PowerDNS/pbz/jsonl"
	"github.com/PowerDNS/pbz/storage"
)

func init() {
	rootCmd.AddCommand(packCmd)
	packCmd.Flags().StringP("descriptor-set", "d", "",
		"File with a serialized FileDescriptorSet, as written by 'protoc --descriptor_set_out --include_imports'")
	packCmd.Flags().StringSliceP("proto", "P", nil, ".proto source files to compile, instead of a descriptor set")
	packCmd.Flags().StringSliceP("import-path", "I", []string{"."}, "Import paths for --proto")
	packCmd.Flags().StringP("type", "T", "", "Fully qualified message type of the input records (required)")
	packCmd.Flags().StringP("input", "i", "-", "JSON lines input file, '-' for stdin")
	packCmd.Flags().BoolP("remote", "r", false, "Store the container in the configured storage under the OUTPUT name")
	packCmd.Flags().Bool("no-version", false, "Do not write the protobuf version marker")
	_ = packCmd.MarkFlagRequired("type")
}

// compileProtos compiles .proto sources and registers the results, including
// their imports, with w.
func compileProtos(ctx context.Context, w *container.Writer, files, importPaths []string) error {
	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			ImportPaths: importPaths,
		}),
	}
	compiled, err := compiler.Compile(ctx, files...)
	if err != nil {
		return errors.Wrap(err, "compile proto files")
	}
	for _, fd := range compiled {
		if err := w.RegisterDescriptor(fd); err != nil {
			return errors.Wrap(err, fd.Path())
		}
	}
	return nil
}

var packCmd = &cobra.Command{
	Use:   "pack OUTPUT",
	Short: "Create a container from JSON lines",
	Long: `Create a container from JSON lines.

Every input line is a JSON object in the canonical protobuf JSON mapping for
the message type given with --type. The schema comes from a descriptor set
file or is compiled from .proto sources. Use '-' as OUTPUT for stdout.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		descSet, err := cmd.Flags().GetString("descriptor-set")
		if err != nil {
			return err
		}
		protos, err := cmd.Flags().GetStringSlice("proto")
		if err != nil {
			return err
		}
		importPaths, err := cmd.Flags().GetStringSlice("import-path")
		if err != nil {
			return err
		}
		typeName, err := cmd.Flags().GetString("type")
		if err != nil {
			return err
		}
		input, err := cmd.Flags().GetString("input")
		if err != nil {
			return err
		}
		remote, err := cmd.Flags().GetBool("remote")
		if err != nil {
			return err
		}
		noVersion, err := cmd.Flags().GetBool("no-version")
		if err != nil {
			return err
		}
		if (descSet == "") == (len(protos) == 0) {
			return fmt.Errorf("exactly one of --descriptor-set and --proto is required")
		}
		output := args[0]
		if remote {
			if err := storage.CheckName(output); err != nil {
				return err
			}
		}

		var in io.Reader = os.Stdin
		if input != "-" {
			f, err := os.Open(input)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		// Remote containers are built in memory first
		var buf bytes.Buffer
		opts := append(conf.WriterOptions(), container.WithLogger(logrus.WithField("container", output)))
		var w *container.Writer
		switch {
		case remote:
			w, err = container.NewWriter(&buf, opts...)
		case output == "-":
			w, err = container.NewWriter(os.Stdout, opts...)
		default:
			w, err = container.Create(output, opts...)
		}
		if err != nil {
			return err
		}
		defer w.Close()

		if !noVersion {
			if err := w.WriteProtobufVersion(protobufVersion()); err != nil {
				return err
			}
		}
		if descSet != "" {
			err = w.RegisterSchemaFile(descSet)
		} else {
			err = compileProtos(rootCtx, w, protos, importPaths)
		}
		if err != nil {
			return err
		}

		n, err := jsonl.Pack(rootCtx, in, w, typeName)
		if err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		stats := w.Stats()
		logrus.WithFields(logrus.Fields{
			"container":    output,
			"messages":     n,
			"schemas":      stats.Schemas,
			"payload_size": stats.PayloadSize.HR(),
		}).Info("Packed")

		if remote {
			ctx, cancel := storageContext()
			defer cancel()
			st, err := storage.Open(ctx, conf.Storage)
			if err != nil {
				return err
			}
			return storage.Store(ctx, st, output, buf.Bytes(), conf.ReaderOptions()...)
		}
		return nil
	},
}
