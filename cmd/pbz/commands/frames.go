package commands

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/PowerDNS/pbz/frame"
	"github.com/PowerDNS/pbz/storage"
	"github.com/PowerDNS/pbz/utils"
)

func init() {
	rootCmd.AddCommand(framesCmd)
	framesCmd.Flags().IntP("preview", "n", utils.DefaultPreviewSize, "Number of payload bytes to show, 0 for all")
	framesCmd.Flags().BoolP("remote", "r", false, "Read the container from the configured storage")
}

// loadPlain returns the decompressed container data
func loadPlain(name string, remote bool) ([]byte, error) {
	var data []byte
	var err error
	switch {
	case remote:
		ctx, cancel := storageContext()
		defer cancel()
		st, err := storage.Open(ctx, conf.Storage)
		if err != nil {
			return nil, err
		}
		data, err = st.Load(ctx, name)
		if err != nil {
			return nil, err
		}
	case name == "-":
		data, err = io.ReadAll(os.Stdin)
	default:
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "open gzip stream")
	}
	defer gz.Close()
	plain, err := io.ReadAll(gz)
	if err != nil {
		// Show what we have, the listing ends with the error
		return plain, errors.Wrap(err, "decompress")
	}
	return plain, nil
}

// describeFrame returns a short human readable description of the payload
func describeFrame(t frame.Type, payload []byte, preview int) string {
	switch t {
	case frame.TypeFileDescriptor:
		set := new(descriptorpb.FileDescriptorSet)
		if err := proto.Unmarshal(payload, set); err != nil {
			return fmt.Sprintf("invalid file descriptor set: %v", err)
		}
		var names []string
		for _, f := range set.GetFile() {
			names = append(names, f.GetName())
		}
		return "files: " + strings.Join(names, ", ")
	case frame.TypeDescriptorName, frame.TypeProtobufVersion:
		return string(payload)
	default:
		return utils.DisplayASCII(payload, preview)
	}
}

var framesCmd = &cobra.Command{
	Use:   "frames PATH",
	Short: "List all frames in a container for debugging",
	Long: `List all frames in a container for debugging.

Every line shows the offset in the decompressed stream, the frame type,
the payload length and a short description of the payload.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		preview, err := cmd.Flags().GetInt("preview")
		if err != nil {
			return err
		}
		remote, err := cmd.Flags().GetBool("remote")
		if err != nil {
			return err
		}

		plain, loadErr := loadPlain(args[0], remote)
		if loadErr != nil && plain == nil {
			return loadErr
		}
		if err := frame.ReadMagic(bytes.NewReader(plain)); err != nil {
			return err
		}

		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()

		limits := frame.Limits{MaxPayloadSize: conf.Reader.MaxFrameSize}
		off := len(frame.Magic)
		for {
			t, payload, n, err := frame.ParseRaw(plain[off:], limits)
			if err == io.EOF {
				break
			}
			if err != nil {
				return errors.Wrapf(err, "frame at offset %d", off)
			}
			_, _ = fmt.Fprintf(out, "%10d  %-16s %8d  %s\n",
				off, t, len(payload), describeFrame(t, payload, preview))
			off += n
		}
		return loadErr
	},
}
