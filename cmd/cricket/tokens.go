package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tiktoken-go/tokenizer"
)

func newTokensCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Count, encode and decode model tokens",
	}
	cmd.AddCommand(newTokensCountCommand())
	cmd.AddCommand(newTokensEncodeCommand())
	cmd.AddCommand(newTokensDecodeCommand())
	return cmd
}

func newTokensCountCommand() *cobra.Command {
	var model, codecStr string
	cmd := &cobra.Command{
		Use:   "count [file]",
		Short: "Count tokens in a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readTokensInput(args)
			if err != nil {
				return err
			}
			model, codecStr = resolveModelCodec(model, codecStr)
			codec, err := getCodec(codecStr)
			if err != nil {
				return err
			}
			ids, _, err := codec.Encode(input)
			if err != nil {
				return errors.Wrap(err, "encode input")
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Model: %s\n", model)
			_, _ = fmt.Fprintf(out, "Codec: %s\n", codecStr)
			_, _ = fmt.Fprintf(out, "Total tokens: %d\n", len(ids))
			return nil
		},
	}
	addTokensFlags(cmd, &model, &codecStr)
	return cmd
}

func newTokensEncodeCommand() *cobra.Command {
	var model, codecStr string
	cmd := &cobra.Command{
		Use:   "encode [file]",
		Short: "Encode a file or stdin into token ids",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readTokensInput(args)
			if err != nil {
				return err
			}
			_, codecStr = resolveModelCodec(model, codecStr)
			codec, err := getCodec(codecStr)
			if err != nil {
				return err
			}
			ids, _, err := codec.Encode(input)
			if err != nil {
				return errors.Wrap(err, "encode input")
			}

			textIds := make([]string, 0, len(ids))
			for _, id := range ids {
				textIds = append(textIds, strconv.FormatUint(uint64(id), 10))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(textIds, " "))
			return err
		},
	}
	addTokensFlags(cmd, &model, &codecStr)
	return cmd
}

func newTokensDecodeCommand() *cobra.Command {
	var model, codecStr string
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode space-separated token ids back into text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readTokensInput(args)
			if err != nil {
				return err
			}
			_, codecStr = resolveModelCodec(model, codecStr)
			codec, err := getCodec(codecStr)
			if err != nil {
				return err
			}

			var ids []uint
			for _, t := range strings.Fields(input) {
				id, err := strconv.Atoi(t)
				if err != nil {
					return errors.Errorf("invalid token id: %s", t)
				}
				if id < 0 {
					return errors.Errorf("invalid token id: %d (must be non-negative)", id)
				}
				ids = append(ids, uint(id))
			}

			text, err := codec.Decode(ids)
			if err != nil {
				return errors.Wrap(err, "decode tokens")
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
	addTokensFlags(cmd, &model, &codecStr)
	return cmd
}

func addTokensFlags(cmd *cobra.Command, model *string, codecStr *string) {
	cmd.Flags().StringVar(model, "model", "", "Model used for encoding (default: the configured model)")
	cmd.Flags().StringVar(codecStr, "codec", "", "Codec used for encoding (default: inferred from the model)")
}

// readTokensInput loads the argument file, treating "-" or a missing
// argument as stdin.
func readTokensInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errors.Wrap(err, "read stdin")
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", errors.Wrapf(err, "read %s", args[0])
	}
	return string(b), nil
}

// resolveModelCodec fills in the model from the configuration and the
// codec from the model. An explicit codec wins over the model mapping.
func resolveModelCodec(model string, codecStr string) (string, string) {
	if model == "" {
		model = settings.Model
	}
	if codecStr == "" {
		codecStr = defaultEncodingFor(model)
	}
	return model, codecStr
}

func defaultEncodingFor(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3"):
		return "o200k_base"
	case strings.HasPrefix(model, "gpt-4") || strings.HasPrefix(model, "gpt-3.5-turbo") || strings.HasPrefix(model, "text-embedding-ada-002"):
		return "cl100k_base"
	case strings.HasPrefix(model, "text-davinci-002") || strings.HasPrefix(model, "text-davinci-003"):
		return "p50k_base"
	default:
		return "r50k_base"
	}
}

func getCodec(codecStr string) (tokenizer.Codec, error) {
	codec, err := tokenizer.Get(tokenizer.Encoding(codecStr))
	if err != nil {
		return nil, errors.Wrapf(err, "unknown codec: %s", codecStr)
	}
	return codec, nil
}
