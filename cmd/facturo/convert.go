package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/artpar/facturo/pkg/keycase"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert the keys of a JSON document to another casing",
	Long: `Convert every object key of a JSON document, at any depth, to the
given naming convention. Values are left byte for byte as they are.
Reads the file argument, or stdin when it is absent or "-".

Conventions: ` + strings.Join(keycase.Names(), ", ") + `

Examples:
  facturo convert --to camel invoice.json
  echo '{"user_name":"x"}' | facturo convert --to pascal
  facturo convert --to snake --collisions error payload.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

var (
	convertTo         string
	convertCollisions string
	convertMaxDepth   int
	convertIndent     bool
)

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVar(&convertTo, "to", "camel", "target convention")
	convertCmd.Flags().StringVar(&convertCollisions, "collisions", "last_wins", "what to do when two keys convert to the same key: last_wins or error")
	convertCmd.Flags().IntVar(&convertMaxDepth, "max-depth", keycase.DefaultMaxDepth, "maximum nesting depth")
	convertCmd.Flags().BoolVar(&convertIndent, "indent", false, "indent the output")
}

func runConvert(cmd *cobra.Command, args []string) error {
	namer, err := keycase.Lookup(convertTo)
	if err != nil {
		return err
	}
	policy, err := keycase.ParseCollisionPolicy(convertCollisions)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	t := keycase.ForNamer(namer,
		keycase.WithMaxDepth(convertMaxDepth),
		keycase.WithCollisionPolicy(policy),
		keycase.WithCollisionHook(func(c keycase.Collision) {
			fmt.Fprintf(stderr, "collision at %s: %s -> %s\n", c.Path, strings.Join(c.Sources, ", "), c.Target)
		}),
	)

	out, err := t.ConvertJSON(raw)
	if errors.Is(err, keycase.ErrNotJSON) {
		return errors.New("input is not a JSON document")
	}
	if err != nil {
		return err
	}

	if convertIndent {
		var buf bytes.Buffer
		if err := json.Indent(&buf, out, "", "  "); err != nil {
			return err
		}
		out = buf.Bytes()
	}
	out = append(out, '\n')
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
