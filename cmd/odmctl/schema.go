package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CaliLuke/go-docmap/odm"
	"github.com/CaliLuke/go-docmap/schemadef"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <schema>",
		Short: "Parse a schema file and report its types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := schemadef.ParseSchemaFile(args[0])
			if err != nil {
				return err
			}
			types, err := schemadef.Build(schema)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ts := range schema.Types {
				dt := types[ts.Name]
				if dt.IsEmbedded() {
					fmt.Fprintf(out, "embedded %s: %d fields\n", dt.Name(), len(ts.Fields))
					continue
				}
				line := fmt.Sprintf("document %s (%s): %d fields", dt.Name(), dt.Collection(), len(ts.Fields))
				if refs := dt.Schema().References(); len(refs) > 0 {
					line += ", references " + strings.Join(refs, ", ")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newGenCmd() *cobra.Command {
	cfg := schemadef.DefaultConfig()
	var output string
	var noStructs bool

	cmd := &cobra.Command{
		Use:   "gen <schema>",
		Short: "Generate Go type declarations from a schema file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := schemadef.ParseSchemaFile(args[0])
			if err != nil {
				return err
			}
			cfg.Structs = !noStructs
			var buf bytes.Buffer
			if err := schemadef.Render(&buf, schema, cfg); err != nil {
				return err
			}
			if output == "" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&cfg.PackageName, "package", cfg.PackageName, "Package name of the generated file")
	cmd.Flags().StringVar(&cfg.ModulePath, "odm-import", cfg.ModulePath, "Import path of the odm package")
	cmd.Flags().BoolVar(&noStructs, "no-structs", false, "Skip the tagged struct per type")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema> <type> <data.json>",
		Short: "Validate JSON records against a schema type",
		Long: `Validate hydrates each record in a JSON file (one object or an array of
objects) as the named type, canonicalizes it and runs the validation rules.
Date fields take epoch milliseconds.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := loadSchema(args[0])
			if err != nil {
				return err
			}
			dt, ok := types[args[1]]
			if !ok {
				return fmt.Errorf("schema declares no type %s", args[1])
			}
			raw, err := os.ReadFile(args[2])
			if err != nil {
				return err
			}
			var data any
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("decode %s: %w", args[2], err)
			}
			hydrated, err := dt.FromData(data)
			if err != nil {
				return err
			}
			docs, ok := hydrated.([]*odm.Document)
			if !ok {
				docs = []*odm.Document{hydrated.(*odm.Document)}
			}

			failed := 0
			out := cmd.OutOrStdout()
			for i, d := range docs {
				d.Canonicalize()
				if err := d.Validate(); err != nil {
					failed++
					fmt.Fprintf(out, "record %d: %v\n", i, err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d records invalid", failed, len(docs))
			}
			fmt.Fprintf(out, "%d records valid\n", len(docs))
			return nil
		},
	}
}
