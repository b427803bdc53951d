// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Command cpluffinfo scans one or more plug-in directories and prints
// the resulting plug-in population, exercising the public framework API
// end to end. It is an example host, not a management tool.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	cpluff "github.com/jlehtine/go-cpluff"
	"github.com/jlehtine/go-cpluff/source/fs"
	"github.com/jlehtine/go-cpluff/status"
)

var (
	descriptorFile string
	startAll       bool
	verbose        bool
)

func main() {
	cmd := &cobra.Command{
		Use:          "cpluffinfo [flags] plugin-dir [plugin-dir ...]",
		Short:        "Scan plug-in directories and print the plug-in population",
		Args:         cobra.MinimumNArgs(1),
		RunE:         run,
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&descriptorFile, "descriptor-file", "plugin.xml", "descriptor filename to look for")
	cmd.Flags().BoolVar(&startAll, "start", false, "start every installed plug-in before printing")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print framework warnings and errors to stderr")
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, args []string) error {
	ctx := cpluff.NewContext(cpluff.WithDescriptorFile(descriptorFile))
	defer ctx.DestroyContext()

	if verbose {
		ctx.AddLogger(func(severity status.Severity, message, _ string) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", severity, message)
		}, status.SeverityWarning)
	}

	ctx.RegisterSource(fs.New(args, fs.WithDescriptorFile(descriptorFile)))
	if err := ctx.Scan(context.Background(), cpluff.ScanInstall|cpluff.ScanUpgrade); err != nil {
		return err
	}

	if startAll {
		for _, info := range ctx.GetPluginsInfo() {
			id := info.Descriptor.ID
			ctx.ReleaseInfo(info)
			if err := ctx.Start(id); err != nil {
				fmt.Fprintf(os.Stderr, "starting %s: %v\n", id, err)
			}
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Version", "State", "Provider"})
	for _, info := range ctx.GetPluginsInfo() {
		table.Append([]string{
			info.Descriptor.ID,
			info.Descriptor.Version.String(),
			info.State.String(),
			info.Descriptor.ProviderName,
		})
		ctx.ReleaseInfo(info)
	}
	table.Render()
	return nil
}
