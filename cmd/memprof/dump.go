package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evanschultz/memprof-client/pkg/callstack"
	"github.com/evanschultz/memprof-client/pkg/protocol"
	"github.com/evanschultz/memprof-client/pkg/session"
)

var (
	dumpSnapshots int
	dumpJSON      bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Read a number of reports and print the resulting tree",
	Args:  cobra.NoArgs,
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().IntVarP(&dumpSnapshots, "snapshots", "n", 1, "number of reports to read")
	dumpCmd.Flags().BoolVar(&dumpJSON, "json", false, "print JSON instead of a table")
}

func runDump(cmd *cobra.Command, args []string) error {
	if dumpSnapshots < 1 {
		return fmt.Errorf("--snapshots must be at least 1, got %d", dumpSnapshots)
	}
	ctx := cmd.Context()

	client, err := protocol.Dial(ctx, cfg.Addr)
	if err != nil {
		return err
	}
	sess := session.New(cfg.Addr, client, nil, logger)
	defer sess.Close()

	for i := 1; i <= dumpSnapshots; i++ {
		stats, err := sess.RunPass(ctx)
		logger.Info("pass finished",
			zap.Int("pass", i),
			zap.Stringer("outcome", stats.Outcome),
			zap.Int("records", stats.Records),
			zap.Int("pruned", stats.Pruned),
			zap.Int("nodes", stats.Nodes),
			zap.Error(err))
		if err == nil {
			continue
		}
		if errors.Is(err, protocol.ErrMalformedRecord) {
			continue
		}
		if errors.Is(err, protocol.ErrStreamClosed) {
			logger.Warn("stream closed early", zap.Int("passes", i))
			break
		}
		return fmt.Errorf("pass %d: %w", i, err)
	}

	root := sess.Tree().Export()
	out := cmd.OutOrStdout()
	if dumpJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(root.Snapshot())
	}
	_, err = fmt.Fprintln(out, renderTable(root, cfg.Sort))
	return err
}

// renderTable prints the tree as an indented table, siblings ordered by cmp.
func renderTable(root *callstack.ViewNode, cmp callstack.Comparator) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	nameStyle := lipgloss.NewStyle().Padding(0, 1)
	numStyle := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("Name", "TkBytes", "SkBytes", "TCount", "SCount", "SCount/F", "Calls/F").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return nameStyle
			default:
				return numStyle
			}
		})

	for _, row := range callstack.Flatten(root, cmp, nil) {
		r := row.Record
		t.Row(
			strings.Repeat("  ", row.Depth)+r.Name,
			callstack.FormatBytes(r.TotalBytes),
			callstack.FormatBytes(r.SelfBytes),
			callstack.FormatCount(r.TotalCount),
			callstack.FormatCount(r.SelfCount),
			callstack.FormatRate(r.SelfCountPerFrame),
			callstack.FormatRate(r.CallsPerFrame),
		)
	}
	return t.Render()
}
