package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/convshape/shapeprop"
)

var reportHeader = []string{"Layer", "Type", "Inputs", "Output", "Elements", "Bytes"}

// reportRows returns one row per layer output, in the order the layers were inferred.
func reportRows(net *shapeprop.Network, result *shapeprop.Result) [][]string {
	layersByName := make(map[string]*shapeprop.Layer, len(net.Layers))
	for _, layer := range net.Layers {
		layersByName[layer.Name] = layer
	}
	var rows [][]string
	for _, name := range result.Order {
		layer := layersByName[name]
		inputs := make([]string, 0, len(layer.Inputs))
		for _, ref := range layer.Inputs {
			if shape, err := result.Lookup(net, ref); err == nil {
				inputs = append(inputs, ref+shape.String())
			} else {
				inputs = append(inputs, ref)
			}
		}
		for _, output := range result.Shapes[name] {
			rows = append(rows, []string{
				name, layer.Type, strings.Join(inputs, ", "), output.String(),
				humanize.Comma(int64(output.Size())),
				humanize.Bytes(uint64(output.Memory())),
			})
		}
	}
	return rows
}

// report renders the inferred shapes as a table, followed by the totals over all layer outputs.
func report(net *shapeprop.Network, result *shapeprop.Result) *lgtable.Table {
	table := newPlainTable(lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Headers(reportHeader...)
	rows := reportRows(net, result)
	for _, row := range rows {
		table.Row(row...)
	}
	var totalSize int
	var totalMemory uintptr
	for _, outputs := range result.Shapes {
		for _, output := range outputs {
			totalSize += output.Size()
			totalMemory += output.Memory()
		}
	}
	table.Row("total", "", "", "", humanize.Comma(int64(totalSize)), humanize.Bytes(uint64(totalMemory)))
	return table
}
