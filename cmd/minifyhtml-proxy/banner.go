// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"
	"golang.org/x/term"

	"rivaas.dev/minifyhtml"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printBanner writes the startup summary to w. Colors are downsampled to
// what the terminal supports and stripped when w is not a terminal.
func printBanner(w io.Writer, environ []string, cfg *proxyConfig, backend minifyhtml.Backend) {
	cpw := colorprofile.NewWriter(w, environ)

	var art strings.Builder
	gradient := []string{"12", "14", "10", "11"}
	for _, line := range figure.NewFigure("minifyhtml", "", false).Slicify() {
		if strings.TrimSpace(line) == "" {
			art.WriteString("\n")
			continue
		}
		for i, char := range line {
			style := lipgloss.NewStyle().Foreground(lipgloss.Color(gradient[i%len(gradient)])).Bold(true)
			art.WriteString(style.Render(string(char)))
		}
		art.WriteString("\n")
	}

	categoryStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Width(14).PaddingLeft(2)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	disabledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	providerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	line := func(label, value string) string {
		return labelStyle.Render(label+":") + "  " + value + "\n"
	}

	addr := cfg.Listen
	if strings.HasPrefix(addr, ":") {
		addr = "0.0.0.0" + addr
	}
	addr = "http://" + addr

	maxBody := disabledStyle.Render("Unlimited")
	if cfg.MaxBodySize > 0 {
		maxBody = valueStyle.Render(fmt.Sprintf("%d bytes", cfg.MaxBodySize))
	}

	var out strings.Builder
	out.WriteString(categoryStyle.Render("Proxy") + "\n")
	out.WriteString(line("Address", valueStyle.Foreground(lipgloss.Color("10")).Render(addr)))
	out.WriteString(line("Upstream", valueStyle.Foreground(lipgloss.Color("14")).Render(cfg.Upstream)))

	out.WriteString("\n" + categoryStyle.Render("Minification") + "\n")
	out.WriteString(line("Backend", valueStyle.Foreground(lipgloss.Color("11")).Render(backend.String())))
	out.WriteString(line("Max body", maxBody))

	out.WriteString("\n" + categoryStyle.Render("Observability") + "\n")
	metrics := valueStyle.Foreground(lipgloss.Color("13")).Render("Enabled") + "  " +
		providerStyle.Render(fmt.Sprintf("[%s]", cfg.Metrics.Exporter))
	if cfg.Metrics.Exporter == "prometheus" {
		metrics = valueStyle.Foreground(lipgloss.Color("13")).Render(addr+"/metrics") + "  " +
			providerStyle.Render("[prometheus]")
	}
	out.WriteString(line("Metrics", metrics))

	tracing := disabledStyle.Render("Disabled")
	if cfg.Tracing.Enabled {
		tracing = valueStyle.Foreground(lipgloss.Color("12")).Render("Enabled") + "  " +
			providerStyle.Render(fmt.Sprintf("[%s]", cfg.Tracing.Exporter))
	}
	out.WriteString(line("Tracing", tracing))

	_, _ = fmt.Fprintln(cpw)
	_, _ = fmt.Fprint(cpw, art.String())
	_, _ = fmt.Fprintln(cpw)
	_, _ = fmt.Fprint(cpw, out.String())
	_, _ = fmt.Fprintln(cpw)
}
