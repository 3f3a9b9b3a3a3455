package api

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"gocombat/domain/combat"
	"gocombat/ports"
)

// reportRunLimit caps how many audit entries the report lists
const reportRunLimit = 20

// buildModelReport renders a fitted model as markdown: overview, per-batch
// parameters, prior fit diagnostics, and the recent run history.
func buildModelReport(m *combat.Model, runs []ports.RunRecord) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Harmonization Model %s\n\n", m.ID)
	fmt.Fprintf(&b, "Created %s\n\n", m.CreatedAt.String())

	samples := 0
	for _, batch := range m.Batches {
		samples += batch.Size
	}

	b.WriteString("## Overview\n\n")
	b.WriteString("| Property | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Features | %d |\n", m.FeatureCount())
	fmt.Fprintf(&b, "| Batches | %d |\n", m.K())
	fmt.Fprintf(&b, "| Samples | %d |\n", samples)
	fmt.Fprintf(&b, "| Method | %s |\n", m.Config.Method)
	fmt.Fprintf(&b, "| Adjust mode | %s |\n", m.Config.Mode)
	fmt.Fprintf(&b, "| Tolerance | %g |\n", m.Config.ConvergenceTolerance)
	fmt.Fprintf(&b, "| Iteration cap | %d |\n", m.Config.MaxIterations)
	fmt.Fprintf(&b, "| Interest covariates | %s |\n", nameList(m.InterestNames))
	fmt.Fprintf(&b, "| Nuisance covariates | %s |\n", nameList(m.NuisanceNames))
	fmt.Fprintf(&b, "| Fingerprint | `%s` |\n", m.Fingerprint)
	fmt.Fprintf(&b, "| Input fingerprint | `%s` |\n\n", m.InputFingerprint)

	b.WriteString("## Batches\n\n")
	b.WriteString("| Batch | Samples | Status | Iterations | Max delta | gamma-bar | tau^2 | lambda | theta |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
	for k, batch := range m.Batches {
		conv := m.Convergence[k]
		fmt.Fprintf(&b, "| %s | %d | %s | %d | %.3g | %.4g | %.4g | %.4g | %.4g |\n",
			batch.Key, batch.Size, conv.Status, conv.Iterations, conv.MaxDelta,
			m.GammaBar[k], m.Tau2[k], m.Lambda[k], m.Theta[k])
	}
	b.WriteString("\n")

	if nonConverged := m.NonConverged(); len(nonConverged) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, c := range nonConverged {
			fmt.Fprintf(&b, "- batch %q did not reach tolerance after %d iterations (max delta %.3g)\n",
				c.Batch, c.Iterations, c.MaxDelta)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Prior Fit\n\n")
	b.WriteString("Kolmogorov distance between the raw per-batch estimates and the fitted priors. Smaller is better; a diffuse scale prior has no reference distribution to compare against.\n\n")
	b.WriteString("| Batch | Location KS | Scale KS | Diffuse scale |\n|---|---|---|---|\n")
	for _, fit := range combat.PriorFitDiagnostics(m) {
		fmt.Fprintf(&b, "| %s | %.4f | %.4f | %v |\n", fit.Batch, fit.LocationKS, fit.ScaleKS, fit.DiffuseScale)
	}
	b.WriteString("\n")

	if len(runs) > 0 {
		b.WriteString("## Recent Runs\n\n")
		b.WriteString("| Run | Kind | Created | Rows | Duration (ms) | Warnings |\n|---|---|---|---|---|---|\n")
		for _, run := range runs {
			fmt.Fprintf(&b, "| `%s` | %s | %s | %d | %d | %d |\n",
				run.ID, run.Kind, run.CreatedAt.String(), run.Rows, run.DurationMillis, len(run.Warnings))
		}
		b.WriteString("\n")
	}

	return []byte(b.String())
}

// renderHTML converts the markdown report into a standalone HTML page.
// Parser instances are single-use, so build one per call.
func renderHTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: "Harmonization Report",
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(md, p, renderer)
}

func nameList(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
