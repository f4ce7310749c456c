package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/JonMunkholm/sessionlake/internal/analysis"
	"github.com/JonMunkholm/sessionlake/internal/core"
)

// maxCellWidth truncates long cell values so tables stay readable.
const maxCellWidth = 60

func table(data pterm.TableData) string {
	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return fmt.Sprintf("render table: %v\n", err)
	}
	return out + "\n"
}

func cell(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = "NULL"
	case string:
		s = x
	case time.Time:
		s = x.Format(time.RFC3339)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxCellWidth {
		s = s[:maxCellWidth-3] + "..."
	}
	return s
}

func failure(f core.Failure) string {
	var b strings.Builder
	b.WriteString(pterm.Error.Sprintln(f.Error))
	if f.Code != "" {
		b.WriteString(pterm.Sprintf("  code: %s  kind: %s\n", f.Code, f.Kind))
	}
	return b.String()
}

func renderInit(res *core.InitResult) string {
	var b strings.Builder
	if len(res.ViewsCreated) > 0 {
		data := pterm.TableData{{"View"}}
		for _, v := range res.ViewsCreated {
			data = append(data, []string{v})
		}
		b.WriteString(table(data))
	}
	if res.Unified != nil {
		b.WriteString(pterm.Success.Sprintf("unified %d sources into %s (%s)\n",
			len(res.Unified.Sources), res.Unified.View, strings.Join(res.Unified.TargetFields, ", ")))
	}
	if len(res.Errors) > 0 {
		data := pterm.TableData{{"Source", "Name", "Kind", "Error"}}
		for _, f := range res.Errors {
			data = append(data, []string{f.SourceID, f.Name, string(f.Kind), cell(f.Error)})
		}
		b.WriteString(pterm.Warning.Sprintf("%d source(s) failed to bind\n", len(res.Errors)))
		b.WriteString(table(data))
	}
	if len(res.ViewsCreated) == 0 && len(res.Errors) == 0 {
		b.WriteString(pterm.Info.Sprintln("no sources bound"))
	}
	return b.String()
}

func renderSQL(res *core.SQLResult) string {
	if !res.Success {
		return failure(res.Failure)
	}
	var b strings.Builder
	if len(res.Columns) > 0 {
		data := pterm.TableData{res.Columns}
		for _, row := range res.Rows {
			line := make([]string, len(row))
			for i, v := range row {
				line[i] = cell(v)
			}
			data = append(data, line)
		}
		b.WriteString(table(data))
	}
	summary := fmt.Sprintf("%d row(s)", res.RowCount)
	if res.StatementType != "" {
		summary = res.StatementType + ": " + summary
	}
	if res.Truncated {
		summary += fmt.Sprintf(", truncated at %d", res.RowCap)
	}
	if res.ResultFile != "" {
		summary += ", full result in " + res.ResultFile
	}
	b.WriteString(pterm.Info.Sprintln(summary))
	return b.String()
}

func renderAnalysis(res *core.AnalysisResult) string {
	if !res.Success {
		return failure(res.Failure)
	}
	var b strings.Builder
	for _, rep := range res.Analysis {
		b.WriteString(renderReport(rep))
	}
	if len(res.Analysis) == 0 {
		b.WriteString(pterm.Info.Sprintln("nothing to analyze"))
	}
	return b.String()
}

func renderReport(rep analysis.Report) string {
	var b strings.Builder
	b.WriteString(pterm.DefaultSection.Sprintf("%s (%s)", rep.Target, rep.TargetType))
	if rep.Error != "" {
		b.WriteString(pterm.Error.Sprintln(rep.Error))
		return b.String()
	}
	b.WriteString(fmt.Sprintf("rows: %s  columns: %d\n", count(rep.RowCount), rep.ColumnCount))

	data := pterm.TableData{{"Column", "Type", "Nulls", "Min", "Max", "Mean"}}
	for _, c := range rep.Columns {
		line := []string{c.Name, c.DeclaredType, count(c.NullCount), "", "", ""}
		if c.Error != "" {
			line[2] = cell(c.Error)
		}
		if s := c.NumericStats; s != nil {
			line[3], line[4], line[5] = optFloat(s.Min), optFloat(s.Max), optFloat(s.Mean)
		}
		data = append(data, line)
	}
	b.WriteString(table(data))
	return b.String()
}

func renderViews(res *core.ViewsResult) string {
	if len(res.Views) == 0 {
		return pterm.Info.Sprintln("no views")
	}
	data := pterm.TableData{{"View", "Rows", "Columns"}}
	for _, v := range res.Views {
		cols := make([]string, len(v.Columns))
		for i, c := range v.Columns {
			cols[i] = c.Name + " " + c.Type
		}
		rows := count(v.RowCount)
		if v.Error != "" {
			rows = "error: " + v.Error
		}
		data = append(data, []string{v.Name, cell(rows), cell(strings.Join(cols, ", "))})
	}
	return table(data)
}

func renderFiles(res *core.FilesResult) string {
	if res.Count == 0 {
		return pterm.Info.Sprintln("no files")
	}
	data := pterm.TableData{{"Name", "Size", "Modified"}}
	for _, f := range res.Files {
		data = append(data, []string{f.Name, strconv.FormatInt(f.Size, 10), f.Modified.Format(time.RFC3339)})
	}
	return table(data)
}

func renderScript(res *core.ScriptResult) string {
	var b strings.Builder
	if res.Stdout != "" {
		b.WriteString(pterm.DefaultBox.WithTitle("stdout").Sprint(strings.TrimRight(res.Stdout, "\n")))
		b.WriteString("\n")
	}
	if res.Stderr != "" {
		b.WriteString(pterm.DefaultBox.WithTitle("stderr").Sprint(strings.TrimRight(res.Stderr, "\n")))
		b.WriteString("\n")
	}
	status := fmt.Sprintf("exit %d in %dms", res.ExitCode, res.DurationMS)
	if res.Truncated {
		status += ", output truncated"
	}
	switch {
	case res.TimedOut:
		b.WriteString(failure(res.Failure))
	case res.Success:
		b.WriteString(pterm.Success.Sprintln(status))
	default:
		b.WriteString(pterm.Warning.Sprintln(status))
	}
	return b.String()
}

func count(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}

func optFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'g', 6, 64)
}
