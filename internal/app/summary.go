package app

import (
	"fmt"
	"io"
	"strings"

	"futbars/internal/report"
)

// PrintRunSummary 输出一次运行的摘要。
func PrintRunSummary(w io.Writer, r report.Report, reportPath string) {
	s := r.Summary()
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "抓取摘要 (FETCH SUMMARY)")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "  run_id:   %s\n", r.RunID)
	fmt.Fprintf(w, "  symbols:  %s\n", formatList(r.Symbols))
	fmt.Fprintf(w, "  bars:     %s\n", formatList(r.Bars))
	for _, rg := range r.Ranges {
		fmt.Fprintf(w, "  range:    %s → %s\n", rg.Start, rg.End)
	}
	fmt.Fprintf(w, "  success:  %d rows\n", s.Success)
	fmt.Fprintf(w, "  failures: %d\n", s.Failures)
	fmt.Fprintf(w, "  no_data:  %d\n", s.NoData)
	if s.Abandoned > 0 {
		fmt.Fprintf(w, "  abandoned slices: %d\n", s.Abandoned)
		for _, rec := range r.Abandoned {
			fmt.Fprintf(w, "    - %s %s [%s, %s) %s\n", rec.Symbol, rec.Bar, rec.Start, rec.End, rec.Reason)
		}
	}
	if r.Cancelled {
		fmt.Fprintln(w, "  (运行被取消，以上为部分结果)")
	}
	if reportPath != "" {
		fmt.Fprintf(w, "  report:   %s\n", reportPath)
	}
	fmt.Fprintln(w, strings.Repeat("=", 60))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
