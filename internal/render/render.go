// Package render turns cache snapshots into terminal text. Functions here
// are pure: they read their arguments and write to the given io.Writer.
package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/linkshelf/linkshelf/internal/article"
	"github.com/linkshelf/linkshelf/internal/cache"
	"github.com/linkshelf/linkshelf/internal/query"
)

const (
	timeLayout    = "2006-01-02 15:04"
	maxTitleWidth = 60
)

// Header writes a one-line summary of the active filter and snapshot version.
func Header(w io.Writer, snap cache.Snapshot) error {
	filter := "all"
	var parts []string
	if snap.Filter.TagQuery != "" {
		parts = append(parts, "tags="+snap.Filter.TagQuery)
	}
	if snap.Filter.Site != "" {
		parts = append(parts, "site="+snap.Filter.Site)
	}
	if len(parts) > 0 {
		filter = strings.Join(parts, " ")
	}
	_, err := fmt.Fprintf(w, "# %d articles (%s) v%d\n", len(snap.Articles), filter, snap.Version)
	return err
}

// Articles 以表格形式输出文章列表；标签按规范化后的 token 展示。
func Articles(w io.Writer, articles []article.Article) error {
	if len(articles) == 0 {
		_, err := fmt.Fprintln(w, "(no articles)")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tSITE\tTAGS\tUPDATED\tURL")
	for _, a := range articles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			truncate(a.Title, maxTitleWidth),
			dash(a.Site),
			dash(strings.Join(query.Tokens(a.Tags), ",")),
			formatTime(a.UpdatedAt),
			a.URL,
		)
	}
	return tw.Flush()
}

// Popular writes the tag and site aggregates side by side as two short lists.
func Popular(w io.Writer, tags []article.TagCount, sites []article.SiteCount) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tCOUNT\t\tSITE\tCOUNT")

	rows := max(len(tags), len(sites))
	for i := 0; i < rows; i++ {
		var left, right [2]string
		if i < len(tags) {
			left = [2]string{tags[i].Name, fmt.Sprint(tags[i].Count)}
		}
		if i < len(sites) {
			right = [2]string{sites[i].Name, fmt.Sprint(sites[i].Count)}
		}
		fmt.Fprintf(tw, "%s\t%s\t\t%s\t%s\n", left[0], left[1], right[0], right[1])
	}
	return tw.Flush()
}

// Snapshot renders header and article table.
func Snapshot(w io.Writer, snap cache.Snapshot) error {
	if err := Header(w, snap); err != nil {
		return err
	}
	return Articles(w, snap.Articles)
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}
