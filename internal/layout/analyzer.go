// Package layout groups positioned text tokens into labeled regions
// (header block, line-item table, totals block) using geometric
// heuristics, so downstream extractors are method-agnostic about
// whether tokens came from a native PDF text layer or OCR.
package layout

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/JoeYatesss/invoice/internal/document"
)

var (
	reNumericCell = regexp.MustCompile(`^[$£€]?-?\d{1,3}(?:[.,]\d{3})*(?:[.,]\d+)?%?$`)
	reAmountCell  = regexp.MustCompile(`^[$£€]?\d{1,3}(?:,\d{3})*\.\d{2}$`)
	reTableHeader = regexp.MustCompile(`(?i)\b(description|item|qty|quantity|rate|price|amount|total)\b`)
)

// Analyzer labels token groups on native pages. It never copies tokens:
// regions reference indices into the token slice handed to Analyze.
type Analyzer struct {
	logger *slog.Logger
}

func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger}
}

// Line is one visual text row: token indices ordered left-to-right.
type Line struct {
	Page    int
	TokIdx  []int
	Y       float64 // representative row coordinate
	Native  bool
	MinX    float64
	MaxX    float64
	NumToks int
}

// Lines groups tokens into visual rows per page, in reading order.
// Native PDF pages have a bottom-left origin (higher Y is higher on the
// page); OCR pages a top-left origin. The grouping tolerance adapts to
// the median token height.
func Lines(tokens []document.TextToken) []Line {
	byPage := map[int][]int{}
	for i, t := range tokens {
		byPage[t.Page] = append(byPage[t.Page], i)
	}
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	var lines []Line
	for _, p := range pages {
		idx := byPage[p]
		native := tokens[idx[0]].Source == document.SourceNative

		tol := medianHeight(tokens, idx) * 0.6
		if tol <= 0 {
			tol = 3.0
		}

		// Reading order: top of page first.
		sort.SliceStable(idx, func(a, b int) bool {
			ya, yb := tokens[idx[a]].BBox.Y0, tokens[idx[b]].BBox.Y0
			if ya != yb {
				if native {
					return ya > yb
				}
				return ya < yb
			}
			return tokens[idx[a]].BBox.X0 < tokens[idx[b]].BBox.X0
		})

		for start := 0; start < len(idx); {
			y := tokens[idx[start]].BBox.Y0
			end := start + 1
			for end < len(idx) {
				dy := tokens[idx[end]].BBox.Y0 - y
				if dy < 0 {
					dy = -dy
				}
				if dy > tol {
					break
				}
				end++
			}
			row := append([]int(nil), idx[start:end]...)
			sort.SliceStable(row, func(a, b int) bool {
				return tokens[row[a]].BBox.X0 < tokens[row[b]].BBox.X0
			})
			minX, maxX := tokens[row[0]].BBox.X0, tokens[row[0]].BBox.X1
			for _, i := range row {
				if tokens[i].BBox.X0 < minX {
					minX = tokens[i].BBox.X0
				}
				if tokens[i].BBox.X1 > maxX {
					maxX = tokens[i].BBox.X1
				}
			}
			lines = append(lines, Line{
				Page: p, TokIdx: row, Y: y, Native: native,
				MinX: minX, MaxX: maxX, NumToks: len(row),
			})
			start = end
		}
	}
	return lines
}

// Flatten renders tokens as plain text in reading order, one line per
// visual row and a form feed between pages.
func Flatten(tokens []document.TextToken) string {
	lines := Lines(tokens)
	var b strings.Builder
	lastPage := -1
	for _, ln := range lines {
		if lastPage >= 0 {
			if ln.Page != lastPage {
				b.WriteString("\n\f\n")
			} else {
				b.WriteString("\n")
			}
		}
		for i, ti := range ln.TokIdx {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(tokens[ti].Text)
		}
		lastPage = ln.Page
	}
	return b.String()
}

// LineText renders one line's tokens as a string.
func LineText(tokens []document.TextToken, ln Line) string {
	parts := make([]string, 0, len(ln.TokIdx))
	for _, i := range ln.TokIdx {
		parts = append(parts, tokens[i].Text)
	}
	return strings.Join(parts, " ")
}

// Analyze labels regions on every page: the topmost dense block becomes
// the header, runs of rows with multiple numeric columns become the
// line-item table, and the bottom cluster of currency-formatted numbers
// the totals block.
func (a *Analyzer) Analyze(tokens []document.TextToken) []document.Region {
	if len(tokens) == 0 {
		return nil
	}
	lines := Lines(tokens)

	byPage := map[int][]Line{}
	for _, ln := range lines {
		byPage[ln.Page] = append(byPage[ln.Page], ln)
	}
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	var regions []document.Region
	for _, p := range pages {
		regions = append(regions, a.analyzePage(tokens, byPage[p], p)...)
	}
	a.logger.Debug("layout analysis done", "tokens", len(tokens), "regions", len(regions))
	return regions
}

func (a *Analyzer) analyzePage(tokens []document.TextToken, lines []Line, page int) []document.Region {
	var regions []document.Region
	used := make([]bool, len(lines))

	// Line-item table: consecutive rows with at least two numeric-looking
	// columns plus descriptive text. A single such row counts when a
	// column-header line sits directly above it.
	tableStart, tableEnd := -1, -1
	for i := 0; i < len(lines); i++ {
		if isTableRow(tokens, lines[i]) {
			j := i
			for j+1 < len(lines) && isTableRow(tokens, lines[j+1]) {
				j++
			}
			headerAbove := i > 0 && reTableHeader.MatchString(LineText(tokens, lines[i-1]))
			if j > i || headerAbove {
				tableStart, tableEnd = i, j
				if headerAbove {
					tableStart = i - 1
				}
				break
			}
			i = j
		}
	}
	if tableStart >= 0 {
		var idx []int
		for i := tableStart; i <= tableEnd; i++ {
			idx = append(idx, lines[i].TokIdx...)
			used[i] = true
		}
		regions = append(regions, region(tokens, document.RegionTable, page, idx))
	}

	// Header: the leading block of unused lines before the table,
	// capped at the first third of the page's rows.
	headerLimit := len(lines)/3 + 1
	var headerIdx []int
	for i := 0; i < len(lines) && i < headerLimit; i++ {
		if used[i] {
			break
		}
		headerIdx = append(headerIdx, lines[i].TokIdx...)
		used[i] = true
	}
	if len(headerIdx) > 0 {
		regions = append(regions, region(tokens, document.RegionHeader, page, headerIdx))
	}

	// Totals: trailing lines that carry currency-formatted numbers in
	// their rightmost column.
	var totalsIdx []int
	for i := len(lines) - 1; i >= 0; i-- {
		if used[i] {
			break
		}
		if !hasTrailingAmount(tokens, lines[i]) {
			if len(totalsIdx) > 0 {
				break
			}
			continue
		}
		totalsIdx = append(lines[i].TokIdx, totalsIdx...)
		used[i] = true
	}
	if len(totalsIdx) > 0 {
		regions = append(regions, region(tokens, document.RegionTotals, page, totalsIdx))
	}

	// Everything left is undifferentiated body text.
	var bodyIdx []int
	for i, ln := range lines {
		if !used[i] {
			bodyIdx = append(bodyIdx, ln.TokIdx...)
		}
	}
	if len(bodyIdx) > 0 {
		regions = append(regions, region(tokens, document.RegionBody, page, bodyIdx))
	}
	return regions
}

func isTableRow(tokens []document.TextToken, ln Line) bool {
	numeric, alpha := 0, 0
	for _, i := range ln.TokIdx {
		s := tokens[i].Text
		if reNumericCell.MatchString(s) {
			numeric++
		} else if strings.IndexFunc(s, isLetter) >= 0 {
			alpha++
		}
	}
	return numeric >= 2 && alpha >= 1
}

func hasTrailingAmount(tokens []document.TextToken, ln Line) bool {
	if len(ln.TokIdx) == 0 {
		return false
	}
	last := tokens[ln.TokIdx[len(ln.TokIdx)-1]].Text
	return reAmountCell.MatchString(last) || reNumericCell.MatchString(last)
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func region(tokens []document.TextToken, kind document.RegionKind, page int, idx []int) document.Region {
	r := document.Region{Kind: kind, Page: page, TokenIdx: idx}
	if len(idx) > 0 {
		b := tokens[idx[0]].BBox
		for _, i := range idx {
			t := tokens[i].BBox
			if t.X0 < b.X0 {
				b.X0 = t.X0
			}
			if t.Y0 < b.Y0 {
				b.Y0 = t.Y0
			}
			if t.X1 > b.X1 {
				b.X1 = t.X1
			}
			if t.Y1 > b.Y1 {
				b.Y1 = t.Y1
			}
		}
		r.BBox = b
	}
	return r
}

func medianHeight(tokens []document.TextToken, idx []int) float64 {
	hs := make([]float64, 0, len(idx))
	for _, i := range idx {
		if h := tokens[i].BBox.Height(); h > 0 {
			hs = append(hs, h)
		}
	}
	if len(hs) == 0 {
		return 0
	}
	sort.Float64s(hs)
	return hs[len(hs)/2]
}
