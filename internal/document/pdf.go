package document

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// Rows closer than this on the Y axis belong to the same text line.
	rowTolerance = 3.0
	// Fragments closer than this fraction of the font size merge into one word.
	wordSpaceMultiplier = 0.45
)

// nativePDFTokens extracts word-level positioned tokens for every page.
// The result has one (possibly empty) slice per page. The underlying
// reader panics on some malformed files, so parsing is fenced with a
// recover and reported as an ordinary error.
func nativePDFTokens(content []byte) (pages [][]TextToken, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf parse: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	if n <= 0 {
		return nil, errors.New("pdf has no pages")
	}

	pages = make([][]TextToken, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pages[i-1] = groupWords(p.Content().Text, i-1)
	}
	return pages, nil
}

// groupWords turns raw character fragments into word tokens: sort into
// rows top-to-bottom, then merge fragments whose horizontal gap is small
// relative to the font size.
func groupWords(texts []pdf.Text, page int) []TextToken {
	frags := make([]pdf.Text, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		frags = append(frags, t)
	}
	if len(frags) == 0 {
		return nil
	}

	// PDF origin is bottom-left: higher Y comes first.
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Y != frags[j].Y {
			return frags[i].Y > frags[j].Y
		}
		return frags[i].X < frags[j].X
	})

	var tokens []TextToken
	for start := 0; start < len(frags); {
		end := start + 1
		for end < len(frags) && frags[start].Y-frags[end].Y <= rowTolerance {
			end++
		}
		row := frags[start:end]
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
		tokens = append(tokens, mergeRow(row, page)...)
		start = end
	}
	return tokens
}

func mergeRow(row []pdf.Text, page int) []TextToken {
	var out []TextToken
	var (
		b     strings.Builder
		first pdf.Text
		last  pdf.Text
	)
	flush := func() {
		if b.Len() == 0 {
			return
		}
		out = append(out, TextToken{
			Text: b.String(),
			BBox: BBox{
				X0: first.X,
				Y0: first.Y,
				X1: last.X + last.W,
				Y1: first.Y + first.FontSize,
			},
			Page:       page,
			Source:     SourceNative,
			Confidence: 1,
		})
		b.Reset()
	}

	for i, t := range row {
		if i == 0 {
			first, last = t, t
			b.WriteString(t.S)
			continue
		}
		gap := t.X - (last.X + last.W)
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		if gap > wordSpaceMultiplier*size {
			flush()
			first = t
		}
		b.WriteString(t.S)
		last = t
	}
	flush()
	return out
}

// pageDensity reports whether a native page carries enough text to skip
// rasterization.
func pageDensity(tokens []TextToken, minTokens, minChars int) bool {
	if len(tokens) < minTokens {
		return false
	}
	chars := 0
	for _, t := range tokens {
		chars += len(t.Text)
	}
	return chars >= minChars
}
