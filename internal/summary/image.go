package summary

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"cmonreports/internal/analytics"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Report is everything the summary image shows.
type Report struct {
	GeneratedAt     time.Time
	View            analytics.View
	Stats           *Stats // nil when no stats were fetched yet
	TotalComplaints int
	Truncated       bool
}

// Styling constants, rendered at 2x scale for Telegram clarity
const (
	canvasWidth   = 1400.0
	margin        = 40.0
	cellPaddingX  = 20
	rowHeight     = 64.0
	headerHeight  = 72.0
	fontSize      = 26
	headerFontSz  = 26
	titleFontSz   = 40
	kpiValueSz    = 44
	titlePadding  = 110.0
	kpiHeight     = 150.0
	sectionGap    = 40.0
	footerPadding = 80.0
	topN          = 8
)

// Light theme colors
var (
	bgColor         = color.RGBA{R: 245, G: 247, B: 250, A: 255}
	titleColor      = color.RGBA{R: 30, G: 41, B: 59, A: 255}
	headerBgColor   = color.RGBA{R: 37, G: 99, B: 235, A: 255}
	headerTextColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	rowEvenColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	rowOddColor     = color.RGBA{R: 241, G: 245, B: 249, A: 255}
	textColor       = color.RGBA{R: 30, G: 41, B: 59, A: 255}
	borderColor     = color.RGBA{R: 203, G: 213, B: 225, A: 255}
	footerColor     = color.RGBA{R: 100, G: 116, B: 139, A: 255}
	warnColor       = color.RGBA{R: 217, G: 119, B: 6, A: 255}
)

// table is a two column section of the report.
type table struct {
	title string
	rows  [][2]string
}

// fonts holds the resolved font files; empty paths use the built-in face.
type fonts struct {
	bold, regular string
}

// findFont locates a font file across Linux and Windows paths. It returns ""
// when none is installed.
func findFont(bold bool) string {
	var candidates []string
	if runtime.GOOS == "windows" {
		winRoot := os.Getenv("WINDIR")
		if winRoot == "" {
			winRoot = `C:\Windows`
		}
		if bold {
			candidates = []string{winRoot + `\Fonts\arialbd.ttf`, winRoot + `\Fonts\Arial Bold.ttf`}
		} else {
			candidates = []string{winRoot + `\Fonts\arial.ttf`, winRoot + `\Fonts\Arial.ttf`}
		}
	} else {
		if bold {
			candidates = []string{
				"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
				"/usr/share/fonts/TTF/DejaVuSans-Bold.ttf",
			}
		} else {
			candidates = []string{
				"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
				"/usr/share/fonts/TTF/DejaVuSans.ttf",
			}
		}
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// setFont loads the font at path, falling back to the fixed 7x13 face on
// hosts without TrueType fonts.
func setFont(dc *gg.Context, path string, size float64) {
	if path != "" {
		if err := dc.LoadFontFace(path, size); err == nil {
			return
		}
	}
	dc.SetFontFace(basicfont.Face7x13)
}

// wrapText splits text into multiple lines to fit within maxWidth.
func wrapText(dc *gg.Context, text string, maxWidth float64) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if maxWidth <= 0 {
		return []string{text}
	}
	if w, _ := dc.MeasureString(text); w <= maxWidth {
		return []string{text}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	currentLine := words[0]
	for _, word := range words[1:] {
		testLine := currentLine + " " + word
		if tw, _ := dc.MeasureString(testLine); tw > maxWidth {
			lines = append(lines, currentLine)
			currentLine = word
		} else {
			currentLine = testLine
		}
	}
	return append(lines, currentLine)
}

// kpis returns the headline figures shown as cards.
func kpis(r Report) [][2]string {
	users := "-"
	if r.Stats != nil {
		users = strconv.Itoa(r.Stats.TotalUsers)
	}
	return [][2]string{
		{"In range", strconv.Itoa(r.View.TotalInRange)},
		{"Completion", fmt.Sprintf("%d%%", r.View.RoundedRate())},
		{"Urgent", strconv.Itoa(r.View.UrgentCount)},
		{"Avg resolution", analytics.FormatHours(r.View.AvgResolutionHours) + "h"},
		{"Users", users},
	}
}

// tables returns the report sections in display order.
func tables(r Report) []table {
	categories := table{title: "Top categories"}
	for _, b := range analytics.TopCategories(r.View, topN) {
		categories.rows = append(categories.rows, [2]string{b.Name, strconv.Itoa(b.Value)})
	}

	statuses := table{title: "Status"}
	for _, b := range r.View.Statuses {
		statuses.rows = append(statuses.rows, [2]string{b.Name, strconv.Itoa(b.Value)})
	}

	out := []table{categories, statuses}
	if r.Stats != nil {
		out = append(out, table{title: "Users", rows: [][2]string{
			{"Active", strconv.Itoa(r.Stats.ActiveUsers)},
			{"Admins", strconv.Itoa(r.Stats.Admins)},
			{"Staff", strconv.Itoa(r.Stats.Staff)},
			{"Regular", strconv.Itoa(r.Stats.RegularUsers)},
		}})
	}
	return out
}

// RenderReport renders the report as a PNG image and returns the bytes.
//
// Layout, top to bottom: title, KPI cards, one table per section, the
// insights list, and a footer with the collection size.
func RenderReport(r Report) ([]byte, error) {
	f := fonts{bold: findFont(true), regular: findFont(false)}
	sections := tables(r)
	tableWidth := canvasWidth - margin*2

	// ---- Step 1: Measure ----
	tmpDC := gg.NewContext(1, 1)
	setFont(tmpDC, f.regular, fontSize)
	_, lineH := tmpDC.MeasureString("Ay")
	lineSpacing := lineH + 8

	var insightLines []string
	for _, insight := range r.View.Insights {
		insightLines = append(insightLines, wrapText(tmpDC, "• "+insight, tableWidth-cellPaddingX*2)...)
	}

	height := titlePadding + kpiHeight + sectionGap
	for _, s := range sections {
		height += headerHeight + float64(max(1, len(s.rows)))*rowHeight + sectionGap
	}
	height += headerHeight + float64(len(insightLines))*lineSpacing + sectionGap + footerPadding

	// ---- Step 2: Draw ----
	dc := gg.NewContext(int(canvasWidth), int(height))
	dc.SetColor(bgColor)
	dc.Clear()

	setFont(dc, f.bold, titleFontSz)
	dc.SetColor(titleColor)
	title := fmt.Sprintf("Complaint Report  |  last %d days  |  %s",
		r.View.WindowDays, r.GeneratedAt.Format("02 Jan 2006, 03:04 PM"))
	dc.DrawStringAnchored(title, canvasWidth/2, titlePadding/2, 0.5, 0.5)

	y := titlePadding
	drawKPIs(dc, f, kpis(r), y)
	y += kpiHeight + sectionGap

	for _, s := range sections {
		y = drawTable(dc, f, s, y) + sectionGap
	}

	// Insights
	dc.SetColor(headerBgColor)
	dc.DrawRoundedRectangle(margin, y, tableWidth, headerHeight, 16)
	dc.Fill()
	setFont(dc, f.bold, headerFontSz)
	dc.SetColor(headerTextColor)
	dc.DrawStringAnchored("Insights", margin+cellPaddingX, y+headerHeight/2, 0, 0.5)
	y += headerHeight

	setFont(dc, f.regular, fontSize)
	dc.SetColor(textColor)
	for _, line := range insightLines {
		y += lineSpacing
		dc.DrawString(line, margin+cellPaddingX, y)
	}

	// Footer
	setFont(dc, f.regular, 24)
	footer := fmt.Sprintf("Collected: %d complaints", r.TotalComplaints)
	dc.SetColor(footerColor)
	if r.Truncated {
		footer += " (incomplete: page limit reached)"
		dc.SetColor(warnColor)
	}
	dc.DrawStringAnchored(footer, canvasWidth/2, height-30, 0.5, 0.5)

	// ---- Step 3: Encode to PNG ----
	return encodeImage(dc.Image())
}

func drawKPIs(dc *gg.Context, f fonts, cards [][2]string, y float64) {
	gap := 20.0
	w := (canvasWidth - margin*2 - gap*float64(len(cards)-1)) / float64(len(cards))
	x := margin

	for _, card := range cards {
		dc.SetColor(rowEvenColor)
		dc.DrawRoundedRectangle(x, y, w, kpiHeight, 16)
		dc.Fill()
		dc.SetColor(borderColor)
		dc.SetLineWidth(1)
		dc.DrawRoundedRectangle(x, y, w, kpiHeight, 16)
		dc.Stroke()

		setFont(dc, f.bold, kpiValueSz)
		dc.SetColor(titleColor)
		dc.DrawStringAnchored(card[1], x+w/2, y+kpiHeight*0.42, 0.5, 0.5)

		setFont(dc, f.regular, fontSize-4)
		dc.SetColor(footerColor)
		dc.DrawStringAnchored(card[0], x+w/2, y+kpiHeight*0.78, 0.5, 0.5)

		x += w + gap
	}
}

// drawTable draws one section and returns the y coordinate below it.
func drawTable(dc *gg.Context, f fonts, t table, y float64) float64 {
	width := canvasWidth - margin*2
	rows := t.rows
	if len(rows) == 0 {
		rows = [][2]string{{"No data", ""}}
	}

	dc.SetColor(headerBgColor)
	dc.DrawRoundedRectangle(margin, y, width, headerHeight, 16)
	dc.Fill()
	setFont(dc, f.bold, headerFontSz)
	dc.SetColor(headerTextColor)
	dc.DrawStringAnchored(t.title, margin+cellPaddingX, y+headerHeight/2, 0, 0.5)

	setFont(dc, f.regular, fontSize)
	curY := y + headerHeight
	for i, row := range rows {
		if i%2 == 0 {
			dc.SetColor(rowEvenColor)
		} else {
			dc.SetColor(rowOddColor)
		}
		dc.DrawRectangle(margin, curY, width, rowHeight)
		dc.Fill()

		dc.SetColor(borderColor)
		dc.SetLineWidth(0.5)
		dc.DrawLine(margin, curY+rowHeight, margin+width, curY+rowHeight)
		dc.Stroke()

		dc.SetColor(textColor)
		dc.DrawStringAnchored(row[0], margin+cellPaddingX, curY+rowHeight/2, 0, 0.5)
		dc.DrawStringAnchored(row[1], margin+width-cellPaddingX, curY+rowHeight/2, 1, 0.5)
		curY += rowHeight
	}

	dc.SetColor(borderColor)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(margin, y, width, curY-y, 16)
	dc.Stroke()

	return curY
}

func encodeImage(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
