package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ppiankov/cvlacsync/internal/model"
)

var (
	startYearPattern = regexp.MustCompile(`(?i)inicio\s*:?[^0-9]{0,40}((?:19|20)\d{2})`)
	anyYearPattern   = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
)

// degreeRanks orders academic degrees, highest first wins
var degreeRanks = []struct {
	prefix string
	rank   int
}{
	{"postdoctorado", 6},
	{"doctorado", 5},
	{"maestria", 4},
	{"magister", 4},
	{"especializacion", 3},
	{"pregrado", 2},
	{"universitario", 2},
	{"tecnologico", 1},
	{"tecnico", 1},
}

// CvlacExtractor parses CvLAC researcher profile pages
type CvlacExtractor struct {
	fetcher Fetcher
}

// NewCvlacExtractor creates an extractor that fetches pages through f
func NewCvlacExtractor(f Fetcher) *CvlacExtractor {
	return &CvlacExtractor{fetcher: f}
}

// Extract fetches link and parses it as a CvLAC profile
func (e *CvlacExtractor) Extract(ctx context.Context, link string) ([]model.ExtractedFact, error) {
	page, err := e.fetcher.Fetch(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", link, err)
	}
	facts, err := ParseCvlac(page)
	if err != nil {
		forget(e.fetcher, link)
		return nil, err
	}
	return facts, nil
}

type profile struct {
	category string
	fullName string
	sex      string
	degree   string
}

type project struct {
	section string
	kind    string
	title   string
	year    *int
}

// ParseCvlac extracts one fact per project entry of a CvLAC page. Every fact
// carries the researcher's profile fields. A profile without projects yields
// no facts.
func ParseCvlac(page *model.Page) ([]model.ExtractedFact, error) {
	body, err := decodeBody(page)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	p := parseProfile(doc)
	var projects []project

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		heading := table.Find("h3").First()
		if heading.Length() == 0 || !heading.Closest("table").IsSelection(table) {
			return
		}
		title := collapseSpaces(heading.Text())
		folded := fold(title)
		switch {
		case strings.Contains(folded, "formacion academica"):
			if p.degree == "" {
				p.degree = highestDegree(table)
			}
		case strings.HasPrefix(folded, "proyectos"):
			projects = append(projects, parseProjects(table, title)...)
		}
	})

	if p.fullName == "" && len(projects) == 0 {
		return nil, ErrNoProfile
	}

	facts := make([]model.ExtractedFact, 0, len(projects))
	for _, pr := range projects {
		facts = append(facts, model.ExtractedFact{
			Category:     p.category,
			FullName:     p.fullName,
			Sex:          p.sex,
			Degree:       p.degree,
			ProjectType:  pr.kind,
			ParentNode:   pr.section,
			ProjectTitle: pr.title,
			Year:         pr.year,
		})
	}
	return facts, nil
}

// parseProfile reads the label/value rows at the top of the page
func parseProfile(doc *goquery.Document) profile {
	var p profile
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return true
		}
		value := collapseSpaces(cells.Eq(1).Text())
		switch foldLabel(cells.First().Text()) {
		case "categoria":
			if p.category == "" {
				p.category = value
			}
		case "nombre":
			if p.fullName == "" {
				p.fullName = value
			}
		case "sexo":
			if p.sex == "" {
				p.sex = value
			}
		}
		return p.category == "" || p.fullName == "" || p.sex == ""
	})
	return p
}

// highestDegree picks the best ranked bold degree label of the education table
func highestDegree(table *goquery.Selection) string {
	best, bestRank := "", -1
	table.Find("b").Each(func(_ int, b *goquery.Selection) {
		if b.ParentsFiltered("h3").Length() > 0 {
			return
		}
		label := collapseSpaces(b.Text())
		if label == "" {
			return
		}
		if rank := degreeRank(label); rank > bestRank {
			best, bestRank = label, rank
		}
	})
	return best
}

func degreeRank(label string) int {
	folded := fold(label)
	for _, d := range degreeRanks {
		if strings.HasPrefix(folded, d.prefix) {
			return d.rank
		}
	}
	return 0
}

// parseProjects reads one project per row of a "Proyectos" table
func parseProjects(table *goquery.Selection, section string) []project {
	var projects []project
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if !row.Closest("table").IsSelection(table) {
			return
		}
		if row.Find("h3").Length() > 0 || row.Find("table").Length() > 0 {
			return
		}
		if pr, ok := parseProject(row, section); ok {
			projects = append(projects, pr)
		}
	})
	return projects
}

func parseProject(row *goquery.Selection, section string) (project, bool) {
	pr := project{
		section: section,
		kind:    collapseSpaces(row.Find("b").First().Text()),
	}

	lines := textLines(row.Nodes[0])
	if quote := row.Find("blockquote"); quote.Length() > 0 {
		lines = textLines(quote.Nodes[0])
	}
	if len(lines) == 0 {
		return pr, false
	}

	var untitled []string
	for _, line := range lines {
		label, value, ok := splitLabel(line)
		switch {
		case ok && label == "tipo de proyecto":
			pr.kind = value
		case ok && (label == "titulo" || label == "nombre"):
			if pr.title == "" {
				pr.title = value
			}
		case ok:
		case line != pr.kind:
			untitled = append(untitled, line)
		}
	}
	if pr.title == "" && len(untitled) > 0 {
		pr.title = untitled[0]
	}
	if pr.title == "" {
		return pr, false
	}

	text := strings.Join(lines, "\n")
	if m := startYearPattern.FindStringSubmatch(text); m != nil {
		pr.year = atoiPtr(m[1])
	} else if m := anyYearPattern.FindStringSubmatch(text); m != nil {
		pr.year = atoiPtr(m[1])
	}
	return pr, true
}

// splitLabel splits "Label: value" lines. Labels are folded.
func splitLabel(line string) (string, string, bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 || idx > 40 {
		return "", "", false
	}
	return fold(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// fold lowercases s and strips diacritics so labels compare equal
// regardless of accents
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(collapseSpaces(out))
}

func foldLabel(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(fold(s), ":"))
}

func atoiPtr(s string) *int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
