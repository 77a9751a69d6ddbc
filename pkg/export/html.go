package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"unicode/utf8"
)

// CardsPerPage is the number of cards on one printed page.
const CardsPerPage = 6

const printableExcerpt = 100

type card struct {
	Title    string
	Text     string
	Kind     string
	Date     string
	Image    template.URL
	Filename string
}

type htmlPage struct {
	Cards []card
}

type htmlDoc struct {
	Title     string
	Generated string
	Count     int
	Pages     []htmlPage
	Cards     []card
}

var printableTmpl = template.Must(template.New("printable").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 0; }
.page { display: grid; grid-template-columns: repeat(2, 1fr); gap: 16px; padding: 24px; }
.card { border: 1px solid #ccc; border-radius: 6px; padding: 12px; text-align: center; }
.card img { width: 160px; height: 160px; }
.card h2 { font-size: 14px; margin: 8px 0 4px; }
.card p { font-size: 11px; color: #444; word-break: break-all; margin: 2px 0; }
@media print {
  .page { page-break-after: always; }
  .page:last-child { page-break-after: auto; }
  header { display: none; }
}
</style>
</head>
<body>
<header><h1>{{.Title}}</h1><p>{{.Count}} codes, generated {{.Generated}}</p></header>
{{range .Pages}}<section class="page">
{{range .Cards}}<div class="card">
<img src="{{.Image}}" alt="{{.Title}}">
<h2>{{.Title}}</h2>
<p>{{.Text}}</p>
<p>{{.Kind}} &middot; {{.Date}}</p>
</div>
{{end}}</section>
{{end}}</body>
</html>
`))

var galleryTmpl = template.Must(template.New("gallery").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; background: #f5f5f5; margin: 0; padding: 24px; }
.grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(220px, 1fr)); gap: 16px; }
.card { background: #fff; border-radius: 8px; padding: 16px; box-shadow: 0 1px 3px rgba(0,0,0,.15); }
.card img { width: 100%; height: auto; }
.card h2 { font-size: 15px; margin: 8px 0; }
.card p { font-size: 12px; color: #555; word-break: break-all; }
.card a { display: inline-block; margin-top: 8px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Count}} codes, generated {{.Generated}}</p>
<div class="grid">
{{range .Cards}}<div class="card">
<img src="{{.Image}}" alt="{{.Title}}">
<h2>{{.Title}}</h2>
<p>{{.Text}}</p>
<p>{{.Kind}} &middot; {{.Date}}</p>
<a href="{{.Image}}" download="{{.Filename}}">Save image</a>
</div>
{{end}}</div>
</body>
</html>
`))

func (x *exportRun) cards(excerpt int) ([]card, error) {
	cards := make([]card, 0, len(x.results))
	for i, r := range x.results {
		if err := x.step(i); err != nil {
			return nil, err
		}
		mime := r.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		text := r.SourceText
		if excerpt > 0 && utf8.RuneCountInString(text) > excerpt {
			text = string([]rune(text)[:excerpt]) + "..."
		}
		cards = append(cards, card{
			Title:    r.Title,
			Text:     text,
			Kind:     string(r.Kind),
			Date:     r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			Image:    template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(r.ImageData)),
			Filename: x.files[i] + "." + imageExtension(r.MIMEType),
		})
	}
	return cards, nil
}

func (x *exportRun) render(t *template.Template, doc htmlDoc) ([]byte, error) {
	x.report(StageCompressing, len(x.results))
	var buf bytes.Buffer
	if err := t.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.Bytes(), nil
}

func (x *exportRun) htmlDoc() htmlDoc {
	return htmlDoc{
		Title:     x.opts.Title,
		Generated: x.started.UTC().Format("2006-01-02 15:04 MST"),
		Count:     len(x.results),
	}
}

func writePrintable(x *exportRun) ([]byte, error) {
	cards, err := x.cards(printableExcerpt)
	if err != nil {
		return nil, err
	}
	doc := x.htmlDoc()
	for start := 0; start < len(cards); start += CardsPerPage {
		end := min(start+CardsPerPage, len(cards))
		doc.Pages = append(doc.Pages, htmlPage{Cards: cards[start:end]})
	}
	return x.render(printableTmpl, doc)
}

func writeGallery(x *exportRun) ([]byte, error) {
	cards, err := x.cards(0)
	if err != nil {
		return nil, err
	}
	doc := x.htmlDoc()
	doc.Cards = cards
	return x.render(galleryTmpl, doc)
}
