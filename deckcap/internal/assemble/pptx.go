package assemble

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

// 16:9 slide in EMU (914400 per inch).
const (
	slideCX = 12192000
	slideCY = 6858000
	notesCX = 6858000
	notesCY = 9144000
)

const (
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP   = "http://schemas.openxmlformats.org/presentationml/2006/main"
	relNS = "http://schemas.openxmlformats.org/package/2006/relationships"
	relT  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/"
	ctPML = "application/vnd.openxmlformats-officedocument.presentationml."
	xmlHd = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
)

// PPTX writes an Office Open XML presentation with one full-bleed picture
// per slide. Slide notes, when present, become speaker notes.
type PPTX struct {
	// Now stamps docProps/core.xml. Defaults to time.Now.
	Now func() time.Time
}

func (p *PPTX) Format() Format { return FormatPPTX }

func (p *PPTX) Assemble(ctx context.Context, w io.Writer, slides []capture.CapturedSlide, page PageSize, progress ProgressFunc) (Result, error) {
	if len(slides) == 0 {
		return Result{}, errors.New("assemble: pptx: no slides")
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	notes := make([]string, len(slides))
	hasNotes := false
	for i, s := range slides {
		n, err := notesText(s.Notes)
		if err != nil {
			return Result{}, fmt.Errorf("assemble: pptx: slide %d notes: %w", s.Index+1, err)
		}
		notes[i] = n
		hasNotes = hasNotes || n != ""
	}

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	pk := &pkg{zw: zw}

	pk.put("[Content_Types].xml", contentTypes(len(slides), notes, hasNotes))
	pk.put("_rels/.rels", rels(
		rel{"rId1", "officeDocument", "ppt/presentation.xml"},
		rel{"rId2", "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties", "docProps/core.xml"},
		rel{"rId3", "extended-properties", "docProps/app.xml"},
	))
	pk.put("docProps/core.xml", coreProps(slideTitle(slides[0]), now().UTC()))
	pk.put("docProps/app.xml", appProps(len(slides)))
	pk.put("ppt/presentation.xml", presentation(len(slides), hasNotes))
	pk.put("ppt/_rels/presentation.xml.rels", presentationRels(len(slides), hasNotes))
	pk.put("ppt/theme/theme1.xml", theme("Deck"))
	pk.put("ppt/slideMasters/slideMaster1.xml", slideMaster)
	pk.put("ppt/slideMasters/_rels/slideMaster1.xml.rels", rels(
		rel{"rId1", "slideLayout", "../slideLayouts/slideLayout1.xml"},
		rel{"rId2", "theme", "../theme/theme1.xml"},
	))
	pk.put("ppt/slideLayouts/slideLayout1.xml", slideLayout)
	pk.put("ppt/slideLayouts/_rels/slideLayout1.xml.rels", rels(
		rel{"rId1", "slideMaster", "../slideMasters/slideMaster1.xml"},
	))
	if hasNotes {
		pk.put("ppt/theme/theme2.xml", theme("Notes"))
		pk.put("ppt/notesMasters/notesMaster1.xml", notesMaster)
		pk.put("ppt/notesMasters/_rels/notesMaster1.xml.rels", rels(
			rel{"rId1", "theme", "../theme/theme2.xml"},
		))
	}

	for i, s := range slides {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		n := i + 1
		img, err := Downscale(s.PNG, page.MaxPixelWidth)
		if err != nil {
			return Result{}, fmt.Errorf("assemble: pptx: slide %d: %w", s.Index+1, err)
		}
		pk.putBytes(fmt.Sprintf("ppt/media/image%d.png", n), img)
		pk.put(fmt.Sprintf("ppt/slides/slide%d.xml", n), slidePart(n, slideTitle(s)))

		srels := []rel{
			{"rId1", "slideLayout", "../slideLayouts/slideLayout1.xml"},
			{"rId2", "image", fmt.Sprintf("../media/image%d.png", n)},
		}
		if notes[i] != "" {
			srels = append(srels, rel{"rId3", "notesSlide", fmt.Sprintf("../notesSlides/notesSlide%d.xml", n)})
			pk.put(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n), notesSlide(notes[i]))
			pk.put(fmt.Sprintf("ppt/notesSlides/_rels/notesSlide%d.xml.rels", n), rels(
				rel{"rId1", "notesMaster", "../notesMasters/notesMaster1.xml"},
				rel{"rId2", "slide", fmt.Sprintf("../slides/slide%d.xml", n)},
			))
		}
		pk.put(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), rels(srels...))
		if pk.err != nil {
			return Result{}, fmt.Errorf("assemble: pptx: slide %d: %w", s.Index+1, pk.err)
		}
		report(progress, n, len(slides))
	}

	if pk.err != nil {
		return Result{}, fmt.Errorf("assemble: pptx: %w", pk.err)
	}
	if err := zw.Close(); err != nil {
		return Result{}, fmt.Errorf("assemble: pptx: close: %w", err)
	}
	return Result{Pages: len(slides), Bytes: cw.n}, nil
}

// notesText converts slide notes HTML to the markdown-flavoured plain text
// shown in the notes pane.
func notesText(notesHTML string) (string, error) {
	notesHTML = strings.TrimSpace(notesHTML)
	if notesHTML == "" {
		return "", nil
	}
	md, err := htmltomarkdown.ConvertString(notesHTML)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}

type pkg struct {
	zw  *zip.Writer
	err error
}

func (p *pkg) put(name, body string) { p.putBytes(name, []byte(body)) }

func (p *pkg) putBytes(name string, body []byte) {
	if p.err != nil {
		return
	}
	f, err := p.zw.Create(name)
	if err != nil {
		p.err = err
		return
	}
	_, p.err = f.Write(body)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

func esc(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

type rel struct{ id, typ, target string }

func rels(rs ...rel) string {
	var b strings.Builder
	b.WriteString(xmlHd)
	fmt.Fprintf(&b, `<Relationships xmlns="%s">`, relNS)
	for _, r := range rs {
		typ := r.typ
		if !strings.HasPrefix(typ, "http") {
			typ = relT + typ
		}
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"/>`, r.id, typ, esc(r.target))
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func contentTypes(n int, notes []string, hasNotes bool) string {
	var b strings.Builder
	b.WriteString(xmlHd)
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Default Extension="png" ContentType="image/png"/>`)
	override := func(part, ct string) {
		fmt.Fprintf(&b, `<Override PartName="%s" ContentType="%s"/>`, part, ct)
	}
	override("/ppt/presentation.xml", ctPML+"presentation.main+xml")
	override("/ppt/slideMasters/slideMaster1.xml", ctPML+"slideMaster+xml")
	override("/ppt/slideLayouts/slideLayout1.xml", ctPML+"slideLayout+xml")
	override("/ppt/theme/theme1.xml", "application/vnd.openxmlformats-officedocument.theme+xml")
	if hasNotes {
		override("/ppt/theme/theme2.xml", "application/vnd.openxmlformats-officedocument.theme+xml")
		override("/ppt/notesMasters/notesMaster1.xml", ctPML+"notesMaster+xml")
	}
	for i := 1; i <= n; i++ {
		override(fmt.Sprintf("/ppt/slides/slide%d.xml", i), ctPML+"slide+xml")
		if notes[i-1] != "" {
			override(fmt.Sprintf("/ppt/notesSlides/notesSlide%d.xml", i), ctPML+"notesSlide+xml")
		}
	}
	override("/docProps/core.xml", "application/vnd.openxmlformats-package.core-properties+xml")
	override("/docProps/app.xml", "application/vnd.openxmlformats-officedocument.extended-properties+xml")
	b.WriteString(`</Types>`)
	return b.String()
}

func coreProps(title string, at time.Time) string {
	ts := at.Format(time.RFC3339)
	return xmlHd + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + esc(title) + `</dc:title><dc:creator>deckcap</dc:creator>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + ts + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + ts + `</dcterms:modified>` +
		`</cp:coreProperties>`
}

func appProps(n int) string {
	return xmlHd + `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
		`<Application>deckcap</Application><PresentationFormat>Widescreen</PresentationFormat>` +
		fmt.Sprintf(`<Slides>%d</Slides>`, n) + `</Properties>`
}

func presentation(n int, hasNotes bool) string {
	var b strings.Builder
	b.WriteString(xmlHd)
	fmt.Fprintf(&b, `<p:presentation xmlns:a="%s" xmlns:r="%s" xmlns:p="%s">`, nsA, nsR, nsP)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	if hasNotes {
		fmt.Fprintf(&b, `<p:notesMasterIdLst><p:notesMasterId r:id="rId%d"/></p:notesMasterIdLst>`, n+3)
	}
	b.WriteString(`<p:sldIdLst>`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+3)
	}
	b.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/><p:notesSz cx="%d" cy="%d"/>`, slideCX, slideCY, notesCX, notesCY)
	b.WriteString(`</p:presentation>`)
	return b.String()
}

func presentationRels(n int, hasNotes bool) string {
	rs := []rel{
		{"rId1", "slideMaster", "slideMasters/slideMaster1.xml"},
		{"rId2", "theme", "theme/theme1.xml"},
	}
	for i := 1; i <= n; i++ {
		rs = append(rs, rel{fmt.Sprintf("rId%d", i+2), "slide", fmt.Sprintf("slides/slide%d.xml", i)})
	}
	if hasNotes {
		rs = append(rs, rel{fmt.Sprintf("rId%d", n+3), "notesMaster", "notesMasters/notesMaster1.xml"})
	}
	return rels(rs...)
}

const emptyTree = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

const clrMap = `<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" ` +
	`accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>`

const pmlOpen = `xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `"`

var slideMaster = xmlHd + `<p:sldMaster ` + pmlOpen + `>` +
	`<p:cSld><p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg><p:spTree>` + emptyTree + `</p:spTree></p:cSld>` +
	clrMap +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
	`</p:sldMaster>`

var slideLayout = xmlHd + `<p:sldLayout ` + pmlOpen + ` type="blank" preserve="1">` +
	`<p:cSld name="Blank"><p:spTree>` + emptyTree + `</p:spTree></p:cSld>` +
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`

var notesMaster = xmlHd + `<p:notesMaster ` + pmlOpen + `>` +
	`<p:cSld><p:spTree>` + emptyTree + `</p:spTree></p:cSld>` + clrMap + `</p:notesMaster>`

func slidePart(n int, title string) string {
	return xmlHd + `<p:sld ` + pmlOpen + `><p:cSld><p:spTree>` + emptyTree +
		`<p:pic><p:nvPicPr>` +
		fmt.Sprintf(`<p:cNvPr id="2" name="Slide %d" descr="%s"/>`, n, esc(title)) +
		`<p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>` +
		`<p:blipFill><a:blip r:embed="rId2"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>` +
		fmt.Sprintf(`<p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm>`, slideCX, slideCY) +
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>` +
		`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`
}

func notesSlide(text string) string {
	var paras strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			paras.WriteString(`<a:p><a:endParaRPr lang="en-US"/></a:p>`)
			continue
		}
		fmt.Fprintf(&paras, `<a:p><a:r><a:rPr lang="en-US"/><a:t>%s</a:t></a:r></a:p>`, esc(line))
	}
	return xmlHd + `<p:notes ` + pmlOpen + `><p:cSld><p:spTree>` + emptyTree +
		`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Notes Placeholder"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr>` +
		`<p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr><p:spPr/>` +
		`<p:txBody><a:bodyPr/><a:lstStyle/>` + paras.String() + `</p:txBody></p:sp>` +
		`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:notes>`
}

func theme(name string) string {
	srgb := func(tag, hex string) string { return `<a:` + tag + `><a:srgbClr val="` + hex + `"/></a:` + tag + `>` }
	solid := `<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`
	line := `<a:ln w="9525">` + solid + `</a:ln>`
	effect := `<a:effectStyle><a:effectLst/></a:effectStyle>`
	return xmlHd + `<a:theme xmlns:a="` + nsA + `" name="` + esc(name) + `"><a:themeElements>` +
		`<a:clrScheme name="` + esc(name) + `">` +
		`<a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1>` +
		`<a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1>` +
		srgb("dk2", "1F2937") + srgb("lt2", "F3F4F6") +
		srgb("accent1", "2563EB") + srgb("accent2", "7C3AED") + srgb("accent3", "059669") +
		srgb("accent4", "D97706") + srgb("accent5", "DC2626") + srgb("accent6", "0891B2") +
		srgb("hlink", "2563EB") + srgb("folHlink", "7C3AED") +
		`</a:clrScheme>` +
		`<a:fontScheme name="` + esc(name) + `">` +
		`<a:majorFont><a:latin typeface="Calibri Light"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>` +
		`<a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont>` +
		`</a:fontScheme>` +
		`<a:fmtScheme name="` + esc(name) + `">` +
		`<a:fillStyleLst>` + solid + solid + solid + `</a:fillStyleLst>` +
		`<a:lnStyleLst>` + line + line + line + `</a:lnStyleLst>` +
		`<a:effectStyleLst>` + effect + effect + effect + `</a:effectStyleLst>` +
		`<a:bgFillStyleLst>` + solid + solid + solid + `</a:bgFillStyleLst>` +
		`</a:fmtScheme></a:themeElements></a:theme>`
}
