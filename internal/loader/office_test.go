package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDOCXLoader_ParagraphsAndHeadings(t *testing.T) {
	path := writeDOCX(t, t.TempDir(), "report.docx")

	ext, err := DOCXLoader{}.Extract(context.Background(), path)

	require.NoError(t, err)
	assert.Contains(t, ext.Text, "Revenue grew 12%.")
	assert.Contains(t, ext.Text, "Costs\tflat")

	require.Len(t, ext.Sections, 2)
	assert.Equal(t, "Preface text.", ext.Sections[0].Text)
	assert.Equal(t, SectionHeading, ext.Sections[1].Kind)
	assert.Equal(t, "Quarterly Report", ext.Sections[1].Title)
}

func TestDOCXLoader_MissingDocumentPart(t *testing.T) {
	path := writeZip(t, t.TempDir(), "empty.docx", [][2]string{{"[Content_Types].xml", "<Types/>"}})

	_, err := DOCXLoader{}.Extract(context.Background(), path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing word/document.xml")
}

func TestPPTXLoader_SlidesInNumericOrder(t *testing.T) {
	// slide10 is stored before slide2 to check numeric ordering
	path := writeZip(t, t.TempDir(), "deck.pptx", [][2]string{
		{"ppt/slides/slide10.xml", slideXML("Closing")},
		{"ppt/slides/slide1.xml", slideXML("Welcome", "Agenda")},
		{"ppt/slides/slide2.xml", slideXML("Roadmap")},
		{"ppt/slides/_rels/slide1.xml.rels", "<Relationships/>"},
	})

	ext, err := PPTXLoader{}.Extract(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, ext.Sections, 3)
	assert.Equal(t, "Slide 1", ext.Sections[0].Title)
	assert.Equal(t, "Welcome\nAgenda", ext.Sections[0].Text)
	assert.Equal(t, "Slide 2", ext.Sections[1].Title)
	assert.Equal(t, "Slide 10", ext.Sections[2].Title)
	assert.Equal(t, SectionSlide, ext.Sections[2].Kind)
}

func TestPPTXLoader_NoSlides(t *testing.T) {
	path := writeZip(t, t.TempDir(), "deck.pptx", [][2]string{{"ppt/presentation.xml", "<p/>"}})

	_, err := PPTXLoader{}.Extract(context.Background(), path)

	assert.Error(t, err)
}

func TestODTLoader_HeadingsAndSpecialChars(t *testing.T) {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:office" xmlns:text="urn:text">
  <office:body><office:text>
    <text:h text:outline-level="1">Minutes</text:h>
    <text:p>Alice<text:tab/>present</text:p>
    <text:p>Two<text:s/>words<text:line-break/>next line</text:p>
  </office:text></office:body>
</office:document-content>`
	path := writeZip(t, t.TempDir(), "minutes.odt", [][2]string{
		{"mimetype", "application/vnd.oasis.opendocument.text"},
		{"content.xml", content},
	})

	doc := NewDispatcher().Load(context.Background(), path)

	require.True(t, doc.OK(), doc.ErrorDetail)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Minutes", doc.Sections[0].Title)
	assert.Contains(t, doc.Text, "Alice\tpresent")
	assert.Contains(t, doc.Text, "Two words\nnext line")
}

func TestParseXMLParagraphs_NestedParagraphsFold(t *testing.T) {
	xmlDoc := `<d><p>outer <frame><p>inner</p></frame> tail</p><p>second</p></d>`

	paras, err := parseXMLParagraphs(stringsReader(xmlDoc), odtRules)

	require.NoError(t, err)
	require.Len(t, paras, 2)
	assert.Equal(t, "outer inner  tail", paras[0].Text)
	assert.Equal(t, "second", paras[1].Text)
}
