package results

import (
	"encoding/xml"
	"strings"

	"github.com/mercurydb/mercury/pkg/rdf"
)

// SPARQL XML Results Format
// https://www.w3.org/TR/rdf-sparql-XMLres/

// XMLResults is the root <sparql> document.
type XMLResults struct {
	XMLName xml.Name           `xml:"sparql"`
	Xmlns   string             `xml:"xmlns,attr"`
	Head    XMLHead            `xml:"head"`
	Results *XMLResultsElement `xml:"results,omitempty"`
	Boolean *bool              `xml:"boolean,omitempty"`
}

// XMLHead lists the projected variables.
type XMLHead struct {
	Variables []XMLVariable `xml:"variable"`
}

// XMLVariable is one projected variable declaration.
type XMLVariable struct {
	Name string `xml:"name,attr"`
}

// XMLResultsElement wraps the result rows.
type XMLResultsElement struct {
	Results []XMLResult `xml:"result"`
}

// XMLResult is one solution's bindings.
type XMLResult struct {
	Bindings []XMLBinding `xml:"binding"`
}

// XMLBinding is one bound variable inside a result.
type XMLBinding struct {
	Name    string      `xml:"name,attr"`
	URI     *string     `xml:"uri,omitempty"`
	BNode   *string     `xml:"bnode,omitempty"`
	Literal *XMLLiteral `xml:"literal,omitempty"`
}

// XMLLiteral is a literal binding value.
type XMLLiteral struct {
	Value    string `xml:",chardata"`
	Lang     string `xml:"xml:lang,attr,omitempty"`
	Datatype string `xml:"datatype,attr,omitempty"`
}

const sparqlResultsNS = "http://www.w3.org/2005/sparql-results#"

// FormatSelectResultsXML converts SELECT rows to SPARQL XML format.
func FormatSelectResultsXML(vars []string, rows []map[string]rdf.Term) ([]byte, error) {
	doc := XMLResults{Xmlns: sparqlResultsNS, Results: &XMLResultsElement{}}
	for _, v := range vars {
		doc.Head.Variables = append(doc.Head.Variables, XMLVariable{Name: v})
	}
	for _, row := range rows {
		var result XMLResult
		for name, term := range row {
			typ, value, datatype, lang, err := termFields(term)
			if err != nil {
				return nil, err
			}
			b := XMLBinding{Name: name}
			switch typ {
			case "uri":
				v := value
				b.URI = &v
			case "bnode":
				v := value
				b.BNode = &v
			default:
				b.Literal = &XMLLiteral{Value: value, Lang: lang, Datatype: datatype}
			}
			result.Bindings = append(result.Bindings, b)
		}
		doc.Results.Results = append(doc.Results.Results, result)
	}
	return marshalXML(doc)
}

// FormatAskResultXML converts an ASK result to SPARQL XML format.
func FormatAskResultXML(value bool) ([]byte, error) {
	return marshalXML(XMLResults{Xmlns: sparqlResultsNS, Boolean: &value})
}

func marshalXML(doc XMLResults) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString(xml.Header)
	b.Write(body)
	b.WriteString("\n")
	return []byte(b.String()), nil
}
