// Package email holds the transactional email templates handed to the send pipeline.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"sort"
	"strings"
	"text/template/parse"

	"github.com/winprodai/winprod/backend/data"
	"golang.org/x/net/html"
)

type Type string

const (
	Welcome       Type = "welcome"
	Transaction   Type = "transaction"
	Marketing     Type = "marketing"
	PasswordReset Type = "password_reset"
)

//go:embed templates/*.html
var templatesFS embed.FS

// placeholderPattern matches the {{ name }} placeholders the send pipeline substitutes.
var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Template is an email body with {{ name }} style placeholders. Content is stored and served exactly as
// written; the send pipeline does the substitution.
type Template struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Type    Type   `json:"type"`
	Subject string `json:"subject"`
	Content string `json:"content"`
	Active  bool   `json:"isActive"`

	tmpl         *template.Template
	placeholders []string
}

var templates = map[string]*Template{
	"welcome": {
		Name:    "Welcome Email",
		Type:    Welcome,
		Subject: "Welcome to WinProd AI!",
		Active:  true,
	},
	"transaction": {
		Name:    "Transaction Confirmation",
		Type:    Transaction,
		Subject: "Your WinProd AI Payment Confirmation",
		Active:  true,
	},
	"marketing": {
		Name:    "Marketing Newsletter",
		Type:    Marketing,
		Subject: "Discover This Week's Winning Products!",
		Active:  true,
	},
	"password_reset": {
		Name:    "Password Reset",
		Type:    PasswordReset,
		Subject: "Reset Your WinProd AI Password",
		Active:  true,
	},
}

func init() {
	for key, t := range templates {
		content, err := templatesFS.ReadFile("templates/" + key + ".html")
		if err != nil {
			panic(fmt.Sprintf("missing email template %s: %v", key, err))
		}
		t.Key = key
		t.Content = strings.TrimSuffix(string(content), "\n")
		t.tmpl = template.Must(template.New(key).Option("missingkey=error").Parse(goTemplate(t.Content)))
		t.placeholders = placeholders(t.tmpl.Tree.Root)
	}
}

// goTemplate rewrites {{ name }} placeholders as {{.name}} fields so the body parses as a Go template.
func goTemplate(content string) string {
	return placeholderPattern.ReplaceAllString(content, "{{.$1}}")
}

// Templates returns all templates ordered by key.
func Templates() []*Template {
	ts := make([]*Template, 0, len(templates))
	for _, t := range templates {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Key < ts[j].Key })
	return ts
}

func Lookup(key string) (*Template, bool) {
	t, ok := templates[key]
	return t, ok
}

// Placeholders returns the names of the placeholders used in the template, sorted and without duplicates.
func (t *Template) Placeholders() []string {
	names := make([]string, len(t.placeholders))
	copy(names, t.placeholders)
	return names
}

func placeholders(root *parse.ListNode) []string {
	seen := make(map[string]struct{})
	var walk func(node parse.Node)
	walk = func(node parse.Node) {
		switch n := node.(type) {
		case *parse.ListNode:
			for _, c := range n.Nodes {
				walk(c)
			}
		case *parse.ActionNode:
			walk(n.Pipe)
		case *parse.PipeNode:
			for _, cmd := range n.Cmds {
				for _, arg := range cmd.Args {
					walk(arg)
				}
			}
		case *parse.FieldNode:
			seen[strings.Join(n.Ident, ".")] = struct{}{}
		}
	}
	walk(root)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render substitutes vars into the template content. Every placeholder must be present in vars.
func (t *Template) Render(vars map[string]string) (string, error) {
	buf := &bytes.Buffer{}
	err := t.tmpl.Execute(buf, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", t.Key, err)
	}
	return buf.String(), nil
}

// PlainText reduces rendered HTML to its text content with whitespace collapsed, one block per line.
func PlainText(body string) string {
	var lines []string
	var line []string

	flush := func() {
		if len(line) > 0 {
			lines = append(lines, strings.Join(line, " "))
			line = line[:0]
		}
	}

	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			flush()
			return strings.Join(lines, "\n")
		case html.TextToken:
			line = append(line, strings.Fields(string(z.Text()))...)
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "div", "h1", "h3", "li", "br", "ul":
				flush()
			}
		}
	}
}

// Rows converts the templates to data rows for storage.
func Rows() []data.EmailTemplate {
	ts := Templates()
	rows := make([]data.EmailTemplate, len(ts))
	for i, t := range ts {
		rows[i] = data.EmailTemplate{
			Key:      t.Key,
			Name:     t.Name,
			Type:     string(t.Type),
			Subject:  t.Subject,
			Content:  t.Content,
			IsActive: t.Active,
		}
	}
	return rows
}
