package main

import (
	"fmt"
	"strings"
	"text/template"
)

var funcMap = template.FuncMap{
	"goIdent": goIdent,
	"hexID":   func(v uint16) string { return fmt.Sprintf("0x%04X", v) },
	"quote":   func(s string) string { return fmt.Sprintf("%q", s) },
}

var templates = template.Must(template.New("").Funcs(funcMap).Parse(namesTmpl))

const namesTmpl = `{{define "names"}}
// Code generated by qmi-gen from {{.Source}}; DO NOT EDIT.

package {{.Package}}

// Message ids.
const (
{{- range .Services}}{{$svc := .Service}}
{{- range .Messages}}
Message{{$svc}}{{goIdent .Name}} uint16 = {{hexID .ID}}
{{- end}}
{{- end}}
)

// Indication ids.
const (
{{- range .Services}}{{$svc := .Service}}
{{- range .Indications}}
Indication{{$svc}}{{goIdent .Name}} uint16 = {{hexID .ID}}
{{- end}}
{{- end}}
)

var messageNames = map[Service]map[uint16]string{
{{- range .Services}}{{$svc := .Service}}{{if .Messages}}
Service{{$svc}}: {
{{- range .Messages}}
Message{{$svc}}{{goIdent .Name}}: {{quote .Name}},
{{- end}}
},
{{- end}}{{end}}
}

var indicationNames = map[Service]map[uint16]string{
{{- range .Services}}{{$svc := .Service}}{{if .Indications}}
Service{{$svc}}: {
{{- range .Indications}}
Indication{{$svc}}{{goIdent .Name}}: {{quote .Name}},
{{- end}}
},
{{- end}}{{end}}
}
{{end}}`

type namesData struct {
	Source   string
	Package  string
	Services []RawService
}

// GenerateNames renders the name tables for pkg.
func GenerateNames(names *RawNames, pkg, source string) (string, error) {
	var b strings.Builder
	err := templates.ExecuteTemplate(&b, "names", namesData{
		Source:   source,
		Package:  pkg,
		Services: names.Services,
	})
	if err != nil {
		return "", fmt.Errorf("template names: %w", err)
	}
	return b.String(), nil
}

// goIdent converts "Get Version Info" to "GetVersionInfo". Words keep their
// own casing, so "Allocate CID" becomes "AllocateCID".
func goIdent(name string) string {
	var b strings.Builder
	for _, w := range strings.Fields(name) {
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}
